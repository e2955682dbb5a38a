package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wellspring-app/wellspring/internal/app/gamification"
	"github.com/wellspring-app/wellspring/internal/daemon"
	"github.com/wellspring-app/wellspring/internal/domain"
)

func init() {
	rootCmd.AddCommand(badgesCmd)
}

var badgesCmd = &cobra.Command{
	Use:   "badges [user]",
	Short: "List the badge catalog, or a user's unlock status",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			rec := domain.ProgressRecord{}
			if len(args) == 1 {
				var err error
				if rec, err = d.Engine.GetProgress(ctx, args[0]); err != nil {
					return err
				}
			}
			return writeBadges(cmd.OutOrStdout(), d.Engine.Catalog().Version, d.Engine.Badges.Statuses(rec), len(args) == 1)
		})
	},
}

func writeBadges(out io.Writer, version int, statuses []gamification.BadgeStatus, perUser bool) error {
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Catalog v%d", version)))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if perUser {
		fmt.Fprintln(w, "\tID\tNAME\tEARNED")
	} else {
		fmt.Fprintln(w, "ID\tNAME\tRULE\tBONUS")
	}
	for _, s := range statuses {
		if !perUser {
			fmt.Fprintf(w, "%s\t%s\t%s >= %d\t+%d\n", s.ID, s.Name, s.Metric, s.Threshold, s.BonusXP)
			continue
		}
		mark, earned := dimStyle.Render("·"), dimStyle.Render("locked")
		if s.Unlocked {
			mark, earned = okStyle.Render("★"), s.Badge.EarnedAt.Local().Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", mark, s.ID, s.Name, earned)
	}
	return w.Flush()
}
