package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wellspring-app/wellspring/internal/app/gamification"
	"github.com/wellspring-app/wellspring/internal/daemon"
	"github.com/wellspring-app/wellspring/internal/domain"
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", gamification.DefaultHistoryLimit, "Maximum number of events")
	rootCmd.AddCommand(historyCmd)
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <user>",
	Short: "List a user's XP events, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			events, err := d.Engine.GetXPHistory(ctx, args[0], historyLimit)
			if err != nil {
				return err
			}
			return writeHistory(cmd.OutOrStdout(), events)
		})
	},
}

func writeHistory(out io.Writer, events []domain.XPEvent) error {
	if len(events) == 0 {
		fmt.Fprintln(out, dimStyle.Render("No XP events yet."))
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tXP\tREASON\tSOURCE")
	for _, ev := range events {
		source := ev.SourceID
		if ev.Ref != "" && source == "" {
			source = ev.Ref
		}
		fmt.Fprintf(w, "%s\t+%d\t%s\t%s\n",
			ev.OccurredAt.Local().Format(time.DateTime), ev.Amount, ev.Reason, source)
	}
	return w.Flush()
}
