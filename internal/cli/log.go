package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wellspring-app/wellspring/internal/app/gamification"
	"github.com/wellspring-app/wellspring/internal/daemon"
	"github.com/wellspring-app/wellspring/internal/domain"
)

func init() {
	logCmd.Flags().StringVar(&logID, "id", "", "Record id used for dedupe (default: random)")
	logCmd.Flags().StringVar(&logAt, "at", "", "When the action happened, RFC 3339 (default: now)")
	rootCmd.AddCommand(logCmd)
}

var (
	logID string
	logAt string
)

var logCmd = &cobra.Command{
	Use:   "log <mood|habit|task|goal|gratitude> <user>",
	Short: "Record a domain action and apply its rewards",
	Long: `Record a domain action and run the reward pipeline for it: grant XP,
advance the daily streak, then unlock any newly earned badges.

Logging the same --id twice is safe: the second call grants nothing.`,
	Args: cobra.ExactArgs(2),
	RunE: runLog,
}

func runLog(cmd *cobra.Command, args []string) error {
	kind, err := domain.ParseActionKind(args[0])
	if err != nil {
		return err
	}
	now := newClock().Now()
	at := now
	if logAt != "" {
		if at, err = time.Parse(time.RFC3339, logAt); err != nil {
			return fmt.Errorf("invalid --at %q: %w", logAt, err)
		}
		if err := gamification.CheckOccurredAt(now, at); err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
	}
	id := logID
	if id == "" {
		id = uuid.NewString()
	}
	action := domain.Action{ID: id, UserID: args[1], Kind: kind, OccurredAt: at}

	return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
		if err := d.Store.LogAction(ctx, action); err != nil {
			return fmt.Errorf("log action: %w", err)
		}
		out := d.Engine.Dispatch(ctx, gamification.Trigger{
			UserID: action.UserID, Action: kind, SourceID: action.ID, At: action.OccurredAt,
		})
		writeOutcome(cmd.OutOrStdout(), action, out)
		return nil
	})
}

func writeOutcome(w io.Writer, a domain.Action, out gamification.Outcome) {
	fmt.Fprintf(w, "%s %s %s\n", okStyle.Render("✓"), a.Kind, dimStyle.Render(a.ID))
	if out.Event != nil {
		fmt.Fprintf(w, "  +%d XP (%s)\n", out.Event.Amount, out.Event.Reason)
	}
	if s := out.Streak; s != nil && s.Advanced {
		fmt.Fprintf(w, "  streak %d\n", s.Record.StreakDays)
		if s.Bonus != nil {
			fmt.Fprintf(w, "  +%d XP streak bonus\n", s.Bonus.Amount)
		}
	}
	for _, b := range out.Badges {
		fmt.Fprintf(w, "  %s %s\n", titleStyle.Render("★"), b.ID)
	}
	for _, warning := range out.Warnings() {
		fmt.Fprintf(w, "  %s %s\n", warnStyle.Render("⚠"), warning)
	}
}
