package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/wellspring-app/wellspring/internal/app/gamification"
	"github.com/wellspring-app/wellspring/internal/daemon"
)

func init() {
	rootCmd.AddCommand(progressCmd)
}

var progressCmd = &cobra.Command{
	Use:   "progress <user>",
	Short: "Show a user's level, XP, streak and badges",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			rec, err := d.Engine.GetProgress(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderProgress(d.Engine.View(rec)))
			return nil
		})
	},
}

// ─── Level Bar ──────────────────────────────────────────────────────────────
// [████████████░░░░░░░░░░░░░░░░░░] 42% │ 42 / 100 XP │ 58 to level 3

const barWidth = 30 // Characters for the level bar

func levelBar(lp gamification.LevelProgress) string {
	filled := int(lp.Percent / 100 * barWidth)
	filled = min(max(filled, 0), barWidth)
	bar := barFullStyle.Render(strings.Repeat("█", filled)) +
		barEmptyStyle.Render(strings.Repeat("░", barWidth-filled))
	return fmt.Sprintf("[%s] %3.0f%% │ %d / %d XP │ %d to level %d",
		bar, lp.Percent, lp.InLevel, lp.Size, lp.ToNext, lp.Level+1)
}

func renderProgress(v gamification.ProgressView) string {
	lines := []string{
		titleStyle.Render(v.UserID),
		row("Level", fmt.Sprintf("%d", v.Level)),
		row("Total XP", fmt.Sprintf("%d", v.TotalXP)),
		row("Progress", levelBar(v.LevelProgress)),
		row("Streak", streakLine(v.StreakDays, v.LongestStreak)),
	}
	if v.LastActivity.IsZero() {
		lines = append(lines, row("Last active", dimStyle.Render("never")))
	} else {
		lines = append(lines, row("Last active", v.LastActivity.String()))
	}
	ids := make([]string, 0, len(v.Badges))
	for _, b := range v.Badges {
		ids = append(ids, b.ID)
	}
	badges := dimStyle.Render("none yet")
	if len(ids) > 0 {
		badges = strings.Join(ids, ", ")
	}
	lines = append(lines, row("Badges", badges))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func streakLine(days, longest int) string {
	unit := "days"
	if days == 1 {
		unit = "day"
	}
	return fmt.Sprintf("%d %s %s", days, unit, dimStyle.Render(fmt.Sprintf("(longest %d)", longest)))
}
