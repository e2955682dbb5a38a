// Package cli implements the Wellspring command-line interface using Cobra.
// Every subcommand except serve opens the configured store directly.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wellspring",
	Short: "Wellspring: XP, levels, streaks and badges for wellness apps",
	Long: `Wellspring rewards mood logs, habits, tasks, goals and gratitude entries
with experience points, levels, daily streaks and badges.

Run "wellspring serve" to expose the HTTP API, or use the subcommands
to inspect and drive a user's progress from the terminal.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		stop()
		os.Exit(1)
	}
}
