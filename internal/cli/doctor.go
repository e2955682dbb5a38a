package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wellspring-app/wellspring/internal/app/gamification"
	"github.com/wellspring-app/wellspring/internal/daemon"
	"github.com/wellspring-app/wellspring/internal/health"
)

// errDoctorFailed is returned when any diagnostic fails.
var errDoctorFailed = errors.New("diagnostics failed")

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor <user>",
	Short: "Run health checks and audit a user's ledger",
	Long: `Run the service health checks, then verify that the user's stored
total matches the sum of their XP events, that their level matches that
total, and that every earned badge is still in the catalog.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(cmd, func(ctx context.Context, d *daemon.Daemon) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Running diagnostics...")
			fmt.Fprintln(out)

			ok := writeHealth(out, d.Health.RunOnce(ctx))
			report, err := d.Engine.Verify(ctx, args[0])
			if err != nil {
				fmt.Fprintf(out, "%s ledger: %v\n", errorStyle.Render("✗"), err)
				ok = false
			} else if !writeVerify(out, report) {
				ok = false
			}

			fmt.Fprintln(out)
			if !ok {
				return errDoctorFailed
			}
			fmt.Fprintln(out, okStyle.Render("All checks passed."))
			return nil
		})
	},
}

func writeHealth(w io.Writer, statuses []health.Status) bool {
	ok := true
	for _, s := range statuses {
		if s.Healthy {
			fmt.Fprintf(w, "%s %s: OK\n", okStyle.Render("✓"), s.Name)
			continue
		}
		ok = false
		fmt.Fprintf(w, "%s %s: FAIL\n", errorStyle.Render("✗"), s.Name)
		fmt.Fprintf(w, "   Error: %s\n", s.Error)
	}
	return ok
}

func writeVerify(w io.Writer, r gamification.VerifyReport) bool {
	if err := r.Err(); err != nil {
		fmt.Fprintf(w, "%s ledger: FAIL\n", errorStyle.Render("✗"))
		fmt.Fprintf(w, "   Error: %v\n", err)
		return false
	}
	fmt.Fprintf(w, "%s ledger: OK %s\n", okStyle.Render("✓"),
		dimStyle.Render(fmt.Sprintf("(%d XP, level %d)", r.TotalXP, r.Level)))
	return true
}
