package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wellspring-app/wellspring/internal/clock"
	"github.com/wellspring-app/wellspring/internal/daemon"
)

// newClock is swapped in tests.
var newClock = func() clock.Clock { return clock.Real{} }

// withDaemon loads configuration, wires a daemon without serving it and
// runs fn against it.
func withDaemon(cmd *cobra.Command, fn func(ctx context.Context, d *daemon.Daemon) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	d, err := daemon.NewWithConfig(ctx, cfg, newClock())
	if err != nil {
		return err
	}
	defer d.Close()
	return fn(ctx, d)
}
