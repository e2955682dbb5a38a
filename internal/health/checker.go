// Package health runs periodic liveness checks over the store, the data
// directory and the badge catalog, exposing the latest results to /health.
package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/wellspring-app/wellspring/internal/clock"
	"github.com/wellspring-app/wellspring/internal/domain"
	"github.com/wellspring-app/wellspring/internal/infra/metrics"
)

// DefaultInterval is the pause between check rounds.
const DefaultInterval = 60 * time.Second

// checkTimeout bounds one check.
const checkTimeout = 5 * time.Second

// Pinger is satisfied by both stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	clock    clock.Clock
	log      *log.Logger
}

// NewChecker creates a checker with the store, data_dir and catalog checks.
// dataDir may be empty when the store is remote.
func NewChecker(store Pinger, dataDir string, catalog domain.Catalog, clk clock.Clock, logger *log.Logger) *Checker {
	checks := []Check{
		{
			Name:    "store",
			CheckFn: store.Ping,
		},
		{
			Name:    "catalog",
			CheckFn: func(context.Context) error { return catalog.Validate() },
		},
	}
	if dataDir != "" {
		checks = append(checks, Check{
			Name:      "data_dir",
			CheckFn:   func(context.Context) error { return checkWritable(dataDir) },
			RecoverFn: func(context.Context) error { return os.MkdirAll(dataDir, 0o700) },
		})
	}
	return New(checks, clk, logger)
}

// New creates a checker over arbitrary checks.
func New(checks []Check, clk clock.Clock, logger *log.Logger) *Checker {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Checker{
		interval: DefaultInterval,
		checks:   checks,
		clock:    clk,
		log:      logger.With("component", "health"),
	}
}

// SetInterval overrides DefaultInterval. Call before Run.
func (c *Checker) SetInterval(d time.Duration) {
	if d > 0 {
		c.interval = d
	}
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce executes every check and attempts recovery on failures.
func (c *Checker) RunOnce(ctx context.Context) []Status {
	statuses := make([]Status, len(c.checks))
	for i, check := range c.checks {
		s := Status{Name: check.Name, CheckedAt: c.clock.Now()}
		err := runCheck(ctx, check.CheckFn)
		if err != nil && check.RecoverFn != nil {
			if rerr := runCheck(ctx, check.RecoverFn); rerr == nil {
				if err = runCheck(ctx, check.CheckFn); err == nil {
					metrics.HealthRecoveries.WithLabelValues(check.Name).Inc()
					c.log.Info("health check recovered", "check", check.Name)
				}
			}
		}
		if err != nil {
			s.Error = err.Error()
			c.log.Warn("health check failed", "check", check.Name, "err", err)
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
		} else {
			s.Healthy = true
			metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		}
		statuses[i] = s
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
	return statuses
}

func runCheck(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return fn(ctx)
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass. Vacuously true before the
// first round.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	probe := filepath.Join(dir, ".health-probe")
	if err := os.WriteFile(probe, nil, 0o600); err != nil {
		return fmt.Errorf("data dir not writable: %w", err)
	}
	return os.Remove(probe)
}
