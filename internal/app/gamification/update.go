package gamification

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/charmbracelet/log"

	"github.com/wellspring-app/wellspring/internal/clock"
	"github.com/wellspring-app/wellspring/internal/domain"
	"github.com/wellspring-app/wellspring/internal/infra/metrics"
)

// ─── Retry Policy ───────────────────────────────────────────────────────────

// RetryConfig bounds the optimistic update loop.
type RetryConfig struct {
	MaxRetries int           // Retries after the first attempt before giving up
	BaseDelay  time.Duration // Initial backoff delay (doubles each retry)
	MaxDelay   time.Duration // Cap on backoff delay
}

// DefaultRetryConfig returns production retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 8,
		BaseDelay:  5 * time.Millisecond,
		MaxDelay:   80 * time.Millisecond,
	}
}

// Backoff returns the delay before retry number attempt (1-based):
// BaseDelay * 2^(attempt-1), capped at MaxDelay.
func (r RetryConfig) Backoff(attempt int) time.Duration {
	delay := r.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > r.MaxDelay {
			delay = r.MaxDelay
			break
		}
	}
	if delay > r.MaxDelay && r.MaxDelay > 0 {
		delay = r.MaxDelay
	}
	return delay
}

// wait sleeps for the jittered backoff of attempt or until ctx is done.
func (r RetryConfig) wait(ctx context.Context, attempt int) error {
	delay := r.Backoff(attempt)
	if delay <= 0 {
		return ctx.Err()
	}
	// Half fixed, half random, so racing writers spread out.
	delay = delay/2 + rand.N(delay/2+1)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ─── Optimistic Updater ─────────────────────────────────────────────────────

// errNoChange is returned by a mutation that has nothing to commit.
var errNoChange = errors.New("no change")

// mutation computes the next state from a freshly loaded record, appending
// any events and badges to c. It runs again on every retry, so it must
// derive everything from rec.
type mutation func(rec *domain.ProgressRecord, c *domain.ProgressCommit) error

// Observer is told about every committed progress change. Implementations
// must not block and must handle their own failures.
type Observer interface {
	ProgressCommitted(ctx context.Context, before, after domain.ProgressRecord, c domain.ProgressCommit)
}

// updater runs the load → compute → compare-and-swap loop shared by every
// operation that mutates a progress record.
type updater struct {
	store     domain.ProgressStore
	levels    Levels
	retry     RetryConfig
	clock     clock.Clock
	log       *log.Logger
	observers []Observer
}

// update applies mutate to the user's record. It returns the committed
// record and commit, or the unchanged record and an empty commit when the
// mutation reported errNoChange.
func (u *updater) update(ctx context.Context, op, userID string, mutate mutation) (domain.ProgressRecord, domain.ProgressCommit, error) {
	start := time.Now()
	defer func() {
		metrics.ProgressUpdateLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	for attempt := 0; ; attempt++ {
		rec, err := u.store.LoadProgress(ctx, userID)
		if err != nil {
			if errors.Is(err, domain.ErrTransient) && attempt < u.retry.MaxRetries {
				if werr := u.retry.wait(ctx, attempt+1); werr != nil {
					return rec, domain.ProgressCommit{}, fmt.Errorf("%s: %w", op, werr)
				}
				continue
			}
			return rec, domain.ProgressCommit{}, fmt.Errorf("%s: load progress: %w", op, err)
		}

		next := rec.Clone()
		c := domain.ProgressCommit{ExpectedVersion: rec.Version}
		if err := mutate(&next, &c); err != nil {
			if errors.Is(err, errNoChange) {
				return rec, domain.ProgressCommit{}, nil
			}
			return rec, domain.ProgressCommit{}, err
		}
		next.Level = u.levels.LevelOf(next.TotalXP)
		next.UpdatedAt = u.clock.Now()
		c.Next = next

		committed, err := u.store.CommitProgress(ctx, c)
		if err == nil {
			u.committed(ctx, rec, committed, c)
			return committed, c, nil
		}

		if !errors.Is(err, domain.ErrVersionConflict) && !errors.Is(err, domain.ErrTransient) {
			return rec, domain.ProgressCommit{}, fmt.Errorf("%s: commit progress: %w", op, err)
		}
		metrics.ProgressConflicts.WithLabelValues(op).Inc()
		if attempt >= u.retry.MaxRetries {
			metrics.ProgressRetriesExhausted.WithLabelValues(op).Inc()
			return rec, domain.ProgressCommit{}, fmt.Errorf("%s for user %s after %d attempts: %w",
				op, userID, attempt+1, domain.ErrConflictRetryExhausted)
		}
		u.log.Debug("progress conflict, retrying", "op", op, "user", userID, "attempt", attempt+1, "err", err)
		if werr := u.retry.wait(ctx, attempt+1); werr != nil {
			return rec, domain.ProgressCommit{}, fmt.Errorf("%s: %w", op, werr)
		}
	}
}

func (u *updater) committed(ctx context.Context, before, after domain.ProgressRecord, c domain.ProgressCommit) {
	for _, ev := range c.Events {
		metrics.XPGranted.WithLabelValues(string(ev.Reason)).Add(float64(ev.Amount))
		metrics.XPGrants.WithLabelValues(string(ev.Reason)).Inc()
		if ev.Reason == domain.ReasonStreakBonus {
			metrics.StreakBonuses.Inc()
		}
	}
	for _, b := range c.Badges {
		metrics.BadgesGranted.WithLabelValues(b.ID).Inc()
	}
	for _, o := range u.observers {
		o.ProgressCommitted(ctx, before, after, c)
	}
}
