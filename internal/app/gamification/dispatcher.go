package gamification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/wellspring-app/wellspring/internal/clock"
	"github.com/wellspring-app/wellspring/internal/domain"
	"github.com/wellspring-app/wellspring/internal/infra/metrics"
)

// Trigger is one domain action whose own write already succeeded.
type Trigger struct {
	UserID   string
	Action   domain.ActionKind
	SourceID string    // id of the domain record; empty disables dedupe
	At       time.Time // when the action happened; zero means now
}

// MaxClockSkew is how far past the current time a caller-supplied action
// time may be. Anything later would advance the streak past today.
const MaxClockSkew = 5 * time.Minute

// CheckOccurredAt rejects an action time later than now plus MaxClockSkew.
func CheckOccurredAt(now, at time.Time) error {
	if at.After(now.Add(MaxClockSkew)) {
		return fmt.Errorf("%w: %s is after %s", domain.ErrFutureActivity,
			at.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}
	return nil
}

// Outcome reports what a dispatch did. Partial outcomes are valid: each
// step runs regardless of the others.
type Outcome struct {
	Event  *domain.XPEvent `json:"event,omitempty"`
	Streak *StreakResult   `json:"streak,omitempty"`
	Badges []domain.Badge  `json:"badges,omitempty"`
	Errors []error         `json:"-"`
}

// Err joins every step failure, or returns nil.
func (o Outcome) Err() error {
	return errors.Join(o.Errors...)
}

// Retryable joins the failures a later redelivery could fix. Stale
// activity, invalid grants and catalog errors fail the same way every time.
func (o Outcome) Retryable() error {
	var errs []error
	for _, err := range o.Errors {
		if errors.Is(err, domain.ErrStaleActivity) ||
			errors.Is(err, domain.ErrFutureActivity) ||
			errors.Is(err, domain.ErrInvalidGrant) ||
			errors.Is(err, domain.ErrInvalidCatalog) {
			continue
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Warnings renders step failures for API responses.
func (o Outcome) Warnings() []string {
	out := make([]string, 0, len(o.Errors))
	for _, err := range o.Errors {
		out = append(out, err.Error())
	}
	return out
}

// Dispatcher is the single entry point domain actions call after their
// own write: Grant, then RecordActivity, then Reconcile.
type Dispatcher struct {
	ledger      *Ledger
	streak      *StreakTracker
	badges      *Evaluator
	rewards     map[domain.XPReason]int64
	stepTimeout time.Duration
	location    *time.Location
	clock       clock.Clock
	log         *log.Logger
}

// Dispatch runs every gamification step for t. It never returns an error;
// failures are logged, counted and collected in the Outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, t Trigger) Outcome {
	var out Outcome
	now := d.clock.Now()
	at := t.At
	if at.IsZero() {
		at = now
	}
	logger := d.log.With("user", t.UserID, "action", t.Action)

	fail := func(step string, err error) {
		metrics.TriggerFailures.WithLabelValues(step).Inc()
		logger.Warn("gamification step failed", "step", step, "err", err)
		out.Errors = append(out.Errors, fmt.Errorf("%s: %w", step, err))
	}

	// 1. Grant the action's reward.
	reason := t.Action.Reason()
	amount, ok := d.rewards[reason]
	if !ok {
		fail("grant", fmt.Errorf("%w: no reward configured for %q", domain.ErrInvalidGrant, t.Action))
	} else {
		d.step(ctx, func(ctx context.Context) error {
			ev, err := d.ledger.GrantOnce(ctx, t.UserID, amount, reason, t.SourceID)
			if err != nil {
				return err
			}
			out.Event = &ev
			return nil
		}, "grant", fail)
	}

	// 2. Record today's activity for the streak.
	d.step(ctx, func(ctx context.Context) error {
		if err := CheckOccurredAt(now, at); err != nil {
			return err
		}
		res, err := d.streak.RecordActivity(ctx, t.UserID, domain.DayOf(at, d.location))
		if err != nil {
			return err
		}
		out.Streak = &res
		return nil
	}, "streak", fail)

	// 3. Re-evaluate badges.
	d.step(ctx, func(ctx context.Context) error {
		earned, err := d.badges.Reconcile(ctx, t.UserID)
		if err != nil {
			return err
		}
		out.Badges = earned
		return nil
	}, "reconcile", fail)

	if len(out.Errors) == 0 {
		logger.Debug("dispatched", "badges", len(out.Badges))
	}
	return out
}

// step runs fn under the per-step timeout.
func (d *Dispatcher) step(ctx context.Context, fn func(context.Context) error, name string, fail func(string, error)) {
	ctx, cancel := context.WithTimeout(ctx, d.stepTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		fail(name, err)
	}
}

// ─── Convenience Triggers ───────────────────────────────────────────────────

// OnMoodLogged dispatches a mood entry.
func (d *Dispatcher) OnMoodLogged(ctx context.Context, userID, entryID string) Outcome {
	return d.Dispatch(ctx, Trigger{UserID: userID, Action: domain.ActionMood, SourceID: entryID})
}

// OnHabitCompleted dispatches a habit log.
func (d *Dispatcher) OnHabitCompleted(ctx context.Context, userID, logID string) Outcome {
	return d.Dispatch(ctx, Trigger{UserID: userID, Action: domain.ActionHabit, SourceID: logID})
}

// OnTaskCompleted dispatches a completed task.
func (d *Dispatcher) OnTaskCompleted(ctx context.Context, userID, taskID string) Outcome {
	return d.Dispatch(ctx, Trigger{UserID: userID, Action: domain.ActionTask, SourceID: taskID})
}

// OnGoalCompleted dispatches a completed goal.
func (d *Dispatcher) OnGoalCompleted(ctx context.Context, userID, goalID string) Outcome {
	return d.Dispatch(ctx, Trigger{UserID: userID, Action: domain.ActionGoal, SourceID: goalID})
}

// OnGratitudeAdded dispatches a gratitude entry.
func (d *Dispatcher) OnGratitudeAdded(ctx context.Context, userID, entryID string) Outcome {
	return d.Dispatch(ctx, Trigger{UserID: userID, Action: domain.ActionGratitude, SourceID: entryID})
}
