// Package gamification implements the Wellspring engagement engine: an
// append-only XP ledger, the level calculator, the daily streak, badge
// reconciliation and the dispatcher domain actions call into.
//
// Every mutation of a user's progress record goes through one optimistic
// compare-and-swap loop (load, compute, commit iff the version is
// unchanged, back off and retry on conflict), so concurrent grants,
// streak updates and badge passes never clobber each other.
package gamification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/wellspring-app/wellspring/internal/clock"
	"github.com/wellspring-app/wellspring/internal/domain"
)

// ─── Options ────────────────────────────────────────────────────────────────

type options struct {
	clock     clock.Clock
	log       *log.Logger
	observers []Observer
}

// Option configures an Engine or Notifier.
type Option func(*options)

// WithClock injects the time source.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithObserver registers an observer of committed progress changes.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

func buildOptions(opts []Option) options {
	o := options{clock: clock.Real{}}
	for _, fn := range opts {
		fn(&o)
	}
	if o.log == nil {
		o.log = log.New(io.Discard)
	}
	return o
}

// ─── Engine ─────────────────────────────────────────────────────────────────

// Engine bundles the gamification components over one store.
type Engine struct {
	settings Settings
	levels   Levels
	store    domain.ProgressStore

	Ledger     *Ledger
	Streaks    *StreakTracker
	Badges     *Evaluator
	Dispatcher *Dispatcher
}

// New validates settings and wires the engine.
func New(store domain.ProgressStore, source domain.AggregateSource, settings Settings, opts ...Option) (*Engine, error) {
	settings = settings.normalized()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	logger := o.log.With("component", "gamification")

	levels := NewLevels(settings.LevelSize)
	u := &updater{
		store:     store,
		levels:    levels,
		retry:     settings.Retry,
		clock:     o.clock,
		log:       logger,
		observers: o.observers,
	}

	e := &Engine{settings: settings, levels: levels, store: store}
	e.Ledger = &Ledger{u: u}
	e.Streaks = &StreakTracker{u: u, bonus: settings.StreakBonus, every: settings.StreakBonusEvery}
	e.Badges = &Evaluator{u: u, source: source, catalog: settings.Catalog, badgeBonus: settings.BadgeBonus}
	e.Dispatcher = &Dispatcher{
		ledger:      e.Ledger,
		streak:      e.Streaks,
		badges:      e.Badges,
		rewards:     settings.Rewards,
		stepTimeout: settings.StepTimeout,
		location:    settings.Location,
		clock:       o.clock,
		log:         logger,
	}
	return e, nil
}

// Settings returns the validated settings.
func (e *Engine) Settings() Settings { return e.settings }

// Levels returns the level calculator.
func (e *Engine) Levels() Levels { return e.levels }

// Catalog returns the static versioned badge catalog.
func (e *Engine) Catalog() domain.Catalog { return e.settings.Catalog }

// Grant is Ledger.Grant.
func (e *Engine) Grant(ctx context.Context, userID string, amount int64, reason domain.XPReason) (domain.XPEvent, error) {
	return e.Ledger.Grant(ctx, userID, amount, reason)
}

// GrantOnce is Ledger.GrantOnce.
func (e *Engine) GrantOnce(ctx context.Context, userID string, amount int64, reason domain.XPReason, sourceID string) (domain.XPEvent, error) {
	return e.Ledger.GrantOnce(ctx, userID, amount, reason, sourceID)
}

// RecordActivity is StreakTracker.RecordActivity.
func (e *Engine) RecordActivity(ctx context.Context, userID string, day domain.Day) (StreakResult, error) {
	return e.Streaks.RecordActivity(ctx, userID, day)
}

// Reconcile is Evaluator.Reconcile.
func (e *Engine) Reconcile(ctx context.Context, userID string) ([]domain.Badge, error) {
	return e.Badges.Reconcile(ctx, userID)
}

// Dispatch is Dispatcher.Dispatch.
func (e *Engine) Dispatch(ctx context.Context, t Trigger) Outcome {
	return e.Dispatcher.Dispatch(ctx, t)
}

// OnMoodLogged is Dispatcher.OnMoodLogged.
func (e *Engine) OnMoodLogged(ctx context.Context, userID, entryID string) Outcome {
	return e.Dispatcher.OnMoodLogged(ctx, userID, entryID)
}

// OnHabitCompleted is Dispatcher.OnHabitCompleted.
func (e *Engine) OnHabitCompleted(ctx context.Context, userID, logID string) Outcome {
	return e.Dispatcher.OnHabitCompleted(ctx, userID, logID)
}

// OnTaskCompleted is Dispatcher.OnTaskCompleted.
func (e *Engine) OnTaskCompleted(ctx context.Context, userID, taskID string) Outcome {
	return e.Dispatcher.OnTaskCompleted(ctx, userID, taskID)
}

// OnGoalCompleted is Dispatcher.OnGoalCompleted.
func (e *Engine) OnGoalCompleted(ctx context.Context, userID, goalID string) Outcome {
	return e.Dispatcher.OnGoalCompleted(ctx, userID, goalID)
}

// OnGratitudeAdded is Dispatcher.OnGratitudeAdded.
func (e *Engine) OnGratitudeAdded(ctx context.Context, userID, entryID string) Outcome {
	return e.Dispatcher.OnGratitudeAdded(ctx, userID, entryID)
}

// GetProgress returns the user's record, creating it on first read.
func (e *Engine) GetProgress(ctx context.Context, userID string) (domain.ProgressRecord, error) {
	rec, err := e.store.LoadProgress(ctx, userID)
	if err != nil {
		return rec, fmt.Errorf("get progress: %w", err)
	}
	return rec, nil
}

// GetXPHistory is Ledger.History.
func (e *Engine) GetXPHistory(ctx context.Context, userID string, limit int) ([]domain.XPEvent, error) {
	return e.Ledger.History(ctx, userID, limit)
}

// ProgressView is a record plus its level breakdown.
type ProgressView struct {
	domain.ProgressRecord
	LevelProgress LevelProgress `json:"level_progress"`
}

// View decorates rec with its level breakdown.
func (e *Engine) View(rec domain.ProgressRecord) ProgressView {
	return ProgressView{ProgressRecord: rec, LevelProgress: e.levels.Progress(rec.TotalXP)}
}

// ─── Audit ──────────────────────────────────────────────────────────────────

// VerifyReport is the result of an invariant check.
type VerifyReport struct {
	UserID        string   `json:"user_id"`
	TotalXP       int64    `json:"total_xp"`
	LedgerXP      int64    `json:"ledger_xp"`
	Level         int      `json:"level"`
	ExpectedLevel int      `json:"expected_level"`
	UnknownBadges []string `json:"unknown_badges,omitempty"`
}

// Err returns every invariant violation in r, or nil.
func (r VerifyReport) Err() error {
	var errs []error
	if r.TotalXP != r.LedgerXP {
		errs = append(errs, fmt.Errorf("%w: total_xp %d, ledger sum %d", domain.ErrLedgerMismatch, r.TotalXP, r.LedgerXP))
	}
	if r.Level != r.ExpectedLevel {
		errs = append(errs, fmt.Errorf("%w: level %d, expected %d", domain.ErrLedgerMismatch, r.Level, r.ExpectedLevel))
	}
	if len(r.UnknownBadges) > 0 {
		errs = append(errs, fmt.Errorf("%w: badges not in catalog: %v", domain.ErrInvalidCatalog, r.UnknownBadges))
	}
	return errors.Join(errs...)
}

// Verify recomputes the ledger sum and level for the user and compares
// them to the stored record. The read is repeated if the record changes
// underneath it.
func (e *Engine) Verify(ctx context.Context, userID string) (VerifyReport, error) {
	for attempt := 0; ; attempt++ {
		rec, err := e.store.LoadProgress(ctx, userID)
		if err != nil {
			return VerifyReport{}, fmt.Errorf("verify: %w", err)
		}
		sum, err := e.store.LedgerTotal(ctx, userID)
		if err != nil {
			return VerifyReport{}, fmt.Errorf("verify: %w", err)
		}
		again, err := e.store.LoadProgress(ctx, userID)
		if err != nil {
			return VerifyReport{}, fmt.Errorf("verify: %w", err)
		}
		if again.Version != rec.Version && attempt < e.settings.Retry.MaxRetries {
			continue
		}

		r := VerifyReport{
			UserID:        userID,
			TotalXP:       rec.TotalXP,
			LedgerXP:      sum,
			Level:         rec.Level,
			ExpectedLevel: e.levels.LevelOf(rec.TotalXP),
		}
		for _, b := range rec.Badges {
			if _, ok := e.settings.Catalog.Lookup(b.ID); !ok {
				r.UnknownBadges = append(r.UnknownBadges, b.ID)
			}
		}
		slices.Sort(r.UnknownBadges)
		return r, nil
	}
}
