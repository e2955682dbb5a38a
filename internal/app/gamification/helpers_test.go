package gamification_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wellspring-app/wellspring/internal/app/gamification"
	"github.com/wellspring-app/wellspring/internal/clock"
	"github.com/wellspring-app/wellspring/internal/domain"
	"github.com/wellspring-app/wellspring/internal/infra/sqlite"
)

// base is 09:00 UTC, well outside the default quiet hours.
var base = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// testSettings returns defaults with a retry budget large enough for the
// concurrency tests and near-zero backoff.
func testSettings() gamification.Settings {
	s := gamification.DefaultSettings()
	s.Retry = gamification.RetryConfig{MaxRetries: 64, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
	s.StepTimeout = 5 * time.Second
	return s
}

type engineOpts struct {
	store    domain.ProgressStore
	source   domain.AggregateSource
	settings *gamification.Settings
	clock    clock.Clock
	extra    []gamification.Option
}

func newEngine(t *testing.T, o engineOpts) *gamification.Engine {
	t.Helper()
	s := testSettings()
	if o.settings != nil {
		s = *o.settings
	}
	c := o.clock
	if c == nil {
		c = clock.NewManual(base)
	}
	opts := append([]gamification.Option{gamification.WithClock(c)}, o.extra...)
	e, err := gamification.New(o.store, o.source, s, opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

// sqliteEngine wires an engine whose store and aggregates are one SQLite db.
func sqliteEngine(t *testing.T) (*gamification.Engine, *sqlite.DB) {
	t.Helper()
	db := testDB(t)
	return newEngine(t, engineOpts{store: db, source: db}), db
}

func mustProgress(t *testing.T, e *gamification.Engine, user string) domain.ProgressRecord {
	t.Helper()
	rec, err := e.GetProgress(context.Background(), user)
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	return rec
}

// assertInvariants checks the ledger sum and level invariants.
func assertInvariants(t *testing.T, e *gamification.Engine, user string) {
	t.Helper()
	report, err := e.Verify(context.Background(), user)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := report.Err(); err != nil {
		t.Errorf("invariants violated: %v", err)
	}
}

func countReason(events []domain.XPEvent, reason domain.XPReason) int {
	n := 0
	for _, ev := range events {
		if ev.Reason == reason {
			n++
		}
	}
	return n
}

// ─── Fakes ──────────────────────────────────────────────────────────────────

// fakeAggregates is an in-memory AggregateSource with settable counts.
type fakeAggregates struct {
	mu  sync.Mutex
	a   domain.Aggregates
	err error // returned by CountHabitLogs when set
}

func (f *fakeAggregates) set(a domain.Aggregates) {
	f.mu.Lock()
	f.a = a
	f.mu.Unlock()
}

func (f *fakeAggregates) get() domain.Aggregates {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.a
}

func (f *fakeAggregates) CountMoodEntries(context.Context, string) (int64, error) {
	return f.get().MoodCount, nil
}

func (f *fakeAggregates) CountHabitLogs(context.Context, string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.a.HabitLogCount, nil
}

func (f *fakeAggregates) CountCompletedTasks(context.Context, string) (int64, error) {
	return f.get().CompletedTaskCount, nil
}

func (f *fakeAggregates) CountCompletedGoals(context.Context, string) (int64, error) {
	return f.get().CompletedGoalCount, nil
}

func (f *fakeAggregates) CountGratitudeEntries(context.Context, string) (int64, error) {
	return f.get().GratitudeCount, nil
}

// flakyStore wraps a real store and interferes with commits.
type flakyStore struct {
	domain.ProgressStore

	mu           sync.Mutex
	conflicts    int    // commits to reject with ErrVersionConflict
	always       bool   // reject every commit
	beforeCommit func() // run once before the first commit is delegated
	commits      int    // commit attempts seen
}

func (f *flakyStore) CommitProgress(ctx context.Context, c domain.ProgressCommit) (domain.ProgressRecord, error) {
	f.mu.Lock()
	f.commits++
	if f.always || f.conflicts > 0 {
		if f.conflicts > 0 {
			f.conflicts--
		}
		f.mu.Unlock()
		return domain.ProgressRecord{}, domain.ErrVersionConflict
	}
	hook := f.beforeCommit
	f.beforeCommit = nil
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return f.ProgressStore.CommitProgress(ctx, c)
}

func (f *flakyStore) attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits
}
