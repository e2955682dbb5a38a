package gamification_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wellspring-app/wellspring/internal/app/gamification"
	"github.com/wellspring-app/wellspring/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// Badge Evaluator Tests
// ═══════════════════════════════════════════════════════════════════════════

func badgeIDs(badges []domain.Badge) map[string]bool {
	ids := make(map[string]bool, len(badges))
	for _, b := range badges {
		ids[b.ID] = true
	}
	return ids
}

func TestDefaultCatalog_Valid(t *testing.T) {
	c := gamification.DefaultCatalog()
	if err := c.Validate(); err != nil {
		t.Fatalf("default catalog invalid: %v", err)
	}
	if c.Version != gamification.CatalogVersion {
		t.Errorf("version = %d, want %d", c.Version, gamification.CatalogVersion)
	}
	for _, id := range []string{"first_mood", "first_habit", "first_task", "first_goal", "first_gratitude", "streak_7", "level_5"} {
		if _, ok := c.Lookup(id); !ok {
			t.Errorf("catalog missing %s", id)
		}
	}
}

func TestReconcile_GrantsEligibleWithBonus(t *testing.T) {
	db := testDB(t)
	agg := &fakeAggregates{}
	agg.set(domain.Aggregates{MoodCount: 1})
	e := newEngine(t, engineOpts{store: db, source: agg})
	ctx := context.Background()

	earned, err := e.Reconcile(ctx, "ana")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(earned) != 1 || earned[0].ID != "first_mood" {
		t.Fatalf("earned = %+v, want [first_mood]", earned)
	}
	if !earned[0].EarnedAt.Equal(base) {
		t.Errorf("earned_at = %v, want %v", earned[0].EarnedAt, base)
	}

	rec := mustProgress(t, e, "ana")
	if rec.TotalXP != 50 || !rec.HasBadge("first_mood") {
		t.Errorf("record = %+v", rec)
	}
	events, _ := db.XPHistory(ctx, "ana", 10)
	if len(events) != 1 || events[0].Reason != domain.ReasonBadgeBonus || events[0].Ref != "first_mood" {
		t.Errorf("events = %+v", events)
	}
	assertInvariants(t, e, "ana")
}

func TestReconcile_Idempotent(t *testing.T) {
	db := testDB(t)
	agg := &fakeAggregates{}
	agg.set(domain.Aggregates{MoodCount: 5, GratitudeCount: 1})
	e := newEngine(t, engineOpts{store: db, source: agg})
	ctx := context.Background()

	if _, err := e.Reconcile(ctx, "bea"); err != nil {
		t.Fatal(err)
	}
	before := mustProgress(t, e, "bea")

	again, err := e.Reconcile(ctx, "bea")
	if err != nil {
		t.Fatal(err)
	}
	if len(again) != 0 {
		t.Errorf("second reconcile granted %+v", again)
	}
	after := mustProgress(t, e, "bea")
	if after.Version != before.Version || after.TotalXP != before.TotalXP {
		t.Errorf("second reconcile wrote: before %+v, after %+v", before, after)
	}
}

func TestReconcile_NeverRevokes(t *testing.T) {
	db := testDB(t)
	agg := &fakeAggregates{}
	agg.set(domain.Aggregates{CompletedTaskCount: 1})
	e := newEngine(t, engineOpts{store: db, source: agg})
	ctx := context.Background()

	if _, err := e.Reconcile(ctx, "cyd"); err != nil {
		t.Fatal(err)
	}
	earnedAt := mustProgress(t, e, "cyd").Badges[0].EarnedAt

	// The task was deleted upstream; aggregates regressed.
	agg.set(domain.Aggregates{})
	if _, err := e.Reconcile(ctx, "cyd"); err != nil {
		t.Fatal(err)
	}
	rec := mustProgress(t, e, "cyd")
	if !rec.HasBadge("first_task") {
		t.Fatal("badge revoked after aggregates regressed")
	}
	if !rec.Badges[0].EarnedAt.Equal(earnedAt) {
		t.Errorf("earned_at changed: %v -> %v", earnedAt, rec.Badges[0].EarnedAt)
	}
}

func TestReconcile_PerBadgeBonusOverride(t *testing.T) {
	db := testDB(t)
	agg := &fakeAggregates{}
	agg.set(domain.Aggregates{MoodCount: 100})
	e := newEngine(t, engineOpts{store: db, source: agg})

	earned, err := e.Reconcile(context.Background(), "dom")
	if err != nil {
		t.Fatal(err)
	}
	ids := badgeIDs(earned)
	if len(earned) != 3 || !ids["first_mood"] || !ids["mood_30"] || !ids["mood_100"] {
		t.Fatalf("earned = %+v", earned)
	}
	// 50 + 50 + 150 (mood_100 override)
	if rec := mustProgress(t, e, "dom"); rec.TotalXP != 250 {
		t.Errorf("total = %d, want 250", rec.TotalXP)
	}
	assertInvariants(t, e, "dom")
}

func TestReconcile_UsesRecordLevelAndStreak(t *testing.T) {
	e, _ := sqliteEngine(t)
	ctx := context.Background()

	if _, err := e.Grant(ctx, "eda", 400, domain.ReasonGoalCompleted); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 7; i++ {
		if _, err := e.RecordActivity(ctx, "eda", day(i)); err != nil {
			t.Fatal(err)
		}
	}

	earned, err := e.Reconcile(ctx, "eda")
	if err != nil {
		t.Fatal(err)
	}
	ids := badgeIDs(earned)
	if !ids["level_5"] || !ids["streak_7"] {
		t.Errorf("earned = %+v, want level_5 and streak_7", earned)
	}
	assertInvariants(t, e, "eda")
}

func TestReconcile_AggregateFailureGrantsNothing(t *testing.T) {
	db := testDB(t)
	agg := &fakeAggregates{err: errors.New("habit store offline")}
	agg.set(domain.Aggregates{MoodCount: 1})
	e := newEngine(t, engineOpts{store: db, source: agg})

	earned, err := e.Reconcile(context.Background(), "fox")
	if !errors.Is(err, domain.ErrAggregatesUnavailable) {
		t.Fatalf("err = %v, want ErrAggregatesUnavailable", err)
	}
	if len(earned) != 0 {
		t.Errorf("earned = %+v, want none", earned)
	}
	rec := mustProgress(t, e, "fox")
	if len(rec.Badges) != 0 || rec.TotalXP != 0 {
		t.Errorf("partial grant: %+v", rec)
	}
}

func TestReconcile_ConcurrentPassesGrantOnce(t *testing.T) {
	db := testDB(t)
	agg := &fakeAggregates{}
	agg.set(domain.Aggregates{MoodCount: 1, HabitLogCount: 1})
	e := newEngine(t, engineOpts{store: db, source: agg})
	ctx := context.Background()

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := e.Reconcile(ctx, "gus")
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Errorf("reconcile: %v", err)
		}
	}

	rec := mustProgress(t, e, "gus")
	if len(rec.Badges) != 2 || rec.TotalXP != 100 {
		t.Errorf("record = %+v, want 2 badges and 100 XP", rec)
	}
	assertInvariants(t, e, "gus")
}

func TestStatuses_LockedAndUnlocked(t *testing.T) {
	e, _ := sqliteEngine(t)
	rec := domain.NewProgressRecord("hu")
	rec.Badges = []domain.Badge{{ID: "first_goal", EarnedAt: base.Add(time.Hour)}}

	statuses := e.Badges.Statuses(rec)
	if len(statuses) != len(e.Catalog().Badges) {
		t.Fatalf("statuses = %d, want %d", len(statuses), len(e.Catalog().Badges))
	}
	for _, s := range statuses {
		if s.ID == "first_goal" {
			if !s.Unlocked || s.Badge == nil {
				t.Errorf("first_goal should be unlocked: %+v", s)
			}
		} else if s.Unlocked {
			t.Errorf("%s should be locked", s.ID)
		}
		if s.BonusXP <= 0 {
			t.Errorf("%s bonus = %d, want effective bonus", s.ID, s.BonusXP)
		}
	}
}
