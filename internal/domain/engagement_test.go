package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// ─── Day Tests ──────────────────────────────────────────────────────────────

func TestDayOf_UsesLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	// 20:00 UTC on Jan 1 is already Jan 2 in Tokyo.
	at := time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC)

	if got := DayOf(at, time.UTC).String(); got != "2025-01-01" {
		t.Errorf("UTC day = %s, want 2025-01-01", got)
	}
	if got := DayOf(at, tokyo).String(); got != "2025-01-02" {
		t.Errorf("Tokyo day = %s, want 2025-01-02", got)
	}
	if got := DayOf(at, nil).String(); got != "2025-01-01" {
		t.Errorf("nil location day = %s, want 2025-01-01", got)
	}
}

func TestDay_Arithmetic(t *testing.T) {
	d := NewDay(2024, time.February, 28)
	next := d.AddDays(1)
	if next.String() != "2024-02-29" {
		t.Errorf("AddDays(1) = %s, want 2024-02-29", next)
	}
	if !d.Before(next) || !next.After(d) {
		t.Error("ordering broken")
	}
	if !next.AddDays(1).Equal(NewDay(2024, time.March, 1)) {
		t.Error("leap day rollover broken")
	}
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2025-03-09")
	if err != nil {
		t.Fatalf("ParseDay: %v", err)
	}
	if !d.Equal(NewDay(2025, time.March, 9)) {
		t.Errorf("ParseDay = %s", d)
	}

	zero, err := ParseDay("")
	if err != nil || !zero.IsZero() {
		t.Errorf("ParseDay(\"\") = %v, %v; want zero day", zero, err)
	}

	if _, err := ParseDay("09/03/2025"); err == nil {
		t.Error("expected error for malformed day")
	}
}

func TestDay_JSON(t *testing.T) {
	rec := ProgressRecord{LastActivity: NewDay(2025, time.May, 4)}
	b, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	var back ProgressRecord
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatal(err)
	}
	if !back.LastActivity.Equal(rec.LastActivity) {
		t.Errorf("round trip day = %s, want %s", back.LastActivity, rec.LastActivity)
	}
}

// ─── Reason / Action Tests ──────────────────────────────────────────────────

func TestXPReason_Valid(t *testing.T) {
	for _, r := range Reasons() {
		if !r.Valid() {
			t.Errorf("%s should be valid", r)
		}
	}
	if XPReason("referral").Valid() {
		t.Error("unknown reason reported valid")
	}
}

func TestActionKind_Reason(t *testing.T) {
	tests := []struct {
		kind ActionKind
		want XPReason
	}{
		{ActionMood, ReasonMoodLog},
		{ActionHabit, ReasonHabitCompleted},
		{ActionTask, ReasonTaskCompleted},
		{ActionGoal, ReasonGoalCompleted},
		{ActionGratitude, ReasonGratitude},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := tt.kind.Reason(); got != tt.want {
				t.Errorf("Reason() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseActionKind(t *testing.T) {
	if k, err := ParseActionKind("habit"); err != nil || k != ActionHabit {
		t.Errorf("ParseActionKind(habit) = %q, %v", k, err)
	}
	if _, err := ParseActionKind("sleep"); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("err = %v, want ErrUnknownAction", err)
	}
}

// ─── Progress Tests ─────────────────────────────────────────────────────────

func TestNewProgressRecord(t *testing.T) {
	rec := NewProgressRecord("u1")
	if rec.TotalXP != 0 || rec.Level != 1 || rec.StreakDays != 0 || len(rec.Badges) != 0 {
		t.Errorf("initial record = %+v", rec)
	}
	if !rec.LastActivity.IsZero() {
		t.Error("initial record should have no activity date")
	}
}

func TestProgressRecord_CloneIsIndependent(t *testing.T) {
	rec := NewProgressRecord("u1")
	rec.Badges = append(rec.Badges, Badge{ID: "first_mood"})

	c := rec.Clone()
	c.Badges = append(c.Badges, Badge{ID: "streak_7"})
	c.Badges[0].ID = "changed"

	if len(rec.Badges) != 1 || rec.Badges[0].ID != "first_mood" {
		t.Errorf("clone mutated original: %+v", rec.Badges)
	}
	if !c.HasBadge("streak_7") || c.HasBadge("first_mood") {
		t.Errorf("clone badges = %+v", c.Badges)
	}
}

// ─── Catalog Tests ──────────────────────────────────────────────────────────

func TestBadgeDefinition_Eligible(t *testing.T) {
	def := BadgeDefinition{ID: "streak_7", Metric: MetricStreakDays, Threshold: 7}
	if def.Eligible(Aggregates{StreakDays: 6}) {
		t.Error("6 days should not be eligible")
	}
	if !def.Eligible(Aggregates{StreakDays: 7}) {
		t.Error("7 days should be eligible")
	}
	unknown := BadgeDefinition{ID: "x", Metric: "sleep_hours", Threshold: 1}
	if unknown.Eligible(Aggregates{MoodCount: 100}) {
		t.Error("unknown metric must never be eligible")
	}
}

func TestCatalog_Validate(t *testing.T) {
	ok := Catalog{Version: 1, Badges: []BadgeDefinition{
		{ID: "a", Metric: MetricMoodCount, Threshold: 1},
		{ID: "b", Metric: MetricLevel, Threshold: 5, BonusXP: 100},
	}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	tests := []struct {
		name string
		defs []BadgeDefinition
	}{
		{"empty id", []BadgeDefinition{{Metric: MetricMoodCount, Threshold: 1}}},
		{"duplicate", []BadgeDefinition{
			{ID: "a", Metric: MetricMoodCount, Threshold: 1},
			{ID: "a", Metric: MetricLevel, Threshold: 2},
		}},
		{"unknown metric", []BadgeDefinition{{ID: "a", Metric: "steps", Threshold: 1}}},
		{"zero threshold", []BadgeDefinition{{ID: "a", Metric: MetricMoodCount}}},
		{"negative bonus", []BadgeDefinition{{ID: "a", Metric: MetricMoodCount, Threshold: 1, BonusXP: -5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Catalog{Badges: tt.defs}.Validate()
			if !errors.Is(err, ErrInvalidCatalog) {
				t.Errorf("err = %v, want ErrInvalidCatalog", err)
			}
		})
	}
}

func TestCatalog_Lookup(t *testing.T) {
	c := Catalog{Badges: []BadgeDefinition{{ID: "first_goal", Name: "Goal Getter"}}}
	if d, ok := c.Lookup("first_goal"); !ok || d.Name != "Goal Getter" {
		t.Errorf("Lookup = %+v, %v", d, ok)
	}
	if _, ok := c.Lookup("missing"); ok {
		t.Error("Lookup(missing) should fail")
	}
}
