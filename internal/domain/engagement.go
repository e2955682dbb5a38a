// Package domain holds the gamification types shared by every layer.
// Wellbeing actions (moods, habits, tasks, goals, gratitude) earn XP,
// XP drives levels, consecutive active days build a streak, and badges
// reward milestones computed from aggregate counts.
package domain

import (
	"fmt"
	"slices"
	"time"
)

// ─── XP Types ───────────────────────────────────────────────────────────────

// XPReason categorizes why XP was granted.
type XPReason string

const (
	ReasonMoodLog        XPReason = "mood_log"
	ReasonHabitCompleted XPReason = "habit_completed"
	ReasonTaskCompleted  XPReason = "task_completed"
	ReasonGoalCompleted  XPReason = "goal_completed"
	ReasonGratitude      XPReason = "gratitude_entry"
	ReasonBadgeBonus     XPReason = "badge_bonus"
	ReasonStreakBonus    XPReason = "streak_bonus"
)

// Reasons lists every known reason in display order.
func Reasons() []XPReason {
	return []XPReason{
		ReasonMoodLog, ReasonHabitCompleted, ReasonTaskCompleted,
		ReasonGoalCompleted, ReasonGratitude, ReasonBadgeBonus, ReasonStreakBonus,
	}
}

// Valid reports whether r is a known reason.
func (r XPReason) Valid() bool {
	return slices.Contains(Reasons(), r)
}

// XPEvent is one immutable entry in a user's XP ledger.
type XPEvent struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Amount     int64     `json:"amount"`
	Reason     XPReason  `json:"reason"`
	SourceID   string    `json:"source_id,omitempty"` // idempotency key of the triggering record
	Ref        string    `json:"ref,omitempty"`       // badge id or streak length for bonuses
	OccurredAt time.Time `json:"occurred_at"`
}

// ─── Progress Types ─────────────────────────────────────────────────────────

// Badge is an earned badge. EarnedAt is fixed at first grant.
type Badge struct {
	ID       string    `json:"id"`
	EarnedAt time.Time `json:"earned_at"`
}

// ProgressRecord is the per-user gamification summary. TotalXP always
// equals the sum of the user's XPEvents and Level is derived from it.
type ProgressRecord struct {
	UserID        string    `json:"user_id"`
	TotalXP       int64     `json:"total_xp"`
	Level         int       `json:"level"`
	StreakDays    int       `json:"streak_days"`
	LongestStreak int       `json:"longest_streak"`
	LastActivity  Day       `json:"last_activity_date"`
	Badges        []Badge   `json:"badges"`
	Version       int64     `json:"version"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewProgressRecord returns the lazily created initial record.
func NewProgressRecord(userID string) ProgressRecord {
	return ProgressRecord{UserID: userID, Level: 1, Badges: []Badge{}}
}

// HasBadge reports whether badge id was already earned.
func (p ProgressRecord) HasBadge(id string) bool {
	return slices.ContainsFunc(p.Badges, func(b Badge) bool { return b.ID == id })
}

// Clone returns a copy that shares no slices with p.
func (p ProgressRecord) Clone() ProgressRecord {
	c := p
	c.Badges = slices.Clone(p.Badges)
	if c.Badges == nil {
		c.Badges = []Badge{}
	}
	return c
}

// ProgressCommit is one optimistic update of a progress record. The store
// applies Next only if the stored version still equals ExpectedVersion, and
// appends Events and Badges in the same transaction.
type ProgressCommit struct {
	Next            ProgressRecord
	ExpectedVersion int64
	Events          []XPEvent
	Badges          []Badge
}

// Empty reports whether the commit changes nothing.
func (c ProgressCommit) Empty() bool {
	return len(c.Events) == 0 && len(c.Badges) == 0
}

// ─── Domain Actions ─────────────────────────────────────────────────────────

// ActionKind names a wellbeing action that triggers gamification.
type ActionKind string

const (
	ActionMood      ActionKind = "mood"
	ActionHabit     ActionKind = "habit"
	ActionTask      ActionKind = "task"
	ActionGoal      ActionKind = "goal"
	ActionGratitude ActionKind = "gratitude"
)

// ActionKinds lists every action kind.
func ActionKinds() []ActionKind {
	return []ActionKind{ActionMood, ActionHabit, ActionTask, ActionGoal, ActionGratitude}
}

// ParseActionKind validates s as an action kind.
func ParseActionKind(s string) (ActionKind, error) {
	k := ActionKind(s)
	if !slices.Contains(ActionKinds(), k) {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return k, nil
}

// Reason returns the XP reason an action of kind k is rewarded under.
func (k ActionKind) Reason() XPReason {
	switch k {
	case ActionMood:
		return ReasonMoodLog
	case ActionHabit:
		return ReasonHabitCompleted
	case ActionTask:
		return ReasonTaskCompleted
	case ActionGoal:
		return ReasonGoalCompleted
	case ActionGratitude:
		return ReasonGratitude
	}
	return ""
}

// Action records that a domain action happened. It is the minimal
// footprint the engine needs to compute aggregates.
type Action struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	Kind       ActionKind `json:"kind"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// ─── Badge Catalog ──────────────────────────────────────────────────────────

// Metric names an aggregate a badge predicate is evaluated over.
type Metric string

const (
	MetricMoodCount      Metric = "mood_count"
	MetricHabitLogCount  Metric = "habit_log_count"
	MetricCompletedTasks Metric = "completed_task_count"
	MetricCompletedGoals Metric = "completed_goal_count"
	MetricGratitudeCount Metric = "gratitude_count"
	MetricLevel          Metric = "level"
	MetricStreakDays     Metric = "streak_days"
)

// Aggregates is the snapshot badge predicates are evaluated against.
type Aggregates struct {
	MoodCount          int64 `json:"mood_count"`
	HabitLogCount      int64 `json:"habit_log_count"`
	CompletedTaskCount int64 `json:"completed_task_count"`
	CompletedGoalCount int64 `json:"completed_goal_count"`
	GratitudeCount     int64 `json:"gratitude_count"`
	Level              int64 `json:"level"`
	StreakDays         int64 `json:"streak_days"`
}

// Value returns the aggregate named by m.
func (a Aggregates) Value(m Metric) (int64, bool) {
	switch m {
	case MetricMoodCount:
		return a.MoodCount, true
	case MetricHabitLogCount:
		return a.HabitLogCount, true
	case MetricCompletedTasks:
		return a.CompletedTaskCount, true
	case MetricCompletedGoals:
		return a.CompletedGoalCount, true
	case MetricGratitudeCount:
		return a.GratitudeCount, true
	case MetricLevel:
		return a.Level, true
	case MetricStreakDays:
		return a.StreakDays, true
	}
	return 0, false
}

// BadgeDefinition is one catalog entry. A badge is eligible once its
// metric reaches Threshold.
type BadgeDefinition struct {
	ID          string `json:"id" toml:"id"`
	Name        string `json:"name" toml:"name"`
	Description string `json:"description" toml:"description"`
	Icon        string `json:"icon" toml:"icon"`
	Category    string `json:"category" toml:"category"`
	Metric      Metric `json:"metric" toml:"metric"`
	Threshold   int64  `json:"threshold" toml:"threshold"`
	BonusXP     int64  `json:"bonus_xp,omitempty" toml:"bonus_xp"` // 0 = catalog default
}

// Eligible reports whether the predicate holds for a.
func (d BadgeDefinition) Eligible(a Aggregates) bool {
	v, ok := a.Value(d.Metric)
	return ok && v >= d.Threshold
}

// Catalog is the static, versioned set of badge definitions.
type Catalog struct {
	Version int               `json:"version"`
	Badges  []BadgeDefinition `json:"badges"`
}

// Lookup returns the definition with the given id.
func (c Catalog) Lookup(id string) (BadgeDefinition, bool) {
	for _, d := range c.Badges {
		if d.ID == id {
			return d, true
		}
	}
	return BadgeDefinition{}, false
}

// Validate checks ids are unique and every predicate is well formed.
func (c Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Badges))
	for _, d := range c.Badges {
		if d.ID == "" {
			return fmt.Errorf("%w: badge with empty id", ErrInvalidCatalog)
		}
		if seen[d.ID] {
			return fmt.Errorf("%w: duplicate badge id %q", ErrInvalidCatalog, d.ID)
		}
		seen[d.ID] = true
		if _, ok := (Aggregates{}).Value(d.Metric); !ok {
			return fmt.Errorf("%w: badge %q has unknown metric %q", ErrInvalidCatalog, d.ID, d.Metric)
		}
		if d.Threshold <= 0 {
			return fmt.Errorf("%w: badge %q threshold must be positive", ErrInvalidCatalog, d.ID)
		}
		if d.BonusXP < 0 {
			return fmt.Errorf("%w: badge %q bonus must not be negative", ErrInvalidCatalog, d.ID)
		}
	}
	return nil
}

// ─── Notification Types ─────────────────────────────────────────────────────

// NotificationType categorizes notifications.
type NotificationType string

const (
	NotifyBadge       NotificationType = "badge"
	NotifyLevelUp     NotificationType = "level_up"
	NotifyStreakBonus NotificationType = "streak_bonus"
)

// Notification is a user-facing milestone message.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	CreatedAt time.Time        `json:"created_at"`
	Shown     bool             `json:"shown"`
}

// NotificationPolicy governs how often notifications are created.
type NotificationPolicy struct {
	MaxPerDay  int    `json:"max_per_day" toml:"max_per_day"`
	QuietStart string `json:"quiet_start" toml:"quiet_start"` // "22:00"
	QuietEnd   string `json:"quiet_end" toml:"quiet_end"`     // "08:00"
}

// DefaultNotificationPolicy allows a few milestones a day outside the night.
func DefaultNotificationPolicy() NotificationPolicy {
	return NotificationPolicy{
		MaxPerDay:  3,
		QuietStart: "22:00",
		QuietEnd:   "08:00",
	}
}
