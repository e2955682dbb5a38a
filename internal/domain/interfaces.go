package domain

import (
	"context"
	"time"
)

// ─── Store Interfaces ───────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the application layer depends on them.

// ProgressStore persists progress records and the XP ledger.
type ProgressStore interface {
	// LoadProgress returns the user's record, creating the initial one on
	// first read.
	LoadProgress(ctx context.Context, userID string) (ProgressRecord, error)

	// CommitProgress applies c atomically. It returns ErrVersionConflict
	// when the stored version moved past c.ExpectedVersion, and wraps
	// ErrTransient for failures worth retrying. On success the returned
	// record carries the new version.
	CommitProgress(ctx context.Context, c ProgressCommit) (ProgressRecord, error)

	// XPHistory returns at most limit events, most recent first.
	XPHistory(ctx context.Context, userID string, limit int) ([]XPEvent, error)

	// EventBySource returns the event granted for (user, reason, sourceID),
	// or nil when none exists.
	EventBySource(ctx context.Context, userID string, reason XPReason, sourceID string) (*XPEvent, error)

	// LedgerTotal sums every event amount for the user.
	LedgerTotal(ctx context.Context, userID string) (int64, error)

	Ping(ctx context.Context) error
}

// AggregateSource answers the count queries badge predicates need.
// Implemented by the wellbeing domain stores.
type AggregateSource interface {
	CountMoodEntries(ctx context.Context, userID string) (int64, error)
	CountHabitLogs(ctx context.Context, userID string) (int64, error)
	CountCompletedTasks(ctx context.Context, userID string) (int64, error)
	CountCompletedGoals(ctx context.Context, userID string) (int64, error)
	CountGratitudeEntries(ctx context.Context, userID string) (int64, error)
}

// ActionLog records that a domain action happened.
type ActionLog interface {
	LogAction(ctx context.Context, a Action) error
}

// NotificationStore persists the milestone inbox.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n Notification) (int64, error)
	CountNotificationsSince(ctx context.Context, userID string, since time.Time) (int, error)
	PendingNotifications(ctx context.Context, userID string, limit int) ([]Notification, error)
	MarkNotificationShown(ctx context.Context, userID string, id int64) error
}
