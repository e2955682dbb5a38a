package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/wellspring-app/wellspring/internal/domain"
)

// ─── Activity Log ───────────────────────────────────────────────────────────

// LogAction records a domain action. Re-logging the same id is a no-op.
func (d *DB) LogAction(ctx context.Context, a domain.Action) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO activities (id, user_id, kind, occurred_at) VALUES (?, ?, ?, ?)`,
		a.ID, a.UserID, string(a.Kind), millis(a.OccurredAt),
	)
	if err != nil {
		return classify(fmt.Errorf("log action: %w", err))
	}
	return nil
}

// ─── Aggregates ─────────────────────────────────────────────────────────────

func (d *DB) countKind(ctx context.Context, userID string, kind domain.ActionKind) (int64, error) {
	var n int64
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM activities WHERE user_id = ? AND kind = ?`, userID, string(kind),
	).Scan(&n)
	if err != nil {
		return 0, classify(fmt.Errorf("count %s: %w", kind, err))
	}
	return n, nil
}

// CountMoodEntries returns the number of logged moods.
func (d *DB) CountMoodEntries(ctx context.Context, userID string) (int64, error) {
	return d.countKind(ctx, userID, domain.ActionMood)
}

// CountHabitLogs returns the number of habit completions.
func (d *DB) CountHabitLogs(ctx context.Context, userID string) (int64, error) {
	return d.countKind(ctx, userID, domain.ActionHabit)
}

// CountCompletedTasks returns the number of completed tasks.
func (d *DB) CountCompletedTasks(ctx context.Context, userID string) (int64, error) {
	return d.countKind(ctx, userID, domain.ActionTask)
}

// CountCompletedGoals returns the number of completed goals.
func (d *DB) CountCompletedGoals(ctx context.Context, userID string) (int64, error) {
	return d.countKind(ctx, userID, domain.ActionGoal)
}

// CountGratitudeEntries returns the number of gratitude entries.
func (d *DB) CountGratitudeEntries(ctx context.Context, userID string) (int64, error) {
	return d.countKind(ctx, userID, domain.ActionGratitude)
}

// ─── Notifications ──────────────────────────────────────────────────────────

// InsertNotification stores a notification and returns its id.
func (d *DB) InsertNotification(ctx context.Context, n domain.Notification) (int64, error) {
	result, err := d.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, type, title, body, created_at, shown) VALUES (?, ?, ?, ?, ?, 0)`,
		n.UserID, string(n.Type), n.Title, n.Body, millis(n.CreatedAt),
	)
	if err != nil {
		return 0, classify(fmt.Errorf("insert notification: %w", err))
	}
	return result.LastInsertId()
}

// CountNotificationsSince counts the user's notifications created at or after since.
func (d *DB) CountNotificationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND created_at >= ?`,
		userID, since.UnixMilli(),
	).Scan(&count)
	return count, err
}

// PendingNotifications returns unshown notifications, oldest first.
func (d *DB) PendingNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, user_id, type, title, body, created_at, shown FROM notifications
		 WHERE user_id = ? AND shown = 0 ORDER BY created_at ASC, id ASC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("query notifications: %w", err))
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var typ string
		var createdAt int64
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Body, &createdAt, &n.Shown); err != nil {
			return nil, err
		}
		n.Type = domain.NotificationType(typ)
		n.CreatedAt = fromMillis(createdAt)
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkNotificationShown marks one of the user's notifications as shown.
func (d *DB) MarkNotificationShown(ctx context.Context, userID string, id int64) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE notifications SET shown = 1 WHERE id = ? AND user_id = ?`, id, userID,
	)
	if err != nil {
		return classify(fmt.Errorf("mark notification shown: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("notification %d: %w", id, domain.ErrNotificationNotFound)
	}
	return nil
}
