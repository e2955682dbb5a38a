package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/wellspring-app/wellspring/internal/domain"
)

// LogAction records a domain action. Re-logging the same id is a no-op.
func (s *Store) LogAction(ctx context.Context, a domain.Action) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activities (id, user_id, kind, occurred_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		a.ID, a.UserID, string(a.Kind), a.OccurredAt,
	)
	if err != nil {
		return classify(fmt.Errorf("log action: %w", err))
	}
	return nil
}

func (s *Store) countKind(ctx context.Context, userID string, kind domain.ActionKind) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM activities WHERE user_id = $1 AND kind = $2`, userID, string(kind),
	).Scan(&n); err != nil {
		return 0, classify(fmt.Errorf("count %s: %w", kind, err))
	}
	return n, nil
}

func (s *Store) CountMoodEntries(ctx context.Context, userID string) (int64, error) {
	return s.countKind(ctx, userID, domain.ActionMood)
}

func (s *Store) CountHabitLogs(ctx context.Context, userID string) (int64, error) {
	return s.countKind(ctx, userID, domain.ActionHabit)
}

func (s *Store) CountCompletedTasks(ctx context.Context, userID string) (int64, error) {
	return s.countKind(ctx, userID, domain.ActionTask)
}

func (s *Store) CountCompletedGoals(ctx context.Context, userID string) (int64, error) {
	return s.countKind(ctx, userID, domain.ActionGoal)
}

func (s *Store) CountGratitudeEntries(ctx context.Context, userID string) (int64, error) {
	return s.countKind(ctx, userID, domain.ActionGratitude)
}

// ─── Notifications ──────────────────────────────────────────────────────────

func (s *Store) InsertNotification(ctx context.Context, n domain.Notification) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx,
		`INSERT INTO notifications (user_id, type, title, body, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		n.UserID, string(n.Type), n.Title, n.Body, n.CreatedAt,
	).Scan(&id); err != nil {
		return 0, classify(fmt.Errorf("insert notification: %w", err))
	}
	return id, nil
}

func (s *Store) CountNotificationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND created_at >= $2`, userID, since,
	).Scan(&count)
	return count, classify(err)
}

func (s *Store) PendingNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, type, title, body, created_at, shown FROM notifications
		 WHERE user_id = $1 AND NOT shown ORDER BY created_at, id LIMIT $2`, userID, limit,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("query notifications: %w", err))
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var typ string
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Title, &n.Body, &n.CreatedAt, &n.Shown); err != nil {
			return nil, err
		}
		n.Type = domain.NotificationType(typ)
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationShown(ctx context.Context, userID string, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET shown = TRUE WHERE id = $1 AND user_id = $2`, id, userID,
	)
	if err != nil {
		return classify(fmt.Errorf("mark notification shown: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("notification %d: %w", id, domain.ErrNotificationNotFound)
	}
	return nil
}
