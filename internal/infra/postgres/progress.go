package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/wellspring-app/wellspring/internal/domain"
)

type scanner interface {
	Scan(dest ...any) error
}

// LoadProgress returns the user's record, creating it on first read.
func (s *Store) LoadProgress(ctx context.Context, userID string) (domain.ProgressRecord, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return domain.ProgressRecord{}, classify(fmt.Errorf("begin load: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO progress (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID,
	); err != nil {
		return domain.ProgressRecord{}, classify(fmt.Errorf("create progress: %w", err))
	}

	rec, err := scanProgress(tx.QueryRowContext(ctx,
		`SELECT user_id, total_xp, level, streak_days, longest_streak, last_activity, version, updated_at
		 FROM progress WHERE user_id = $1`, userID,
	))
	if err != nil {
		return domain.ProgressRecord{}, classify(fmt.Errorf("get progress: %w", err))
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT badge_id, earned_at FROM user_badges WHERE user_id = $1 ORDER BY earned_at, badge_id`, userID,
	)
	if err != nil {
		return domain.ProgressRecord{}, classify(fmt.Errorf("get badges: %w", err))
	}
	rec.Badges = []domain.Badge{}
	for rows.Next() {
		var b domain.Badge
		if err := rows.Scan(&b.ID, &b.EarnedAt); err != nil {
			rows.Close()
			return domain.ProgressRecord{}, err
		}
		b.EarnedAt = b.EarnedAt.UTC()
		rec.Badges = append(rec.Badges, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.ProgressRecord{}, classify(err)
	}

	if err := tx.Commit(); err != nil {
		return domain.ProgressRecord{}, classify(fmt.Errorf("commit load: %w", err))
	}
	return rec, nil
}

// CommitProgress applies c iff the stored version still equals
// c.ExpectedVersion.
func (s *Store) CommitProgress(ctx context.Context, c domain.ProgressCommit) (domain.ProgressRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProgressRecord{}, classify(fmt.Errorf("begin commit: %w", err))
	}
	defer tx.Rollback()

	next := c.Next
	res, err := tx.ExecContext(ctx,
		`UPDATE progress
		 SET total_xp = $1, level = $2, streak_days = $3, longest_streak = $4,
		     last_activity = $5, version = version + 1, updated_at = $6
		 WHERE user_id = $7 AND version = $8`,
		next.TotalXP, next.Level, next.StreakDays, next.LongestStreak,
		next.LastActivity.String(), next.UpdatedAt,
		next.UserID, c.ExpectedVersion,
	)
	if err != nil {
		return domain.ProgressRecord{}, classify(fmt.Errorf("update progress: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.ProgressRecord{}, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return domain.ProgressRecord{}, domain.ErrVersionConflict
	}

	for _, ev := range c.Events {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO xp_events (id, user_id, amount, reason, source_id, ref, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			ev.ID, ev.UserID, ev.Amount, string(ev.Reason), ev.SourceID, ev.Ref, ev.OccurredAt,
		)
		if isUniqueViolation(err) {
			return domain.ProgressRecord{}, fmt.Errorf("insert xp event %s: %w", ev.ID, domain.ErrVersionConflict)
		}
		if err != nil {
			return domain.ProgressRecord{}, classify(fmt.Errorf("insert xp event: %w", err))
		}
	}

	for _, b := range c.Badges {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_badges (user_id, badge_id, earned_at) VALUES ($1, $2, $3)`,
			next.UserID, b.ID, b.EarnedAt,
		)
		if isUniqueViolation(err) {
			return domain.ProgressRecord{}, fmt.Errorf("insert badge %s: %w", b.ID, domain.ErrVersionConflict)
		}
		if err != nil {
			return domain.ProgressRecord{}, classify(fmt.Errorf("insert badge: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.ProgressRecord{}, classify(fmt.Errorf("commit progress: %w", err))
	}
	next.Version = c.ExpectedVersion + 1
	return next, nil
}

func scanProgress(sc scanner) (domain.ProgressRecord, error) {
	var rec domain.ProgressRecord
	var last string
	if err := sc.Scan(&rec.UserID, &rec.TotalXP, &rec.Level, &rec.StreakDays,
		&rec.LongestStreak, &last, &rec.Version, &rec.UpdatedAt); err != nil {
		return rec, err
	}
	day, err := domain.ParseDay(last)
	if err != nil {
		return rec, err
	}
	rec.LastActivity = day
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

// XPHistory returns at most limit events, most recent first.
func (s *Store) XPHistory(ctx context.Context, userID string, limit int) ([]domain.XPEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, amount, reason, source_id, ref, occurred_at
		 FROM xp_events WHERE user_id = $1 ORDER BY seq DESC LIMIT $2`, userID, limit,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("query xp history: %w", err))
	}
	defer rows.Close()

	var events []domain.XPEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// EventBySource returns the event granted for (user, reason, sourceID), or
// nil if none exists.
func (s *Store) EventBySource(ctx context.Context, userID string, reason domain.XPReason, sourceID string) (*domain.XPEvent, error) {
	ev, err := scanEvent(s.db.QueryRowContext(ctx,
		`SELECT id, user_id, amount, reason, source_id, ref, occurred_at
		 FROM xp_events WHERE user_id = $1 AND reason = $2 AND source_id = $3`,
		userID, string(reason), sourceID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get xp event by source: %w", err))
	}
	return &ev, nil
}

// LedgerTotal sums the user's event amounts.
func (s *Store) LedgerTotal(ctx context.Context, userID string) (int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM xp_events WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return 0, classify(fmt.Errorf("sum xp: %w", err))
	}
	return total, nil
}

func scanEvent(sc scanner) (domain.XPEvent, error) {
	var ev domain.XPEvent
	var reason string
	if err := sc.Scan(&ev.ID, &ev.UserID, &ev.Amount, &reason, &ev.SourceID, &ev.Ref, &ev.OccurredAt); err != nil {
		return ev, err
	}
	ev.Reason = domain.XPReason(reason)
	ev.OccurredAt = ev.OccurredAt.UTC()
	return ev, nil
}
