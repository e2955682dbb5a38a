package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/wellspring-app/wellspring/internal/domain"
)

// ─── Progress Records ───────────────────────────────────────────────────────

// LoadProgress returns the user's record, creating it on first read.
// Record and badges are read in one transaction so they share a snapshot.
func (d *DB) LoadProgress(ctx context.Context, userID string) (domain.ProgressRecord, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProgressRecord{}, classify(fmt.Errorf("begin load: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO progress (user_id, updated_at) VALUES (?, ?)`,
		userID, time.Now().UnixMilli(),
	); err != nil {
		return domain.ProgressRecord{}, classify(fmt.Errorf("create progress: %w", err))
	}

	rec, err := scanProgress(tx.QueryRowContext(ctx,
		`SELECT user_id, total_xp, level, streak_days, longest_streak, last_activity, version, updated_at
		 FROM progress WHERE user_id = ?`, userID,
	))
	if err != nil {
		return domain.ProgressRecord{}, classify(fmt.Errorf("get progress: %w", err))
	}

	rec.Badges, err = listBadges(ctx, tx, userID)
	if err != nil {
		return domain.ProgressRecord{}, classify(fmt.Errorf("get badges: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return domain.ProgressRecord{}, classify(fmt.Errorf("commit load: %w", err))
	}
	return rec, nil
}

// CommitProgress applies c iff the stored version still equals
// c.ExpectedVersion. Events and badges are written in the same transaction.
func (d *DB) CommitProgress(ctx context.Context, c domain.ProgressCommit) (domain.ProgressRecord, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProgressRecord{}, classify(fmt.Errorf("begin commit: %w", err))
	}
	defer tx.Rollback()

	next := c.Next
	res, err := tx.ExecContext(ctx,
		`UPDATE progress
		 SET total_xp = ?, level = ?, streak_days = ?, longest_streak = ?,
		     last_activity = ?, version = version + 1, updated_at = ?
		 WHERE user_id = ? AND version = ?`,
		next.TotalXP, next.Level, next.StreakDays, next.LongestStreak,
		next.LastActivity.String(), millis(next.UpdatedAt),
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
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.UserID, ev.Amount, string(ev.Reason), ev.SourceID, ev.Ref, millis(ev.OccurredAt),
		)
		if isConstraintViolation(err) {
			return domain.ProgressRecord{}, fmt.Errorf("insert xp event %s: %w", ev.ID, domain.ErrVersionConflict)
		}
		if err != nil {
			return domain.ProgressRecord{}, classify(fmt.Errorf("insert xp event: %w", err))
		}
	}

	for _, b := range c.Badges {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_badges (user_id, badge_id, earned_at) VALUES (?, ?, ?)`,
			next.UserID, b.ID, millis(b.EarnedAt),
		)
		if isConstraintViolation(err) {
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

func scanProgress(s scanner) (domain.ProgressRecord, error) {
	var rec domain.ProgressRecord
	var last string
	var updatedAt int64
	if err := s.Scan(&rec.UserID, &rec.TotalXP, &rec.Level, &rec.StreakDays,
		&rec.LongestStreak, &last, &rec.Version, &updatedAt); err != nil {
		return rec, err
	}
	day, err := domain.ParseDay(last)
	if err != nil {
		return rec, err
	}
	rec.LastActivity = day
	rec.UpdatedAt = fromMillis(updatedAt)
	return rec, nil
}

func listBadges(ctx context.Context, q queryer, userID string) ([]domain.Badge, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT badge_id, earned_at FROM user_badges WHERE user_id = ? ORDER BY earned_at, badge_id`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	badges := []domain.Badge{}
	for rows.Next() {
		var b domain.Badge
		var earnedAt int64
		if err := rows.Scan(&b.ID, &earnedAt); err != nil {
			return nil, err
		}
		b.EarnedAt = fromMillis(earnedAt)
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

// ─── XP Ledger ──────────────────────────────────────────────────────────────

// XPHistory returns at most limit events for the user, most recent first.
func (d *DB) XPHistory(ctx context.Context, userID string, limit int) ([]domain.XPEvent, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, user_id, amount, reason, source_id, ref, occurred_at
		 FROM xp_events WHERE user_id = ? ORDER BY seq DESC LIMIT ?`, userID, limit,
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

// EventBySource returns the event granted for (user, reason, sourceID).
// Returns nil if none exists.
func (d *DB) EventBySource(ctx context.Context, userID string, reason domain.XPReason, sourceID string) (*domain.XPEvent, error) {
	ev, err := scanEvent(d.db.QueryRowContext(ctx,
		`SELECT id, user_id, amount, reason, source_id, ref, occurred_at
		 FROM xp_events WHERE user_id = ? AND reason = ? AND source_id = ?`,
		userID, string(reason), sourceID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, classify(fmt.Errorf("get xp event by source: %w", err))
	}
	return &ev, nil
}

// LedgerTotal sums the user's event amounts.
func (d *DB) LedgerTotal(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := d.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM xp_events WHERE user_id = ?`, userID,
	).Scan(&total)
	if err != nil {
		return 0, classify(fmt.Errorf("sum xp: %w", err))
	}
	return total, nil
}

func scanEvent(s scanner) (domain.XPEvent, error) {
	var ev domain.XPEvent
	var reason string
	var occurredAt int64
	if err := s.Scan(&ev.ID, &ev.UserID, &ev.Amount, &reason, &ev.SourceID, &ev.Ref, &occurredAt); err != nil {
		return ev, err
	}
	ev.Reason = domain.XPReason(reason)
	ev.OccurredAt = fromMillis(occurredAt)
	return ev, nil
}
