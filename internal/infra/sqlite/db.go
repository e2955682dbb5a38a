// Package sqlite provides the embedded SQLite store for Wellspring.
// Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlitedrv "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
	sqlitelib "modernc.org/sqlite/lib"

	"github.com/wellspring-app/wellspring/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db   *sql.DB
	path string
}

// Open creates or opens the SQLite database at dir/wellspring.db.
// Enables WAL mode, foreign keys, and a 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "wellspring.db")
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite is single-writer. Every statement inside a transaction must go
	// through the tx, never through d.db, or it waits on itself.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	d := &DB{db: db, path: dbPath}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Path returns the database file location.
func (d *DB) Path() string {
	return d.path
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		// Progress record: one row per user, guarded by version.
		`CREATE TABLE IF NOT EXISTS progress (
			user_id        TEXT PRIMARY KEY,
			total_xp       INTEGER NOT NULL DEFAULT 0 CHECK (total_xp >= 0),
			level          INTEGER NOT NULL DEFAULT 1 CHECK (level >= 1),
			streak_days    INTEGER NOT NULL DEFAULT 0,
			longest_streak INTEGER NOT NULL DEFAULT 0,
			last_activity  TEXT NOT NULL DEFAULT '',
			version        INTEGER NOT NULL DEFAULT 0,
			updated_at     INTEGER NOT NULL
		)`,

		// XP ledger: append-only.
		`CREATE TABLE IF NOT EXISTS xp_events (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			id          TEXT NOT NULL UNIQUE,
			user_id     TEXT NOT NULL REFERENCES progress(user_id),
			amount      INTEGER NOT NULL CHECK (amount > 0),
			reason      TEXT NOT NULL,
			source_id   TEXT NOT NULL DEFAULT '',
			ref         TEXT NOT NULL DEFAULT '',
			occurred_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_xp_events_user ON xp_events(user_id, seq)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_xp_events_source
			ON xp_events(user_id, reason, source_id) WHERE source_id <> ''`,

		// Earned badges: at most one row per (user, badge).
		`CREATE TABLE IF NOT EXISTS user_badges (
			user_id   TEXT NOT NULL REFERENCES progress(user_id),
			badge_id  TEXT NOT NULL,
			earned_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, badge_id)
		)`,

		// Domain action log feeding the badge aggregates.
		`CREATE TABLE IF NOT EXISTS activities (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			kind        TEXT NOT NULL,
			occurred_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activities_user_kind ON activities(user_id, kind)`,

		// Milestone inbox.
		`CREATE TABLE IF NOT EXISTS notifications (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			type       TEXT NOT NULL,
			title      TEXT NOT NULL,
			body       TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			shown      BOOLEAN DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// sqliteCode extracts the primary result code from a driver error.
func sqliteCode(err error) (int, bool) {
	var se *sqlitedrv.Error
	if !errors.As(err, &se) {
		return 0, false
	}
	return se.Code() & 0xff, true
}

// classify marks lock contention as transient so callers may retry.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if code, ok := sqliteCode(err); ok && (code == sqlitelib.SQLITE_BUSY || code == sqlitelib.SQLITE_LOCKED) {
		return fmt.Errorf("%w: %w", domain.ErrTransient, err)
	}
	return err
}

func isConstraintViolation(err error) bool {
	code, ok := sqliteCode(err)
	return ok && code == sqlitelib.SQLITE_CONSTRAINT
}
