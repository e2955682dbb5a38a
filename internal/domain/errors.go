package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Ledger errors
	ErrInvalidGrant   = errors.New("invalid xp grant")
	ErrLedgerMismatch = errors.New("progress record disagrees with xp ledger")

	// Streak errors
	ErrStaleActivity  = errors.New("activity date is before the last recorded activity")
	ErrFutureActivity = errors.New("activity time is in the future")

	// Badge errors
	ErrAggregatesUnavailable = errors.New("aggregate counts unavailable")
	ErrInvalidCatalog        = errors.New("invalid badge catalog")

	// Concurrency errors
	ErrVersionConflict        = errors.New("progress record changed concurrently")
	ErrConflictRetryExhausted = errors.New("progress update conflicted too many times")

	// Store errors
	ErrTransient            = errors.New("transient store failure")
	ErrNotificationNotFound = errors.New("notification not found")

	// Input errors
	ErrUnknownAction = errors.New("unknown action kind")
)
