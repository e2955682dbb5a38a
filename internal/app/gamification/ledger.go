package gamification

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/wellspring-app/wellspring/internal/domain"
)

const (
	// DefaultHistoryLimit is used when a history request names no limit.
	DefaultHistoryLimit = 20
	// MaxHistoryLimit bounds every history snapshot.
	MaxHistoryLimit = 200
)

// Ledger appends XP events and keeps the progress total in step with them.
type Ledger struct {
	u *updater
}

// validateGrant rejects a grant before anything is written.
func validateGrant(userID string, amount int64, reason domain.XPReason) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", domain.ErrInvalidGrant)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %d", domain.ErrInvalidGrant, amount)
	}
	if !reason.Valid() {
		return fmt.Errorf("%w: unknown reason %q", domain.ErrInvalidGrant, reason)
	}
	return nil
}

// newEvent builds an event whose id stays fixed across retries.
func newEvent(userID string, amount int64, reason domain.XPReason, sourceID, ref string) domain.XPEvent {
	return domain.XPEvent{
		ID:       uuid.New().String(),
		UserID:   userID,
		Amount:   amount,
		Reason:   reason,
		SourceID: sourceID,
		Ref:      ref,
	}
}

// appendGrant adds ev to the record and the pending commit.
func (u *updater) appendGrant(rec *domain.ProgressRecord, c *domain.ProgressCommit, ev domain.XPEvent) domain.XPEvent {
	ev.OccurredAt = u.clock.Now()
	rec.TotalXP += ev.Amount
	c.Events = append(c.Events, ev)
	return ev
}

// Grant appends one XP event for the user and, in the same atomic commit,
// raises the total and recomputes the level.
func (l *Ledger) Grant(ctx context.Context, userID string, amount int64, reason domain.XPReason) (domain.XPEvent, error) {
	ev, _, err := l.grant(ctx, userID, amount, reason, "")
	return ev, err
}

// GrantOnce is Grant keyed by the id of the triggering record. Repeating a
// call with the same (user, reason, sourceID) returns the original event
// and grants nothing. An empty sourceID behaves like Grant.
func (l *Ledger) GrantOnce(ctx context.Context, userID string, amount int64, reason domain.XPReason, sourceID string) (domain.XPEvent, error) {
	ev, _, err := l.grant(ctx, userID, amount, reason, sourceID)
	return ev, err
}

// grant also reports whether a new event was appended.
func (l *Ledger) grant(ctx context.Context, userID string, amount int64, reason domain.XPReason, sourceID string) (domain.XPEvent, bool, error) {
	if err := validateGrant(userID, amount, reason); err != nil {
		return domain.XPEvent{}, false, err
	}

	pending := newEvent(userID, amount, reason, sourceID, "")
	var result domain.XPEvent
	_, c, err := l.u.update(ctx, "grant", userID, func(rec *domain.ProgressRecord, c *domain.ProgressCommit) error {
		if sourceID != "" {
			existing, err := l.u.store.EventBySource(ctx, userID, reason, sourceID)
			if err != nil {
				return fmt.Errorf("lookup source %s: %w", sourceID, err)
			}
			if existing != nil {
				result = *existing
				return errNoChange
			}
		}
		result = l.u.appendGrant(rec, c, pending)
		return nil
	})
	if err != nil {
		return domain.XPEvent{}, false, err
	}
	return result, !c.Empty(), nil
}

// History returns the user's most recent events, newest first. limit is
// clamped to [1, MaxHistoryLimit]; zero or negative selects
// DefaultHistoryLimit.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]domain.XPEvent, error) {
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	events, err := l.u.store.XPHistory(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("xp history: %w", err)
	}
	if events == nil {
		events = []domain.XPEvent{}
	}
	return events, nil
}
