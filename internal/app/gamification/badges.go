package gamification

import (
	"context"
	"fmt"

	"github.com/wellspring-app/wellspring/internal/domain"
)

// Evaluator reconciles a user's earned badges against the catalog.
// Earned badges are never re-evaluated, re-granted or revoked.
type Evaluator struct {
	u          *updater
	source     domain.AggregateSource
	catalog    domain.Catalog
	badgeBonus int64
}

// Catalog returns the static badge catalog.
func (e *Evaluator) Catalog() domain.Catalog {
	return e.catalog
}

// BonusFor returns the XP granted alongside badge def.
func (e *Evaluator) BonusFor(def domain.BadgeDefinition) int64 {
	if def.BonusXP > 0 {
		return def.BonusXP
	}
	return e.badgeBonus
}

// Aggregates reads the collaborator counts for the user. Level and streak
// are left zero; they come from the progress record.
func (e *Evaluator) Aggregates(ctx context.Context, userID string) (domain.Aggregates, error) {
	var a domain.Aggregates
	counts := []struct {
		name string
		fn   func(context.Context, string) (int64, error)
		dst  *int64
	}{
		{"moods", e.source.CountMoodEntries, &a.MoodCount},
		{"habit logs", e.source.CountHabitLogs, &a.HabitLogCount},
		{"completed tasks", e.source.CountCompletedTasks, &a.CompletedTaskCount},
		{"completed goals", e.source.CountCompletedGoals, &a.CompletedGoalCount},
		{"gratitude entries", e.source.CountGratitudeEntries, &a.GratitudeCount},
	}
	for _, c := range counts {
		n, err := c.fn(ctx, userID)
		if err != nil {
			return a, fmt.Errorf("%w: count %s: %w", domain.ErrAggregatesUnavailable, c.name, err)
		}
		*c.dst = n
	}
	return a, nil
}

// Reconcile grants every catalog badge the user now qualifies for and has
// not earned yet, each with its bonus event, in one atomic commit. It
// returns the newly earned badges. If any aggregate cannot be read the pass
// is aborted and nothing is granted.
func (e *Evaluator) Reconcile(ctx context.Context, userID string) ([]domain.Badge, error) {
	counts, err := e.Aggregates(ctx, userID)
	if err != nil {
		return nil, err
	}

	var earned []domain.Badge
	_, _, err = e.u.update(ctx, "reconcile", userID, func(rec *domain.ProgressRecord, c *domain.ProgressCommit) error {
		earned = earned[:0]
		agg := counts
		agg.Level = int64(rec.Level)
		agg.StreakDays = int64(rec.StreakDays)

		now := e.u.clock.Now()
		for _, def := range e.catalog.Badges {
			if rec.HasBadge(def.ID) || !def.Eligible(agg) {
				continue
			}
			b := domain.Badge{ID: def.ID, EarnedAt: now}
			rec.Badges = append(rec.Badges, b)
			c.Badges = append(c.Badges, b)
			if bonus := e.BonusFor(def); bonus > 0 {
				e.u.appendGrant(rec, c, newEvent(userID, bonus, domain.ReasonBadgeBonus, "badge-"+def.ID, def.ID))
			}
			earned = append(earned, b)
		}
		if len(earned) == 0 {
			return errNoChange
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(earned) == 0 {
		return nil, nil
	}
	return earned, nil
}

// BadgeStatus is a catalog entry with the user's unlock state.
type BadgeStatus struct {
	domain.BadgeDefinition
	Unlocked bool          `json:"unlocked"`
	Badge    *domain.Badge `json:"earned,omitempty"`
}

// Statuses renders the catalog as locked/unlocked for rec.
func (e *Evaluator) Statuses(rec domain.ProgressRecord) []BadgeStatus {
	earned := make(map[string]domain.Badge, len(rec.Badges))
	for _, b := range rec.Badges {
		earned[b.ID] = b
	}
	out := make([]BadgeStatus, 0, len(e.catalog.Badges))
	for _, def := range e.catalog.Badges {
		def.BonusXP = e.BonusFor(def)
		s := BadgeStatus{BadgeDefinition: def}
		if b, ok := earned[def.ID]; ok {
			s.Unlocked = true
			s.Badge = &b
		}
		out = append(out, s)
	}
	return out
}
