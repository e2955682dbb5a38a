package gamification

import (
	"context"
	"fmt"
	"strconv"

	"github.com/wellspring-app/wellspring/internal/domain"
)

// StreakTracker maintains consecutive active days.
//
// Rules for an activity on day d with last recorded day L:
//   - d == L: no-op, nothing is written
//   - d == L+1: streak grows by one
//   - first activity or a gap of 2+ days: streak restarts at 1
//   - d < L: ErrStaleActivity, nothing changes
//
// Every transition into a multiple of the bonus interval appends a
// streak_bonus event in the same commit, so a retried call cannot grant it
// twice.
type StreakTracker struct {
	u     *updater
	bonus int64
	every int
}

// StreakResult describes what RecordActivity did.
type StreakResult struct {
	Record   domain.ProgressRecord `json:"record"`
	Advanced bool                  `json:"advanced"` // false for same-day repeats
	Bonus    *domain.XPEvent       `json:"bonus,omitempty"`
}

// RecordActivity applies an activity on the given civil date.
func (s *StreakTracker) RecordActivity(ctx context.Context, userID string, day domain.Day) (StreakResult, error) {
	if userID == "" {
		return StreakResult{}, fmt.Errorf("record activity: empty user id")
	}
	if day.IsZero() {
		return StreakResult{}, fmt.Errorf("record activity: zero date")
	}

	var bonus *domain.XPEvent
	var advanced bool
	pending := newEvent(userID, s.bonus, domain.ReasonStreakBonus, "streak-"+day.String(), "")

	rec, _, err := s.u.update(ctx, "streak", userID, func(rec *domain.ProgressRecord, c *domain.ProgressCommit) error {
		bonus, advanced = nil, false
		last := rec.LastActivity
		switch {
		case last.IsZero():
			rec.StreakDays = 1
		case day.Before(last):
			return fmt.Errorf("%w: %s is before %s", domain.ErrStaleActivity, day, last)
		case day.Equal(last):
			return errNoChange
		case day.Equal(last.AddDays(1)):
			rec.StreakDays++
		default:
			rec.StreakDays = 1
		}
		rec.LastActivity = day
		if rec.StreakDays > rec.LongestStreak {
			rec.LongestStreak = rec.StreakDays
		}

		if s.bonus > 0 && s.every > 0 && rec.StreakDays%s.every == 0 {
			ev := pending
			ev.Ref = strconv.Itoa(rec.StreakDays)
			ev = s.u.appendGrant(rec, c, ev)
			bonus = &ev
		}
		advanced = true
		return nil
	})
	if err != nil {
		return StreakResult{Record: rec}, err
	}
	return StreakResult{Record: rec, Advanced: advanced, Bonus: bonus}, nil
}
