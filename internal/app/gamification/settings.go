package gamification

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/wellspring-app/wellspring/internal/domain"
)

// ErrInvalidSettings is returned by Settings.Validate.
var ErrInvalidSettings = errors.New("invalid gamification settings")

// Settings is the engine's reward table and tuning. Amounts are
// configuration data, not code.
type Settings struct {
	LevelSize        int64
	BadgeBonus       int64 // Default bonus for a badge without its own
	StreakBonus      int64
	StreakBonusEvery int // Bonus on every transition into a multiple of this
	Rewards          map[domain.XPReason]int64
	Catalog          domain.Catalog
	Retry            RetryConfig
	StepTimeout      time.Duration
	Location         *time.Location // Day boundaries for streaks
}

// DefaultRewards returns the per-action reward table.
func DefaultRewards() map[domain.XPReason]int64 {
	return map[domain.XPReason]int64{
		domain.ReasonMoodLog:        10,
		domain.ReasonHabitCompleted: 15,
		domain.ReasonTaskCompleted:  20,
		domain.ReasonGoalCompleted:  100,
		domain.ReasonGratitude:      10,
	}
}

// DefaultSettings returns production defaults.
func DefaultSettings() Settings {
	return Settings{
		LevelSize:        DefaultLevelSize,
		BadgeBonus:       50,
		StreakBonus:      25,
		StreakBonusEvery: 7,
		Rewards:          DefaultRewards(),
		Catalog:          DefaultCatalog(),
		Retry:            DefaultRetryConfig(),
		StepTimeout:      750 * time.Millisecond,
		Location:         time.UTC,
	}
}

// Validate reports the first problem with s.
func (s Settings) Validate() error {
	if s.LevelSize <= 0 {
		return fmt.Errorf("%w: level size must be positive, got %d", ErrInvalidSettings, s.LevelSize)
	}
	if s.BadgeBonus < 0 || s.StreakBonus < 0 {
		return fmt.Errorf("%w: bonuses must not be negative", ErrInvalidSettings)
	}
	if s.StreakBonus > 0 && s.StreakBonusEvery <= 0 {
		return fmt.Errorf("%w: streak bonus interval must be positive", ErrInvalidSettings)
	}
	for reason, amount := range s.Rewards {
		if !reason.Valid() || reason == domain.ReasonBadgeBonus || reason == domain.ReasonStreakBonus {
			return fmt.Errorf("%w: unknown reward reason %q", ErrInvalidSettings, reason)
		}
		if amount <= 0 {
			return fmt.Errorf("%w: reward for %s must be positive, got %d", ErrInvalidSettings, reason, amount)
		}
	}
	if err := s.Catalog.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if s.Retry.MaxRetries < 0 || s.Retry.BaseDelay < 0 || s.Retry.MaxDelay < 0 {
		return fmt.Errorf("%w: retry settings must not be negative", ErrInvalidSettings)
	}
	if s.StepTimeout <= 0 {
		return fmt.Errorf("%w: step timeout must be positive", ErrInvalidSettings)
	}
	return nil
}

// normalized returns s with nil fields filled in.
func (s Settings) normalized() Settings {
	if s.Location == nil {
		s.Location = time.UTC
	}
	s.Rewards = maps.Clone(s.Rewards)
	if s.Rewards == nil {
		s.Rewards = map[domain.XPReason]int64{}
	}
	return s
}
