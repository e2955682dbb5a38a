package gamification_test

import (
	"errors"
	"testing"

	"github.com/wellspring-app/wellspring/internal/app/gamification"
	"github.com/wellspring-app/wellspring/internal/domain"
)

func TestDefaultSettings_Valid(t *testing.T) {
	s := gamification.DefaultSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("default settings invalid: %v", err)
	}
	want := map[domain.XPReason]int64{
		domain.ReasonMoodLog:        10,
		domain.ReasonHabitCompleted: 15,
		domain.ReasonTaskCompleted:  20,
		domain.ReasonGoalCompleted:  100,
		domain.ReasonGratitude:      10,
	}
	for reason, amount := range want {
		if s.Rewards[reason] != amount {
			t.Errorf("reward %s = %d, want %d", reason, s.Rewards[reason], amount)
		}
	}
}

func TestSettings_ValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*gamification.Settings)
	}{
		{"zero level size", func(s *gamification.Settings) { s.LevelSize = 0 }},
		{"negative badge bonus", func(s *gamification.Settings) { s.BadgeBonus = -1 }},
		{"zero streak interval", func(s *gamification.Settings) { s.StreakBonusEvery = 0 }},
		{"bonus reason as reward", func(s *gamification.Settings) { s.Rewards[domain.ReasonBadgeBonus] = 5 }},
		{"unknown reward reason", func(s *gamification.Settings) { s.Rewards["sleep_logged"] = 5 }},
		{"non-positive reward", func(s *gamification.Settings) { s.Rewards[domain.ReasonMoodLog] = 0 }},
		{"bad catalog", func(s *gamification.Settings) {
			s.Catalog.Badges = append(s.Catalog.Badges, s.Catalog.Badges[0])
		}},
		{"zero step timeout", func(s *gamification.Settings) { s.StepTimeout = 0 }},
		{"negative retries", func(s *gamification.Settings) { s.Retry.MaxRetries = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := gamification.DefaultSettings()
			tt.mutate(&s)
			if err := s.Validate(); !errors.Is(err, gamification.ErrInvalidSettings) {
				t.Errorf("err = %v, want ErrInvalidSettings", err)
			}
		})
	}
}

func TestNew_RejectsInvalidSettings(t *testing.T) {
	db := testDB(t)
	s := gamification.DefaultSettings()
	s.LevelSize = -3
	if _, err := gamification.New(db, db, s); !errors.Is(err, gamification.ErrInvalidSettings) {
		t.Errorf("err = %v, want ErrInvalidSettings", err)
	}
}

func TestVerify_DetectsDrift(t *testing.T) {
	r := gamification.VerifyReport{TotalXP: 120, LedgerXP: 100, Level: 2, ExpectedLevel: 2}
	if !errors.Is(r.Err(), domain.ErrLedgerMismatch) {
		t.Errorf("err = %v, want ErrLedgerMismatch", r.Err())
	}
	r = gamification.VerifyReport{TotalXP: 100, LedgerXP: 100, Level: 1, ExpectedLevel: 2}
	if !errors.Is(r.Err(), domain.ErrLedgerMismatch) {
		t.Errorf("level drift err = %v, want ErrLedgerMismatch", r.Err())
	}
	r = gamification.VerifyReport{TotalXP: 0, LedgerXP: 0, Level: 1, ExpectedLevel: 1, UnknownBadges: []string{"retired"}}
	if !errors.Is(r.Err(), domain.ErrInvalidCatalog) {
		t.Errorf("unknown badge err = %v, want ErrInvalidCatalog", r.Err())
	}
	if err := (gamification.VerifyReport{Level: 1, ExpectedLevel: 1}).Err(); err != nil {
		t.Errorf("clean report err = %v", err)
	}
}
