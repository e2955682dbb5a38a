package gamification

import "github.com/wellspring-app/wellspring/internal/domain"

// CatalogVersion is bumped whenever DefaultCatalog changes.
const CatalogVersion = 1

// ─── Badge Definitions ──────────────────────────────────────────────────────
// Every predicate is "metric >= threshold" over one aggregate, so the
// catalog is plain data and can be overridden from configuration.

// DefaultCatalog returns the built-in badge catalog.
func DefaultCatalog() domain.Catalog {
	return domain.Catalog{
		Version: CatalogVersion,
		Badges: []domain.BadgeDefinition{
			// ── Mood ───────────────────────────────────────────────────────
			{
				ID: "first_mood", Name: "First Check-In", Category: "mood", Icon: "🌱",
				Description: "Log your first mood.",
				Metric:      domain.MetricMoodCount, Threshold: 1,
			},
			{
				ID: "mood_30", Name: "Self-Aware", Category: "mood", Icon: "🪞",
				Description: "Log 30 moods.",
				Metric:      domain.MetricMoodCount, Threshold: 30,
			},
			{
				ID: "mood_100", Name: "Mood Historian", Category: "mood", Icon: "📖",
				Description: "Log 100 moods.",
				Metric:      domain.MetricMoodCount, Threshold: 100, BonusXP: 150,
			},

			// ── Habits ─────────────────────────────────────────────────────
			{
				ID: "first_habit", Name: "Habit Spark", Category: "habits", Icon: "✨",
				Description: "Complete a habit for the first time.",
				Metric:      domain.MetricHabitLogCount, Threshold: 1,
			},
			{
				ID: "habit_30", Name: "Habit Builder", Category: "habits", Icon: "🧱",
				Description: "Complete habits 30 times.",
				Metric:      domain.MetricHabitLogCount, Threshold: 30,
			},
			{
				ID: "habit_100", Name: "Creature of Habit", Category: "habits", Icon: "🦉",
				Description: "Complete habits 100 times.",
				Metric:      domain.MetricHabitLogCount, Threshold: 100, BonusXP: 150,
			},

			// ── Tasks & Goals ──────────────────────────────────────────────
			{
				ID: "first_task", Name: "Getting Things Done", Category: "tasks", Icon: "✅",
				Description: "Complete your first task.",
				Metric:      domain.MetricCompletedTasks, Threshold: 1,
			},
			{
				ID: "task_50", Name: "Task Crusher", Category: "tasks", Icon: "🔨",
				Description: "Complete 50 tasks.",
				Metric:      domain.MetricCompletedTasks, Threshold: 50, BonusXP: 100,
			},
			{
				ID: "first_goal", Name: "Goal Getter", Category: "goals", Icon: "🎯",
				Description: "Complete your first goal.",
				Metric:      domain.MetricCompletedGoals, Threshold: 1,
			},
			{
				ID: "goal_10", Name: "Visionary", Category: "goals", Icon: "🔭",
				Description: "Complete 10 goals.",
				Metric:      domain.MetricCompletedGoals, Threshold: 10, BonusXP: 200,
			},

			// ── Gratitude ──────────────────────────────────────────────────
			{
				ID: "first_gratitude", Name: "Thankful", Category: "gratitude", Icon: "🙏",
				Description: "Write your first gratitude entry.",
				Metric:      domain.MetricGratitudeCount, Threshold: 1,
			},
			{
				ID: "gratitude_50", Name: "Gratitude Journal", Category: "gratitude", Icon: "📔",
				Description: "Write 50 gratitude entries.",
				Metric:      domain.MetricGratitudeCount, Threshold: 50, BonusXP: 100,
			},

			// ── Streaks ────────────────────────────────────────────────────
			{
				ID: "streak_7", Name: "Week Warrior", Category: "streaks", Icon: "🔥",
				Description: "Stay active 7 days in a row.",
				Metric:      domain.MetricStreakDays, Threshold: 7,
			},
			{
				ID: "streak_30", Name: "Monthly Momentum", Category: "streaks", Icon: "💪",
				Description: "Stay active 30 days in a row.",
				Metric:      domain.MetricStreakDays, Threshold: 30, BonusXP: 200,
			},
			{
				ID: "streak_100", Name: "Centurion", Category: "streaks", Icon: "🏛️",
				Description: "Stay active 100 days in a row.",
				Metric:      domain.MetricStreakDays, Threshold: 100, BonusXP: 500,
			},

			// ── Levels ─────────────────────────────────────────────────────
			{
				ID: "level_5", Name: "Rising", Category: "levels", Icon: "🌅",
				Description: "Reach level 5.",
				Metric:      domain.MetricLevel, Threshold: 5,
			},
			{
				ID: "level_10", Name: "Flourishing", Category: "levels", Icon: "🌻",
				Description: "Reach level 10.",
				Metric:      domain.MetricLevel, Threshold: 10, BonusXP: 100,
			},
			{
				ID: "level_25", Name: "Wellspring", Category: "levels", Icon: "⛲",
				Description: "Reach level 25.",
				Metric:      domain.MetricLevel, Threshold: 25, BonusXP: 250,
			},
		},
	}
}
