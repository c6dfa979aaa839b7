package progression

import (
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Metric is the closed set of values an achievement can be measured against.
type Metric string

const (
	MetricCardsStudied  Metric = "cards_studied"
	MetricTestsPassed   Metric = "tests_passed"
	MetricGamesWon      Metric = "games_won"
	MetricPerfectScores Metric = "perfect_scores"
	MetricStreakDays    Metric = "streak_days"
)

// metricValues reads a metric from the post-update stats and streak.
var metricValues = map[Metric]func(Stats, Streak) int{
	MetricCardsStudied:  func(s Stats, _ Streak) int { return s.CardsStudied },
	MetricTestsPassed:   func(s Stats, _ Streak) int { return s.TestsPassed },
	MetricGamesWon:      func(s Stats, _ Streak) int { return s.GamesWon },
	MetricPerfectScores: func(s Stats, _ Streak) int { return s.PerfectScores },
	MetricStreakDays:    func(_ Stats, st Streak) int { return st.Current },
}

// Value returns the metric for the given state.
func (m Metric) Value(s Stats, st Streak) int {
	fn, ok := metricValues[m]
	if !ok {
		return 0
	}
	return fn(s, st)
}

// Category groups achievements for display.
type Category string

const (
	CategoryStudy  Category = "study"
	CategoryTests  Category = "tests"
	CategoryGames  Category = "games"
	CategoryStreak Category = "streak"
)

// Rarity ranks achievements.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// AchievementDefinition is one entry of the fixed catalog.
type AchievementDefinition struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Rarity   Rarity   `json:"rarity"`
	Reward   int      `json:"reward"`
	Metric   Metric   `json:"metric"`
	Target   int      `json:"target"`
}

// Satisfied reports whether the definition's threshold is met.
func (d AchievementDefinition) Satisfied(s Stats, st Streak) bool {
	return d.Metric.Value(s, st) >= d.Target
}

// catalog order is the unlock order for simultaneous unlocks.
var catalog = []AchievementDefinition{
	{ID: "first_steps", Name: "First Steps", Category: CategoryStudy, Rarity: RarityCommon, Reward: 25, Metric: MetricCardsStudied, Target: 1},
	{ID: "card_collector", Name: "Card Collector", Category: CategoryStudy, Rarity: RarityRare, Reward: 100, Metric: MetricCardsStudied, Target: 100},
	{ID: "card_master", Name: "Card Master", Category: CategoryStudy, Rarity: RarityEpic, Reward: 500, Metric: MetricCardsStudied, Target: 1000},
	{ID: "test_rookie", Name: "Test Rookie", Category: CategoryTests, Rarity: RarityCommon, Reward: 50, Metric: MetricTestsPassed, Target: 5},
	{ID: "test_expert", Name: "Test Expert", Category: CategoryTests, Rarity: RarityRare, Reward: 250, Metric: MetricTestsPassed, Target: 50},
	{ID: "first_victory", Name: "First Victory", Category: CategoryGames, Rarity: RarityCommon, Reward: 25, Metric: MetricGamesWon, Target: 1},
	{ID: "game_champion", Name: "Game Champion", Category: CategoryGames, Rarity: RarityRare, Reward: 200, Metric: MetricGamesWon, Target: 25},
	{ID: "perfectionist", Name: "Perfectionist", Category: CategoryTests, Rarity: RarityRare, Reward: 150, Metric: MetricPerfectScores, Target: 10},
	{ID: "streak_week", Name: "Week Warrior", Category: CategoryStreak, Rarity: RarityRare, Reward: 100, Metric: MetricStreakDays, Target: 7},
	{ID: "streak_month", Name: "Monthly Devotion", Category: CategoryStreak, Rarity: RarityLegendary, Reward: 500, Metric: MetricStreakDays, Target: 30},
}

// Catalog returns a copy of the achievement catalog in unlock order.
func Catalog() []AchievementDefinition {
	return append([]AchievementDefinition(nil), catalog...)
}

// LookupAchievement finds a definition by ID.
func LookupAchievement(id string) (AchievementDefinition, bool) {
	for _, d := range catalog {
		if d.ID == id {
			return d, true
		}
	}
	return AchievementDefinition{}, false
}

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATION
// ══════════════════════════════════════════════════════════════════════════════

// AchievementUnlock is a newly unlocked achievement with its reward.
type AchievementUnlock struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Reward     int       `json:"reward"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// CheckAchievements appends every satisfied, not yet unlocked achievement in
// catalog order and returns them. Rewards are not applied here.
func CheckAchievements(p *Profile, now time.Time) []AchievementUnlock {
	var unlocked []AchievementUnlock
	for _, d := range catalog {
		if p.HasAchievement(d.ID) || !d.Satisfied(p.Stats, p.Streak) {
			continue
		}
		unlocked = append(unlocked, unlock(p, d, now))
	}
	return unlocked
}

func unlock(p *Profile, d AchievementDefinition, now time.Time) AchievementUnlock {
	at := now.UTC()
	p.Achievements = append(p.Achievements, UnlockedAchievement{ID: d.ID, UnlockedAt: at})
	return AchievementUnlock{ID: d.ID, Name: d.Name, Reward: d.Reward, UnlockedAt: at}
}

// AchievementStatus merges a catalog entry with a profile's unlock state.
type AchievementStatus struct {
	AchievementDefinition
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
	Progress   int        `json:"progress"`
}

// AchievementStatuses lists the catalog with progress for p. Progress is
// clamped to the target. The profile is not modified.
func AchievementStatuses(p *Profile) []AchievementStatus {
	unlockedAt := make(map[string]time.Time, len(p.Achievements))
	for _, a := range p.Achievements {
		unlockedAt[a.ID] = a.UnlockedAt
	}

	out := make([]AchievementStatus, 0, len(catalog))
	for _, d := range catalog {
		st := AchievementStatus{
			AchievementDefinition: d,
			Progress:              min(d.Metric.Value(p.Stats, p.Streak), d.Target),
		}
		if at, ok := unlockedAt[d.ID]; ok {
			at := at
			st.Unlocked = true
			st.UnlockedAt = &at
			st.Progress = d.Target
		}
		out = append(out, st)
	}
	return out
}
