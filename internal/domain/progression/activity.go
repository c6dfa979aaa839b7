package progression

import (
	"math"

	"github.com/cardquest/progression/internal/domain/shared"
)

// ActivityType is the closed set of activities quests and challenges count.
type ActivityType string

const (
	// ActivityStudyCards counts studied flashcards.
	ActivityStudyCards ActivityType = "study_cards"
	// ActivityPassTest counts passed tests.
	ActivityPassTest ActivityType = "pass_test"
	// ActivityWinGame counts won games.
	ActivityWinGame ActivityType = "win_game"
	// ActivityPerfectScore counts perfect results.
	ActivityPerfectScore ActivityType = "perfect_score"
)

// activityOrder fixes the order in which a report advances quests.
var activityOrder = []ActivityType{
	ActivityStudyCards,
	ActivityPassTest,
	ActivityWinGame,
	ActivityPerfectScore,
}

// IsValid checks that the type is one of the known activities.
func (t ActivityType) IsValid() bool {
	_, ok := activityAmounts[t]
	return ok
}

// String returns the wire name.
func (t ActivityType) String() string {
	return string(t)
}

// MaxActivityCount caps each counter of a single report. Larger deltas are
// rejected so lifetime stats cannot overflow.
const MaxActivityCount = 10_000

// Activity is one activity report delta.
type Activity struct {
	CardsStudied int  `json:"cards_studied"`
	TestsPassed  int  `json:"tests_passed"`
	GamesWon     int  `json:"games_won"`
	PerfectScore bool `json:"perfect_score"`
}

// activityAmounts maps each activity type to the amount it contributes from a report.
var activityAmounts = map[ActivityType]func(Activity) int{
	ActivityStudyCards: func(a Activity) int { return a.CardsStudied },
	ActivityPassTest:   func(a Activity) int { return a.TestsPassed },
	ActivityWinGame:    func(a Activity) int { return a.GamesWon },
	ActivityPerfectScore: func(a Activity) int {
		if a.PerfectScore {
			return 1
		}
		return 0
	},
}

// Amount returns how much of activity type t this report carries.
func (a Activity) Amount(t ActivityType) int {
	fn, ok := activityAmounts[t]
	if !ok {
		return 0
	}
	return fn(a)
}

// IsEmpty reports whether the report carries no activity at all.
func (a Activity) IsEmpty() bool {
	for _, t := range activityOrder {
		if a.Amount(t) != 0 {
			return false
		}
	}
	return true
}

// Validate rejects negative counters and counters above MaxActivityCount.
func (a Activity) Validate() error {
	if a.CardsStudied < 0 || a.TestsPassed < 0 || a.GamesWon < 0 {
		return shared.ErrNegativeActivity
	}
	if a.CardsStudied > MaxActivityCount || a.TestsPassed > MaxActivityCount || a.GamesWon > MaxActivityCount {
		return shared.ErrActivityTooLarge
	}
	return nil
}

// apply merges the delta into the lifetime stats. Counters saturate at
// math.MaxInt instead of wrapping.
func (s Stats) apply(a Activity) Stats {
	s.CardsStudied = saturatingAdd(s.CardsStudied, a.CardsStudied)
	s.TestsPassed = saturatingAdd(s.TestsPassed, a.TestsPassed)
	s.GamesWon = saturatingAdd(s.GamesWon, a.GamesWon)
	if a.PerfectScore {
		s.PerfectScores = saturatingAdd(s.PerfectScores, 1)
	}
	return s
}

func saturatingAdd(a, b int) int {
	if b > math.MaxInt-a {
		return math.MaxInt
	}
	return a + b
}
