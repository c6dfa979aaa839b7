// Package record flattens a progression.Profile into the column set shared by
// the SQL backends. Nested collections travel as JSON documents.
package record

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/pkg/timeutil"
)

// Profile is the storage shape of a progression profile.
type Profile struct {
	UserID  string
	Seq     int64
	Version int64

	Level     int
	CurrentXP int
	TotalXP   int64

	Achievements    []byte
	DailyQuests     []byte
	WeeklyChallenge []byte // nil when no challenge was ever issued

	StreakCurrent int
	StreakLongest int
	LastActiveDay *timeutil.DayKey

	CardsStudied  int
	TestsPassed   int
	GamesWon      int
	PerfectScores int

	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FromProfile encodes p.
func FromProfile(p *progression.Profile) (Profile, error) {
	r := Profile{
		UserID:        p.UserID,
		Seq:           p.Seq,
		Version:       p.Version,
		Level:         p.Level,
		CurrentXP:     p.CurrentXP,
		TotalXP:       int64(p.TotalXP),
		StreakCurrent: p.Streak.Current,
		StreakLongest: p.Streak.Longest,
		LastActiveDay: p.Streak.LastActiveDay,
		CardsStudied:  p.Stats.CardsStudied,
		TestsPassed:   p.Stats.TestsPassed,
		GamesWon:      p.Stats.GamesWon,
		PerfectScores: p.Stats.PerfectScores,
		Timezone:      p.Timezone,
		CreatedAt:     p.CreatedAt.UTC(),
		UpdatedAt:     p.UpdatedAt.UTC(),
	}

	var err error
	achievements := p.Achievements
	if achievements == nil {
		achievements = []progression.UnlockedAchievement{}
	}
	if r.Achievements, err = json.Marshal(achievements); err != nil {
		return Profile{}, fmt.Errorf("failed to marshal achievements: %w", err)
	}

	quests := p.DailyQuests
	if quests == nil {
		quests = []progression.Quest{}
	}
	if r.DailyQuests, err = json.Marshal(quests); err != nil {
		return Profile{}, fmt.Errorf("failed to marshal daily quests: %w", err)
	}

	if p.WeeklyChallenge != nil {
		if r.WeeklyChallenge, err = json.Marshal(p.WeeklyChallenge); err != nil {
			return Profile{}, fmt.Errorf("failed to marshal weekly challenge: %w", err)
		}
	}
	return r, nil
}

// ToProfile decodes r.
func (r Profile) ToProfile() (*progression.Profile, error) {
	p := &progression.Profile{
		UserID:    r.UserID,
		Level:     r.Level,
		CurrentXP: r.CurrentXP,
		TotalXP:   int(r.TotalXP),
		Streak: progression.Streak{
			Current:       r.StreakCurrent,
			Longest:       r.StreakLongest,
			LastActiveDay: r.LastActiveDay,
		},
		Stats: progression.Stats{
			CardsStudied:  r.CardsStudied,
			TestsPassed:   r.TestsPassed,
			GamesWon:      r.GamesWon,
			PerfectScores: r.PerfectScores,
		},
		Timezone:     r.Timezone,
		Version:      r.Version,
		Seq:          r.Seq,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		Achievements: []progression.UnlockedAchievement{},
		DailyQuests:  []progression.Quest{},
	}

	if len(r.Achievements) > 0 {
		if err := json.Unmarshal(r.Achievements, &p.Achievements); err != nil {
			return nil, fmt.Errorf("failed to unmarshal achievements: %w", err)
		}
	}
	if len(r.DailyQuests) > 0 {
		if err := json.Unmarshal(r.DailyQuests, &p.DailyQuests); err != nil {
			return nil, fmt.Errorf("failed to unmarshal daily quests: %w", err)
		}
	}
	if len(r.WeeklyChallenge) > 0 && string(r.WeeklyChallenge) != "null" {
		p.WeeklyChallenge = &progression.Challenge{}
		if err := json.Unmarshal(r.WeeklyChallenge, p.WeeklyChallenge); err != nil {
			return nil, fmt.Errorf("failed to unmarshal weekly challenge: %w", err)
		}
	}
	return p, nil
}
