// Package progression contains the progression rules: XP and levels, streaks,
// achievements, daily quests and the weekly challenge.
// The package performs no I/O; storage and locking live behind the interfaces in repository.go.
package progression

import (
	"time"

	"github.com/cardquest/progression/internal/domain/shared"
	"github.com/cardquest/progression/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Stats holds the lifetime activity counters. Every field only grows.
type Stats struct {
	CardsStudied  int `json:"cards_studied"`
	TestsPassed   int `json:"tests_passed"`
	GamesWon      int `json:"games_won"`
	PerfectScores int `json:"perfect_scores"`
}

// Streak tracks consecutive active calendar days.
type Streak struct {
	Current int `json:"current"`
	Longest int `json:"longest"`

	// LastActiveDay is nil until the first recorded activity.
	LastActiveDay *timeutil.DayKey `json:"last_active_day,omitempty"`
}

// UnlockedAchievement records a one-shot unlock.
type UnlockedAchievement struct {
	ID         string    `json:"id"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// Profile is the complete per-user progression state.
type Profile struct {
	UserID string `json:"user_id"`

	// Level starts at 1. CurrentXP is the progress inside the level and is
	// always below LevelThreshold(Level).
	Level     int `json:"level"`
	CurrentXP int `json:"current_xp"`
	TotalXP   int `json:"total_xp"`

	// Achievements is append-only, in unlock order.
	Achievements []UnlockedAchievement `json:"achievements"`

	// DailyQuests holds today's three quests once EnsureDailyQuests ran.
	DailyQuests []Quest `json:"daily_quests"`

	// WeeklyChallenge is nil until the first weekly rollover.
	WeeklyChallenge *Challenge `json:"weekly_challenge,omitempty"`

	Streak Streak `json:"streak"`
	Stats  Stats  `json:"stats"`

	// Timezone is an IANA name; empty means the engine's default location.
	Timezone string `json:"timezone,omitempty"`

	// Version is compared by Repository.Save. Zero means never stored.
	Version int64 `json:"version"`

	// Seq is the insertion order assigned by the repository on the first
	// save. It breaks leaderboard ties.
	Seq int64 `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewProfile creates a default level-1 profile.
func NewProfile(userID string, now time.Time) (*Profile, error) {
	if _, err := shared.NewUserID(userID); err != nil {
		return nil, err
	}
	now = now.UTC()
	return &Profile{
		UserID:       userID,
		Level:        1,
		Achievements: []UnlockedAchievement{},
		DailyQuests:  []Quest{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasAchievement reports whether id is already unlocked.
func (p *Profile) HasAchievement(id string) bool {
	for _, a := range p.Achievements {
		if a.ID == id {
			return true
		}
	}
	return false
}

// IsNew reports whether the profile was never stored.
func (p *Profile) IsNew() bool {
	return p.Version == 0
}

// Clone returns a deep copy. Retry loops compute on clones so a failed
// attempt never leaks partial state into the next one.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Achievements = append([]UnlockedAchievement(nil), p.Achievements...)
	c.DailyQuests = append([]Quest(nil), p.DailyQuests...)
	if p.WeeklyChallenge != nil {
		ch := *p.WeeklyChallenge
		c.WeeklyChallenge = &ch
	}
	if p.Streak.LastActiveDay != nil {
		d := *p.Streak.LastActiveDay
		c.Streak.LastActiveDay = &d
	}
	if c.Achievements == nil {
		c.Achievements = []UnlockedAchievement{}
	}
	if c.DailyQuests == nil {
		c.DailyQuests = []Quest{}
	}
	return &c
}

// Validate checks the structural invariants of a loaded or computed profile.
func (p *Profile) Validate() error {
	const op = "Profile.Validate"
	if _, err := shared.NewUserID(p.UserID); err != nil {
		return err
	}
	if p.Level < 1 {
		return shared.Validationf("progression", op, "level %d is below 1", p.Level)
	}
	if p.CurrentXP < 0 || p.CurrentXP >= LevelThreshold(p.Level) {
		return shared.Validationf("progression", op, "current xp %d out of range for level %d", p.CurrentXP, p.Level)
	}
	if p.TotalXP < 0 {
		return shared.Validationf("progression", op, "total xp %d is negative", p.TotalXP)
	}
	if p.Streak.Current < 0 || p.Streak.Longest < p.Streak.Current {
		return shared.Validationf("progression", op, "streak %d/%d is inconsistent", p.Streak.Current, p.Streak.Longest)
	}
	s := p.Stats
	if s.CardsStudied < 0 || s.TestsPassed < 0 || s.GamesWon < 0 || s.PerfectScores < 0 {
		return shared.Validationf("progression", op, "stats contain negative counters")
	}
	seen := make(map[string]struct{}, len(p.Achievements))
	for _, a := range p.Achievements {
		if _, dup := seen[a.ID]; dup {
			return shared.Validationf("progression", op, "achievement %q unlocked twice", a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	return nil
}

// touch stamps UpdatedAt.
func (p *Profile) touch(now time.Time) {
	p.UpdatedAt = now.UTC()
}
