package progression

import (
	"github.com/cardquest/progression/internal/domain/shared"
	"github.com/cardquest/progression/pkg/timeutil"
)

// weeklyPool holds the weekly challenge templates. Targets and rewards are
// larger than the daily ones.
var weeklyPool = []QuestTemplate{
	{ID: "weekly_study_200", Description: "Study 200 cards this week", Type: ActivityStudyCards, Target: 200, Reward: 500},
	{ID: "weekly_tests_10", Description: "Pass 10 tests this week", Type: ActivityPassTest, Target: 10, Reward: 600},
	{ID: "weekly_games_10", Description: "Win 10 games this week", Type: ActivityWinGame, Target: 10, Reward: 500},
	{ID: "weekly_perfect_5", Description: "Score 5 perfect rounds this week", Type: ActivityPerfectScore, Target: 5, Reward: 750},
}

// WeeklyChallengePool returns a copy of the weekly template pool.
func WeeklyChallengePool() []QuestTemplate {
	return append([]QuestTemplate(nil), weeklyPool...)
}

// Challenge is the single weekly challenge instance.
type Challenge struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Type        ActivityType    `json:"type"`
	Target      int             `json:"target"`
	Current     int             `json:"current"`
	Completed   bool            `json:"completed"`
	Reward      int             `json:"reward"`
	WeekStart   timeutil.DayKey `json:"week_start"`
}

// ChallengeProgress is the result of AdvanceWeeklyChallenge.
type ChallengeProgress struct {
	XPEarned  int        `json:"xp_earned"`
	Completed *Challenge `json:"completed,omitempty"`
}

// EnsureWeeklyChallenge replaces the challenge whenever its anchor differs
// from weekStart. Unfinished progress of the old challenge is forfeited.
// Returns true when a new challenge was drawn.
func EnsureWeeklyChallenge(p *Profile, weekStart timeutil.DayKey, sampler Sampler) bool {
	if p.WeeklyChallenge != nil && p.WeeklyChallenge.WeekStart == weekStart {
		return false
	}

	picks := sampler.Pick(len(weeklyPool), 1)
	if len(picks) == 0 {
		p.WeeklyChallenge = nil
		return false
	}
	t := weeklyPool[picks[0]]
	p.WeeklyChallenge = &Challenge{
		ID:          t.ID,
		Description: t.Description,
		Type:        t.Type,
		Target:      t.Target,
		Reward:      t.Reward,
		WeekStart:   weekStart,
	}
	return true
}

// AdvanceWeeklyChallenge credits amount when the challenge matches t.
// A challenge stamped for another week is left alone and ErrChallengeStale
// is returned; callers treat it as a soft no-op.
func AdvanceWeeklyChallenge(p *Profile, t ActivityType, amount int, weekStart timeutil.DayKey) (ChallengeProgress, error) {
	c := p.WeeklyChallenge
	if c == nil || c.Type != t || c.Completed || amount <= 0 {
		return ChallengeProgress{}, nil
	}
	if c.WeekStart != weekStart {
		return ChallengeProgress{}, shared.ErrChallengeStale
	}

	c.Current = min(c.Current+amount, c.Target)
	if c.Current < c.Target {
		return ChallengeProgress{}, nil
	}
	c.Completed = true
	done := *c
	return ChallengeProgress{XPEarned: c.Reward, Completed: &done}, nil
}
