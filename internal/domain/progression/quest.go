package progression

import (
	"github.com/cardquest/progression/internal/domain/shared"
	"github.com/cardquest/progression/pkg/timeutil"
)

// DailyQuestCount is the size of the daily quest set.
const DailyQuestCount = 3

// QuestTemplate describes a quest before it is stamped to a day.
type QuestTemplate struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Type        ActivityType `json:"type"`
	Target      int          `json:"target"`
	Reward      int          `json:"reward"`
}

// dailyPool spans all four activity types.
var dailyPool = []QuestTemplate{
	{ID: "study_10", Description: "Study 10 cards", Type: ActivityStudyCards, Target: 10, Reward: 50},
	{ID: "study_25", Description: "Study 25 cards", Type: ActivityStudyCards, Target: 25, Reward: 100},
	{ID: "pass_one_test", Description: "Pass a test", Type: ActivityPassTest, Target: 1, Reward: 100},
	{ID: "pass_3", Description: "Pass 3 tests", Type: ActivityPassTest, Target: 3, Reward: 200},
	{ID: "win_game", Description: "Win a game", Type: ActivityWinGame, Target: 1, Reward: 75},
	{ID: "win_3", Description: "Win 3 games", Type: ActivityWinGame, Target: 3, Reward: 150},
	{ID: "perfect_round", Description: "Score a perfect round", Type: ActivityPerfectScore, Target: 1, Reward: 150},
}

// DailyQuestPool returns a copy of the daily template pool.
func DailyQuestPool() []QuestTemplate {
	return append([]QuestTemplate(nil), dailyPool...)
}

// LookupQuestTemplate finds a daily template by ID.
func LookupQuestTemplate(id string) (QuestTemplate, bool) {
	for _, t := range dailyPool {
		if t.ID == id {
			return t, true
		}
	}
	return QuestTemplate{}, false
}

// Quest is a daily quest instance.
type Quest struct {
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Type        ActivityType    `json:"type"`
	Target      int             `json:"target"`
	Current     int             `json:"current"`
	Completed   bool            `json:"completed"`
	Reward      int             `json:"reward"`
	Day         timeutil.DayKey `json:"day"`
}

// NewQuest stamps a template to day.
func NewQuest(t QuestTemplate, day timeutil.DayKey) Quest {
	return Quest{
		ID:          t.ID,
		Description: t.Description,
		Type:        t.Type,
		Target:      t.Target,
		Reward:      t.Reward,
		Day:         day,
	}
}

// advance adds amount, clamped to the target. Returns true only on the
// transition to completed.
func (q *Quest) advance(amount int) bool {
	if q.Completed || amount <= 0 {
		return false
	}
	q.Current = min(q.Current+amount, q.Target)
	if q.Current >= q.Target {
		q.Completed = true
		return true
	}
	return false
}

// complete forces completion. Returns false when already completed.
func (q *Quest) complete() bool {
	if q.Completed {
		return false
	}
	q.Current = q.Target
	q.Completed = true
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// ROTATION
// ══════════════════════════════════════════════════════════════════════════════

// EnsureDailyQuests keeps the quests stamped today, dropping any others, or
// draws a fresh set of distinct templates when none is stamped today.
// Returns true when a new set was drawn.
func EnsureDailyQuests(p *Profile, today timeutil.DayKey, sampler Sampler) bool {
	kept := p.DailyQuests[:0:0]
	for _, q := range p.DailyQuests {
		if q.Day == today {
			kept = append(kept, q)
		}
	}
	if len(kept) > 0 {
		p.DailyQuests = kept
		return false
	}

	picks := sampler.Pick(len(dailyPool), DailyQuestCount)
	quests := make([]Quest, 0, len(picks))
	for _, i := range picks {
		quests = append(quests, NewQuest(dailyPool[i], today))
	}
	p.DailyQuests = quests
	return true
}

// QuestProgress is the result of AdvanceQuests.
type QuestProgress struct {
	XPEarned  int     `json:"xp_earned"`
	Completed []Quest `json:"completed"`
}

// AdvanceQuests credits amount to every open quest of the given type.
// Each quest pays its reward exactly once.
func AdvanceQuests(p *Profile, t ActivityType, amount int) QuestProgress {
	var res QuestProgress
	for i := range p.DailyQuests {
		q := &p.DailyQuests[i]
		if q.Type != t {
			continue
		}
		if q.advance(amount) {
			res.XPEarned += q.Reward
			res.Completed = append(res.Completed, *q)
		}
	}
	return res
}

// completeQuest finishes the quest with id in today's set.
func completeQuest(p *Profile, id string, today timeutil.DayKey) (*Quest, bool, error) {
	for i := range p.DailyQuests {
		q := &p.DailyQuests[i]
		if q.ID != id || q.Day != today {
			continue
		}
		done := q.complete()
		return q, done, nil
	}
	return nil, false, shared.ErrQuestNotActive
}
