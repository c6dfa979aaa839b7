package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardquest/progression/internal/domain/shared"
	"github.com/cardquest/progression/pkg/timeutil"
)

// Daily picks: pass_one_test, study_10, win_game. Weekly pick: weekly_games_10.
func newTestEngine() *Engine {
	return NewEngine(timeutil.NewCalendar(time.UTC), FixedSampler{2, 0, 4})
}

func eventTypes(events []shared.Event) []shared.EventType {
	out := make([]shared.EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType())
	}
	return out
}

func TestEngine_ReportActivity_PassTestScenario(t *testing.T) {
	e := newTestEngine()
	p := newTestProfile(t)
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

	summary, err := e.ReportActivity(p, Activity{TestsPassed: 1}, now)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Stats.TestsPassed)
	require.Len(t, summary.QuestResults.Completed, 1)
	assert.Equal(t, "pass_one_test", summary.QuestResults.Completed[0].ID)
	assert.Equal(t, 100, summary.QuestResults.XPEarned)
	assert.Empty(t, summary.NewAchievements)

	assert.Equal(t, 2, p.Level)
	assert.Equal(t, 0, p.CurrentXP)
	assert.Equal(t, 100, p.TotalXP)
	assert.True(t, summary.XPResult.LeveledUp)
	assert.Equal(t, StreakOutcomeStarted, summary.StreakOutcome)
	assert.Equal(t, 1, summary.Streak.Current)

	assert.Equal(t, []shared.EventType{
		shared.EventStreakUpdated,
		shared.EventQuestCompleted,
		shared.EventXPGained,
		shared.EventLevelUp,
	}, eventTypes(summary.Events))
}

func TestEngine_ReportActivity_RewardsFoldIntoOneGrant(t *testing.T) {
	e := newTestEngine()
	p := newTestProfile(t)
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

	summary, err := e.ReportActivity(p, Activity{CardsStudied: 10, GamesWon: 1}, now)
	require.NoError(t, err)

	// first_steps 25 + first_victory 25 + study_10 50 + win_game 75
	require.Len(t, summary.NewAchievements, 2)
	assert.Equal(t, 125, summary.QuestResults.XPEarned)
	assert.Equal(t, 175, summary.XPResult.Amount)
	assert.Equal(t, 175, p.TotalXP)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, 75, p.CurrentXP)
	require.NotNil(t, p.WeeklyChallenge)
	assert.Equal(t, 1, p.WeeklyChallenge.Current)
}

func TestEngine_ReportActivity_RejectsNegativeWithoutMutation(t *testing.T) {
	e := newTestEngine()
	p := newTestProfile(t)
	before := p.Clone()

	_, err := e.ReportActivity(p, Activity{CardsStudied: 3, TestsPassed: -1}, time.Now())
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, before, p)
}

func TestEngine_ReportActivity_RejectsOversizedWithoutMutation(t *testing.T) {
	e := newTestEngine()
	p := newTestProfile(t)
	before := p.Clone()

	_, err := e.ReportActivity(p, Activity{CardsStudied: MaxActivityCount + 1}, time.Now())
	assert.ErrorIs(t, err, shared.ErrActivityTooLarge)
	assert.Equal(t, before, p)
}

func TestEngine_ReportActivity_RejectsUnknownTimezone(t *testing.T) {
	e := newTestEngine()
	p := newTestProfile(t)
	p.Timezone = "Nowhere/Nothing"
	before := p.Clone()

	_, err := e.ReportActivity(p, Activity{CardsStudied: 1}, time.Now())
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, before, p)
}

func TestEngine_ReportActivity_EmptyReportKeepsStreak(t *testing.T) {
	e := newTestEngine()
	p := newTestProfile(t)

	summary, err := e.ReportActivity(p, Activity{}, time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, StreakOutcomeUnchanged, summary.StreakOutcome)
	assert.Nil(t, p.Streak.LastActiveDay)
	assert.Len(t, p.DailyQuests, DailyQuestCount)
	assert.Zero(t, p.TotalXP)
}

func TestEngine_ReportActivity_ClockSkewIsNoop(t *testing.T) {
	e := newTestEngine()
	p := newTestProfile(t)
	future := day(2026, 10, 20)
	p.Streak = Streak{Current: 4, Longest: 4, LastActiveDay: &future}

	summary, err := e.ReportActivity(p, Activity{CardsStudied: 1}, time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, StreakOutcomeSkewed, summary.StreakOutcome)
	assert.Equal(t, 4, p.Streak.Current)
	assert.Equal(t, future, *p.Streak.LastActiveDay)
}

func TestEngine_ReportActivity_BrokenStreakEvent(t *testing.T) {
	e := newTestEngine()
	p := newTestProfile(t)
	last := day(2026, 10, 10)
	p.Streak = Streak{Current: 3, Longest: 5, LastActiveDay: &last}

	summary, err := e.ReportActivity(p, Activity{CardsStudied: 1}, time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotEmpty(t, summary.Events)

	broken, ok := summary.Events[0].(shared.StreakBrokenEvent)
	require.True(t, ok)
	assert.Equal(t, 3, broken.PreviousStreak)
	assert.Equal(t, 4, broken.DaysMissed)
	assert.Equal(t, 1, p.Streak.Current)
	assert.Equal(t, 5, p.Streak.Longest)
}

func TestEngine_Refresh(t *testing.T) {
	e := newTestEngine()
	p := newTestProfile(t)
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

	changed, err := e.Refresh(p, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Len(t, p.DailyQuests, DailyQuestCount)
	require.NotNil(t, p.WeeklyChallenge)
	assert.Equal(t, "2026-10-12", p.WeeklyChallenge.WeekStart.String())
	assert.Equal(t, Stats{}, p.Stats)

	changed, err = e.Refresh(p, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestEngine_CompleteQuest(t *testing.T) {
	e := newTestEngine()
	p := newTestProfile(t)
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	_, err := e.Refresh(p, now)
	require.NoError(t, err)

	_, err = e.CompleteQuest(p, "no_such_quest", now)
	assert.True(t, shared.IsValidation(err))

	_, err = e.CompleteQuest(p, "perfect_round", now)
	assert.True(t, shared.IsNotFound(err))

	res, err := e.CompleteQuest(p, "win_game", now)
	require.NoError(t, err)
	assert.False(t, res.AlreadyCompleted)
	assert.Equal(t, 75, res.XPResult.Amount)
	assert.Equal(t, 75, p.TotalXP)

	res, err = e.CompleteQuest(p, "win_game", now)
	require.NoError(t, err)
	assert.True(t, res.AlreadyCompleted)
	assert.Equal(t, 75, p.TotalXP)
	assert.Empty(t, res.Events)

	// The next day rolls over to a fresh set first.
	res, err = e.CompleteQuest(p, "win_game", now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.False(t, res.AlreadyCompleted)
	assert.Equal(t, day(2026, 10, 16), res.Quest.Day)
	assert.Equal(t, 150, p.TotalXP)
}

func TestEngine_UnlockAchievement(t *testing.T) {
	e := newTestEngine()
	p := newTestProfile(t)
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

	_, err := e.UnlockAchievement(p, "unknown", now)
	assert.True(t, shared.IsValidation(err))

	res, err := e.UnlockAchievement(p, "card_master", now)
	require.NoError(t, err)
	assert.False(t, res.AlreadyUnlocked)
	assert.Equal(t, 500, p.TotalXP)
	assert.True(t, p.HasAchievement("card_master"))

	res, err = e.UnlockAchievement(p, "card_master", now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, res.AlreadyUnlocked)
	assert.Equal(t, now, res.Achievement.UnlockedAt)
	assert.Equal(t, 500, p.TotalXP)
	assert.Len(t, p.Achievements, 1)
}

func TestEngine_GrantXP(t *testing.T) {
	e := newTestEngine()
	p := newTestProfile(t)

	_, err := e.GrantXP(p, 0, "manual", time.Now())
	assert.True(t, shared.IsValidation(err))

	g, err := e.GrantXP(p, 250, "manual", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, g.XPResult.NewLevel)
	assert.Equal(t, []shared.EventType{shared.EventXPGained, shared.EventLevelUp}, eventTypes(g.Events))
}
