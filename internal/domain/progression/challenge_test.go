package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardquest/progression/internal/domain/shared"
	"github.com/cardquest/progression/pkg/timeutil"
)

func TestEnsureWeeklyChallenge_Rollover(t *testing.T) {
	monday := day(2026, 10, 12)
	p := newTestProfile(t)

	require.True(t, EnsureWeeklyChallenge(p, monday, FixedSampler{0}))
	require.NotNil(t, p.WeeklyChallenge)
	assert.Equal(t, "weekly_study_200", p.WeeklyChallenge.ID)
	p.WeeklyChallenge.Current = 2

	// Every day up to Sunday resolves to the same anchor.
	for d := 0; d < 7; d++ {
		anchor := timeutil.StartOfWeek(monday.AddDays(d))
		assert.False(t, EnsureWeeklyChallenge(p, anchor, FixedSampler{1}))
		assert.Equal(t, 2, p.WeeklyChallenge.Current)
		assert.Equal(t, "weekly_study_200", p.WeeklyChallenge.ID)
	}

	nextMonday := timeutil.StartOfWeek(monday.AddDays(7))
	require.True(t, EnsureWeeklyChallenge(p, nextMonday, FixedSampler{0}))
	assert.Equal(t, nextMonday, p.WeeklyChallenge.WeekStart)
	assert.Zero(t, p.WeeklyChallenge.Current)
	assert.False(t, p.WeeklyChallenge.Completed)
}

func TestAdvanceWeeklyChallenge_CompletesOnce(t *testing.T) {
	monday := day(2026, 10, 12)
	p := newTestProfile(t)
	EnsureWeeklyChallenge(p, monday, FixedSampler{1}) // weekly_tests_10

	res, err := AdvanceWeeklyChallenge(p, ActivityStudyCards, 50, monday)
	require.NoError(t, err)
	assert.Zero(t, res.XPEarned)

	res, err = AdvanceWeeklyChallenge(p, ActivityPassTest, 9, monday)
	require.NoError(t, err)
	assert.Zero(t, res.XPEarned)

	res, err = AdvanceWeeklyChallenge(p, ActivityPassTest, 5, monday)
	require.NoError(t, err)
	assert.Equal(t, 600, res.XPEarned)
	require.NotNil(t, res.Completed)
	assert.Equal(t, 10, p.WeeklyChallenge.Current)

	res, err = AdvanceWeeklyChallenge(p, ActivityPassTest, 5, monday)
	require.NoError(t, err)
	assert.Zero(t, res.XPEarned)
}

func TestAdvanceWeeklyChallenge_StaleIsSoft(t *testing.T) {
	monday := day(2026, 10, 12)
	p := newTestProfile(t)
	EnsureWeeklyChallenge(p, monday, FixedSampler{1})

	res, err := AdvanceWeeklyChallenge(p, ActivityPassTest, 10, monday.AddDays(7))
	assert.True(t, shared.IsStaleWindow(err))
	assert.Zero(t, res.XPEarned)
	assert.Zero(t, p.WeeklyChallenge.Current)
}
