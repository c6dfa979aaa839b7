package progression

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardquest/progression/internal/domain/shared"
)

func newTestProfile(t *testing.T) *Profile {
	t.Helper()
	p, err := NewProfile("user-1", time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return p
}

func TestLevelThreshold_Breakpoints(t *testing.T) {
	cases := map[int]int{
		1: 100, 10: 100,
		11: 200, 20: 200,
		21: 500, 50: 500,
		51: 1000, 200: 1000,
	}
	for level, want := range cases {
		assert.Equal(t, want, LevelThreshold(level), "level %d", level)
	}
}

func TestAddXP_RejectsNonPositive(t *testing.T) {
	p := newTestProfile(t)

	for _, amount := range []int{0, -5} {
		_, err := AddXP(p, amount, "manual")
		assert.ErrorIs(t, err, shared.ErrValidation)
		assert.True(t, shared.IsValidation(err))
	}
	assert.Equal(t, 1, p.Level)
	assert.Zero(t, p.TotalXP)
	assert.Zero(t, p.CurrentXP)
}

func TestAddXP_MultiLevelJump(t *testing.T) {
	p := newTestProfile(t)

	res, err := AddXP(p, 5000, "bonus")
	require.NoError(t, err)

	// 10*100 + 10*200 + 4*500 = 5000
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 24, res.LevelsGained)
	assert.Equal(t, 25, res.NewLevel)
	assert.Equal(t, 0, res.CurrentXP)
	assert.Equal(t, 500, res.XPForNextLevel)
	assert.Equal(t, 5000, res.TotalXP)
	assert.Equal(t, "bonus", res.Action)
	assert.Equal(t, 25, p.Level)
}

func TestAddXP_LevelInvariantAndConservation(t *testing.T) {
	p := newTestProfile(t)
	grants := []int{1, 99, 250, 37, 1200, 3, 999, 4000, 12, 77777}

	sum := 0
	for _, g := range grants {
		_, err := AddXP(p, g, "grant")
		require.NoError(t, err)
		sum += g

		assert.GreaterOrEqual(t, p.CurrentXP, 0)
		assert.Less(t, p.CurrentXP, LevelThreshold(p.Level))
		assert.Equal(t, sum, p.TotalXP)
	}

	// Order does not matter for the final state.
	q := newTestProfile(t)
	for i := len(grants) - 1; i >= 0; i-- {
		_, err := AddXP(q, grants[i], "grant")
		require.NoError(t, err)
	}
	assert.Equal(t, p.TotalXP, q.TotalXP)
	assert.Equal(t, p.Level, q.Level)
	assert.Equal(t, p.CurrentXP, q.CurrentXP)
}

func TestAddXP_NoLevelUpBelowThreshold(t *testing.T) {
	p := newTestProfile(t)

	res, err := AddXP(p, 99, "grant")
	require.NoError(t, err)
	assert.False(t, res.LeveledUp)
	assert.Zero(t, res.LevelsGained)
	assert.Equal(t, 1, res.NewLevel)
	assert.Equal(t, 99, res.CurrentXP)
	assert.Equal(t, 100, res.XPForNextLevel)
}

func TestAddXP_RejectsOverflow(t *testing.T) {
	p := newTestProfile(t)
	_, err := AddXP(p, math.MaxInt-10, "grant")
	require.NoError(t, err)
	level, current := p.Level, p.CurrentXP

	_, err = AddXP(p, 11, "grant")
	assert.ErrorIs(t, err, shared.ErrXPOverflow)
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, math.MaxInt-10, p.TotalXP)
	assert.Equal(t, level, p.Level)
	assert.Equal(t, current, p.CurrentXP)

	_, err = AddXP(p, 10, "grant")
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, p.TotalXP)
	assert.Less(t, p.CurrentXP, LevelThreshold(p.Level))
}

func TestAddXP_HugeGrantPastLastTier(t *testing.T) {
	p := newTestProfile(t)

	// Levels 1-50 consume 10*100 + 10*200 + 30*500 = 18000.
	const amount = 1 << 40
	res, err := AddXP(p, amount, "grant")
	require.NoError(t, err)

	rest := amount - 18000
	assert.Equal(t, 51+rest/1000, res.NewLevel)
	assert.Equal(t, rest%1000, res.CurrentXP)
	assert.Equal(t, res.NewLevel-1, res.LevelsGained)
	assert.Equal(t, 1000, res.XPForNextLevel)

	// Grants starting past the last tier take the same path.
	res, err = AddXP(p, 2500+1000-res.CurrentXP, "grant")
	require.NoError(t, err)
	assert.Equal(t, 3, res.LevelsGained)
	assert.Equal(t, 500, res.CurrentXP)
}
