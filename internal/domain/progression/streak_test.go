package progression

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardquest/progression/pkg/timeutil"
)

func day(y int, m time.Month, d int) timeutil.DayKey {
	return timeutil.DayKey{Year: y, Month: m, Day: d}
}

func dayPtr(d timeutil.DayKey) *timeutil.DayKey {
	return &d
}

func TestUpdateStreak_FirstActivity(t *testing.T) {
	p := newTestProfile(t)
	today := day(2026, 10, 15)

	u := UpdateStreak(p, today)
	assert.Equal(t, StreakOutcomeStarted, u.Outcome)
	assert.Equal(t, 1, p.Streak.Current)
	assert.Equal(t, 1, p.Streak.Longest)
	require.NotNil(t, p.Streak.LastActiveDay)
	assert.Equal(t, today, *p.Streak.LastActiveDay)
}

func TestUpdateStreak_Transitions(t *testing.T) {
	today := day(2026, 10, 15)

	cases := []struct {
		name        string
		streak      Streak
		wantOutcome StreakOutcome
		wantCurrent int
		wantLongest int
		wantLast    timeutil.DayKey
	}{
		{
			name:        "same day",
			streak:      Streak{Current: 3, Longest: 4, LastActiveDay: dayPtr(today)},
			wantOutcome: StreakOutcomeUnchanged,
			wantCurrent: 3, wantLongest: 4, wantLast: today,
		},
		{
			name:        "yesterday",
			streak:      Streak{Current: 4, Longest: 4, LastActiveDay: dayPtr(today.AddDays(-1))},
			wantOutcome: StreakOutcomeExtended,
			wantCurrent: 5, wantLongest: 5, wantLast: today,
		},
		{
			name:        "yesterday below longest",
			streak:      Streak{Current: 2, Longest: 9, LastActiveDay: dayPtr(today.AddDays(-1))},
			wantOutcome: StreakOutcomeExtended,
			wantCurrent: 3, wantLongest: 9, wantLast: today,
		},
		{
			name:        "five days ago",
			streak:      Streak{Current: 6, Longest: 8, LastActiveDay: dayPtr(today.AddDays(-5))},
			wantOutcome: StreakOutcomeReset,
			wantCurrent: 1, wantLongest: 8, wantLast: today,
		},
		{
			name:        "clock skew",
			streak:      Streak{Current: 2, Longest: 2, LastActiveDay: dayPtr(today.AddDays(2))},
			wantOutcome: StreakOutcomeSkewed,
			wantCurrent: 2, wantLongest: 2, wantLast: today.AddDays(2),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newTestProfile(t)
			p.Streak = tc.streak

			u := UpdateStreak(p, today)
			assert.Equal(t, tc.wantOutcome, u.Outcome)
			assert.Equal(t, tc.wantCurrent, p.Streak.Current)
			assert.Equal(t, tc.wantLongest, p.Streak.Longest)
			assert.Equal(t, tc.wantLast, *p.Streak.LastActiveDay)
			assert.GreaterOrEqual(t, p.Streak.Longest, p.Streak.Current)
		})
	}
}

func TestUpdateStreak_AcrossMonthBoundary(t *testing.T) {
	p := newTestProfile(t)
	p.Streak = Streak{Current: 1, Longest: 1, LastActiveDay: dayPtr(day(2026, 2, 28))}

	u := UpdateStreak(p, day(2026, 3, 1))
	assert.Equal(t, StreakOutcomeExtended, u.Outcome)
	assert.Equal(t, 2, p.Streak.Current)
}
