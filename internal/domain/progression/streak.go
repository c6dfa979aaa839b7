package progression

import (
	"github.com/cardquest/progression/pkg/timeutil"
)

// StreakOutcome classifies what UpdateStreak did.
type StreakOutcome string

const (
	// StreakOutcomeStarted - first activity ever.
	StreakOutcomeStarted StreakOutcome = "started"
	// StreakOutcomeUnchanged - already counted today.
	StreakOutcomeUnchanged StreakOutcome = "unchanged"
	// StreakOutcomeExtended - active yesterday, streak grew by one.
	StreakOutcomeExtended StreakOutcome = "extended"
	// StreakOutcomeReset - gap of more than one day, streak restarted at 1.
	StreakOutcomeReset StreakOutcome = "reset"
	// StreakOutcomeSkewed - today is before the last active day; nothing changed.
	StreakOutcomeSkewed StreakOutcome = "skewed"
)

// StreakUpdate is the result of UpdateStreak.
type StreakUpdate struct {
	Outcome StreakOutcome `json:"outcome"`

	// Previous is the current streak before the update.
	Previous int `json:"previous"`

	// DaysSinceLast is the gap in calendar days; zero on first activity.
	DaysSinceLast int `json:"days_since_last"`
}

// Changed reports whether the streak record was modified.
func (u StreakUpdate) Changed() bool {
	switch u.Outcome {
	case StreakOutcomeStarted, StreakOutcomeExtended, StreakOutcomeReset:
		return true
	default:
		return false
	}
}

// UpdateStreak advances the streak for activity on day today.
// A today earlier than the last active day is treated as a no-op.
func UpdateStreak(p *Profile, today timeutil.DayKey) StreakUpdate {
	s := &p.Streak
	update := StreakUpdate{Previous: s.Current}

	if s.LastActiveDay == nil {
		s.Current = 1
		s.Longest = max(s.Longest, 1)
		s.LastActiveDay = &today
		update.Outcome = StreakOutcomeStarted
		return update
	}

	diff := today.DaysSince(*s.LastActiveDay)
	update.DaysSinceLast = diff

	switch {
	case diff < 0:
		update.Outcome = StreakOutcomeSkewed
	case diff == 0:
		update.Outcome = StreakOutcomeUnchanged
	case diff == 1:
		s.Current++
		s.Longest = max(s.Longest, s.Current)
		s.LastActiveDay = &today
		update.Outcome = StreakOutcomeExtended
	default:
		s.Current = 1
		s.LastActiveDay = &today
		update.Outcome = StreakOutcomeReset
	}
	return update
}
