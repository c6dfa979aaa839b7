package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/cardquest/progression/internal/domain/shared"
)

func TestRecordEvents(t *testing.T) {
	m := New(prometheus.NewRegistry())
	now := time.Now()

	m.RecordEvents([]shared.Event{
		shared.XPGainedEvent{BaseEvent: shared.NewBaseEvent(shared.EventXPGained, "u1", now), Amount: 75, Action: "activity"},
		shared.XPGainedEvent{BaseEvent: shared.NewBaseEvent(shared.EventXPGained, "u1", now), Amount: 25, Action: "activity"},
		shared.LevelUpEvent{BaseEvent: shared.NewBaseEvent(shared.EventLevelUp, "u1", now), LevelsGained: 2},
		shared.AchievementUnlockedEvent{BaseEvent: shared.NewBaseEvent(shared.EventAchievementUnlocked, "u1", now), AchievementID: "first_steps"},
		shared.QuestCompletedEvent{BaseEvent: shared.NewBaseEvent(shared.EventQuestCompleted, "u1", now)},
		shared.ChallengeCompletedEvent{BaseEvent: shared.NewBaseEvent(shared.EventChallengeCompleted, "u1", now)},
	})

	assert.Equal(t, 100.0, testutil.ToFloat64(m.xpGranted.WithLabelValues("activity")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.levelUps))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.achievements.WithLabelValues("first_steps")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.questsCompleted.WithLabelValues("daily")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.questsCompleted.WithLabelValues("weekly")))
}

func TestObserveCommand_Outcomes(t *testing.T) {
	m := New(prometheus.NewRegistry())
	start := time.Now()

	m.ObserveCommand("report_activity", start, nil)
	m.ObserveCommand("report_activity", start, shared.ErrNegativeActivity)
	m.ObserveCommand("report_activity", start, shared.ErrProfileConflict)
	m.ObserveCommand("report_activity", start, errors.New("boom"))

	for _, o := range []string{"ok", "invalid", "conflict", "error"} {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.commandsTotal.WithLabelValues("report_activity", o)), o)
	}
}

func TestJobFinished(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.JobFinished("rebuild_leaderboard", 20*time.Millisecond, nil)
	m.JobFinished("rebuild_leaderboard", time.Second, errors.New("redis down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("rebuild_leaderboard", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("rebuild_leaderboard", "error")))
}
