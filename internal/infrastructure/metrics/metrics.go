// Package metrics exposes Prometheus instruments for the progression service.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cardquest/progression/internal/domain/shared"
)

const namespace = "progression"

// Metrics holds every collector. Create one per registry.
type Metrics struct {
	commandDuration  *prometheus.HistogramVec
	commandsTotal    *prometheus.CounterVec
	conflictRetries  *prometheus.CounterVec
	xpGranted        *prometheus.CounterVec
	levelUps         prometheus.Counter
	achievements     *prometheus.CounterVec
	questsCompleted  *prometheus.CounterVec
	streakBreaks     prometheus.Counter
	profilesCreated  prometheus.Counter
	leaderboardReads *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
	handlerDuration  *prometheus.HistogramVec
	handlerFailures  *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobRuns          *prometheus.CounterVec
}

// New registers the collectors on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		commandDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Latency of progression commands including lock wait and retries.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"command"}),
		commandsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Progression commands by outcome.",
		}, []string{"command", "outcome"}),
		conflictRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflict_retries_total",
			Help:      "Read-modify-write cycles repeated after a version conflict.",
		}, []string{"command"}),
		xpGranted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xp_granted_total",
			Help:      "XP granted, by action.",
		}, []string{"action"}),
		levelUps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_ups_total",
			Help:      "Levels gained across all profiles.",
		}),
		achievements: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "achievements_unlocked_total",
			Help:      "Achievement unlocks, by achievement id.",
		}, []string{"achievement"}),
		questsCompleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quests_completed_total",
			Help:      "Completed daily quests and weekly challenges.",
		}, []string{"kind"}),
		streakBreaks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streak_breaks_total",
			Help:      "Streaks reset after a missed day.",
		}),
		profilesCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profiles_created_total",
			Help:      "Profiles created on first use.",
		}),
		leaderboardReads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leaderboard_reads_total",
			Help:      "Leaderboard reads by source.",
		}, []string{"source"}),
		eventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events published on the bus.",
		}, []string{"event_type"}),
		handlerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_handler_duration_seconds",
			Help:      "Event handler latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		handlerFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_handler_failures_total",
			Help:      "Event handlers that failed after all attempts.",
		}, []string{"event_type"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Scheduled job latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		jobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by outcome.",
		}, []string{"job", "outcome"}),
	}
}

// ObserveCommand records one finished command.
func (m *Metrics) ObserveCommand(command string, started time.Time, err error) {
	m.commandDuration.WithLabelValues(command).Observe(time.Since(started).Seconds())
	m.commandsTotal.WithLabelValues(command, outcome(err)).Inc()
}

// ConflictRetry counts one repeated cycle.
func (m *Metrics) ConflictRetry(command string) {
	m.conflictRetries.WithLabelValues(command).Inc()
}

// ProfileCreated counts a lazily created profile.
func (m *Metrics) ProfileCreated() {
	m.profilesCreated.Inc()
}

// LeaderboardRead counts a leaderboard answer served from source
// ("cache" or "repository").
func (m *Metrics) LeaderboardRead(source string) {
	m.leaderboardReads.WithLabelValues(source).Inc()
}

// RecordEvents derives the progression counters from the events of one
// committed command.
func (m *Metrics) RecordEvents(events []shared.Event) {
	for _, e := range events {
		switch ev := e.(type) {
		case shared.XPGainedEvent:
			m.xpGranted.WithLabelValues(ev.Action).Add(float64(ev.Amount))
		case shared.LevelUpEvent:
			m.levelUps.Add(float64(ev.LevelsGained))
		case shared.AchievementUnlockedEvent:
			m.achievements.WithLabelValues(ev.AchievementID).Inc()
		case shared.QuestCompletedEvent:
			m.questsCompleted.WithLabelValues("daily").Inc()
		case shared.ChallengeCompletedEvent:
			m.questsCompleted.WithLabelValues("weekly").Inc()
		case shared.StreakBrokenEvent:
			m.streakBreaks.Inc()
		}
	}
}

// EventPublished implements messaging.Observer.
func (m *Metrics) EventPublished(eventType shared.EventType) {
	m.eventsPublished.WithLabelValues(string(eventType)).Inc()
}

// HandlerFinished implements messaging.Observer.
func (m *Metrics) HandlerFinished(eventType shared.EventType, d time.Duration, err error) {
	m.handlerDuration.WithLabelValues(string(eventType)).Observe(d.Seconds())
	if err != nil {
		m.handlerFailures.WithLabelValues(string(eventType)).Inc()
	}
}

// JobFinished records one scheduled job run.
func (m *Metrics) JobFinished(job string, d time.Duration, err error) {
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	m.jobRuns.WithLabelValues(job, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case shared.IsValidation(err):
		return "invalid"
	case shared.IsNotFound(err):
		return "not_found"
	case errors.Is(err, shared.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
