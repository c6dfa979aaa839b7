package progression

import (
	"time"

	"github.com/cardquest/progression/internal/domain/shared"
	"github.com/cardquest/progression/pkg/timeutil"
)

// XP action labels used by the engine's own grants.
const (
	ActionActivity          = "activity"
	ActionQuestCompleted    = "quest_completed"
	ActionAchievementUnlock = "achievement_unlocked"
)

// Engine is the single entry point that applies progression rules to a profile.
// It is pure and synchronous: callers load the profile, call the engine, and
// store the profile as one unit.
type Engine struct {
	calendar *timeutil.Calendar
	sampler  Sampler
}

// NewEngine creates an engine. A nil calendar means UTC; a nil sampler means
// a wall-clock seeded sampler.
func NewEngine(calendar *timeutil.Calendar, sampler Sampler) *Engine {
	if calendar == nil {
		calendar = timeutil.NewCalendar(time.UTC)
	}
	if sampler == nil {
		sampler = NewTimeSampler()
	}
	return &Engine{calendar: calendar, sampler: sampler}
}

// Calendar returns the engine calendar.
func (e *Engine) Calendar() *timeutil.Calendar {
	return e.calendar
}

// window resolves the profile's current day and week.
func (e *Engine) window(p *Profile, now time.Time) (today, weekStart timeutil.DayKey, err error) {
	today, err = e.calendar.Today(now, p.Timezone)
	if err != nil {
		return today, weekStart, shared.WrapError("progression", "window", shared.ErrInvalidInput, "cannot resolve calendar day", err)
	}
	return today, timeutil.StartOfWeek(today), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// READ PATH
// ══════════════════════════════════════════════════════════════════════════════

// Refresh runs the daily and weekly rollover without touching stats.
// Returns true when the profile changed and should be stored.
func (e *Engine) Refresh(p *Profile, now time.Time) (bool, error) {
	today, weekStart, err := e.window(p, now)
	if err != nil {
		return false, err
	}
	questsRotated := e.ensureDaily(p, today)
	challengeRotated := EnsureWeeklyChallenge(p, weekStart, e.sampler)
	changed := questsRotated || challengeRotated
	if changed {
		p.touch(now)
	}
	return changed, nil
}

// ensureDaily reports a change also when stale quests were only dropped.
func (e *Engine) ensureDaily(p *Profile, today timeutil.DayKey) bool {
	before := len(p.DailyQuests)
	rotated := EnsureDailyQuests(p, today, e.sampler)
	return rotated || len(p.DailyQuests) != before
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY REPORT
// ══════════════════════════════════════════════════════════════════════════════

// ActivitySummary is returned by ReportActivity.
type ActivitySummary struct {
	Stats           Stats               `json:"stats"`
	Streak          Streak              `json:"streak"`
	StreakOutcome   StreakOutcome       `json:"streak_outcome"`
	NewAchievements []AchievementUnlock `json:"new_achievements"`
	QuestResults    QuestProgress       `json:"quest_results"`
	ChallengeResult ChallengeProgress   `json:"challenge_result"`
	XPResult        XPResult            `json:"xp_result"`

	// StaleChallenge is set when the weekly challenge could not be credited
	// because it belongs to another week.
	StaleChallenge bool `json:"stale_challenge,omitempty"`

	// Events are the domain events to publish once the profile is stored.
	Events []shared.Event `json:"-"`
}

// ReportActivity applies one activity report. Invalid reports are rejected
// before any mutation. The order of the steps matters: later steps read the
// output of earlier ones.
func (e *Engine) ReportActivity(p *Profile, a Activity, now time.Time) (*ActivitySummary, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	today, weekStart, err := e.window(p, now)
	if err != nil {
		return nil, err
	}

	rec := newRecorder(p.UserID, now)
	summary := &ActivitySummary{}

	// 1. stats
	p.Stats = p.Stats.apply(a)

	// 2. streak; an empty report is not a qualifying activity
	update := StreakUpdate{Outcome: StreakOutcomeUnchanged, Previous: p.Streak.Current}
	if !a.IsEmpty() {
		update = UpdateStreak(p, today)
	}
	summary.StreakOutcome = update.Outcome
	rec.streak(p, update)

	// 3. rollover before progress so a crossed boundary starts fresh
	e.ensureDaily(p, today)
	EnsureWeeklyChallenge(p, weekStart, e.sampler)

	// 4. achievements against the post-update stats and streak
	summary.NewAchievements = CheckAchievements(p, now)
	reward := 0
	for _, u := range summary.NewAchievements {
		reward += u.Reward
		rec.achievement(u)
	}

	// 5. quests and challenge, per non-zero activity type
	for _, t := range activityOrder {
		amount := a.Amount(t)
		if amount == 0 {
			continue
		}
		qp := AdvanceQuests(p, t, amount)
		summary.QuestResults.XPEarned += qp.XPEarned
		summary.QuestResults.Completed = append(summary.QuestResults.Completed, qp.Completed...)

		cp, err := AdvanceWeeklyChallenge(p, t, amount, weekStart)
		if shared.IsStaleWindow(err) {
			summary.StaleChallenge = true
			continue
		}
		if cp.Completed != nil {
			summary.ChallengeResult = cp
		}
	}
	for _, q := range summary.QuestResults.Completed {
		rec.quest(q)
	}
	if c := summary.ChallengeResult.Completed; c != nil {
		rec.challenge(*c)
	}
	reward += summary.QuestResults.XPEarned + summary.ChallengeResult.XPEarned

	// 6. one grant for everything earned
	summary.XPResult = LevelProgress(p)
	if reward > 0 {
		oldLevel := p.Level
		res, err := AddXP(p, reward, ActionActivity)
		if err != nil {
			return nil, err
		}
		summary.XPResult = res
		rec.xp(res, oldLevel)
	}

	p.touch(now)
	summary.Stats = p.Stats
	summary.Streak = p.Streak
	summary.Events = rec.events
	return summary, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DIRECT GRANTS
// ══════════════════════════════════════════════════════════════════════════════

// XPGrant is the result of a direct grant path.
type XPGrant struct {
	XPResult XPResult       `json:"xp_result"`
	Events   []shared.Event `json:"-"`
}

// GrantXP grants XP outside of stats and quests.
func (e *Engine) GrantXP(p *Profile, amount int, action string, now time.Time) (*XPGrant, error) {
	oldLevel := p.Level
	res, err := AddXP(p, amount, action)
	if err != nil {
		return nil, err
	}
	p.touch(now)

	rec := newRecorder(p.UserID, now)
	rec.xp(res, oldLevel)
	return &XPGrant{XPResult: res, Events: rec.events}, nil
}

// QuestCompletion is the result of CompleteQuest.
type QuestCompletion struct {
	Quest Quest `json:"quest"`

	// AlreadyCompleted means the call was a no-op.
	AlreadyCompleted bool           `json:"already_completed"`
	XPResult         XPResult       `json:"xp_result"`
	Events           []shared.Event `json:"-"`
}

// CompleteQuest marks a quest of today's set as completed and pays its reward.
// The daily and weekly rollover runs first. An unknown template ID is a
// validation error; a known ID outside today's set is not found. Completing
// twice is a no-op.
func (e *Engine) CompleteQuest(p *Profile, questID string, now time.Time) (*QuestCompletion, error) {
	if _, ok := LookupQuestTemplate(questID); !ok {
		return nil, shared.ErrUnknownQuest
	}
	today, weekStart, err := e.window(p, now)
	if err != nil {
		return nil, err
	}
	e.ensureDaily(p, today)
	EnsureWeeklyChallenge(p, weekStart, e.sampler)

	q, done, err := completeQuest(p, questID, today)
	if err != nil {
		return nil, err
	}
	out := &QuestCompletion{Quest: *q, AlreadyCompleted: !done, XPResult: LevelProgress(p)}
	if !done {
		return out, nil
	}

	rec := newRecorder(p.UserID, now)
	rec.quest(*q)
	oldLevel := p.Level
	res, err := AddXP(p, q.Reward, ActionQuestCompleted)
	if err != nil {
		return nil, err
	}
	rec.xp(res, oldLevel)
	p.touch(now)

	out.XPResult = res
	out.Events = rec.events
	return out, nil
}

// AchievementGrant is the result of UnlockAchievement.
type AchievementGrant struct {
	Achievement AchievementUnlock `json:"achievement"`

	// AlreadyUnlocked means the call was a no-op.
	AlreadyUnlocked bool           `json:"already_unlocked"`
	XPResult        XPResult       `json:"xp_result"`
	Events          []shared.Event `json:"-"`
}

// UnlockAchievement unlocks an achievement regardless of its threshold and pays
// its reward. Unknown IDs are validation errors; unlocking twice is a no-op.
func (e *Engine) UnlockAchievement(p *Profile, achievementID string, now time.Time) (*AchievementGrant, error) {
	def, ok := LookupAchievement(achievementID)
	if !ok {
		return nil, shared.ErrUnknownAchievement
	}
	if p.HasAchievement(def.ID) {
		out := &AchievementGrant{AlreadyUnlocked: true, XPResult: LevelProgress(p)}
		for _, a := range p.Achievements {
			if a.ID == def.ID {
				out.Achievement = AchievementUnlock{ID: def.ID, Name: def.Name, Reward: def.Reward, UnlockedAt: a.UnlockedAt}
			}
		}
		return out, nil
	}

	u := unlock(p, def, now)
	rec := newRecorder(p.UserID, now)
	rec.achievement(u)
	oldLevel := p.Level
	res, err := AddXP(p, def.Reward, ActionAchievementUnlock)
	if err != nil {
		return nil, err
	}
	rec.xp(res, oldLevel)
	p.touch(now)

	return &AchievementGrant{Achievement: u, XPResult: res, Events: rec.events}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// recorder collects domain events for one engine call.
type recorder struct {
	userID string
	at     time.Time
	events []shared.Event
}

func newRecorder(userID string, at time.Time) *recorder {
	return &recorder{userID: userID, at: at.UTC()}
}

func (r *recorder) base(t shared.EventType) shared.BaseEvent {
	return shared.NewBaseEvent(t, r.userID, r.at)
}

func (r *recorder) xp(res XPResult, oldLevel int) {
	r.events = append(r.events, shared.XPGainedEvent{
		BaseEvent: r.base(shared.EventXPGained),
		Amount:    res.Amount,
		Action:    res.Action,
		TotalXP:   res.TotalXP,
		Level:     res.NewLevel,
	})
	if res.LeveledUp {
		r.events = append(r.events, shared.LevelUpEvent{
			BaseEvent:    r.base(shared.EventLevelUp),
			OldLevel:     oldLevel,
			NewLevel:     res.NewLevel,
			LevelsGained: res.LevelsGained,
		})
	}
}

func (r *recorder) achievement(u AchievementUnlock) {
	r.events = append(r.events, shared.AchievementUnlockedEvent{
		BaseEvent:     r.base(shared.EventAchievementUnlocked),
		AchievementID: u.ID,
		Reward:        u.Reward,
	})
}

func (r *recorder) quest(q Quest) {
	r.events = append(r.events, shared.QuestCompletedEvent{
		BaseEvent: r.base(shared.EventQuestCompleted),
		QuestID:   q.ID,
		Day:       q.Day.String(),
		Reward:    q.Reward,
	})
}

func (r *recorder) challenge(c Challenge) {
	r.events = append(r.events, shared.ChallengeCompletedEvent{
		BaseEvent:   r.base(shared.EventChallengeCompleted),
		ChallengeID: c.ID,
		WeekStart:   c.WeekStart.String(),
		Reward:      c.Reward,
	})
}

func (r *recorder) streak(p *Profile, u StreakUpdate) {
	if !u.Changed() {
		return
	}
	if u.Outcome == StreakOutcomeReset && u.Previous > 0 {
		r.events = append(r.events, shared.StreakBrokenEvent{
			BaseEvent:      r.base(shared.EventStreakBroken),
			PreviousStreak: u.Previous,
			DaysMissed:     u.DaysSinceLast - 1,
		})
	}
	r.events = append(r.events, shared.StreakUpdatedEvent{
		BaseEvent: r.base(shared.EventStreakUpdated),
		Current:   p.Streak.Current,
		Longest:   p.Streak.Longest,
	})
}
