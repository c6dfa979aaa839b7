package command

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/internal/domain/shared"
	"github.com/cardquest/progression/internal/infrastructure/persistence/memory"
	"github.com/cardquest/progression/pkg/logger"
	"github.com/cardquest/progression/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEST DOUBLES
// ══════════════════════════════════════════════════════════════════════════════

var testNow = time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)

type capturePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (c *capturePublisher) Publish(e shared.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *capturePublisher) types() []shared.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]shared.EventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.EventType())
	}
	return out
}

type countingRecorder struct {
	mu        sync.Mutex
	commands  map[string]int
	failures  map[string]int
	conflicts int
	created   int
	events    int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{commands: map[string]int{}, failures: map[string]int{}}
}

func (r *countingRecorder) ObserveCommand(command string, _ time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[command]++
	if err != nil {
		r.failures[command]++
	}
}

func (r *countingRecorder) ConflictRetry(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts++
}

func (r *countingRecorder) ProfileCreated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
}

func (r *countingRecorder) RecordEvents(events []shared.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events += len(events)
}

type staticGate map[string]bool

func (g staticGate) IsEnabled(feature, _ string) bool {
	enabled, ok := g[feature]
	return !ok || enabled
}

// conflictingRepo fails the first n saves with a version conflict.
type conflictingRepo struct {
	*memory.ProfileRepository
	mu        sync.Mutex
	conflicts int
}

func (r *conflictingRepo) Save(ctx context.Context, p *progression.Profile) error {
	r.mu.Lock()
	if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return shared.ErrProfileConflict
	}
	r.mu.Unlock()
	return r.ProfileRepository.Save(ctx, p)
}

type fixture struct {
	repo      *memory.ProfileRepository
	writer    *ProfileWriter
	publisher *capturePublisher
	recorder  *countingRecorder
	logs      *bytes.Buffer
	now       time.Time
}

func newFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		repo:      memory.NewProfileRepository(),
		publisher: &capturePublisher{},
		recorder:  newCountingRecorder(),
		logs:      &bytes.Buffer{},
		now:       testNow,
	}
	opts := Options{
		Locker:    memory.NewLocker(),
		Publisher: f.publisher,
		Recorder:  f.recorder,
		Logger:    logger.New(logger.Options{Output: f.logs, Level: logger.LevelDebug}),
		Clock:     func() time.Time { return f.now },
	}
	for _, m := range mutate {
		m(&opts)
	}
	// Daily picks: pass_one_test, study_10, win_game.
	engine := progression.NewEngine(timeutil.NewCalendar(time.UTC), progression.FixedSampler{2, 0, 4})
	f.writer = NewProfileWriter(f.repo, engine, opts)
	return f
}

// ══════════════════════════════════════════════════════════════════════════════
// REPORT ACTIVITY
// ══════════════════════════════════════════════════════════════════════════════

func TestReportActivity_CreatesAndStoresProfile(t *testing.T) {
	f := newFixture(t)
	h := NewReportActivityHandler(f.writer)

	res, err := h.Handle(context.Background(), ReportActivityCommand{
		UserID:   "u1",
		Activity: progression.Activity{TestsPassed: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Profile.Level)
	assert.Equal(t, 100, res.Profile.TotalXP)
	assert.EqualValues(t, 1, res.Profile.Version)
	assert.Equal(t, progression.StreakOutcomeStarted, res.Summary.StreakOutcome)

	stored, err := f.repo.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, res.Profile, stored)

	assert.Equal(t, []shared.EventType{
		shared.EventProfileCreated,
		shared.EventStreakUpdated,
		shared.EventQuestCompleted,
		shared.EventXPGained,
		shared.EventLevelUp,
	}, f.publisher.types())
	assert.Equal(t, 1, f.recorder.created)
	assert.Equal(t, 5, f.recorder.events)
	assert.Equal(t, 1, f.recorder.commands["report_activity"])
}

func TestReportActivity_RejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	h := NewReportActivityHandler(f.writer)

	_, err := h.Handle(context.Background(), ReportActivityCommand{UserID: "u1", Activity: progression.Activity{CardsStudied: -1}})
	assert.ErrorIs(t, err, shared.ErrNegativeActivity)

	_, err = h.Handle(context.Background(), ReportActivityCommand{UserID: "u1", Activity: progression.Activity{GamesWon: progression.MaxActivityCount + 1}})
	assert.ErrorIs(t, err, shared.ErrActivityTooLarge)
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), ReportActivityCommand{UserID: "  ", Activity: progression.Activity{CardsStudied: 1}})
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)

	_, err = h.Handle(context.Background(), ReportActivityCommand{UserID: "u1", Activity: progression.Activity{CardsStudied: 1}, Timezone: "Mars/Olympus"})
	assert.Error(t, err)

	assert.Zero(t, f.repo.Len())
	assert.Empty(t, f.publisher.types())
}

func TestReportActivity_SkewWarningIsFlagged(t *testing.T) {
	f := newFixture(t)
	h := NewReportActivityHandler(f.writer)
	ctx := context.Background()

	_, err := h.Handle(ctx, ReportActivityCommand{UserID: "u1", Activity: progression.Activity{CardsStudied: 1}})
	require.NoError(t, err)

	f.now = testNow.AddDate(0, 0, -2)
	res, err := h.Handle(ctx, ReportActivityCommand{UserID: "u1", Activity: progression.Activity{CardsStudied: 1}})
	require.NoError(t, err)
	assert.Equal(t, progression.StreakOutcomeSkewed, res.Summary.StreakOutcome)
	assert.Equal(t, 1, res.Profile.Streak.Current)
	assert.Contains(t, f.logs.String(), "streak left unchanged")
}

func TestReportActivity_ConcurrentReportsLoseNothing(t *testing.T) {
	f := newFixture(t)
	h := NewReportActivityHandler(f.writer)
	ctx := context.Background()

	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Handle(ctx, ReportActivityCommand{UserID: "u1", Activity: progression.Activity{CardsStudied: 2}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := f.repo.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2*writers, p.Stats.CardsStudied)
	assert.EqualValues(t, writers, p.Version)
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE CYCLE
// ══════════════════════════════════════════════════════════════════════════════

func TestWrite_RetriesConflictsWithoutLocker(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Locker = nil })
	repo := &conflictingRepo{ProfileRepository: f.repo, conflicts: 2}
	writer := NewProfileWriter(repo, f.writer.Engine(), f.writer.opts)

	res, err := NewGrantXPHandler(writer).Handle(context.Background(), GrantXPCommand{UserID: "u1", Amount: 40})
	require.NoError(t, err)
	assert.Equal(t, 40, res.Profile.TotalXP)
	assert.Equal(t, 2, f.recorder.conflicts)
	assert.Equal(t, 1, f.recorder.created)
}

func TestWrite_GivesUpAfterMaxConflicts(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.MaxConflictRetries = 2 })
	repo := &conflictingRepo{ProfileRepository: f.repo, conflicts: 10}
	writer := NewProfileWriter(repo, f.writer.Engine(), f.writer.opts)

	_, err := NewGrantXPHandler(writer).Handle(context.Background(), GrantXPCommand{UserID: "u1", Amount: 40})
	require.Error(t, err)
	assert.True(t, shared.IsConflict(err))
	assert.Empty(t, f.publisher.types())
	assert.Equal(t, 1, f.recorder.failures["grant_xp"])
}

func TestWrite_PublishingIsFlagged(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Features = staticGate{FeatureEventsPublish: false} })

	_, err := NewGrantXPHandler(f.writer).Handle(context.Background(), GrantXPCommand{UserID: "u1", Amount: 40})
	require.NoError(t, err)
	assert.Empty(t, f.publisher.types())
	assert.Equal(t, 2, f.recorder.events)
}

func TestWrite_InvalidProfileIsNotStored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := write(ctx, f.writer, "corrupt", "u1",
		func(p *progression.Profile, _ time.Time) (struct{}, []shared.Event, error) {
			p.CurrentXP = -1
			return struct{}{}, nil, nil
		})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Zero(t, f.repo.Len())
	assert.Zero(t, f.recorder.conflicts)
	assert.Empty(t, f.publisher.types())
	assert.Contains(t, f.logs.String(), "computed profile is invalid")
}

func TestWrite_EventsCarryInsertionOrder(t *testing.T) {
	f := newFixture(t)
	h := NewGrantXPHandler(f.writer)
	ctx := context.Background()

	for _, id := range []string{"alice", "bob", "alice"} {
		_, err := h.Handle(ctx, GrantXPCommand{UserID: id, Amount: 10})
		require.NoError(t, err)
	}

	var created, gained []string
	seqs := map[string][]int64{}
	for _, e := range f.publisher.events {
		switch ev := e.(type) {
		case shared.ProfileCreatedEvent:
			created = append(created, ev.AggregateID())
			seqs[ev.AggregateID()] = append(seqs[ev.AggregateID()], ev.Seq)
		case shared.XPGainedEvent:
			gained = append(gained, ev.AggregateID())
			seqs[ev.AggregateID()] = append(seqs[ev.AggregateID()], ev.Seq)
		}
	}
	assert.Equal(t, []string{"alice", "bob"}, created)
	assert.Equal(t, []string{"alice", "bob", "alice"}, gained)
	assert.Equal(t, []int64{1, 1, 1}, seqs["alice"])
	assert.Equal(t, []int64{2, 2}, seqs["bob"])
}

// ══════════════════════════════════════════════════════════════════════════════
// GRANT XP
// ══════════════════════════════════════════════════════════════════════════════

func TestGrantXP(t *testing.T) {
	f := newFixture(t)
	h := NewGrantXPHandler(f.writer)
	ctx := context.Background()

	res, err := h.Handle(ctx, GrantXPCommand{UserID: "u1", Amount: 250, Action: "  "})
	require.NoError(t, err)
	assert.Equal(t, DefaultGrantAction, res.XPResult.Action)
	assert.Equal(t, 3, res.XPResult.NewLevel)
	assert.Equal(t, 2, res.XPResult.LevelsGained)
	assert.Zero(t, res.Profile.Stats.CardsStudied)
	assert.Zero(t, res.Profile.Streak.Current)

	_, err = h.Handle(ctx, GrantXPCommand{UserID: "u1", Amount: 0})
	assert.ErrorIs(t, err, shared.ErrNonPositiveXP)

	_, err = h.Handle(ctx, GrantXPCommand{UserID: "u1", Amount: MaxGrantAmount + 1})
	assert.ErrorIs(t, err, shared.ErrGrantTooLarge)
	assert.True(t, shared.IsValidation(err))

	res, err = h.Handle(ctx, GrantXPCommand{UserID: "u1", Amount: MaxGrantAmount})
	require.NoError(t, err)
	assert.Equal(t, 250+MaxGrantAmount, res.Profile.TotalXP)

	_, err = h.Handle(ctx, GrantXPCommand{UserID: "u1", Amount: 1, Action: string(make([]byte, 65))})
	assert.True(t, shared.IsValidation(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE QUEST / UNLOCK ACHIEVEMENT
// ══════════════════════════════════════════════════════════════════════════════

func TestCompleteQuest(t *testing.T) {
	f := newFixture(t)
	h := NewCompleteQuestHandler(f.writer)
	ctx := context.Background()

	_, err := h.Handle(ctx, CompleteQuestCommand{UserID: "u1", QuestID: "nope"})
	assert.ErrorIs(t, err, shared.ErrUnknownQuest)
	assert.Zero(t, f.repo.Len())

	res, err := h.Handle(ctx, CompleteQuestCommand{UserID: "u1", QuestID: "win_game"})
	require.NoError(t, err)
	assert.False(t, res.Completion.AlreadyCompleted)
	assert.Equal(t, 75, res.Profile.TotalXP)

	again, err := h.Handle(ctx, CompleteQuestCommand{UserID: "u1", QuestID: "win_game"})
	require.NoError(t, err)
	assert.True(t, again.Completion.AlreadyCompleted)
	assert.Equal(t, 75, again.Profile.TotalXP)

	// A pool quest that is not in today's set.
	_, err = h.Handle(ctx, CompleteQuestCommand{UserID: "u1", QuestID: "win_3"})
	assert.ErrorIs(t, err, shared.ErrQuestNotActive)
}

func TestUnlockAchievement(t *testing.T) {
	f := newFixture(t)
	h := NewUnlockAchievementHandler(f.writer)
	ctx := context.Background()

	_, err := h.Handle(ctx, UnlockAchievementCommand{UserID: "u1", AchievementID: "nope"})
	assert.ErrorIs(t, err, shared.ErrUnknownAchievement)

	res, err := h.Handle(ctx, UnlockAchievementCommand{UserID: "u1", AchievementID: "streak_week"})
	require.NoError(t, err)
	assert.True(t, res.Profile.HasAchievement("streak_week"))
	assert.Equal(t, 100, res.Profile.TotalXP)

	again, err := h.Handle(ctx, UnlockAchievementCommand{UserID: "u1", AchievementID: "streak_week"})
	require.NoError(t, err)
	assert.Equal(t, 100, again.Profile.TotalXP)
	assert.Len(t, again.Profile.Achievements, 1)
}

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH
// ══════════════════════════════════════════════════════════════════════════════

func TestRefreshProfile_CreatesThenRollsOver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.writer.RefreshProfile(ctx, "u1", "Europe/Berlin")
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "Europe/Berlin", res.Profile.Timezone)
	require.Len(t, res.Profile.DailyQuests, progression.DailyQuestCount)
	firstDay := res.Profile.DailyQuests[0].Day

	f.now = testNow.AddDate(0, 0, 1)
	res, err = f.writer.RefreshProfile(ctx, "u1", "")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "Europe/Berlin", res.Profile.Timezone)
	assert.NotEqual(t, firstDay, res.Profile.DailyQuests[0].Day)
	assert.EqualValues(t, 2, res.Profile.Version)
}
