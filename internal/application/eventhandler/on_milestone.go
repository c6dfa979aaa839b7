package eventhandler

import (
	"github.com/cardquest/progression/internal/domain/shared"
	"github.com/cardquest/progression/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON MILESTONE HANDLER
// Writes an audit line for level-ups, unlocks, completed quests and broken
// streaks. Routine XP and streak updates are not logged.
// ═══════════════════════════════════════════════════════════════════════════

// OnMilestoneHandler logs notable progression events.
type OnMilestoneHandler struct {
	log *logger.Logger
}

// NewOnMilestoneHandler creates the handler.
func NewOnMilestoneHandler(log *logger.Logger) *OnMilestoneHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnMilestoneHandler{log: log.With(logger.Component("eventhandler"), logger.Operation("on_milestone"))}
}

// Handle implements shared.EventHandler.
func (h *OnMilestoneHandler) Handle(event shared.Event) error {
	fields := []logger.Field{
		logger.UserID(event.AggregateID()),
		logger.String("event_type", string(event.EventType())),
	}

	switch e := event.(type) {
	case shared.LevelUpEvent:
		fields = append(fields, logger.ProfileLevel(e.NewLevel), logger.Int("levels_gained", e.LevelsGained))
	case shared.AchievementUnlockedEvent:
		fields = append(fields, logger.AchievementID(e.AchievementID), logger.XPAmount(e.Reward))
	case shared.QuestCompletedEvent:
		fields = append(fields, logger.QuestID(e.QuestID), logger.XPAmount(e.Reward))
	case shared.ChallengeCompletedEvent:
		fields = append(fields, logger.QuestID(e.ChallengeID), logger.XPAmount(e.Reward))
	case shared.StreakBrokenEvent:
		fields = append(fields, logger.Int("previous_streak", e.PreviousStreak), logger.Int("days_missed", e.DaysMissed))
	default:
		return nil
	}

	h.log.Info("progression milestone", fields...)
	return nil
}

// Register subscribes the handler to the milestone event types.
func (h *OnMilestoneHandler) Register(sub shared.EventSubscriber) error {
	for _, t := range []shared.EventType{
		shared.EventLevelUp,
		shared.EventAchievementUnlocked,
		shared.EventQuestCompleted,
		shared.EventChallengeCompleted,
		shared.EventStreakBroken,
	} {
		if err := sub.Subscribe(t, h.Handle); err != nil {
			return err
		}
	}
	return nil
}
