package command

import (
	"context"
	"fmt"
	"time"

	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE QUEST COMMAND
// Marks one of today's daily quests done without the matching activity.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteQuestCommand names the quest to complete.
type CompleteQuestCommand struct {
	UserID  string
	QuestID string
}

// CompleteQuestResult contains the stored profile and the completion.
type CompleteQuestResult struct {
	Profile    *progression.Profile
	Completion *progression.QuestCompletion
}

// CompleteQuestHandler handles CompleteQuestCommand.
type CompleteQuestHandler struct {
	writer *ProfileWriter
}

// NewCompleteQuestHandler creates a new CompleteQuestHandler.
func NewCompleteQuestHandler(writer *ProfileWriter) *CompleteQuestHandler {
	return &CompleteQuestHandler{writer: writer}
}

// Handle executes the command. Completing an already completed quest
// succeeds without granting anything.
func (h *CompleteQuestHandler) Handle(ctx context.Context, cmd CompleteQuestCommand) (*CompleteQuestResult, error) {
	if _, ok := progression.LookupQuestTemplate(cmd.QuestID); !ok {
		return nil, shared.ErrUnknownQuest
	}

	c, err := write(ctx, h.writer, "complete_quest", cmd.UserID,
		func(p *progression.Profile, now time.Time) (*progression.QuestCompletion, []shared.Event, error) {
			done, err := h.writer.engine.CompleteQuest(p, cmd.QuestID, now)
			if err != nil {
				return nil, nil, err
			}
			return done, done.Events, nil
		})
	if err != nil {
		return nil, fmt.Errorf("complete_quest: %w", err)
	}
	return &CompleteQuestResult{Profile: c.Profile, Completion: c.Result}, nil
}
