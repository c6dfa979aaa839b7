package command

import (
	"context"
	"fmt"
	"time"

	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK ACHIEVEMENT COMMAND (admin)
// Grants a catalog achievement regardless of its metric.
// ══════════════════════════════════════════════════════════════════════════════

// UnlockAchievementCommand names the achievement to grant.
type UnlockAchievementCommand struct {
	UserID        string
	AchievementID string
}

// UnlockAchievementResult contains the stored profile and the grant.
type UnlockAchievementResult struct {
	Profile *progression.Profile
	Grant   *progression.AchievementGrant
}

// UnlockAchievementHandler handles UnlockAchievementCommand.
type UnlockAchievementHandler struct {
	writer *ProfileWriter
}

// NewUnlockAchievementHandler creates a new UnlockAchievementHandler.
func NewUnlockAchievementHandler(writer *ProfileWriter) *UnlockAchievementHandler {
	return &UnlockAchievementHandler{writer: writer}
}

// Handle executes the command. Unlocking twice is a no-op.
func (h *UnlockAchievementHandler) Handle(ctx context.Context, cmd UnlockAchievementCommand) (*UnlockAchievementResult, error) {
	if _, ok := progression.LookupAchievement(cmd.AchievementID); !ok {
		return nil, shared.ErrUnknownAchievement
	}

	c, err := write(ctx, h.writer, "unlock_achievement", cmd.UserID,
		func(p *progression.Profile, now time.Time) (*progression.AchievementGrant, []shared.Event, error) {
			grant, err := h.writer.engine.UnlockAchievement(p, cmd.AchievementID, now)
			if err != nil {
				return nil, nil, err
			}
			return grant, grant.Events, nil
		})
	if err != nil {
		return nil, fmt.Errorf("unlock_achievement: %w", err)
	}
	return &UnlockAchievementResult{Profile: c.Profile, Grant: c.Result}, nil
}
