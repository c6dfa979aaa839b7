package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRANT XP COMMAND
// Direct XP grant outside the activity flow (bonuses, events, corrections).
// Stats, streak, quests and achievements are not touched.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// DefaultGrantAction labels grants that arrive without one.
	DefaultGrantAction = "grant"

	// MaxGrantAmount caps a single direct grant.
	MaxGrantAmount = 1_000_000
)

// GrantXPCommand contains a direct XP grant.
type GrantXPCommand struct {
	UserID string
	Amount int

	// Action is a free-form label carried into the result and events
	Action string
}

// Validate validates the command.
func (c GrantXPCommand) Validate() error {
	if c.Amount <= 0 {
		return shared.ErrNonPositiveXP
	}
	if c.Amount > MaxGrantAmount {
		return shared.ErrGrantTooLarge
	}
	if len(c.Action) > 64 {
		return shared.Validationf("progression", "GrantXP", "action label is longer than 64 characters")
	}
	return nil
}

// GrantXPResult contains the stored profile and the grant outcome.
type GrantXPResult struct {
	Profile  *progression.Profile
	XPResult progression.XPResult
}

// GrantXPHandler handles GrantXPCommand.
type GrantXPHandler struct {
	writer *ProfileWriter
}

// NewGrantXPHandler creates a new GrantXPHandler.
func NewGrantXPHandler(writer *ProfileWriter) *GrantXPHandler {
	return &GrantXPHandler{writer: writer}
}

// Handle executes the grant.
func (h *GrantXPHandler) Handle(ctx context.Context, cmd GrantXPCommand) (*GrantXPResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	action := strings.TrimSpace(cmd.Action)
	if action == "" {
		action = DefaultGrantAction
	}

	c, err := write(ctx, h.writer, "grant_xp", cmd.UserID,
		func(p *progression.Profile, now time.Time) (progression.XPResult, []shared.Event, error) {
			grant, err := h.writer.engine.GrantXP(p, cmd.Amount, action, now)
			if err != nil {
				return progression.XPResult{}, nil, err
			}
			return grant.XPResult, grant.Events, nil
		})
	if err != nil {
		return nil, fmt.Errorf("grant_xp: %w", err)
	}
	return &GrantXPResult{Profile: c.Profile, XPResult: c.Result}, nil
}
