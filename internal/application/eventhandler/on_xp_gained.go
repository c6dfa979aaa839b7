// Package eventhandler contains subscribers for progression domain events.
package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/cardquest/progression/internal/domain/shared"
	"github.com/cardquest/progression/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON XP GAINED HANDLER
// Moves the user inside the cached leaderboard as soon as their total changes,
// and adds new profiles as soon as they are stored, so reads between two
// rebuilds stay current.
// ═══════════════════════════════════════════════════════════════════════════

// LeaderboardWriter is the write side of the leaderboard cache.
type LeaderboardWriter interface {
	Upsert(ctx context.Context, userID string, level, totalXP int, seq int64) error
}

// OnXPGainedHandler updates the leaderboard cache.
type OnXPGainedHandler struct {
	cache   LeaderboardWriter
	timeout time.Duration
	log     *logger.Logger
}

// NewOnXPGainedHandler creates the handler.
func NewOnXPGainedHandler(cache LeaderboardWriter, log *logger.Logger) *OnXPGainedHandler {
	if log == nil {
		log = logger.Default()
	}
	return &OnXPGainedHandler{
		cache:   cache,
		timeout: 2 * time.Second,
		log:     log.With(logger.Component("eventhandler"), logger.Operation("on_xp_gained")),
	}
}

// Handle implements shared.EventHandler. Events received from other
// instances arrive without their concrete type and are skipped; the instance
// that produced them already updated the shared cache.
func (h *OnXPGainedHandler) Handle(event shared.Event) error {
	var (
		level, totalXP int
		seq            int64
	)
	switch e := event.(type) {
	case shared.XPGainedEvent:
		level, totalXP, seq = e.Level, e.TotalXP, e.Seq
	case shared.ProfileCreatedEvent:
		level, totalXP, seq = e.Level, e.TotalXP, e.Seq
	default:
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	userID := event.AggregateID()
	if err := h.cache.Upsert(ctx, userID, level, totalXP, seq); err != nil {
		return fmt.Errorf("on_xp_gained: %w", err)
	}
	h.log.Debug("leaderboard entry updated", logger.UserID(userID), logger.Int("total_xp", totalXP))
	return nil
}

// Register subscribes the handler.
func (h *OnXPGainedHandler) Register(sub shared.EventSubscriber) error {
	if err := sub.Subscribe(shared.EventProfileCreated, h.Handle); err != nil {
		return err
	}
	return sub.Subscribe(shared.EventXPGained, h.Handle)
}
