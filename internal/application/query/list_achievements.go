package query

import (
	"context"
	"fmt"
	"time"

	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/internal/domain/shared"
	"github.com/cardquest/progression/pkg/tracing"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST ACHIEVEMENTS QUERY
// The whole catalog with unlock state and progress. Never writes: a user
// without a profile sees every achievement locked at zero progress.
// ══════════════════════════════════════════════════════════════════════════════

// ListAchievementsQuery identifies the profile.
type ListAchievementsQuery struct {
	UserID string
}

// AchievementsView is the result of ListAchievementsQuery.
type AchievementsView struct {
	UserID       string                          `json:"user_id"`
	Achievements []progression.AchievementStatus `json:"achievements"`
	Unlocked     int                             `json:"unlocked"`
	Total        int                             `json:"total"`
}

// ListAchievementsHandler handles ListAchievementsQuery.
type ListAchievementsHandler struct {
	repo progression.Repository
}

// NewListAchievementsHandler creates a new ListAchievementsHandler.
func NewListAchievementsHandler(repo progression.Repository) *ListAchievementsHandler {
	return &ListAchievementsHandler{repo: repo}
}

// Handle executes the query.
func (h *ListAchievementsHandler) Handle(ctx context.Context, q ListAchievementsQuery) (_ *AchievementsView, err error) {
	ctx, span := tracing.Start(ctx, "query.list_achievements", tracing.UserID(q.UserID))
	defer func() { tracing.End(span, err) }()

	userID, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, err
	}

	p, err := h.repo.Get(ctx, userID.String())
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, fmt.Errorf("list_achievements: %w", err)
		}
		if p, err = progression.NewProfile(userID.String(), time.Now()); err != nil {
			return nil, err
		}
	}

	statuses := progression.AchievementStatuses(p)
	view := &AchievementsView{
		UserID:       p.UserID,
		Achievements: statuses,
		Total:        len(statuses),
	}
	for _, s := range statuses {
		if s.Unlocked {
			view.Unlocked++
		}
	}
	return view, nil
}
