// Package query contains the progression read operations (CQRS queries).
package query

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cardquest/progression/internal/application/command"
	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/internal/domain/shared"
	"github.com/cardquest/progression/pkg/tracing"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROFILE QUERY
// Returns the current progression of a user. A missing profile is created and
// a stale one is rolled over to today's quests and this week's challenge;
// both are stored before returning.
// ══════════════════════════════════════════════════════════════════════════════

// GetProfileQuery identifies the profile.
type GetProfileQuery struct {
	UserID string

	// Timezone optionally sets the zone of a profile created by this read
	Timezone string
}

// ProfileView is the read model returned to clients.
type ProfileView struct {
	Profile        *progression.Profile `json:"profile"`
	XPForNextLevel int                  `json:"xp_for_next_level"`
	Created        bool                 `json:"created"`
}

// ProfileRefresher stores rollover and lazy creation. *command.ProfileWriter
// implements it.
type ProfileRefresher interface {
	RefreshProfile(ctx context.Context, userID, timezone string) (*command.RefreshProfileResult, error)
}

// DefaultLoadTimeout bounds one shared load of a profile.
const DefaultLoadTimeout = 10 * time.Second

// GetProfileHandler handles GetProfileQuery.
type GetProfileHandler struct {
	repo        progression.Repository
	engine      *progression.Engine
	refresher   ProfileRefresher
	clock       func() time.Time
	loadTimeout time.Duration
	group       singleflight.Group
}

// NewGetProfileHandler creates a new GetProfileHandler.
func NewGetProfileHandler(repo progression.Repository, engine *progression.Engine, refresher ProfileRefresher) *GetProfileHandler {
	return &GetProfileHandler{
		repo:        repo,
		engine:      engine,
		refresher:   refresher,
		clock:       time.Now,
		loadTimeout: DefaultLoadTimeout,
	}
}

// Handle executes the query. Concurrent reads of the same user share one
// load and at most one write. The shared load outlives a caller that gives
// up, so one cancelled request does not fail the others.
func (h *GetProfileHandler) Handle(ctx context.Context, q GetProfileQuery) (_ *ProfileView, err error) {
	ctx, span := tracing.Start(ctx, "query.get_profile", tracing.UserID(q.UserID))
	defer func() { tracing.End(span, err) }()

	userID, err := shared.NewUserID(q.UserID)
	if err != nil {
		return nil, err
	}
	id := userID.String()

	ch := h.group.DoChan(id, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.loadTimeout)
		defer cancel()
		return h.load(loadCtx, id, q.Timezone)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("get_profile: %w", ctx.Err())
	}
	if res.Err != nil {
		return nil, fmt.Errorf("get_profile: %w", res.Err)
	}

	view := res.Val.(*ProfileView)
	// Callers sharing a flight must not share a mutable profile.
	return &ProfileView{
		Profile:        view.Profile.Clone(),
		XPForNextLevel: view.XPForNextLevel,
		Created:        view.Created,
	}, nil
}

func (h *GetProfileHandler) load(ctx context.Context, userID, timezone string) (*ProfileView, error) {
	p, err := h.repo.Get(ctx, userID)
	switch {
	case err == nil:
		changed, err := h.engine.Refresh(p, h.clock())
		if err != nil {
			return nil, err
		}
		if !changed {
			return newProfileView(p, false), nil
		}
	case !shared.IsNotFound(err):
		return nil, err
	}

	res, err := h.refresher.RefreshProfile(ctx, userID, timezone)
	if err != nil {
		return nil, err
	}
	return newProfileView(res.Profile, res.Created), nil
}

func newProfileView(p *progression.Profile, created bool) *ProfileView {
	return &ProfileView{
		Profile:        p,
		XPForNextLevel: progression.LevelThreshold(p.Level),
		Created:        created,
	}
}
