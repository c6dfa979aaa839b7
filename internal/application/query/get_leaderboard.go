package query

import (
	"context"
	"fmt"

	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/internal/domain/shared"
	"github.com/cardquest/progression/pkg/circuitbreaker"
	"github.com/cardquest/progression/pkg/logger"
	"github.com/cardquest/progression/pkg/tracing"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Top profiles by total XP, ties by creation order. Served from the Redis
// cache when it can answer, otherwise from the repository.
// ══════════════════════════════════════════════════════════════════════════════

// Leaderboard sources reported to the Recorder.
const (
	SourceCache      = "cache"
	SourceRepository = "repository"
)

// FeatureLeaderboardCache gates reads from the cache.
const FeatureLeaderboardCache = "leaderboard.cache"

// GetLeaderboardQuery contains the requested size. Zero means the default.
type GetLeaderboardQuery struct {
	Limit int
}

// LeaderboardView is the result of GetLeaderboardQuery.
type LeaderboardView struct {
	Entries []progression.LeaderboardEntry `json:"entries"`
	Limit   int                            `json:"limit"`
	Source  string                         `json:"source"`
}

// LeaderboardCache is the read side of the Redis leaderboard.
type LeaderboardCache interface {
	// Top returns shared.ErrLeaderboardNotReady when it cannot answer for limit.
	Top(ctx context.Context, limit int) ([]progression.LeaderboardEntry, error)
}

// Recorder receives read statistics. *metrics.Metrics implements it.
type Recorder interface {
	LeaderboardRead(source string)
}

// FeatureGate answers feature flag checks. *config.FeatureFlags implements it.
type FeatureGate interface {
	IsEnabled(feature, userID string) bool
}

// GetLeaderboardHandler handles GetLeaderboardQuery.
type GetLeaderboardHandler struct {
	repo     progression.Repository
	cache    LeaderboardCache
	breaker  *circuitbreaker.CircuitBreaker
	recorder Recorder
	features FeatureGate
	log      *logger.Logger
}

// GetLeaderboardOptions holds the optional collaborators.
type GetLeaderboardOptions struct {
	Cache LeaderboardCache

	// Breaker skips the cache after repeated failures. Nil always tries it.
	Breaker *circuitbreaker.CircuitBreaker

	Recorder Recorder
	Features FeatureGate
	Logger   *logger.Logger
}

// NewGetLeaderboardHandler creates a new GetLeaderboardHandler.
func NewGetLeaderboardHandler(repo progression.Repository, opts GetLeaderboardOptions) *GetLeaderboardHandler {
	if opts.Logger == nil {
		opts.Logger = logger.Default()
	}
	return &GetLeaderboardHandler{
		repo:     repo,
		cache:    opts.Cache,
		breaker:  opts.Breaker,
		recorder: opts.Recorder,
		features: opts.Features,
		log:      opts.Logger.With(logger.Component("query"), logger.Operation("get_leaderboard")),
	}
}

// Handle executes the query.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (_ *LeaderboardView, err error) {
	ctx, span := tracing.Start(ctx, "query.get_leaderboard")
	defer func() { tracing.End(span, err) }()

	limit, err := shared.NormalizeLimit(q.Limit)
	if err != nil {
		return nil, err
	}

	if h.useCache() {
		entries, err := h.readCache(ctx, limit)
		if err == nil {
			h.record(SourceCache)
			return &LeaderboardView{Entries: entries, Limit: limit, Source: SourceCache}, nil
		}
		if !shared.IsNotFound(err) && !circuitbreaker.IsRejected(err) {
			h.log.Warn("leaderboard cache read failed, using repository", logger.Err(err))
		}
	}

	entries, err := h.repo.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard: %w", err)
	}
	h.record(SourceRepository)
	return &LeaderboardView{Entries: entries, Limit: limit, Source: SourceRepository}, nil
}

func (h *GetLeaderboardHandler) readCache(ctx context.Context, limit int) (entries []progression.LeaderboardEntry, err error) {
	if h.breaker == nil {
		return h.cache.Top(ctx, limit)
	}
	err = h.breaker.Execute(ctx, func(ctx context.Context) error {
		entries, err = h.cache.Top(ctx, limit)
		return err
	})
	return entries, err
}

// CacheFailure classifies cache errors for a breaker: a cache that is
// merely not ready is healthy.
func CacheFailure(err error) bool {
	return err != nil && !shared.IsNotFound(err)
}

func (h *GetLeaderboardHandler) useCache() bool {
	if h.cache == nil {
		return false
	}
	return h.features == nil || h.features.IsEnabled(FeatureLeaderboardCache, "")
}

func (h *GetLeaderboardHandler) record(source string) {
	if h.recorder != nil {
		h.recorder.LeaderboardRead(source)
	}
}
