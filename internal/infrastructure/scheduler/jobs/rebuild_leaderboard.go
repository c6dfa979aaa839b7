// Package jobs contains the scheduled jobs of the progression worker.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardSource reads the authoritative ranking.
type LeaderboardSource interface {
	Leaderboard(ctx context.Context, limit int) ([]progression.LeaderboardEntry, error)
}

// LeaderboardCache replaces the cached ranking. complete reports that the
// entries cover every profile, so reads beyond len(entries) may be served.
type LeaderboardCache interface {
	Rebuild(ctx context.Context, entries []progression.LeaderboardEntry, complete bool) error
}

// RebuildStats describes the last successful rebuild.
type RebuildStats struct {
	Entries  int
	Complete bool
	At       time.Time
	Duration time.Duration
}

// RebuildLeaderboardJob copies the top of the repository ranking into the
// cache, repairing any drift left by missed incremental updates.
type RebuildLeaderboardJob struct {
	source LeaderboardSource
	cache  LeaderboardCache
	size   int
	log    *logger.Logger
	now    func() time.Time

	last atomic.Pointer[RebuildStats]
}

// NewRebuildLeaderboardJob creates the job. size is how many entries are
// kept in the cache.
func NewRebuildLeaderboardJob(source LeaderboardSource, cache LeaderboardCache, size int, log *logger.Logger) *RebuildLeaderboardJob {
	if size <= 0 {
		size = 1000
	}
	if log == nil {
		log = logger.Default()
	}
	return &RebuildLeaderboardJob{
		source: source,
		cache:  cache,
		size:   size,
		log:    log.With(logger.Component("rebuild_leaderboard")),
		now:    time.Now,
	}
}

// Name implements scheduler.Job.
func (j *RebuildLeaderboardJob) Name() string { return "rebuild_leaderboard" }

// Description implements scheduler.Job.
func (j *RebuildLeaderboardJob) Description() string {
	return fmt.Sprintf("Rebuilds the cached top %d leaderboard from storage", j.size)
}

// Run implements scheduler.Job.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	started := j.now()

	entries, err := j.source.Leaderboard(ctx, j.size)
	if err != nil {
		return fmt.Errorf("load leaderboard: %w", err)
	}

	complete := len(entries) < j.size
	if err := j.cache.Rebuild(ctx, entries, complete); err != nil {
		return fmt.Errorf("rebuild cache: %w", err)
	}

	stats := &RebuildStats{
		Entries:  len(entries),
		Complete: complete,
		At:       started,
		Duration: j.now().Sub(started),
	}
	j.last.Store(stats)

	j.log.Debug("leaderboard cache rebuilt",
		logger.Int("entries", stats.Entries),
		logger.Bool("complete", complete),
		logger.Duration("took", stats.Duration),
	)
	return nil
}

// LastStats returns the stats of the last successful run, or nil.
func (j *RebuildLeaderboardJob) LastStats() *RebuildStats {
	return j.last.Load()
}
