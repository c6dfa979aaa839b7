package progression

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository stores profiles, one record per user.
type Repository interface {
	// Get returns the profile for userID.
	// Returns shared.ErrProfileNotFound when there is none.
	Get(ctx context.Context, userID string) (*Profile, error)

	// Save stores p when the stored version equals p.Version (zero means
	// "must not exist yet") and bumps p.Version on success.
	// Returns shared.ErrProfileConflict on a version mismatch.
	Save(ctx context.Context, p *Profile) error

	// Leaderboard returns the top profiles by TotalXP descending, ties broken
	// by creation order.
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// LeaderboardEntry is one row of the leaderboard.
type LeaderboardEntry struct {
	Rank    int    `json:"rank"`
	UserID  string `json:"user_id"`
	Level   int    `json:"level"`
	TotalXP int    `json:"total_xp"`

	// Seq is the insertion order used to break ties.
	Seq int64 `json:"-"`
}

// Locker serializes writers of the same profile. Profiles are independent,
// so no lock spans more than one user.
type Locker interface {
	// Lock blocks until the profile lock is held or ctx is done.
	// The returned func releases the lock.
	Lock(ctx context.Context, userID string, ttl time.Duration) (unlock func(), err error)
}

// Rank assigns 1-based ranks in slice order.
func Rank(entries []LeaderboardEntry) []LeaderboardEntry {
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
