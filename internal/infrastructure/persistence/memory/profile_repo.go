// Package memory provides in-process implementations of the progression
// storage contracts, for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/internal/domain/shared"
)

type record struct {
	seq     int64
	profile *progression.Profile
}

// ProfileRepository stores profiles in a map (dev/test use).
type ProfileRepository struct {
	mu      sync.RWMutex
	records map[string]*record
	nextSeq int64
}

// NewProfileRepository creates an empty repository.
func NewProfileRepository() *ProfileRepository {
	return &ProfileRepository{
		records: make(map[string]*record),
		nextSeq: 1,
	}
}

// Get implements progression.Repository.
func (r *ProfileRepository) Get(ctx context.Context, userID string) (*progression.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[userID]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	return rec.profile.Clone(), nil
}

// Save implements progression.Repository.
func (r *ProfileRepository) Save(ctx context.Context, p *progression.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.records[p.UserID]
	switch {
	case !exists && p.Version != 0:
		return shared.ErrProfileConflict
	case exists && rec.profile.Version != p.Version:
		return shared.ErrProfileConflict
	}

	p.Version++
	if !exists {
		p.Seq = r.nextSeq
		r.records[p.UserID] = &record{seq: r.nextSeq, profile: p.Clone()}
		r.nextSeq++
		return nil
	}
	p.Seq = rec.seq
	rec.profile = p.Clone()
	return nil
}

// Leaderboard implements progression.Repository.
func (r *ProfileRepository) Leaderboard(ctx context.Context, limit int) ([]progression.LeaderboardEntry, error) {
	r.mu.RLock()
	entries := make([]progression.LeaderboardEntry, 0, len(r.records))
	for _, rec := range r.records {
		entries = append(entries, progression.LeaderboardEntry{
			UserID:  rec.profile.UserID,
			Level:   rec.profile.Level,
			TotalXP: rec.profile.TotalXP,
			Seq:     rec.seq,
		})
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalXP != entries[j].TotalXP {
			return entries[i].TotalXP > entries[j].TotalXP
		}
		return entries[i].Seq < entries[j].Seq
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return progression.Rank(entries), nil
}

// Ping implements progression.Repository.
func (r *ProfileRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored profiles.
func (r *ProfileRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
