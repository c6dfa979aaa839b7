package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache keeps the hot part of the leaderboard in Redis.
//
// Layout:
//   - Sorted Set "progression:leaderboard:xp" stores userID -> packed score
//   - Hash "progression:leaderboard:info" stores userID -> entryInfo JSON
//   - String "progression:leaderboard:meta" stores LeaderboardMeta; its absence
//     means the cache was never seeded or has expired
//
// The packed score orders by total XP and then by insertion sequence, so a
// reverse range returns the same order as the repository query.
type LeaderboardCache struct {
	cache *Cache
	ttl   time.Duration
}

const (
	keyLeaderboardXP   = PrefixLeaderboard + "xp"
	keyLeaderboardInfo = PrefixLeaderboard + "info"
	keyLeaderboardMeta = PrefixLeaderboard + "meta"

	// seqSpace bounds the sequence numbers that still tie-break exactly.
	// Later sequences share the last slot and fall back to member order.
	seqSpace = 1 << 21
)

// LeaderboardMeta describes the last rebuild.
type LeaderboardMeta struct {
	RebuiltAt time.Time `json:"rebuilt_at"`
	Size      int       `json:"size"`

	// Complete is true when the rebuild saw every profile, so any limit can
	// be served from the cache.
	Complete bool `json:"complete"`
}

type entryInfo struct {
	Level int   `json:"level"`
	Seq   int64 `json:"seq"`
}

// NewLeaderboardCache creates a LeaderboardCache whose keys expire after ttl.
func NewLeaderboardCache(cache *Cache, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{cache: cache, ttl: ttl}
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Rebuild replaces the cache with entries, which must already be ranked.
// complete reports whether entries covers every stored profile.
func (l *LeaderboardCache) Rebuild(ctx context.Context, entries []progression.LeaderboardEntry, complete bool) error {
	pipe := l.cache.Client().TxPipeline()
	pipe.Del(ctx, keyLeaderboardXP, keyLeaderboardInfo)

	if len(entries) > 0 {
		members := make([]redis.Z, 0, len(entries))
		info := make(map[string]any, len(entries))
		for _, e := range entries {
			members = append(members, redis.Z{Score: packScore(e.TotalXP, e.Seq), Member: e.UserID})
			data, err := json.Marshal(entryInfo{Level: e.Level, Seq: e.Seq})
			if err != nil {
				return fmt.Errorf("failed to marshal entry: %w", err)
			}
			info[e.UserID] = data
		}
		pipe.ZAdd(ctx, keyLeaderboardXP, members...)
		pipe.HSet(ctx, keyLeaderboardInfo, info)
		if l.ttl > 0 {
			pipe.Expire(ctx, keyLeaderboardXP, l.ttl)
			pipe.Expire(ctx, keyLeaderboardInfo, l.ttl)
		}
	}

	meta, err := json.Marshal(LeaderboardMeta{
		RebuiltAt: time.Now().UTC(),
		Size:      len(entries),
		Complete:  complete,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal meta: %w", err)
	}
	pipe.Set(ctx, keyLeaderboardMeta, meta, l.ttl)

	_, err = pipe.Exec(ctx)
	return err
}

// Upsert moves one profile to its new total. seq is the profile's storage
// insertion order; a non-positive seq keeps the one already cached.
//
// A member the last rebuild did not see marks the cache incomplete, so limits
// beyond the rebuilt size are served by the repository until the next rebuild.
func (l *LeaderboardCache) Upsert(ctx context.Context, userID string, level, totalXP int, seq int64) error {
	if userID == "" {
		return ErrCacheKeyEmpty
	}

	client := l.cache.Client()
	info := entryInfo{Level: level, Seq: seq}
	known := true

	raw, err := client.HGet(ctx, keyLeaderboardInfo, userID).Bytes()
	switch {
	case err == nil:
		var prev entryInfo
		if info.Seq <= 0 && json.Unmarshal(raw, &prev) == nil {
			info.Seq = prev.Seq
		}
	case errors.Is(err, redis.Nil):
		known = false
	default:
		return err
	}
	if info.Seq <= 0 {
		info.Seq = seqSpace - 1
	}

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	pipe := client.Pipeline()
	pipe.ZAdd(ctx, keyLeaderboardXP, redis.Z{Score: packScore(totalXP, info.Seq), Member: userID})
	pipe.HSet(ctx, keyLeaderboardInfo, userID, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	if !known {
		return l.markIncomplete(ctx)
	}
	return nil
}

// markIncomplete clears the Complete flag of the current meta, keeping its TTL.
// A missing meta is left alone: the cache is not served without one.
func (l *LeaderboardCache) markIncomplete(ctx context.Context) error {
	meta, err := l.Meta(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrLeaderboardNotReady) {
			return nil
		}
		return err
	}
	if !meta.Complete {
		return nil
	}

	meta.Complete = false
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal meta: %w", err)
	}
	return l.cache.Client().Set(ctx, keyLeaderboardMeta, data, redis.KeepTTL).Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// READ OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Meta returns the metadata of the last rebuild.
// Returns shared.ErrLeaderboardNotReady when the cache is not seeded.
func (l *LeaderboardCache) Meta(ctx context.Context) (*LeaderboardMeta, error) {
	var meta LeaderboardMeta
	if err := l.cache.Get(ctx, keyLeaderboardMeta, &meta); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.ErrLeaderboardNotReady
		}
		return nil, err
	}
	return &meta, nil
}

// Top returns the first limit entries.
// Returns shared.ErrLeaderboardNotReady when the cache cannot answer for limit.
func (l *LeaderboardCache) Top(ctx context.Context, limit int) ([]progression.LeaderboardEntry, error) {
	meta, err := l.Meta(ctx)
	if err != nil {
		return nil, err
	}
	if !meta.Complete && limit > meta.Size {
		return nil, shared.ErrLeaderboardNotReady
	}

	client := l.cache.Client()
	scored, err := client.ZRevRangeWithScores(ctx, keyLeaderboardXP, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	if len(scored) == 0 {
		return []progression.LeaderboardEntry{}, nil
	}

	ids := make([]string, len(scored))
	for i, z := range scored {
		ids[i] = z.Member.(string)
	}
	infos, err := client.HMGet(ctx, keyLeaderboardInfo, ids...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]progression.LeaderboardEntry, len(scored))
	for i, z := range scored {
		totalXP, seq := unpackScore(z.Score)
		entries[i] = progression.LeaderboardEntry{UserID: ids[i], TotalXP: totalXP, Seq: seq}
		if s, ok := infos[i].(string); ok {
			var info entryInfo
			if json.Unmarshal([]byte(s), &info) == nil {
				entries[i].Level = info.Level
				entries[i].Seq = info.Seq
			}
		}
	}
	return progression.Rank(entries), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SCORE PACKING
// ══════════════════════════════════════════════════════════════════════════════

func packScore(totalXP int, seq int64) float64 {
	seq = min(max(seq, 0), seqSpace-1)
	return float64(totalXP)*seqSpace + float64(seqSpace-1-seq)
}

func unpackScore(score float64) (totalXP int, seq int64) {
	totalXP = int(math.Floor(score / seqSpace))
	seq = seqSpace - 1 - int64(score-float64(totalXP)*seqSpace)
	return totalXP, seq
}
