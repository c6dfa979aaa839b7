package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardquest/progression/internal/domain/progression"
	"github.com/cardquest/progression/internal/domain/shared"
)

func TestPackScore_OrdersByXPThenSeq(t *testing.T) {
	assert.Greater(t, packScore(101, 500), packScore(100, 1))
	assert.Greater(t, packScore(100, 1), packScore(100, 2))
	assert.Greater(t, packScore(0, 0), packScore(0, seqSpace-1))
}

func TestUnpackScore(t *testing.T) {
	cases := []struct {
		xp  int
		seq int64
	}{
		{0, 0},
		{5000, 1},
		{123456, 77},
		{1_000_000, seqSpace - 1},
	}
	for _, tc := range cases {
		xp, seq := unpackScore(packScore(tc.xp, tc.seq))
		assert.Equal(t, tc.xp, xp)
		assert.Equal(t, tc.seq, seq)
	}

	// Out-of-range sequences clamp to the last slot.
	_, seq := unpackScore(packScore(10, seqSpace+42))
	assert.EqualValues(t, seqSpace-1, seq)
}

func TestLockKey(t *testing.T) {
	assert.Equal(t, "progression:lock:user-1", LockKey("user-1"))
}

func newTestLeaderboard(t *testing.T) (*LeaderboardCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache, err := NewCache(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return NewLeaderboardCache(cache, time.Hour), mr
}

func TestLeaderboardCache_UpsertKeepsInsertionOrderOnTies(t *testing.T) {
	ctx := context.Background()
	lb, _ := newTestLeaderboard(t)

	require.NoError(t, lb.Rebuild(ctx, []progression.LeaderboardEntry{
		{UserID: "alice", Level: 2, TotalXP: 100, Seq: 2},
	}, true))

	// bob was stored before alice but missed the rebuild.
	require.NoError(t, lb.Upsert(ctx, "bob", 2, 150, 1))
	require.NoError(t, lb.Upsert(ctx, "alice", 2, 150, 2))
	// Without a seq, the cached one is kept.
	require.NoError(t, lb.Upsert(ctx, "alice", 2, 150, 0))

	top, err := lb.Top(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "bob", top[0].UserID)
	assert.EqualValues(t, 1, top[0].Seq)

	require.NoError(t, lb.Rebuild(ctx, []progression.LeaderboardEntry{
		{UserID: "bob", Level: 2, TotalXP: 150, Seq: 1},
		{UserID: "alice", Level: 2, TotalXP: 150, Seq: 2},
	}, true))
	require.NoError(t, lb.Upsert(ctx, "alice", 2, 150, 2))

	top, err = lb.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "bob", top[0].UserID)
	assert.Equal(t, "alice", top[1].UserID)
	assert.Equal(t, 2, top[1].Rank)
	assert.EqualValues(t, 2, top[1].Seq)
}

func TestLeaderboardCache_UnknownMemberMarksIncomplete(t *testing.T) {
	ctx := context.Background()
	lb, mr := newTestLeaderboard(t)

	require.NoError(t, lb.Rebuild(ctx, []progression.LeaderboardEntry{
		{UserID: "alice", Level: 3, TotalXP: 300, Seq: 1},
	}, true))
	ttl := mr.TTL(keyLeaderboardMeta)

	// Known members leave the cache complete.
	require.NoError(t, lb.Upsert(ctx, "alice", 4, 400, 1))
	meta, err := lb.Meta(ctx)
	require.NoError(t, err)
	assert.True(t, meta.Complete)

	require.NoError(t, lb.Upsert(ctx, "carol", 1, 0, 3))
	meta, err = lb.Meta(ctx)
	require.NoError(t, err)
	assert.False(t, meta.Complete)
	assert.Equal(t, 1, meta.Size)
	assert.Equal(t, ttl, mr.TTL(keyLeaderboardMeta))

	// Limits within the rebuilt size are still served.
	top, err := lb.Top(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "alice", top[0].UserID)
	assert.Equal(t, 400, top[0].TotalXP)

	_, err = lb.Top(ctx, 2)
	assert.ErrorIs(t, err, shared.ErrLeaderboardNotReady)
}

func TestLeaderboardCache_UpsertWithoutRebuild(t *testing.T) {
	ctx := context.Background()
	lb, _ := newTestLeaderboard(t)

	require.NoError(t, lb.Upsert(ctx, "alice", 1, 10, 1))
	_, err := lb.Meta(ctx)
	assert.ErrorIs(t, err, shared.ErrLeaderboardNotReady)
	assert.ErrorIs(t, lb.Upsert(ctx, "", 1, 10, 1), ErrCacheKeyEmpty)
}
