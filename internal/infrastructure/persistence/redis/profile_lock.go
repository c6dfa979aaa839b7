package redis

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/cardquest/progression/internal/domain/shared"
)

// releaseScript deletes the lock only while it still carries our token, so an
// expired holder never frees a lock someone else has since taken.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DefaultLockPollInterval is how often a blocked Lock retries.
const DefaultLockPollInterval = 25 * time.Millisecond

// ProfileLocker implements progression.Locker with SET NX PX.
type ProfileLocker struct {
	cache        *Cache
	pollInterval time.Duration
}

// NewProfileLocker creates a ProfileLocker.
func NewProfileLocker(cache *Cache) *ProfileLocker {
	return &ProfileLocker{cache: cache, pollInterval: DefaultLockPollInterval}
}

// Lock implements progression.Locker. It polls until the key is free or ctx
// is done; the key expires after ttl if the holder never unlocks.
func (l *ProfileLocker) Lock(ctx context.Context, userID string, ttl time.Duration) (func(), error) {
	if userID == "" {
		return nil, ErrCacheKeyEmpty
	}

	key := LockKey(userID)
	token := uuid.NewString()
	client := l.cache.Client()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, shared.WrapError("redis", "Lock", shared.ErrServiceUnavailable, "failed to acquire profile lock", err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, shared.WrapError("redis", "Lock", shared.ErrLockNotHeld, "profile lock wait aborted", ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's ctx may already be done; release on a short fresh one.
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, client, []string{key}, token).Err()
		})
	}, nil
}
