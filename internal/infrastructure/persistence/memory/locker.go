package memory

import (
	"context"
	"sync"
	"time"
)

// Locker is a keyed in-process mutex. Entries are reference counted and
// removed once nobody holds or waits for them.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{} // buffered(1): a token means "free"
	refs int
}

// NewLocker creates a Locker.
func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*keyLock)}
}

// Lock implements progression.Locker. The ttl is ignored: an in-process
// holder cannot disappear without releasing.
func (l *Locker) Lock(ctx context.Context, userID string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[userID]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		kl.ch <- struct{}{}
		l.locks[userID] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case <-kl.ch:
	case <-ctx.Done():
		l.release(userID, kl, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(userID, kl, true) })
	}, nil
}

func (l *Locker) release(userID string, kl *keyLock, held bool) {
	if held {
		kl.ch <- struct{}{}
	}
	l.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, userID)
	}
	l.mu.Unlock()
}
