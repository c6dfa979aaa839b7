package progression

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Sampler picks distinct template indexes for quest and challenge rotation.
type Sampler interface {
	// Pick returns k distinct indexes in [0, n). k is clamped to n.
	Pick(n, k int) []int
}

// RandSampler is a goroutine-safe Sampler backed by a PCG source.
type RandSampler struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandSampler creates a sampler with a fixed seed. Equal seeds yield equal picks.
func NewRandSampler(seed1, seed2 uint64) *RandSampler {
	return &RandSampler{rnd: rand.New(rand.NewPCG(seed1, seed2))}
}

// NewTimeSampler creates a sampler seeded from the wall clock.
func NewTimeSampler() *RandSampler {
	now := uint64(time.Now().UnixNano())
	return NewRandSampler(now, now>>17|now<<47)
}

// Pick implements Sampler.
func (s *RandSampler) Pick(n, k int) []int {
	if n <= 0 || k <= 0 {
		return nil
	}
	k = min(k, n)

	s.mu.Lock()
	perm := s.rnd.Perm(n)
	s.mu.Unlock()

	return perm[:k]
}

// FixedSampler always returns the given indexes. Useful when the caller wants
// a known rotation, e.g. in tests or replays.
type FixedSampler []int

// Pick implements Sampler.
func (f FixedSampler) Pick(n, k int) []int {
	out := make([]int, 0, k)
	seen := make(map[int]struct{}, k)
	for _, i := range f {
		if len(out) == k {
			break
		}
		if i < 0 || i >= n {
			continue
		}
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		out = append(out, i)
	}
	// top up deterministically so the distinct-k contract still holds
	for i := 0; i < n && len(out) < k; i++ {
		if _, dup := seen[i]; !dup {
			seen[i] = struct{}{}
			out = append(out, i)
		}
	}
	return out
}
