package util

import (
	"math/rand"
	"sync"
)

// lockedSource serialises access to a rand.Source so one *rand.Rand can be shared between goroutines.
type lockedSource struct {
	mu  sync.Mutex
	src rand.Source
}

func (s *lockedSource) Int63() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.Int63()
}

func (s *lockedSource) Seed(seed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.src.Seed(seed)
}

// NewThreadsafeRand returns a *rand.Rand seeded with seed that is safe for concurrent use.
func NewThreadsafeRand(seed int64) *rand.Rand {
	return rand.New(&lockedSource{src: rand.NewSource(seed)})
}

// IntnInclusive returns a value in [0, n] drawn from r.
func IntnInclusive(r *rand.Rand, n int) int {
	return r.Intn(n + 1)
}
