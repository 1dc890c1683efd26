package store

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// KeyGenerator produces push keys that sort lexicographically in generation
// order, even when the wall clock steps backwards.
type KeyGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	lastMs  uint64
	now     func() time.Time
}

func NewKeyGenerator(now func() time.Time) *KeyGenerator {
	if now == nil {
		now = time.Now
	}
	return &KeyGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     now,
	}
}

func (g *KeyGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := ulid.Timestamp(g.now())
	if ms < g.lastMs {
		ms = g.lastMs
	}
	g.lastMs = ms
	return ulid.MustNew(ms, g.entropy).String()
}
