package engine

import (
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces correlation ids for dispatched events.
// Implemented by UUIDv7Generator (production) and FixedGenerator
// (tests); the harness substitutes a sequential generator for golden
// traces.
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 correlation ids.
// The embedded timestamp makes ids sort by dispatch time, which keeps
// journal listings and trace output readable.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewID returns a new UUIDv7 as a hyphenated string. Panics if UUID
// generation fails, which requires a broken entropy source.
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids in order, for tests that
// assert exact trace output.
//
// Thread-safety: safe for concurrent use via an internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator over the given ids. It panics
// once they are exhausted; a test consuming more ids than it declared
// is misconfigured and should fail loudly.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// NewID returns the next predetermined id.
func (g *FixedGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("engine: FixedGenerator ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
