package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDGenerator yields "corr-000001", "corr-000002", ... so
// traces and golden files are byte-identical across runs. It stands
// in for the engine's UUID generator in tests.
//
// Thread-safety: safe for concurrent use via an internal mutex.
type SequentialIDGenerator struct {
	mu     sync.Mutex
	prefix string
	n      uint64
}

// NewSequentialIDGenerator creates a generator with the given prefix.
// An empty prefix defaults to "corr".
func NewSequentialIDGenerator(prefix string) *SequentialIDGenerator {
	if prefix == "" {
		prefix = "corr"
	}
	return &SequentialIDGenerator{prefix: prefix}
}

// NewID returns the next id in sequence.
func (g *SequentialIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%06d", g.prefix, g.n)
}
