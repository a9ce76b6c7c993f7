package graph

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/reflow/internal/sched"
	"github.com/roach88/reflow/internal/state"
)

// Bridge translates commit patches into graph invalidations. Change
// granularity is the top-level key: any write below a key taints
// every root node reading that key.
//
// Keys are collected into a pending set and flushed once per commit
// tick, so the rate of state writes never forces the same rate of
// recomputation. Ten commits to one key inside a slice cost one taint
// wave. Forced reads stay fresh in between because they dirty their
// own dependency set before pulling.
type Bridge struct {
	g     *Graph
	sched sched.Scheduler
	log   *slog.Logger

	mu       sync.Mutex
	pending  map[string]struct{}
	queued   bool
	observer func(keys []string)
}

// NewBridge wires a bridge to the graph it invalidates. Flushes are
// booked on the scheduler's commit tail.
func NewBridge(g *Graph, s sched.Scheduler, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		g:       g,
		sched:   s,
		log:     log.With("component", "bridge"),
		pending: make(map[string]struct{}),
	}
}

// OnCommit ingests the patches from one commit, adding each changed
// top-level key to the pending set. The first key to arrive in a tick
// books a flush; repeated writes to the same key collapse into one
// entry.
func (b *Bridge) OnCommit(patches []state.Patch) {
	if len(patches) == 0 {
		return
	}
	b.mu.Lock()
	for _, p := range patches {
		b.pending[p.Key()] = struct{}{}
	}
	schedule := !b.queued && len(b.pending) > 0
	if schedule {
		b.queued = true
	}
	b.mu.Unlock()

	if schedule {
		b.sched.AfterCommit(b.flush)
	}
}

// flush drains the pending set into one sorted invalidation wave.
func (b *Bridge) flush() {
	b.mu.Lock()
	keys := make([]string, 0, len(b.pending))
	for k := range b.pending {
		keys = append(keys, k)
	}
	b.pending = make(map[string]struct{})
	b.queued = false
	obs := b.observer
	b.mu.Unlock()

	if len(keys) == 0 {
		return
	}
	sort.Strings(keys)

	b.g.Invalidate(keys)
	b.log.Debug("invalidated", "keys", keys)
	if obs != nil {
		obs(keys)
	}
}

// Pending returns the number of keys waiting for the next flush.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// SetObserver registers a callback receiving each flush's invalidated
// keys. The harness uses it to record traces. Pass nil to clear.
func (b *Bridge) SetObserver(fn func(keys []string)) {
	b.mu.Lock()
	b.observer = fn
	b.mu.Unlock()
}
