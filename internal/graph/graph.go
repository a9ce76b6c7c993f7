package graph

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/reflow/internal/event"
	"github.com/roach88/reflow/internal/sched"
	"github.com/roach88/reflow/internal/state"
)

// Graph owns every live subscription node. Watch, Stop and GetValue
// may be called from any goroutine; dirtying arrives from the engine
// loop through Invalidate.
type Graph struct {
	resolver Resolver
	snapshot SnapshotFunc
	sched    sched.Scheduler
	log      *slog.Logger

	mu            sync.Mutex
	nodes         map[string]*node
	roots         map[string]map[*node]struct{}
	notify        map[*node]struct{}
	flushQueued   bool
	materializing map[string]bool
	watcherSeq    uint64
}

// New builds an empty graph. The resolver supplies node specs, the
// snapshot function supplies the state root nodes read, and the
// scheduler decides when notification flushes run.
func New(resolver Resolver, snapshot SnapshotFunc, s sched.Scheduler, log *slog.Logger) *Graph {
	if log == nil {
		log = slog.Default()
	}
	return &Graph{
		resolver:      resolver,
		snapshot:      snapshot,
		sched:         s,
		log:           log.With("component", "graph"),
		nodes:         make(map[string]*node),
		roots:         make(map[string]map[*node]struct{}),
		notify:        make(map[*node]struct{}),
		materializing: make(map[string]bool),
	}
}

// Watcher is the handle returned by Watch. Callbacks are not
// comparable in Go, so removal goes through the handle rather than by
// function identity.
type Watcher struct {
	g     *Graph
	n     *node
	id    uint64
	entry *watcherEntry
}

// Watch materializes the node for vec, computes its current value and
// registers fn for subsequent changes. fn is not called with the
// initial value; read it from the returned handle if needed.
func (g *Graph) Watch(vec event.Vector, fn WatchFunc) (*Watcher, error) {
	g.mu.Lock()
	n, err := g.materialize(vec)
	if err != nil {
		g.mu.Unlock()
		return nil, err
	}
	if _, err := g.pull(n); err != nil {
		g.release(n)
		g.mu.Unlock()
		return nil, err
	}
	g.watcherSeq++
	entry := &watcherEntry{fn: fn, seen: n.version}
	n.watchers[g.watcherSeq] = entry
	w := &Watcher{g: g, n: n, id: g.watcherSeq, entry: entry}
	g.mu.Unlock()
	return w, nil
}

// Stop removes the watcher. The node is released once nothing watches
// or depends on it, and the release cascades through inputs that
// become orphaned. Stop is idempotent, and a stopped watcher receives
// no further notifications even if a flush was already in progress.
func (w *Watcher) Stop() {
	g := w.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if w.entry.stopped {
		return
	}
	w.entry.stopped = true
	delete(w.n.watchers, w.id)
	g.release(w.n)
}

// Value reads the watched node right now. Like GetValue, it dirties
// the reachable dependency set first, so a read between a commit and
// its invalidation flush still sees the newest snapshot. No
// notifications are queued by the read itself.
func (w *Watcher) Value() (state.Value, error) {
	g := w.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if w.entry.stopped {
		return nil, fmt.Errorf("graph: watcher for %s is stopped", w.n.vec)
	}
	g.forceTaint(w.n)
	return g.pull(w.n)
}

// Vector returns the subscription vector this watcher is attached to.
func (w *Watcher) Vector() event.Vector { return w.n.vec }

// GetValue computes the current value for vec without keeping the
// node alive: a one-shot query. The node's reachable dependency set
// is dirtied first, so the read reflects every commit made so far
// rather than the last invalidation flush. No notifications are
// queued; watchers catch up at their next flush. If nothing else
// references the node, it and any inputs materialized just for it are
// released before GetValue returns.
func (g *Graph) GetValue(vec event.Vector) (state.Value, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, err := g.materialize(vec)
	if err != nil {
		return nil, err
	}
	g.forceTaint(n)
	v, perr := g.pull(n)
	g.release(n)
	return v, perr
}

// forceTaint dirties n and every node it reads from, directly or
// transitively, without queueing notifications. Inputs form a DAG, so
// the walk terminates; diamond revisits are idempotent. Callers hold
// g.mu.
func (g *Graph) forceTaint(n *node) {
	n.dirty = true
	for _, in := range n.inputs {
		g.forceTaint(in)
	}
}

// Invalidate taints the root nodes for the given top-level keys and
// every node downstream of them. Recomputation happens lazily; if any
// tainted node is watched, a notification flush is scheduled.
func (g *Graph) Invalidate(keys []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, key := range keys {
		for n := range g.roots[key] {
			g.taint(n)
		}
	}
	g.scheduleFlush()
}

func (g *Graph) taint(n *node) {
	if len(n.watchers) > 0 {
		g.notify[n] = struct{}{}
	}
	// Already-dirty nodes tainted their dependents when they went
	// dirty, and a dependent cannot have been cleaned since without
	// cleaning this node first.
	if n.dirty {
		return
	}
	n.dirty = true
	for d := range n.dependents {
		g.taint(d)
	}
}

func (g *Graph) scheduleFlush() {
	if g.flushQueued || len(g.notify) == 0 {
		return
	}
	g.flushQueued = true
	g.sched.AfterCommit(g.flush)
}

type firing struct {
	entry *watcherEntry
	sub   string
	value state.Value
}

// flush recomputes pending watched nodes in deterministic order and
// delivers notifications outside the lock so callbacks can watch,
// stop and query freely.
func (g *Graph) flush() {
	g.mu.Lock()
	g.flushQueued = false
	pending := make([]*node, 0, len(g.notify))
	for n := range g.notify {
		pending = append(pending, n)
	}
	g.notify = make(map[*node]struct{})
	sort.Slice(pending, func(i, j int) bool { return pending[i].key < pending[j].key })

	var fires []firing
	for _, n := range pending {
		if len(n.watchers) == 0 {
			continue
		}
		v, err := g.pull(n)
		if err != nil {
			g.log.Error("recompute failed", "sub", n.vec.String(), "error", err)
			// The node stays dirty and stays queued: a later taint
			// wave stops at dirty intermediates, so retrying must not
			// depend on being re-added.
			g.notify[n] = struct{}{}
			continue
		}
		ids := make([]uint64, 0, len(n.watchers))
		for id := range n.watchers {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			entry := n.watchers[id]
			if entry.seen == n.version {
				continue
			}
			entry.seen = n.version
			fires = append(fires, firing{entry: entry, sub: n.vec.String(), value: v})
		}
	}
	g.mu.Unlock()

	for _, f := range fires {
		g.mu.Lock()
		stopped := f.entry.stopped
		g.mu.Unlock()
		if !stopped {
			g.fire(f)
		}
	}
}

// fire delivers one notification, containing a callback panic so the
// rest of the wave still runs.
func (g *Graph) fire(f firing) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error("watcher panicked", "sub", f.sub, "panic", r)
		}
	}()
	f.entry.fn(f.value)
}

// materialize returns the node for vec, resolving and linking it (and
// transitively its inputs) on first use. Callers hold g.mu.
func (g *Graph) materialize(vec event.Vector) (*node, error) {
	key, err := vec.Key()
	if err != nil {
		return nil, err
	}
	if n, ok := g.nodes[key]; ok {
		return n, nil
	}
	if g.materializing[key] {
		return nil, &CycleError{Path: []string{vec.String()}}
	}
	g.materializing[key] = true
	defer delete(g.materializing, key)

	spec, err := g.resolver(vec)
	if err != nil {
		return nil, err
	}
	if err := spec.validate(vec); err != nil {
		return nil, err
	}

	n := &node{
		key:        key,
		vec:        vec,
		spec:       spec,
		dependents: make(map[*node]struct{}),
		watchers:   make(map[uint64]*watcherEntry),
	}

	if spec.RootKey != "" {
		g.nodes[key] = n
		set, ok := g.roots[spec.RootKey]
		if !ok {
			set = make(map[*node]struct{})
			g.roots[spec.RootKey] = set
		}
		set[n] = struct{}{}
		return n, nil
	}

	inputs := make([]*node, len(spec.Inputs))
	for i, iv := range spec.Inputs {
		in, err := g.materialize(iv)
		if err != nil {
			if ce, ok := err.(*CycleError); ok {
				ce.Path = append([]string{vec.String()}, ce.Path...)
			}
			// Unlink anything already wired before failing.
			for _, linked := range inputs[:i] {
				delete(linked.dependents, n)
				g.release(linked)
			}
			return nil, err
		}
		inputs[i] = in
		in.dependents[n] = struct{}{}
	}
	n.inputs = inputs
	g.nodes[key] = n
	return n, nil
}

// pull returns the node's current value, recomputing if tainted.
// Callers hold g.mu.
func (g *Graph) pull(n *node) (state.Value, error) {
	if n.computed && !n.dirty {
		return n.value, nil
	}
	if n.spec.RootKey != "" {
		v, ok := g.snapshot().Get(n.spec.RootKey)
		if !ok {
			v = state.Null{}
		}
		// Roots always count as changed; output equality gates only
		// derived nodes.
		n.dirty = false
		n.value = v
		n.version++
		n.computed = true
		return n.value, nil
	}

	vals := make([]state.Value, len(n.inputs))
	versions := make([]int64, len(n.inputs))
	for i, in := range n.inputs {
		v, err := g.pull(in)
		if err != nil {
			return nil, err
		}
		vals[i] = v
		versions[i] = in.version
	}
	if n.computed && versionsEqual(versions, n.lastInputs) {
		n.dirty = false
		return n.value, nil
	}

	v, err := safeCompute(n, vals)
	if err != nil {
		return nil, err
	}
	n.lastInputs = versions
	n.commit(v)
	return n.value, nil
}

// commit installs a freshly computed derived value, bumping the
// version only when it differs from the cached one.
func (n *node) commit(v state.Value) {
	n.dirty = false
	if n.computed && n.equal(n.value, v) {
		return
	}
	n.value = v
	n.version++
	n.computed = true
}

func safeCompute(n *node, inputs []state.Value) (v state.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("graph: compute %s panicked: %v", n.vec, r)
		}
	}()
	return n.spec.Compute(n.vec, inputs)
}

// release disposes the node if nothing watches or depends on it,
// unlinking from inputs and cascading. Callers hold g.mu.
func (g *Graph) release(n *node) {
	if n.alive() {
		return
	}
	if _, ok := g.nodes[n.key]; !ok {
		return
	}
	delete(g.nodes, n.key)
	delete(g.notify, n)
	if n.spec.RootKey != "" {
		set := g.roots[n.spec.RootKey]
		delete(set, n)
		if len(set) == 0 {
			delete(g.roots, n.spec.RootKey)
		}
	}
	for _, in := range n.inputs {
		delete(in.dependents, n)
		g.release(in)
	}
	n.inputs = nil
}

// NodeCount reports live nodes, mostly for tests asserting disposal.
func (g *Graph) NodeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

func versionsEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
