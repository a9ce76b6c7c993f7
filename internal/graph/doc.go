// Package graph maintains the lazy derivation graph over committed
// state.
//
// Nodes are created on demand, keyed by the canonical form of their
// subscription vector, so two watchers of the same vector share one
// node. Root nodes extract a top-level key from the current snapshot;
// derived nodes compute from the values of their declared inputs.
//
// Change flows in two phases. The bridge collects the top-level keys
// each commit touches and flushes them once per tick; the flush
// taints the root nodes for those keys and the taint spreads through
// dependents. Recomputation is lazy: nothing recomputes until a read
// pulls it or the scheduled notification flush visits watched nodes.
// Forced reads (GetValue, Watcher.Value) do not wait for the bridge:
// they dirty their own reachable dependency set and pull, so a read
// between commit and flush never serves stale cache.
//
// Two gates stop change from spreading further than it must. A dirty
// node whose input versions match its last computation skips the
// recompute. A recompute whose output equals the cached value keeps
// the old version, so dependents and watchers see nothing. Root nodes
// are the exception: a dirty root always re-reads its key and always
// counts as changed, leaving equality decisions to the derived nodes
// above it.
//
// A node stays alive while it has watchers or dependents. When the
// last one goes, the node unlinks from its inputs and the release
// cascades upward.
package graph
