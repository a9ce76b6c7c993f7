// Package engine implements the reflow event processing core.
//
// The engine is the only writer of state - it receives dispatched
// events, runs them through their interceptor chains, commits the
// resulting drafts, and executes the effects handlers requested.
//
// ARCHITECTURE:
//
// Single-Writer Slices:
// All event processing happens on scheduler slices. Under the loop
// scheduler that is exactly one goroutine. This ensures:
// - Events commit in FIFO dispatch order
// - Replay of a journal reproduces the same snapshots
// - No locking inside handlers
//
// Event Processing Flow:
//  1. Dispatch validates the vector and pushes it onto the queue
//  2. The queue state machine books a drain slice
//  3. processEvent() opens a draft over the current snapshot
//  4. The interceptor chain runs: Befores forward, handler last,
//     Afters in reverse
//  5. The draft commits; patches name the changed top-level keys
//  6. The journal records the event and the new state fingerprint
//  7. The bridge adds the changed keys to its per-tick pending set
//  8. Effects run, in the order the handler added them
//
// Watcher notifications are not part of this flow: the bridge flushes
// its pending keys once per slice, at the commit tail, and the graph
// turns that one taint wave into one notification flush after
// effects. A handler or effect that reads a subscription mid-slice
// still sees fresh values, because forced reads dirty their own
// dependency set before pulling.
//
// Failure Handling:
// A handler error (or panic) abandons the event - nothing commits, no
// effects run. With an error handler registered the queue keeps
// draining; without one, or when the handler marks the context
// unrecoverable, the queue purges everything it still holds.
//
// CRITICAL PATTERNS:
//
// Logical Clock:
// Every processed event gets a seq from Clock.Next(). Ordering in
// logs, traces and the journal derives from seq, never wall time.
//
// Closed Registry:
// The registry freezes when the engine is built. Routing never
// changes mid-run, so a journal replayed against the same
// registration code takes the same path.
package engine
