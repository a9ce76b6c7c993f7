// Package journal provides SQLite-backed durable storage for the
// dispatch log.
//
// One entry is appended per processed event, in logical-clock order:
//   - seq: the engine's clock position, the only ordering key
//   - the event vector that ran, with canonical JSON arguments
//   - correlation and cause ids linking effect cascades together
//   - version and fingerprint of the snapshot the event left behind
//
// # Invariants
//
// Logical time only. All ordering uses seq, never wall time, so a
// journal replays identically regardless of when it was written.
//
// Idempotent appends. INSERT ... ON CONFLICT(seq) DO NOTHING means
// recording the same history twice leaves one copy.
//
// Deterministic reads. Every list query orders by seq ASC and returns
// empty slices, not nil, so consumers never branch on absence.
//
// Replay re-dispatches a journal against a freshly built engine and
// compares the recorded fingerprint after every event, reporting each
// divergence with the seq and event that produced it.
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
//
// Fingerprints are computed in internal/state over RFC 8785 canonical
// JSON with SHA-256 domain separation.
package journal
