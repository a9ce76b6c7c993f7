// Package state holds the value model and the snapshot store.
//
// State is a tree of sealed Value variants rooted at an Object whose
// top-level keys partition the application state. The tree is never
// mutated in place: handlers work against a Draft, and Draft.Commit
// produces a fresh Snapshot plus the list of Patches describing which
// top-level keys actually changed.
//
// Change granularity is deliberately coarse: a Patch addresses a
// top-level key, never a nested path. Two writes to different leaves
// under the same key are indistinguishable to downstream invalidation.
//
// Values are shared structurally between snapshots. Callers must treat
// every Value obtained from a Snapshot as immutable; Clone exists for
// the cases where a private copy is needed.
package state
