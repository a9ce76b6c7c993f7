// Package sched abstracts when deferred work runs.
//
// The engine and the reaction graph never call time or spin goroutines
// themselves; they hand closures to a Scheduler. Two orderings cover
// everything they need:
//
//   - NextSlice runs a closure as a fresh top-level slice, after all
//     previously scheduled slices.
//   - AfterCommit runs a closure once the currently executing slice
//     has fully finished, before the next slice starts.
//
// Immediate collapses both into synchronous calls for callers that
// drive everything from one goroutine. Loop is the production
// implementation: a single goroutine owns all slices, which is what
// makes event processing single-writer. Tests use the step-driven
// scheduler in testutil.
package sched
