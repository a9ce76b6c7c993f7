package testutil

import "sync"

// ManualScheduler is a step-driven sched.Scheduler for tests.
//
// Nothing runs until the test calls Step or RunAll, so a test can
// dispatch, inspect intermediate state, then advance the schedule one
// slice at a time. Ordering matches the production loop: a slice runs
// to completion, then its after-commit closures drain, then the next
// slice starts.
//
// Thread-safety: all methods are safe for concurrent use, though
// tests normally drive it from a single goroutine.
type ManualScheduler struct {
	mu      sync.Mutex
	slices  []func()
	after   []func()
	inSlice bool
}

// NewManualScheduler creates an empty manual scheduler.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// NextSlice queues fn as a fresh slice.
func (m *ManualScheduler) NextSlice(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slices = append(m.slices, fn)
}

// AfterCommit queues fn behind the currently running slice, or as a
// fresh slice when called between steps.
func (m *ManualScheduler) AfterCommit(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inSlice {
		m.after = append(m.after, fn)
		return
	}
	m.slices = append(m.slices, fn)
}

// Step runs the next slice and drains its after-commit closures.
// It returns false when no slice was pending.
func (m *ManualScheduler) Step() bool {
	m.mu.Lock()
	if len(m.slices) == 0 {
		m.mu.Unlock()
		return false
	}
	fn := m.slices[0]
	m.slices = m.slices[1:]
	m.inSlice = true
	m.mu.Unlock()

	fn()

	for {
		m.mu.Lock()
		if len(m.after) == 0 {
			m.inSlice = false
			m.mu.Unlock()
			return true
		}
		next := m.after[0]
		m.after = m.after[1:]
		m.mu.Unlock()
		next()
	}
}

// RunAll steps until the schedule is empty and returns the number of
// slices run. It panics after 100000 slices; a schedule that long in
// a test means an event cascade is feeding itself.
func (m *ManualScheduler) RunAll() int {
	n := 0
	for m.Step() {
		n++
		if n >= 100000 {
			panic("testutil: RunAll exceeded 100000 slices")
		}
	}
	return n
}

// Pending returns the number of queued slices.
func (m *ManualScheduler) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slices)
}
