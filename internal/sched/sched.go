package sched

// Scheduler orders deferred work. Implementations must run closures
// scheduled through the same method in FIFO order.
type Scheduler interface {
	// AfterCommit runs fn when the current slice finishes, before any
	// slice scheduled with NextSlice. Outside a slice it behaves like
	// NextSlice.
	AfterCommit(fn func())

	// NextSlice runs fn as a fresh slice after all pending slices.
	NextSlice(fn func())
}

// Immediate runs everything synchronously at the call site. Ordering
// guarantees degenerate to plain call order, which is exactly what a
// single-goroutine caller observes anyway. In particular, commit-tail
// work booked mid-event runs inside the event, before its effects;
// callers that need notifications after the effect phase should use
// Loop.
type Immediate struct{}

// NewImmediate returns the synchronous scheduler.
func NewImmediate() Immediate { return Immediate{} }

func (Immediate) AfterCommit(fn func()) { fn() }
func (Immediate) NextSlice(fn func())   { fn() }
