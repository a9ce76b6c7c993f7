package sched

import (
	"context"
	"sync"
)

// Loop is a single-goroutine scheduler. All slices execute on the
// goroutine that calls Run, so everything downstream of the scheduler
// is single-writer without further locking.
type Loop struct {
	mu      sync.Mutex
	slices  []func()
	after   []func()
	inSlice bool
	wake    chan struct{}
}

// NewLoop returns a loop scheduler. Nothing runs until Run is called.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// NextSlice queues fn as a fresh slice.
func (l *Loop) NextSlice(fn func()) {
	l.mu.Lock()
	l.slices = append(l.slices, fn)
	l.mu.Unlock()
	l.signal()
}

// AfterCommit queues fn to run when the current slice finishes. If no
// slice is executing, fn becomes a fresh slice instead so it cannot
// sit unscheduled until unrelated work arrives.
func (l *Loop) AfterCommit(fn func()) {
	l.mu.Lock()
	if l.inSlice {
		l.after = append(l.after, fn)
		l.mu.Unlock()
		return
	}
	l.slices = append(l.slices, fn)
	l.mu.Unlock()
	l.signal()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes slices until ctx is done. Each slice runs to
// completion, then its after-commit closures drain until empty, then
// the next slice starts. Pending work is dropped on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	for {
		fn, ok := l.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.wake:
				continue
			}
		}
		l.runSlice(fn)
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (l *Loop) pop() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.slices) == 0 {
		return nil, false
	}
	fn := l.slices[0]
	l.slices = l.slices[1:]
	return fn, true
}

func (l *Loop) runSlice(fn func()) {
	l.mu.Lock()
	l.inSlice = true
	l.mu.Unlock()

	fn()

	for {
		l.mu.Lock()
		if len(l.after) == 0 {
			l.inSlice = false
			l.mu.Unlock()
			return
		}
		next := l.after[0]
		l.after = l.after[1:]
		l.mu.Unlock()
		next()
	}
}
