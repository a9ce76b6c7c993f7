package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/reflow/internal/event"
	"github.com/roach88/reflow/internal/sched"
)

// QueueState is the event queue's position in its lifecycle.
type QueueState uint8

const (
	// StateIdle: queue empty, nothing scheduled.
	StateIdle QueueState = iota
	// StateScheduled: events waiting, a drain slice is booked.
	StateScheduled
	// StateRunning: a drain slice is processing events.
	StateRunning
	// StatePaused: drain stopped in front of a deferred event, resuming
	// through the scheduling hook its metadata names.
	StatePaused
)

func (s QueueState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

type queueTrigger uint8

const (
	triggerAddEvent queueTrigger = iota
	triggerRunQueue
	triggerPause
	triggerResume
	triggerException
	triggerFinishRun
)

func (t queueTrigger) String() string {
	switch t {
	case triggerAddEvent:
		return "add-event"
	case triggerRunQueue:
		return "run-queue"
	case triggerPause:
		return "pause"
	case triggerResume:
		return "resume"
	case triggerException:
		return "exception"
	case triggerFinishRun:
		return "finish-run"
	default:
		return fmt.Sprintf("trigger(%d)", uint8(t))
	}
}

// queue is the FIFO event queue driven by a small state machine.
// Every state change goes through trigger so the transitions stay in
// one place.
//
// The queue is unbounded: effects may dispatch arbitrarily many
// follow-on events without blocking the handler that produced them.
//
// Thread-safety: Push is safe from any goroutine. Drain slices run on
// the scheduler, one at a time. process is called without the lock
// held, since handlers re-enter the queue through dispatch effects.
type queue struct {
	sched   sched.Scheduler
	process func(ev event.Event) error
	onPurge func(dropped []event.Event, cause error)
	log     *slog.Logger
	budget  int

	mu     sync.Mutex
	state  QueueState
	events []event.Event
	stash  *event.Event
}

func newQueue(s sched.Scheduler, process func(ev event.Event) error, onPurge func([]event.Event, error), log *slog.Logger, budget int) *queue {
	return &queue{
		sched:   s,
		process: process,
		onPurge: onPurge,
		log:     log,
		budget:  budget,
		events:  make([]event.Event, 0, 16),
	}
}

// Push appends an event and books a drain slice if none is pending.
func (q *queue) Push(ev event.Event) {
	q.trigger(triggerAddEvent, &ev, nil)
}

// State returns the current queue state.
func (q *queue) State() QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Len returns the number of queued events, excluding one stashed by a
// pause.
func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Purge drops everything and returns the queue to idle. Used on
// engine shutdown.
func (q *queue) Purge() {
	q.mu.Lock()
	dropped := len(q.events)
	q.events = nil
	q.stash = nil
	q.state = StateIdle
	q.mu.Unlock()
	if dropped > 0 {
		q.log.Warn("queue purged", "dropped", dropped)
	}
}

// trigger applies one state machine transition and runs its action
// outside the lock. A (state, trigger) pair outside the table is
// logged and ignored; the usual source is a stale wakeup from a slice
// booked before a purge.
func (q *queue) trigger(tr queueTrigger, ev *event.Event, cause error) {
	q.mu.Lock()
	var action func()

	switch tr {
	case triggerAddEvent:
		q.events = append(q.events, *ev)
		if q.state == StateIdle {
			q.state = StateScheduled
			action = q.scheduleDrain
		}

	case triggerRunQueue:
		if q.state != StateScheduled {
			q.ignoreLocked(tr, cause)
			return
		}
		q.state = StateRunning
		action = q.drain

	case triggerPause:
		if q.state != StateRunning {
			q.ignoreLocked(tr, cause)
			return
		}
		front := q.popLocked()
		mode := front.Defer
		front.Defer = event.DeferNone
		q.stash = &front
		q.state = StatePaused
		action = func() { q.scheduleResume(mode) }

	case triggerResume:
		if q.state != StatePaused {
			q.ignoreLocked(tr, cause)
			return
		}
		q.state = StateRunning
		action = q.drain

	case triggerException:
		if q.state != StateRunning {
			q.ignoreLocked(tr, cause)
			return
		}
		dropped := q.events
		q.events = nil
		q.stash = nil
		q.state = StateIdle
		action = func() { q.onPurge(dropped, cause) }

	case triggerFinishRun:
		if q.state != StateRunning {
			q.ignoreLocked(tr, cause)
			return
		}
		if len(q.events) == 0 {
			q.state = StateIdle
		} else {
			q.state = StateScheduled
			action = q.scheduleDrain
		}

	default:
		q.mu.Unlock()
		panic(fmt.Sprintf("engine: unknown queue trigger %d", tr))
	}

	q.mu.Unlock()
	if action != nil {
		action()
	}
}

// ignoreLocked logs a trigger that arrived in the wrong state and
// releases the lock.
func (q *queue) ignoreLocked(tr queueTrigger, cause error) {
	st := q.state
	q.mu.Unlock()
	if cause != nil {
		q.log.Warn("queue trigger ignored", "state", st.String(), "trigger", tr.String(), "error", cause)
		return
	}
	q.log.Warn("queue trigger ignored", "state", st.String(), "trigger", tr.String())
}

func (q *queue) scheduleDrain() {
	q.sched.NextSlice(func() { q.trigger(triggerRunQueue, nil, nil) })
}

// scheduleResume books the resume through the hook the pausing event
// asked for. Settle waits for the commit tail of the current slice,
// where watcher notifications flush, and only then books the next
// slice, so the resumed event runs with observers caught up. Yield
// books the next slice directly.
func (q *queue) scheduleResume(mode event.Defer) {
	resume := func() { q.trigger(triggerResume, nil, nil) }
	switch mode {
	case event.DeferSettle:
		q.sched.AfterCommit(func() { q.sched.NextSlice(resume) })
	default:
		q.sched.NextSlice(resume)
	}
}

// drain processes the events that were queued when the slice began.
// Events pushed while draining stay behind the snapshot count and run
// in a later slice via finish-run. A stashed event from a pause runs
// first, without re-reading its metadata, then draining continues with
// a fresh count. The drain also stops early when the per-slice budget
// runs out, a deferred event pauses it, or a handler fails
// unrecoverably.
func (q *queue) drain() {
	q.mu.Lock()
	stash := q.stash
	q.stash = nil
	q.mu.Unlock()

	processed := 0
	if stash != nil {
		if err := q.process(*stash); err != nil {
			q.trigger(triggerException, nil, err)
			return
		}
		processed++
	}

	q.mu.Lock()
	n := len(q.events)
	q.mu.Unlock()

	for i := 0; i < n; i++ {
		if q.budget > 0 && processed >= q.budget {
			break
		}

		q.mu.Lock()
		if len(q.events) == 0 {
			q.mu.Unlock()
			break
		}
		if q.events[0].Defer != event.DeferNone {
			q.mu.Unlock()
			q.trigger(triggerPause, nil, nil)
			return
		}
		ev := q.popLocked()
		q.mu.Unlock()

		if err := q.process(ev); err != nil {
			q.trigger(triggerException, nil, err)
			return
		}
		processed++
	}
	q.trigger(triggerFinishRun, nil, nil)
}

// popLocked removes the front event, clearing the slot so the backing
// array does not retain its values.
func (q *queue) popLocked() event.Event {
	ev := q.events[0]
	q.events[0] = event.Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}
	return ev
}
