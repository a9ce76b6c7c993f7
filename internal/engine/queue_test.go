package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reflow/internal/event"
	"github.com/roach88/reflow/internal/testutil"
)

type queueFixture struct {
	sched *testutil.ManualScheduler
	logs  *testutil.LogRecorder
	q     *queue

	order     []string
	onProcess func(ev event.Event) error
	purged    []event.Event
	purgeErr  error
}

func newQueueFixture(budget int) *queueFixture {
	f := &queueFixture{
		sched: testutil.NewManualScheduler(),
		logs:  testutil.NewLogRecorder(),
	}
	f.q = newQueue(f.sched,
		func(ev event.Event) error {
			f.order = append(f.order, ev.Vector.ID)
			if f.onProcess != nil {
				return f.onProcess(ev)
			}
			return nil
		},
		func(dropped []event.Event, cause error) {
			f.purged = append(f.purged, dropped...)
			f.purgeErr = cause
		},
		f.logs.Logger(), budget)
	return f
}

func qev(id string) event.Event {
	return event.Event{Vector: event.Vector{ID: id}, Correlation: "corr-" + id}
}

func qdefer(id string, mode event.Defer) event.Event {
	ev := qev(id)
	ev.Defer = mode
	return ev
}

func TestQueue_PushSchedulesOneDrain(t *testing.T) {
	f := newQueueFixture(0)

	f.q.Push(qev("a"))
	f.q.Push(qev("b"))

	// Both pushes share one booked drain slice.
	assert.Equal(t, StateScheduled, f.q.State())
	assert.Equal(t, 1, f.sched.Pending())
	assert.Equal(t, 2, f.q.Len())

	require.True(t, f.sched.Step())
	assert.Equal(t, []string{"a", "b"}, f.order)
	assert.Equal(t, StateIdle, f.q.State())
	assert.Equal(t, 0, f.q.Len())
	assert.False(t, f.sched.Step(), "no further slices expected")
}

func TestQueue_FIFOAcrossPushes(t *testing.T) {
	f := newQueueFixture(0)

	for _, id := range []string{"first", "second", "third"} {
		f.q.Push(qev(id))
	}
	f.sched.RunAll()

	assert.Equal(t, []string{"first", "second", "third"}, f.order)
}

func TestQueue_PushDuringDrainRollsToNextSlice(t *testing.T) {
	f := newQueueFixture(0)
	f.onProcess = func(ev event.Event) error {
		if ev.Vector.ID == "a" {
			f.q.Push(qev("c"))
		}
		return nil
	}

	f.q.Push(qev("a"))
	f.q.Push(qev("b"))
	require.True(t, f.sched.Step())

	// The drain only covers the two events queued when it started; c
	// landed behind the count and rolls over to a fresh slice.
	assert.Equal(t, []string{"a", "b"}, f.order)
	assert.Equal(t, StateScheduled, f.q.State())
	assert.Equal(t, 1, f.sched.Pending())

	require.True(t, f.sched.Step())
	assert.Equal(t, []string{"a", "b", "c"}, f.order)
	assert.Equal(t, StateIdle, f.q.State())
}

func TestQueue_SelfFeedingHandlerYieldsBetweenGenerations(t *testing.T) {
	f := newQueueFixture(0)
	generation := 0
	f.onProcess = func(ev event.Event) error {
		if generation < 2 {
			generation++
			f.q.Push(qev("next"))
		}
		return nil
	}

	f.q.Push(qev("seed"))

	// Each generation gets its own slice, so a handler that feeds the
	// queue cannot monopolize one drain.
	slices := f.sched.RunAll()
	assert.Equal(t, 3, slices)
	assert.Equal(t, []string{"seed", "next", "next"}, f.order)
	assert.Equal(t, StateIdle, f.q.State())
}

func TestQueue_DrainBudgetRollsOver(t *testing.T) {
	f := newQueueFixture(2)

	f.q.Push(qev("a"))
	f.q.Push(qev("b"))
	f.q.Push(qev("c"))

	require.True(t, f.sched.Step())
	assert.Equal(t, []string{"a", "b"}, f.order)
	assert.Equal(t, StateScheduled, f.q.State())
	assert.Equal(t, 1, f.q.Len())

	require.True(t, f.sched.Step())
	assert.Equal(t, []string{"a", "b", "c"}, f.order)
	assert.Equal(t, StateIdle, f.q.State())
}

func TestQueue_SettleWaitsOutTheCommitTail(t *testing.T) {
	f := newQueueFixture(0)
	f.onProcess = func(ev event.Event) error {
		if ev.Vector.ID == "a" {
			// Stands in for the invalidation flush a commit books,
			// which itself books the watcher notification flush.
			f.sched.AfterCommit(func() {
				f.order = append(f.order, "invalidate")
				f.sched.AfterCommit(func() { f.order = append(f.order, "notify") })
			})
		}
		return nil
	}

	f.q.Push(qev("a"))
	f.q.Push(qdefer("b", event.DeferSettle))
	f.q.Push(qev("c"))
	f.sched.RunAll()

	// The drain pauses in front of b. Everything the commit tail books,
	// including flushes chained off other flushes, runs before the
	// queue resumes on the following slice.
	assert.Equal(t, []string{"a", "invalidate", "notify", "b", "c"}, f.order)
	assert.Equal(t, StateIdle, f.q.State())
}

func TestQueue_YieldResumesOnNextSlice(t *testing.T) {
	f := newQueueFixture(0)

	f.q.Push(qev("a"))
	f.q.Push(qdefer("b", event.DeferYield))
	f.q.Push(qev("c"))

	require.True(t, f.sched.Step())
	assert.Equal(t, []string{"a"}, f.order)
	assert.Equal(t, StatePaused, f.q.State())
	assert.Equal(t, 1, f.sched.Pending())

	// The resume slice starts with the stashed event, then finishes
	// the rest of the queue.
	require.True(t, f.sched.Step())
	assert.Equal(t, []string{"a", "b", "c"}, f.order)
	assert.Equal(t, StateIdle, f.q.State())
}

func TestQueue_DeferredEventAtQueueFront(t *testing.T) {
	f := newQueueFixture(0)

	f.q.Push(qdefer("only", event.DeferSettle))
	f.sched.RunAll()

	assert.Equal(t, []string{"only"}, f.order)
	assert.Equal(t, StateIdle, f.q.State())
}

func TestQueue_ProcessErrorPurgesRemaining(t *testing.T) {
	f := newQueueFixture(0)
	boom := errors.New("boom")
	f.onProcess = func(ev event.Event) error {
		if ev.Vector.ID == "b" {
			return boom
		}
		return nil
	}

	f.q.Push(qev("a"))
	f.q.Push(qev("b"))
	f.q.Push(qev("c"))
	f.sched.RunAll()

	assert.Equal(t, []string{"a", "b"}, f.order)
	require.Len(t, f.purged, 1)
	assert.Equal(t, "c", f.purged[0].Vector.ID)
	assert.Equal(t, boom, f.purgeErr)
	assert.Equal(t, StateIdle, f.q.State())
	assert.Equal(t, 0, f.q.Len())

	// The queue keeps working after a purge.
	f.q.Push(qev("d"))
	f.sched.RunAll()
	assert.Equal(t, []string{"a", "b", "d"}, f.order)
}

func TestQueue_PurgeDuringDrain(t *testing.T) {
	f := newQueueFixture(0)
	f.onProcess = func(ev event.Event) error {
		if ev.Vector.ID == "a" {
			f.q.Purge()
		}
		return nil
	}

	f.q.Push(qev("a"))
	f.q.Push(qev("b"))
	f.sched.RunAll()

	// b was dropped by the purge; the drain's finish trigger arrives in
	// idle and is ignored.
	assert.Equal(t, []string{"a"}, f.order)
	assert.Equal(t, StateIdle, f.q.State())

	f.q.Push(qev("d"))
	f.sched.RunAll()
	assert.Equal(t, []string{"a", "d"}, f.order)
}

func TestQueue_PurgeLogsDropCount(t *testing.T) {
	f := newQueueFixture(0)

	f.q.Push(qev("a"))
	f.q.Push(qev("b"))
	f.q.Purge()

	var found bool
	for _, e := range f.logs.Entries() {
		if e.Message == "queue purged" {
			found = true
			assert.Equal(t, int64(2), e.Attrs["dropped"])
		}
	}
	assert.True(t, found, "expected a purge log entry")
	assert.Equal(t, 0, f.q.Len())
	assert.Equal(t, StateIdle, f.q.State())
}

func TestQueue_StaleTriggersLoggedAndIgnored(t *testing.T) {
	f := newQueueFixture(0)

	// Triggers left over from slices booked before a purge arrive in
	// idle; none of them may panic or change state.
	f.q.trigger(triggerRunQueue, nil, nil)
	assert.Equal(t, StateIdle, f.q.State())

	f.q.trigger(triggerResume, nil, nil)
	assert.Equal(t, StateIdle, f.q.State())

	f.q.trigger(triggerPause, nil, nil)
	assert.Equal(t, StateIdle, f.q.State())

	f.q.trigger(triggerFinishRun, nil, nil)
	assert.Equal(t, StateIdle, f.q.State())

	var triggers []string
	for _, e := range f.logs.Entries() {
		if e.Message == "queue trigger ignored" {
			assert.Equal(t, "idle", e.Attrs["state"])
			triggers = append(triggers, e.Attrs["trigger"].(string))
		}
	}
	assert.Equal(t, []string{"run-queue", "resume", "pause", "finish-run"}, triggers)
}

func TestQueueState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "scheduled", StateScheduled.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "state(9)", QueueState(9).String())
}
