package harness

import (
	"github.com/roach88/reflow/internal/engine"
	"github.com/roach88/reflow/internal/event"
	"github.com/roach88/reflow/internal/graph"
	"github.com/roach88/reflow/internal/state"
)

// Trace event type constants.
const (
	// TraceEnqueue is an external dispatch from the flow.
	TraceEnqueue = "enqueue"
	// TraceHandler is an event reaching its handler.
	TraceHandler = "handler"
	// TraceCommit is a successful commit, with the new version and the
	// changed top-level keys.
	TraceCommit = "commit"
	// TraceEffect is a dispatch effect queueing a follow-on event.
	TraceEffect = "effect"
	// TraceInvalidate is one invalidation wave reaching the graph.
	TraceInvalidate = "invalidate"
	// TraceRecompute is a derived subscription running its compute.
	TraceRecompute = "recompute"
	// TraceNotify is a watcher receiving a changed value.
	TraceNotify = "notify"
	// TraceError is a handler failure consumed by the error handler.
	TraceError = "error"
)

// TraceEvent is one observable step of a scenario run. Only the
// fields meaningful for its Type are set.
type TraceEvent struct {
	Type    string        `json:"type"`
	Event   string        `json:"event,omitempty"`
	Args    []state.Value `json:"args,omitempty"`
	Defer   string        `json:"defer,omitempty"`
	Target  string        `json:"target,omitempty"`
	Version int64         `json:"version,omitempty"`
	Keys    []string      `json:"keys,omitempty"`
	Sub     string        `json:"sub,omitempty"`
	Value   state.Value   `json:"value,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// toValue renders the event for canonical serialization, leaving out
// unset fields. Keys distinguishes empty from absent: commits always
// carry it, even with no changed keys.
func (ev TraceEvent) toValue() state.Value {
	obj := state.Object{"type": state.String(ev.Type)}
	if ev.Event != "" {
		obj["event"] = state.String(ev.Event)
	}
	if len(ev.Args) > 0 {
		obj["args"] = state.Array(ev.Args)
	}
	if ev.Defer != "" {
		obj["defer"] = state.String(ev.Defer)
	}
	if ev.Target != "" {
		obj["target"] = state.String(ev.Target)
	}
	if ev.Version != 0 {
		obj["version"] = state.Int(ev.Version)
	}
	if ev.Keys != nil {
		keys := make(state.Array, len(ev.Keys))
		for i, k := range ev.Keys {
			keys[i] = state.String(k)
		}
		obj["keys"] = keys
	}
	if ev.Sub != "" {
		obj["sub"] = state.String(ev.Sub)
	}
	if ev.Value != nil {
		obj["value"] = ev.Value
	}
	if ev.Error != "" {
		obj["error"] = state.String(ev.Error)
	}
	return obj
}

// tracer collects the run's trace and the per-subscription tallies
// assertions read. A scenario runs on one goroutine end to end, the
// one stepping the manual scheduler, so nothing here locks.
type tracer struct {
	trace         []TraceEvent
	recomputes    map[string]int
	notifications map[string][]state.Value
}

func newTracer() *tracer {
	return &tracer{
		recomputes:    make(map[string]int),
		notifications: make(map[string][]state.Value),
	}
}

func (t *tracer) add(ev TraceEvent) {
	t.trace = append(t.trace, ev)
}

// interceptor records every event that reaches its handler. It runs in
// front of the whole chain, so failed handlers still leave a handler
// entry followed by an error entry.
func (t *tracer) interceptor() engine.Interceptor {
	return engine.Interceptor{
		ID: "trace",
		Before: func(ctx *engine.Context) error {
			t.add(TraceEvent{Type: TraceHandler, Event: ctx.Event().Vector.ID, Args: ctx.Args()})
			return nil
		},
	}
}

// recorder turns journal entries into commit trace events, passing
// each entry on to next when a journal is attached.
func (t *tracer) recorder(next engine.Recorder) engine.Recorder {
	return &traceRecorder{t: t, next: next}
}

type traceRecorder struct {
	t    *tracer
	next engine.Recorder
}

func (r *traceRecorder) Record(e engine.Entry) error {
	r.t.add(TraceEvent{
		Type:    TraceCommit,
		Event:   e.Event.ID,
		Version: e.Version,
		Keys:    e.ChangedKeys,
	})
	if r.next != nil {
		return r.next.Record(e)
	}
	return nil
}

// dispatchFx wraps the builtin dispatch effect so follow-on events
// show up in the trace before they are queued.
func (t *tracer) dispatchFx() engine.FxHandler {
	return func(fx *engine.FxContext, payload state.Value) error {
		vec, err := event.VectorFromValue(payload)
		if err != nil {
			return err
		}
		t.add(TraceEvent{
			Type:   TraceEffect,
			Event:  fx.Cause().Vector.ID,
			Target: vec.ID,
			Args:   vec.Args,
		})
		return fx.Dispatch(vec)
	}
}

// invalidated records one bridge flush.
func (t *tracer) invalidated(keys []string) {
	t.add(TraceEvent{Type: TraceInvalidate, Keys: keys})
}

// wrapCompute counts and records every run of a derived subscription's
// compute body. Cache hits never reach the compute, so the count is
// the number of real recomputations.
func (t *tracer) wrapCompute(id string, fn graph.ComputeFunc) graph.ComputeFunc {
	return func(vec event.Vector, inputs []state.Value) (state.Value, error) {
		v, err := fn(vec, inputs)
		if err != nil {
			return nil, err
		}
		t.recomputes[id]++
		t.add(TraceEvent{Type: TraceRecompute, Sub: id, Value: v})
		return v, nil
	}
}

// watchFunc records deliveries to the watcher attached for id.
func (t *tracer) watchFunc(id string) graph.WatchFunc {
	return func(v state.Value) {
		t.notifications[id] = append(t.notifications[id], v)
		t.add(TraceEvent{Type: TraceNotify, Sub: id, Value: v})
	}
}

// onError records a recoverable handler failure.
func (t *tracer) onError(ev event.Event, err error) {
	t.add(TraceEvent{Type: TraceError, Event: ev.Vector.ID, Error: err.Error()})
}
