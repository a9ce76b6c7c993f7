package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/roach88/reflow/internal/event"
	"github.com/roach88/reflow/internal/graph"
	"github.com/roach88/reflow/internal/sched"
	"github.com/roach88/reflow/internal/state"
)

// Entry is one processed event as the journal sees it: what ran, in
// what order, and the fingerprint of the state it left behind.
type Entry struct {
	Seq         int64
	Correlation string
	Cause       string
	Event       event.Vector
	Version     int64
	Fingerprint string
	ChangedKeys []string
}

// Recorder receives an Entry for every processed event. Implemented
// by the journal; a failing Recorder is logged, never fatal.
type Recorder interface {
	Record(entry Entry) error
}

// Engine ties the pieces together: events go through the queue into
// the interceptor chain, commits flow through the bridge into the
// graph, and effects run last.
//
// All event processing happens on scheduler slices. With the loop
// scheduler that is one goroutine, which is what makes processing
// single-writer; Dispatch itself is safe from any goroutine.
type Engine struct {
	log    *slog.Logger
	reg    *Registry
	store  *state.Store
	clock  *Clock
	ids    IDGenerator
	g      *graph.Graph
	bridge *graph.Bridge
	q      *queue

	recorder    Recorder
	now         func() time.Time
	global      []Interceptor
	drainBudget int
	closed      atomic.Bool
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLogger sets the logger. Subsystems tag it with their component.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithIDGenerator overrides correlation id generation. Tests use
// FixedGenerator or the sequential generator for stable traces.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithClock starts the logical clock at a given position, which
// replay uses to continue a journal.
func WithClock(c *Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithRecorder attaches a journal. Every processed event produces one
// Entry.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithNow fixes the time source behind the now coeffect.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithGlobalInterceptors installs interceptors around every event, in
// front of per-handler ones.
func WithGlobalInterceptors(ics ...Interceptor) Option {
	return func(e *Engine) { e.global = append(e.global, ics...) }
}

// WithDrainBudget caps events processed per drain slice. Excess
// events roll over to a fresh slice, keeping one runaway cascade from
// starving other scheduled work. Zero means unlimited.
func WithDrainBudget(n int) Option {
	return func(e *Engine) { e.drainBudget = n }
}

// New builds an engine over a registry and closes the registry. The
// scheduler decides where slices run: the loop scheduler for
// production, immediate or manual for tests.
func New(reg *Registry, s sched.Scheduler, opts ...Option) *Engine {
	e := &Engine{
		log:   slog.Default(),
		reg:   reg,
		store: state.NewStore(),
		clock: NewClock(),
		ids:   UUIDv7Generator{},
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	installBuiltinFx(reg)
	installBuiltinCofx(reg, e)
	base := e.log
	reg.freeze(base)

	e.g = graph.New(reg.resolve, e.store.Current, s, base)
	e.bridge = graph.NewBridge(e.g, s, base)
	e.q = newQueue(s, e.processEvent, e.onPurge, base.With("component", "queue"), e.drainBudget)
	e.log = base.With("component", "engine")
	return e
}

// Dispatch validates and queues an event. Processing happens on a
// later scheduler slice; handler failures surface through the error
// handler or the queue purge, not here.
func (e *Engine) Dispatch(vec event.Vector) error {
	return e.dispatch(vec, "", event.DeferNone)
}

// DispatchSettled queues an event that waits for pending watcher
// notifications to flush before it runs.
func (e *Engine) DispatchSettled(vec event.Vector) error {
	return e.dispatch(vec, "", event.DeferSettle)
}

// DispatchYield queues an event that waits for the next scheduler
// slice before it runs, letting already-booked work go first.
func (e *Engine) DispatchYield(vec event.Vector) error {
	return e.dispatch(vec, "", event.DeferYield)
}

func (e *Engine) dispatch(vec event.Vector, cause string, mode event.Defer) error {
	if e.closed.Load() {
		return &DispatchError{Code: ErrCodeEngineClosed, EventID: vec.ID, Message: "engine is closed"}
	}
	if err := vec.Validate(); err != nil {
		return &DispatchError{Code: ErrCodeInvalidEvent, EventID: vec.ID, Message: err.Error()}
	}
	if _, ok := e.reg.eventFor(vec.ID); !ok {
		return &DispatchError{Code: ErrCodeUnknownEvent, EventID: vec.ID, Message: "no handler registered"}
	}
	e.q.Push(event.Event{
		Vector:      vec,
		Correlation: e.ids.NewID(),
		Cause:       cause,
		Defer:       mode,
	})
	return nil
}

// DispatchSync processes an event immediately, bypassing the queue,
// and returns its failure directly. It must run where event slices
// run; replay and tests are the intended callers.
func (e *Engine) DispatchSync(vec event.Vector) error {
	if e.closed.Load() {
		return &DispatchError{Code: ErrCodeEngineClosed, EventID: vec.ID, Message: "engine is closed"}
	}
	if err := vec.Validate(); err != nil {
		return &DispatchError{Code: ErrCodeInvalidEvent, EventID: vec.ID, Message: err.Error()}
	}
	if _, ok := e.reg.eventFor(vec.ID); !ok {
		return &DispatchError{Code: ErrCodeUnknownEvent, EventID: vec.ID, Message: "no handler registered"}
	}
	return e.processEvent(event.Event{Vector: vec, Correlation: e.ids.NewID()})
}

// processEvent runs one event end to end: coeffects, chain, commit,
// journal, invalidation, effects. A non-nil return means the failure
// is unrecoverable and the queue must purge.
func (e *Engine) processEvent(ev event.Event) error {
	reg, ok := e.reg.eventFor(ev.Vector.ID)
	if !ok {
		// Dispatch validates registration, so this means the event
		// came from a stale journal or a buggy effect.
		return e.failEvent(ev, &DispatchError{
			Code: ErrCodeUnknownEvent, EventID: ev.Vector.ID, Message: "no handler registered",
		}, false)
	}

	base := e.store.Current()
	ctx := newContext(ev, state.NewDraft(base),
		e.log.With("event", ev.Vector.ID, "correlation", ev.Correlation))
	ctx.setCoeffect(CofxSnapshot, base.Root())

	chain, err := e.buildChain(ev.Vector.ID, reg)
	if err != nil {
		return e.failEvent(ev, err, false)
	}

	if err := runChain(ctx, chain); err != nil || ctx.Unrecoverable() {
		if err == nil {
			err = fmt.Errorf("event %s: marked unrecoverable by handler", ev.Vector)
		}
		return e.failEvent(ev, err, ctx.Unrecoverable())
	}

	snap, patches := e.store.Apply(ctx.draft)
	e.record(ev, snap, patches)
	e.bridge.OnCommit(patches)
	e.runEffects(ev, ctx.Effects())
	return nil
}

// failEvent routes a failure to the error handler if one is
// registered and the failure is recoverable. Otherwise it propagates,
// and the queue purges.
func (e *Engine) failEvent(ev event.Event, err error, unrecoverable bool) error {
	if !unrecoverable {
		if eh := e.reg.errorHandler(); eh != nil {
			e.log.Warn("event failed", "event", ev.Vector.String(), "error", err)
			eh(ev, err)
			return nil
		}
	}
	return err
}

func (e *Engine) buildChain(id string, reg eventRegistration) ([]Interceptor, error) {
	chain := make([]Interceptor, 0, len(e.global)+len(reg.coeffects)+len(reg.interceptors)+1)
	chain = append(chain, e.global...)
	for _, cid := range reg.coeffects {
		h, ok := e.reg.cofxFor(cid)
		if !ok {
			return nil, &DispatchError{Code: ErrCodeUnknownCoeffect, EventID: id,
				Message: fmt.Sprintf("coeffect %q is not registered", cid)}
		}
		chain = append(chain, injectCofx(cid, h))
	}
	chain = append(chain, reg.interceptors...)
	chain = append(chain, handlerInterceptor(id, reg.handler))
	return chain, nil
}

func (e *Engine) record(ev event.Event, snap state.Snapshot, patches []state.Patch) {
	seq := e.clock.Next()
	if e.recorder == nil {
		return
	}
	fp, err := snap.Fingerprint()
	if err != nil {
		e.log.Warn("state fingerprint failed", "seq", seq, "error", err)
	}
	keys := make([]string, len(patches))
	for i, p := range patches {
		keys[i] = p.Key()
	}
	entry := Entry{
		Seq:         seq,
		Correlation: ev.Correlation,
		Cause:       ev.Cause,
		Event:       ev.Vector,
		Version:     snap.Version(),
		Fingerprint: fp,
		ChangedKeys: keys,
	}
	if rerr := e.recorder.Record(entry); rerr != nil {
		e.log.Warn("journal record failed", "seq", seq, "error", rerr)
	}
}

func (e *Engine) runEffects(ev event.Event, effects []event.Effect) {
	if len(effects) == 0 {
		return
	}
	fctx := &FxContext{engine: e, cause: ev}
	for _, fx := range effects {
		h, ok := e.reg.fxFor(fx.ID)
		if !ok {
			e.log.Error("unknown effect", "effect", fx.ID, "event", ev.Vector.String())
			continue
		}
		if err := runFx(h, fctx, fx.Payload); err != nil {
			e.log.Error("effect failed", "effect", fx.ID, "event", ev.Vector.String(), "error", err)
		}
	}
}

func runFx(h FxHandler, fctx *FxContext, payload state.Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(fctx, payload)
}

func (e *Engine) onPurge(dropped []event.Event, cause error) {
	e.log.Error("queue purged", "cause", cause, "dropped", len(dropped))
	for _, ev := range dropped {
		e.log.Debug("event dropped", "event", ev.Vector.String(), "correlation", ev.Correlation)
	}
}

// Watch subscribes to a derived value. See graph.Graph.Watch.
func (e *Engine) Watch(vec event.Vector, fn graph.WatchFunc) (*graph.Watcher, error) {
	return e.g.Watch(vec, fn)
}

// GetValue runs a one-shot subscription query against committed
// state.
func (e *Engine) GetValue(vec event.Vector) (state.Value, error) {
	return e.g.GetValue(vec)
}

// Snapshot returns the latest committed state.
func (e *Engine) Snapshot() state.Snapshot {
	return e.store.Current()
}

// Seq returns the logical clock position: how many events have been
// processed.
func (e *Engine) Seq() int64 {
	return e.clock.Current()
}

// QueueState exposes the queue's lifecycle state.
func (e *Engine) QueueState() QueueState {
	return e.q.State()
}

// QueueLen reports how many events are waiting.
func (e *Engine) QueueLen() int {
	return e.q.Len()
}

// NodeCount reports live subscription nodes.
func (e *Engine) NodeCount() int {
	return e.g.NodeCount()
}

// CheckSubscriptions statically vets the declared subscription
// catalog for dependency cycles without materializing nodes.
// Parameterized subscriptions are checked in their zero-argument
// form.
func (e *Engine) CheckSubscriptions() error {
	return graph.CheckAcyclic(e.reg.resolve, e.reg.subVectors())
}

// OnInvalidate registers an observer for each commit's invalidated
// keys. The harness records traces through it.
func (e *Engine) OnInvalidate(fn func(keys []string)) {
	e.bridge.SetObserver(fn)
}

// ResetState replaces the whole tree and invalidates every key that
// existed on either side of the reset. The harness uses it to install
// a scenario's initial state.
func (e *Engine) ResetState(root state.Object) {
	old := e.store.Current().Root()
	e.store.Reset(root)
	keySet := make(map[string]struct{}, len(old)+len(root))
	for k := range old {
		keySet[k] = struct{}{}
	}
	for k := range root {
		keySet[k] = struct{}{}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	e.g.Invalidate(keys)
}

// Close rejects further dispatches and drops queued events. In-flight
// slices finish; watchers stay registered but receive nothing new
// unless state changes again.
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}
	e.q.Purge()
	e.log.Info("engine closed", "seq", e.clock.Current())
}
