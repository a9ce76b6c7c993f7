package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/reflow/internal/event"
	"github.com/roach88/reflow/internal/graph"
	"github.com/roach88/reflow/internal/state"
)

// EventHandler computes an event's state change by mutating the
// Context's draft and requesting effects. Returning an error aborts
// the event without committing.
type EventHandler func(ctx *Context) error

// FxHandler executes one effect after its event committed. The
// FxContext carries the causing event and a causal Dispatch.
type FxHandler func(fx *FxContext, payload state.Value) error

// CofxHandler produces a coeffect value injected before the handler
// runs.
type CofxHandler func() (state.Value, error)

// ErrorHandler consumes a handler failure. When registered, the
// failed event is dropped but the queue keeps draining; without one,
// the failure purges the queue.
type ErrorHandler func(ev event.Event, err error)

// InputsFunc lists a subscription's input vectors, possibly derived
// from the subscription's own arguments.
type InputsFunc func(vec event.Vector) []event.Vector

// Inputs returns a static InputsFunc over fixed vectors.
func Inputs(vecs ...event.Vector) InputsFunc {
	return func(event.Vector) []event.Vector { return vecs }
}

type eventRegistration struct {
	handler      EventHandler
	interceptors []Interceptor
	coeffects    []string
}

type subRegistration struct {
	inputs  InputsFunc
	compute graph.ComputeFunc
	equal   graph.EqualFunc
}

// Registry holds every handler the engine can route to. There are
// four kinds: events, subscriptions (roots and derived), effects and
// coeffects, plus one optional error handler. The set of kinds is
// fixed.
//
// A registry is open until an engine is built over it; afterwards
// registration attempts are logged and ignored. Registering an id
// twice within a kind overwrites, with a warning, so test setups can
// stub over defaults.
type Registry struct {
	mu     sync.Mutex
	frozen bool
	log    *slog.Logger

	events map[string]eventRegistration
	roots  map[string]string
	subs   map[string]subRegistration
	fx     map[string]FxHandler
	cofx   map[string]CofxHandler
	errh   ErrorHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		log:    slog.Default(),
		events: make(map[string]eventRegistration),
		roots:  make(map[string]string),
		subs:   make(map[string]subRegistration),
		fx:     make(map[string]FxHandler),
		cofx:   make(map[string]CofxHandler),
	}
}

// EventOption configures an event registration.
type EventOption func(*eventRegistration)

// WithInterceptors wraps the handler in interceptors, run in the
// given order around it.
func WithInterceptors(ics ...Interceptor) EventOption {
	return func(r *eventRegistration) {
		r.interceptors = append(r.interceptors, ics...)
	}
}

// WithCoeffects declares coeffect ids to inject before the handler.
func WithCoeffects(ids ...string) EventOption {
	return func(r *eventRegistration) {
		r.coeffects = append(r.coeffects, ids...)
	}
}

// SubOption configures a subscription registration.
type SubOption func(*subRegistration)

// WithEqual overrides the change detector for a subscription's
// output. The default is deep structural equality.
func WithEqual(eq graph.EqualFunc) SubOption {
	return func(r *subRegistration) { r.equal = eq }
}

// RegisterEvent routes an event id to a handler.
func (r *Registry) RegisterEvent(id string, h EventHandler, opts ...EventOption) {
	if !r.begin("event", id) {
		return
	}
	defer r.mu.Unlock()
	if _, dup := r.events[id]; dup {
		r.log.Warn("overwriting event handler", "id", id)
	}
	reg := eventRegistration{handler: h}
	for _, opt := range opts {
		opt(&reg)
	}
	r.events[id] = reg
}

// RegisterRoot declares a subscription that extracts a top-level key
// from the snapshot. Root subscriptions are what commits invalidate.
func (r *Registry) RegisterRoot(id, key string) {
	if !r.begin("subscription", id) {
		return
	}
	defer r.mu.Unlock()
	if r.subDeclared(id) {
		r.log.Warn("overwriting subscription", "id", id)
		delete(r.subs, id)
	}
	r.roots[id] = key
}

// RegisterSub declares a derived subscription computed from the
// values of its inputs.
func (r *Registry) RegisterSub(id string, inputs InputsFunc, compute graph.ComputeFunc, opts ...SubOption) {
	if !r.begin("subscription", id) {
		return
	}
	defer r.mu.Unlock()
	if r.subDeclared(id) {
		r.log.Warn("overwriting subscription", "id", id)
		delete(r.roots, id)
	}
	reg := subRegistration{inputs: inputs, compute: compute}
	for _, opt := range opts {
		opt(&reg)
	}
	r.subs[id] = reg
}

// RegisterFx routes an effect id to its executor.
func (r *Registry) RegisterFx(id string, h FxHandler) {
	if !r.begin("effect", id) {
		return
	}
	defer r.mu.Unlock()
	if _, dup := r.fx[id]; dup {
		r.log.Warn("overwriting effect handler", "id", id)
	}
	r.fx[id] = h
}

// RegisterCofx routes a coeffect id to its injector.
func (r *Registry) RegisterCofx(id string, h CofxHandler) {
	if !r.begin("coeffect", id) {
		return
	}
	defer r.mu.Unlock()
	if _, dup := r.cofx[id]; dup {
		r.log.Warn("overwriting coeffect handler", "id", id)
	}
	r.cofx[id] = h
}

// SetErrorHandler installs the single error handler. Passing nil
// clears it, returning failures to their default purge behavior.
func (r *Registry) SetErrorHandler(h ErrorHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		r.log.Warn("registry is closed", "kind", "error-handler")
		return
	}
	r.errh = h
}

// begin validates and locks for a registration; the caller unlocks.
func (r *Registry) begin(kind, id string) bool {
	if err := event.ValidateID(id); err != nil {
		r.log.Error("rejected registration", "kind", kind, "id", id, "error", err)
		return false
	}
	r.mu.Lock()
	if r.frozen {
		r.mu.Unlock()
		r.log.Warn("registry is closed", "kind", kind, "id", id)
		return false
	}
	return true
}

func (r *Registry) subDeclared(id string) bool {
	if _, ok := r.roots[id]; ok {
		return true
	}
	_, ok := r.subs[id]
	return ok
}

// freeze closes the registry. Called once by the engine constructor.
func (r *Registry) freeze(log *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
	r.log = log
}

// registerDefaultFx installs a builtin effect without displacing a
// user registration of the same id. Called before freeze.
func (r *Registry) registerDefaultFx(id string, h FxHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fx[id]; !ok {
		r.fx[id] = h
	}
}

func (r *Registry) registerDefaultCofx(id string, h CofxHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cofx[id]; !ok {
		r.cofx[id] = h
	}
}

func (r *Registry) eventFor(id string) (eventRegistration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.events[id]
	return reg, ok
}

func (r *Registry) fxFor(id string) (FxHandler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.fx[id]
	return h, ok
}

func (r *Registry) cofxFor(id string) (CofxHandler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.cofx[id]
	return h, ok
}

func (r *Registry) errorHandler() ErrorHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errh
}

// subVectors lists every declared subscription as a zero-argument
// vector, sorted by id.
func (r *Registry) subVectors() []event.Vector {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.roots)+len(r.subs))
	for id := range r.roots {
		ids = append(ids, id)
	}
	for id := range r.subs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	vecs := make([]event.Vector, len(ids))
	for i, id := range ids {
		vecs[i] = event.Vector{ID: id}
	}
	return vecs
}

// resolve builds the graph spec for a subscription vector. It is the
// graph's Resolver.
func (r *Registry) resolve(vec event.Vector) (graph.Spec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key, ok := r.roots[vec.ID]; ok {
		return graph.Spec{RootKey: key}, nil
	}
	if sub, ok := r.subs[vec.ID]; ok {
		return graph.Spec{
			Inputs:  sub.inputs(vec),
			Compute: sub.compute,
			Equal:   sub.equal,
		}, nil
	}
	return graph.Spec{}, fmt.Errorf("engine: unknown subscription %q", vec.ID)
}
