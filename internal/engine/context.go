package engine

import (
	"log/slog"

	"github.com/roach88/reflow/internal/event"
	"github.com/roach88/reflow/internal/state"
)

// Context carries one event through the interceptor chain: the
// coeffects gathered before the handler, the draft the handler
// mutates, and the effects it requests. It lives for exactly one
// event and is not safe for use outside the chain.
type Context struct {
	evt       event.Event
	draft     *state.Draft
	coeffects map[string]state.Value
	effects   []event.Effect
	scope     [][]string
	fail      bool
	log       *slog.Logger
}

func newContext(ev event.Event, draft *state.Draft, log *slog.Logger) *Context {
	return &Context{
		evt:       ev,
		draft:     draft,
		coeffects: make(map[string]state.Value),
		log:       log,
	}
}

// Event returns the event being processed.
func (c *Context) Event() event.Event { return c.evt }

// Args returns the event's arguments.
func (c *Context) Args() []state.Value { return c.evt.Vector.Args }

// Arg returns the i-th argument, or Null when absent.
func (c *Context) Arg(i int) state.Value {
	if i < 0 || i >= len(c.evt.Vector.Args) {
		return state.Null{}
	}
	return c.evt.Vector.Args[i]
}

// Draft returns the working copy of state, unscoped. Prefer the
// scoped accessors below, which respect Path interceptors.
func (c *Context) Draft() *state.Draft { return c.draft }

// Coeffect returns an injected input by id.
func (c *Context) Coeffect(id string) (state.Value, bool) {
	v, ok := c.coeffects[id]
	return v, ok
}

func (c *Context) setCoeffect(id string, v state.Value) {
	c.coeffects[id] = v
}

// AddEffect appends a named effect to run after commit, in the order
// added.
func (c *Context) AddEffect(id string, payload state.Value) {
	c.effects = append(c.effects, event.Effect{ID: id, Payload: payload})
}

// Dispatch queues a follow-on event as an effect. It runs after this
// event's commit, stamped with this event as its cause.
func (c *Context) Dispatch(vec event.Vector) {
	c.AddEffect(FxDispatch, vec.ToValue())
}

// Effects returns the effects requested so far.
func (c *Context) Effects() []event.Effect { return c.effects }

// SetUnrecoverable marks the failure as one the queue must not
// survive: remaining queued events are purged.
func (c *Context) SetUnrecoverable() { c.fail = true }

// Unrecoverable reports whether SetUnrecoverable was called.
func (c *Context) Unrecoverable() bool { return c.fail }

// Logger returns the engine logger, tagged with the event.
func (c *Context) Logger() *slog.Logger { return c.log }

func (c *Context) pushScope(path []string) { c.scope = append(c.scope, path) }

func (c *Context) popScope() {
	if len(c.scope) > 0 {
		c.scope = c.scope[:len(c.scope)-1]
	}
}

func (c *Context) scopedPath(path []string) []string {
	if len(c.scope) == 0 {
		return path
	}
	full := make([]string, 0, len(path)+4)
	for _, p := range c.scope {
		full = append(full, p...)
	}
	return append(full, path...)
}

// Get reads a key through the current Path scope.
func (c *Context) Get(key string) (state.Value, bool) {
	return c.draft.GetIn(c.scopedPath([]string{key})...)
}

// Set writes a key through the current Path scope.
func (c *Context) Set(key string, v state.Value) error {
	return c.draft.SetIn(c.scopedPath([]string{key}), v)
}

// Update rewrites a key through the current Path scope. fn receives
// Null when the key is absent.
func (c *Context) Update(key string, fn func(state.Value) state.Value) error {
	cur, ok := c.Get(key)
	if !ok {
		cur = state.Null{}
	}
	return c.Set(key, fn(cur))
}

// Delete removes a key through the current Path scope.
func (c *Context) Delete(key string) error {
	return c.draft.DeleteIn(c.scopedPath([]string{key}))
}

// GetIn reads a nested path through the current Path scope.
func (c *Context) GetIn(path ...string) (state.Value, bool) {
	return c.draft.GetIn(c.scopedPath(path)...)
}

// SetIn writes a nested path through the current Path scope.
func (c *Context) SetIn(path []string, v state.Value) error {
	return c.draft.SetIn(c.scopedPath(path), v)
}
