package engine

import (
	"strings"
)

// Path scopes the Context's draft accessors to a nested path for the
// rest of the chain. A handler registered behind Path("ui", "panel")
// reads and writes relative to that subtree. Multiple Paths nest.
//
// Only the scoped accessors (Get, Set, Update, Delete, GetIn, SetIn)
// honor the scope; Draft() stays absolute.
func Path(path ...string) Interceptor {
	return Interceptor{
		ID: "path/" + strings.Join(path, "."),
		Before: func(ctx *Context) error {
			ctx.pushScope(path)
			return nil
		},
		After: func(ctx *Context) error {
			ctx.popScope()
			return nil
		},
	}
}

// After runs fn on the unwind, once the handler and any inner
// interceptors have finished. Typical use is validating what the
// handler staged before it commits.
func After(id string, fn func(*Context) error) Interceptor {
	return Interceptor{ID: "after/" + id, After: fn}
}

// LogEvent logs each event at debug level on entry and exit, with the
// effect count on exit. Install globally to trace a misbehaving flow.
func LogEvent() Interceptor {
	return Interceptor{
		ID: "log-event",
		Before: func(ctx *Context) error {
			ctx.Logger().Debug("event begin", "event", ctx.Event().Vector.String())
			return nil
		},
		After: func(ctx *Context) error {
			ctx.Logger().Debug("event end",
				"event", ctx.Event().Vector.String(),
				"effects", len(ctx.Effects()),
				"dirty", ctx.Draft().Dirty(),
			)
			return nil
		},
	}
}
