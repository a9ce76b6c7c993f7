package engine

import (
	"fmt"
	"log/slog"

	"github.com/roach88/reflow/internal/event"
	"github.com/roach88/reflow/internal/state"
)

// Builtin effect ids. User registrations of the same id take
// precedence.
const (
	// FxDispatch queues one follow-on event. Payload: [id, args...].
	FxDispatch = "dispatch"
	// FxDispatchN queues several follow-on events in order. Payload:
	// an array of [id, args...] vectors.
	FxDispatchN = "dispatch-n"
	// FxLog writes the payload to the engine log at info level.
	FxLog = "log"
)

// FxContext is handed to effect executors. Effects run after their
// event's commit, so reads through the engine observe the new state.
type FxContext struct {
	engine *Engine
	cause  event.Event
}

// Cause returns the event whose handler requested this effect.
func (f *FxContext) Cause() event.Event { return f.cause }

// Dispatch queues a follow-on event stamped with the causing event's
// correlation.
func (f *FxContext) Dispatch(vec event.Vector) error {
	return f.engine.dispatch(vec, f.cause.Correlation, event.DeferNone)
}

// GetValue runs a one-shot subscription query against the committed
// state.
func (f *FxContext) GetValue(vec event.Vector) (state.Value, error) {
	return f.engine.GetValue(vec)
}

// Snapshot returns the committed state, including this event's
// changes.
func (f *FxContext) Snapshot() state.Snapshot {
	return f.engine.Snapshot()
}

// Logger returns the engine logger.
func (f *FxContext) Logger() *slog.Logger { return f.engine.log }

// installBuiltinFx registers the dispatch, dispatch-n and log effects.
func installBuiltinFx(r *Registry) {
	r.registerDefaultFx(FxDispatch, func(fx *FxContext, payload state.Value) error {
		vec, err := event.VectorFromValue(payload)
		if err != nil {
			return fmt.Errorf("dispatch effect: %w", err)
		}
		return fx.Dispatch(vec)
	})

	r.registerDefaultFx(FxDispatchN, func(fx *FxContext, payload state.Value) error {
		arr, ok := payload.(state.Array)
		if !ok {
			return fmt.Errorf("dispatch-n effect: payload must be an array of vectors")
		}
		for i, raw := range arr {
			vec, err := event.VectorFromValue(raw)
			if err != nil {
				return fmt.Errorf("dispatch-n effect: index %d: %w", i, err)
			}
			if err := fx.Dispatch(vec); err != nil {
				return fmt.Errorf("dispatch-n effect: index %d: %w", i, err)
			}
		}
		return nil
	})

	r.registerDefaultFx(FxLog, func(fx *FxContext, payload state.Value) error {
		fx.Logger().Info("log effect",
			"event", fx.Cause().Vector.String(),
			"payload", state.ToGo(payload),
		)
		return nil
	})
}
