package engine

import (
	"github.com/roach88/reflow/internal/state"
)

// Builtin coeffect ids.
const (
	// CofxNow injects the current time as Unix milliseconds. The
	// engine's time source is an option, so tests and the harness pin
	// it for determinism.
	CofxNow = "now"

	// CofxSnapshot is always present in the Context without being
	// declared: the state tree the event's draft was opened against.
	CofxSnapshot = "snapshot"
)

func installBuiltinCofx(r *Registry, e *Engine) {
	r.registerDefaultCofx(CofxNow, func() (state.Value, error) {
		return state.Int(e.now().UnixMilli()), nil
	})
}
