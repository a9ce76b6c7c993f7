package engine

import "fmt"

// Interceptor wraps event processing in two phases. The chain runs
// every Before front to back, then unwinds, running every After back
// to front. The event handler itself sits at the end of the chain as
// a Before with no After.
//
// An error or panic in either phase aborts the chain: later Befores
// and all Afters are skipped, and the error surfaces as a PhaseError.
type Interceptor struct {
	ID     string
	Before func(*Context) error
	After  func(*Context) error
}

// runChain executes the full two-phase pass over ctx. The chain slice
// is the pending queue; walking it in reverse after the forward pass
// is the unwind of the executed stack.
func runChain(ctx *Context, chain []Interceptor) error {
	vec := ctx.Event().Vector
	for i := range chain {
		if chain[i].Before == nil {
			continue
		}
		if err := safeCall(chain[i].Before, ctx); err != nil {
			return &PhaseError{Phase: PhaseBefore, InterceptorID: chain[i].ID, Event: vec, Err: err}
		}
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if chain[i].After == nil {
			continue
		}
		if err := safeCall(chain[i].After, ctx); err != nil {
			return &PhaseError{Phase: PhaseAfter, InterceptorID: chain[i].ID, Event: vec, Err: err}
		}
	}
	return nil
}

func safeCall(fn func(*Context) error, ctx *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// handlerInterceptor is the terminal link that invokes the registered
// event handler.
func handlerInterceptor(id string, h EventHandler) Interceptor {
	return Interceptor{
		ID:     "handler/" + id,
		Before: func(ctx *Context) error { return h(ctx) },
	}
}

// injectCofx resolves a coeffect at the front of the chain so the
// handler finds it ready in the Context.
func injectCofx(id string, h CofxHandler) Interceptor {
	return Interceptor{
		ID: "cofx/" + id,
		Before: func(ctx *Context) error {
			v, err := h()
			if err != nil {
				return fmt.Errorf("coeffect %q: %w", id, err)
			}
			ctx.setCoeffect(id, v)
			return nil
		},
	}
}
