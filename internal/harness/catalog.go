package harness

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/reflow/internal/engine"
	"github.com/roach88/reflow/internal/event"
	"github.com/roach88/reflow/internal/graph"
	"github.com/roach88/reflow/internal/state"
)

// buildCatalog registers the scenario's handlers and subscriptions on
// reg. A nil tracer wires plain builtins with no trace hooks and no
// error handler, which is what replay wants: handler failures then
// surface as dispatch errors instead of being consumed.
func buildCatalog(reg *engine.Registry, sc *Scenario, tr *tracer) error {
	for i := range sc.Handlers {
		def := &sc.Handlers[i]
		h, err := actionHandler(def)
		if err != nil {
			return fmt.Errorf("handlers[%d]: %v", i, err)
		}
		reg.RegisterEvent(def.Event, h)
	}

	for i := range sc.Subscriptions {
		def := &sc.Subscriptions[i]
		if def.Kind == KindRoot {
			reg.RegisterRoot(def.ID, def.Key)
			continue
		}
		compute, err := operatorCompute(def)
		if err != nil {
			return fmt.Errorf("subscriptions[%d]: %v", i, err)
		}
		if tr != nil {
			compute = tr.wrapCompute(def.ID, compute)
		}
		inputs := make([]event.Vector, len(def.Inputs))
		for j, in := range def.Inputs {
			inputs[j] = event.NewVector(in)
		}
		reg.RegisterSub(def.ID, engine.Inputs(inputs...), compute)
	}

	if tr != nil {
		reg.RegisterFx(engine.FxDispatch, tr.dispatchFx())
		reg.SetErrorHandler(tr.onError)
	}
	return nil
}

// actionHandler compiles one handler declaration into an event
// handler. Fixed values and emit targets are converted once here, not
// on every dispatch.
func actionHandler(def *HandlerDef) (engine.EventHandler, error) {
	switch def.Action {
	case ActionSet:
		fixed, err := fixedValue(def)
		if err != nil {
			return nil, err
		}
		key := def.Key
		return func(ctx *engine.Context) error {
			v := fixed
			if v == nil {
				v = ctx.Arg(0)
			}
			return ctx.Set(key, v)
		}, nil

	case ActionSetIn:
		fixed, err := fixedValue(def)
		if err != nil {
			return nil, err
		}
		path := def.Path
		return func(ctx *engine.Context) error {
			v := fixed
			if v == nil {
				v = ctx.Arg(0)
			}
			return ctx.SetIn(path, v)
		}, nil

	case ActionInc:
		key := def.Key
		by := def.By
		if by == 0 {
			by = 1
		}
		return func(ctx *engine.Context) error {
			return ctx.Update(key, func(v state.Value) state.Value {
				n, _ := v.(state.Int)
				return n + state.Int(by)
			})
		}, nil

	case ActionRemove:
		key := def.Key
		return func(ctx *engine.Context) error {
			return ctx.Delete(key)
		}, nil

	case ActionFail:
		msg := def.Message
		if msg == "" {
			msg = "handler failed"
		}
		unrecoverable := def.Unrecoverable
		return func(ctx *engine.Context) error {
			if unrecoverable {
				ctx.SetUnrecoverable()
			}
			return errors.New(msg)
		}, nil

	case ActionEmit:
		vecs := make([]event.Vector, len(def.Events))
		for i, raw := range def.Events {
			vec, err := vectorFromList(raw)
			if err != nil {
				return nil, fmt.Errorf("events[%d]: %v", i, err)
			}
			vecs[i] = vec
		}
		return func(ctx *engine.Context) error {
			for _, vec := range vecs {
				ctx.Dispatch(vec)
			}
			return nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown action %q", def.Action)
	}
}

func fixedValue(def *HandlerDef) (state.Value, error) {
	if def.Value == nil {
		return nil, nil
	}
	return state.FromGo(def.Value)
}

// operatorCompute compiles one derived subscription declaration into
// its compute function. Arity was checked during validation; the
// functions index inputs accordingly.
func operatorCompute(def *SubDef) (graph.ComputeFunc, error) {
	switch def.Op {
	case OpIdentity:
		return func(_ event.Vector, inputs []state.Value) (state.Value, error) {
			return inputs[0], nil
		}, nil
	case OpSum:
		return computeSum, nil
	case OpCount:
		return computeCount, nil
	case OpPluck:
		field := def.Field
		return func(_ event.Vector, inputs []state.Value) (state.Value, error) {
			return pluck(inputs[0], field), nil
		}, nil
	case OpConcat:
		return computeConcat, nil
	default:
		return nil, fmt.Errorf("unknown op %q", def.Op)
	}
}

// computeSum adds every numeric input; array inputs contribute their
// numeric elements and everything else contributes nothing. The
// result stays integral unless a float took part.
func computeSum(_ event.Vector, inputs []state.Value) (state.Value, error) {
	var ints int64
	var floats float64
	sawFloat := false
	add := func(v state.Value) {
		switch tv := v.(type) {
		case state.Int:
			ints += int64(tv)
		case state.Float:
			floats += float64(tv)
			sawFloat = true
		}
	}
	for _, in := range inputs {
		if arr, ok := in.(state.Array); ok {
			for _, e := range arr {
				add(e)
			}
			continue
		}
		add(in)
	}
	if sawFloat {
		return state.Float(float64(ints) + floats), nil
	}
	return state.Int(ints), nil
}

// computeCount reports the size of its input: array length, object
// key count, zero for null and one for any other scalar.
func computeCount(_ event.Vector, inputs []state.Value) (state.Value, error) {
	switch tv := inputs[0].(type) {
	case state.Array:
		return state.Int(len(tv)), nil
	case state.Object:
		return state.Int(len(tv)), nil
	case nil, state.Null:
		return state.Int(0), nil
	default:
		return state.Int(1), nil
	}
}

// pluck extracts field from every object element. Non-object elements
// and missing fields yield null, so the output length always matches
// the input length. A non-array input plucks to an empty array.
func pluck(v state.Value, field string) state.Value {
	arr, ok := v.(state.Array)
	if !ok {
		return state.Array{}
	}
	out := make(state.Array, len(arr))
	for i, e := range arr {
		obj, ok := e.(state.Object)
		if !ok {
			out[i] = state.Null{}
			continue
		}
		fv, ok := obj[field]
		if !ok {
			out[i] = state.Null{}
			continue
		}
		out[i] = fv
	}
	return out
}

// computeConcat joins string inputs into one string when every input
// is a string. Otherwise it builds an array, splicing array inputs
// and appending everything else as single elements.
func computeConcat(_ event.Vector, inputs []state.Value) (state.Value, error) {
	allStrings := len(inputs) > 0
	for _, in := range inputs {
		if _, ok := in.(state.String); !ok {
			allStrings = false
			break
		}
	}
	if allStrings {
		var sb strings.Builder
		for _, in := range inputs {
			sb.WriteString(string(in.(state.String)))
		}
		return state.String(sb.String()), nil
	}
	out := state.Array{}
	for _, in := range inputs {
		if arr, ok := in.(state.Array); ok {
			out = append(out, arr...)
			continue
		}
		out = append(out, in)
	}
	return out, nil
}
