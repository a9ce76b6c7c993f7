package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reflow/internal/event"
	"github.com/roach88/reflow/internal/state"
)

func checkFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	passthrough := func(v event.Vector, in []state.Value) (state.Value, error) {
		return in[0], nil
	}
	f.root("n", "n")
	f.derived("double", []event.Vector{vec("n")}, passthrough)
	f.derived("succ", []event.Vector{vec("n")}, passthrough)
	f.specs["sum"] = Spec{
		Inputs: []event.Vector{vec("double"), vec("succ")},
		Compute: func(v event.Vector, in []state.Value) (state.Value, error) {
			return in[0], nil
		},
	}
	return f
}

func (f *fixture) resolver() Resolver {
	return func(v event.Vector) (Spec, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		s, ok := f.specs[v.ID]
		if !ok {
			return Spec{}, errors.New("no subscription " + v.ID)
		}
		return s, nil
	}
}

func TestCheckAcyclic_DiamondPasses(t *testing.T) {
	f := checkFixture(t)

	err := CheckAcyclic(f.resolver(), []event.Vector{vec("sum"), vec("double")})
	assert.NoError(t, err)
}

func TestCheckAcyclic_ReportsCyclePath(t *testing.T) {
	f := checkFixture(t)
	f.specs["a"] = Spec{
		Inputs:  []event.Vector{vec("b")},
		Compute: func(event.Vector, []state.Value) (state.Value, error) { return nil, nil },
	}
	f.specs["b"] = Spec{
		Inputs:  []event.Vector{vec("a")},
		Compute: func(event.Vector, []state.Value) (state.Value, error) { return nil, nil },
	}

	err := CheckAcyclic(f.resolver(), []event.Vector{vec("a")})
	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"a", "b", "a"}, ce.Path)
}

func TestCheckAcyclic_SelfCycle(t *testing.T) {
	f := newFixture(t)
	f.specs["loop"] = Spec{
		Inputs:  []event.Vector{vec("loop")},
		Compute: func(event.Vector, []state.Value) (state.Value, error) { return nil, nil },
	}

	err := CheckAcyclic(f.resolver(), []event.Vector{vec("loop")})
	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"loop", "loop"}, ce.Path)
}

func TestCheckAcyclic_CycleBelowEntryPoint(t *testing.T) {
	f := checkFixture(t)
	f.specs["a"] = Spec{
		Inputs:  []event.Vector{vec("b")},
		Compute: func(event.Vector, []state.Value) (state.Value, error) { return nil, nil },
	}
	f.specs["b"] = Spec{
		Inputs:  []event.Vector{vec("a")},
		Compute: func(event.Vector, []state.Value) (state.Value, error) { return nil, nil },
	}
	f.specs["top"] = Spec{
		Inputs:  []event.Vector{vec("double"), vec("a")},
		Compute: func(event.Vector, []state.Value) (state.Value, error) { return nil, nil },
	}

	err := CheckAcyclic(f.resolver(), []event.Vector{vec("top")})
	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	// The reported path starts at the cycle, not at the entry point.
	assert.Equal(t, []string{"a", "b", "a"}, ce.Path)
}

func TestCheckAcyclic_UnknownInputFails(t *testing.T) {
	f := newFixture(t)
	f.specs["needs"] = Spec{
		Inputs:  []event.Vector{vec("ghost")},
		Compute: func(event.Vector, []state.Value) (state.Value, error) { return nil, nil },
	}

	err := CheckAcyclic(f.resolver(), []event.Vector{vec("needs")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestCheckAcyclic_NothingToCheck(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, CheckAcyclic(f.resolver(), nil))
}
