package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reflow/internal/event"
	"github.com/roach88/reflow/internal/state"
)

func TestComputeSum_Integers(t *testing.T) {
	v, err := computeSum(event.Vector{}, []state.Value{state.Int(3), state.Int(4)})
	require.NoError(t, err)
	assert.Equal(t, state.Int(7), v)
}

func TestComputeSum_FloatPromotes(t *testing.T) {
	v, err := computeSum(event.Vector{}, []state.Value{state.Int(1), state.Float(0.5)})
	require.NoError(t, err)
	assert.Equal(t, state.Float(1.5), v)
}

func TestComputeSum_ArraysContributeElements(t *testing.T) {
	v, err := computeSum(event.Vector{}, []state.Value{
		state.Array{state.Int(1), state.Int(2), state.String("skip")},
		state.Int(10),
	})
	require.NoError(t, err)
	assert.Equal(t, state.Int(13), v)
}

func TestComputeSum_NonNumericContributesNothing(t *testing.T) {
	v, err := computeSum(event.Vector{}, []state.Value{state.String("a"), state.Null{}})
	require.NoError(t, err)
	assert.Equal(t, state.Int(0), v)
}

func TestComputeCount(t *testing.T) {
	tests := []struct {
		name string
		in   state.Value
		want state.Int
	}{
		{"array", state.Array{state.Int(1), state.Int(2)}, 2},
		{"object", state.Object{"a": state.Int(1)}, 1},
		{"null", state.Null{}, 0},
		{"scalar", state.String("x"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := computeCount(event.Vector{}, []state.Value{tt.in})
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestPluck(t *testing.T) {
	in := state.Array{
		state.Object{"title": state.String("feed cat"), "done": state.Bool(false)},
		state.Object{"done": state.Bool(true)},
		state.Int(7),
	}
	out := pluck(in, "title")
	assert.Equal(t, state.Array{state.String("feed cat"), state.Null{}, state.Null{}}, out)
}

func TestPluck_NonArray(t *testing.T) {
	assert.Equal(t, state.Array{}, pluck(state.String("nope"), "title"))
}

func TestComputeConcat_AllStrings(t *testing.T) {
	v, err := computeConcat(event.Vector{}, []state.Value{state.String("ab"), state.String("cd")})
	require.NoError(t, err)
	assert.Equal(t, state.String("abcd"), v)
}

func TestComputeConcat_SplicesArrays(t *testing.T) {
	v, err := computeConcat(event.Vector{}, []state.Value{
		state.Array{state.Int(1)},
		state.Int(2),
		state.Array{state.Int(3), state.Int(4)},
	})
	require.NoError(t, err)
	assert.Equal(t, state.Array{state.Int(1), state.Int(2), state.Int(3), state.Int(4)}, v)
}

func TestActionHandler_UnknownAction(t *testing.T) {
	_, err := actionHandler(&HandlerDef{Event: "x/y", Action: "explode"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
}

func TestOperatorCompute_UnknownOp(t *testing.T) {
	_, err := operatorCompute(&SubDef{ID: "s", Kind: KindDerived, Op: "median"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown op")
}

func TestActionHandler_FixedValueConversionError(t *testing.T) {
	_, err := actionHandler(&HandlerDef{Event: "x/y", Action: ActionSet, Key: "x", Value: make(chan int)})
	require.Error(t, err)
}
