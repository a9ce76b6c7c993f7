package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reflow/internal/state"
)

// testResult builds a result by hand so each evaluator can be probed
// without running an engine.
func testResult() *Result {
	return &Result{
		Name: "t",
		Final: state.NewSnapshot(state.Object{
			"counter": state.Int(6),
			"todo":    state.Object{"title": state.String("feed cat")},
		}, 3),
		Trace: []TraceEvent{
			{Type: TraceEnqueue, Event: "counter/set", Args: []state.Value{state.Int(5)}},
			{Type: TraceHandler, Event: "counter/set", Args: []state.Value{state.Int(5)}},
			{Type: TraceCommit, Event: "counter/set", Version: 2, Keys: []string{"counter"}},
			{Type: TraceHandler, Event: "counter/inc"},
			{Type: TraceCommit, Event: "counter/inc", Version: 3, Keys: []string{"counter"}},
		},
		Recomputes:    map[string]int{"doubled": 2},
		Notifications: map[string][]state.Value{"counter": {state.Int(5), state.Int(6)}},
	}
}

func TestEvalFinalState_Key(t *testing.T) {
	res := testResult()
	assert.NoError(t, evaluate(&Assertion{Type: AssertFinalState, Key: "counter", Value: 6}, res))

	err := evaluate(&Assertion{Type: AssertFinalState, Key: "counter", Value: 7}, res)
	require.Error(t, err)

	aerr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, AssertFinalState, aerr.Type)
	assert.Equal(t, "counter = 7", aerr.Expected)
	assert.Equal(t, "6", aerr.Actual)
}

func TestEvalFinalState_Path(t *testing.T) {
	res := testResult()
	assert.NoError(t, evaluate(&Assertion{
		Type: AssertFinalState, Path: []string{"todo", "title"}, Value: "feed cat",
	}, res))

	err := evaluate(&Assertion{
		Type: AssertFinalState, Path: []string{"todo", "title"}, Value: "water plants",
	}, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "todo.title")
}

func TestEvalFinalState_MissingKeyIsNull(t *testing.T) {
	res := testResult()
	assert.NoError(t, evaluate(&Assertion{Type: AssertFinalState, Key: "ghost"}, res))
	assert.NoError(t, evaluate(&Assertion{Type: AssertFinalState, Path: []string{"todo", "ghost"}}, res))

	err := evaluate(&Assertion{Type: AssertFinalState, Key: "ghost", Value: 1}, res)
	require.Error(t, err)

	aerr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, "null", aerr.Actual)
}

func TestEvalFinalState_WholeTree(t *testing.T) {
	res := testResult()
	assert.NoError(t, evaluate(&Assertion{
		Type: AssertFinalState,
		Value: map[string]any{
			"counter": 6,
			"todo":    map[string]any{"title": "feed cat"},
		},
	}, res))
}

func TestEvalNotifications(t *testing.T) {
	res := testResult()
	assert.NoError(t, evaluate(&Assertion{
		Type: AssertNotifications, Watch: "counter", Values: []any{5, 6},
	}, res))

	err := evaluate(&Assertion{Type: AssertNotifications, Watch: "counter", Values: []any{6}}, res)
	require.Error(t, err)

	aerr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, "counter notified [6]", aerr.Expected)
	assert.Equal(t, "[5,6]", aerr.Actual)
}

// A watcher that never fired compares equal to an empty expectation.
func TestEvalNotifications_NeverNotified(t *testing.T) {
	res := testResult()
	assert.NoError(t, evaluate(&Assertion{Type: AssertNotifications, Watch: "silent"}, res))
}

func TestEvalRecomputes(t *testing.T) {
	res := testResult()
	assert.NoError(t, evaluate(&Assertion{Type: AssertRecomputes, Sub: "doubled", Count: 2}, res))

	err := evaluate(&Assertion{Type: AssertRecomputes, Sub: "doubled", Count: 3}, res)
	require.Error(t, err)

	aerr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, "doubled recomputed 3 times", aerr.Expected)
	assert.Equal(t, "2", aerr.Actual)
}

func TestEvalTraceCount(t *testing.T) {
	res := testResult()
	assert.NoError(t, evaluate(&Assertion{Type: AssertTraceCount, Trace: TraceCommit, Count: 2}, res))
	assert.NoError(t, evaluate(&Assertion{
		Type: AssertTraceCount, Trace: TraceHandler, Event: "counter/inc", Count: 1,
	}, res))

	err := evaluate(&Assertion{Type: AssertTraceCount, Trace: TraceNotify, Count: 1}, res)
	require.Error(t, err)

	aerr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, "1 notify events", aerr.Expected)
	assert.Equal(t, "0", aerr.Actual)
}

func TestEvalTraceCount_EventFilterInMessage(t *testing.T) {
	res := testResult()
	err := evaluate(&Assertion{
		Type: AssertTraceCount, Trace: TraceCommit, Event: "counter/set", Count: 2,
	}, res)
	require.Error(t, err)

	aerr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, "2 commit events for counter/set", aerr.Expected)
	assert.Equal(t, "1", aerr.Actual)
}

func TestEvaluateAssertions_CollectsAllFailures(t *testing.T) {
	sc := &Scenario{
		Name: "t",
		Assertions: []Assertion{
			{Type: AssertFinalState, Key: "counter", Value: 6},
			{Type: AssertFinalState, Key: "counter", Value: 9},
			{Type: AssertRecomputes, Sub: "doubled", Count: 5},
		},
	}
	failures := EvaluateAssertions(sc, testResult())
	require.Len(t, failures, 2)
	assert.Contains(t, failures[0], "counter = 9")
	assert.Contains(t, failures[1], "doubled recomputed 5 times")
}

func TestAssertionError_Error(t *testing.T) {
	err := &AssertionError{Type: "final-state", Expected: "counter = 7", Actual: "6"}
	assert.Equal(t, "assertion final-state failed: expected counter = 7, actual 6", err.Error())
}
