package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/reflow/internal/state"
)

// AssertionError describes one failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion %s failed: expected %s, actual %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions checks every assertion against the result and
// returns the failures in assertion order. Assertion shapes were
// checked at load time, so evaluation never errors on its own.
func EvaluateAssertions(sc *Scenario, res *Result) []string {
	var failures []string
	for i := range sc.Assertions {
		if err := evaluate(&sc.Assertions[i], res); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluate(a *Assertion, res *Result) error {
	switch a.Type {
	case AssertFinalState:
		return evalFinalState(a, res)
	case AssertNotifications:
		return evalNotifications(a, res)
	case AssertRecomputes:
		return evalRecomputes(a, res)
	case AssertTraceCount:
		return evalTraceCount(a, res)
	default:
		return &AssertionError{Type: a.Type, Expected: "a known assertion type", Actual: a.Type}
	}
}

// evalFinalState compares one key, one path or the whole committed
// tree. A missing key or path compares equal to null.
func evalFinalState(a *Assertion, res *Result) error {
	want, err := state.FromGo(a.Value)
	if err != nil {
		return &AssertionError{Type: a.Type, Expected: "a convertible value", Actual: err.Error()}
	}
	var got state.Value
	var where string
	switch {
	case a.Key != "":
		where = a.Key
		v, ok := res.Final.Get(a.Key)
		if !ok {
			v = state.Null{}
		}
		got = v
	case len(a.Path) > 0:
		where = strings.Join(a.Path, ".")
		v, ok := res.Final.GetIn(a.Path...)
		if !ok {
			v = state.Null{}
		}
		got = v
	default:
		where = "state"
		got = res.Final.Root()
	}
	if !state.Equal(got, want) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s = %s", where, render(want)),
			Actual:   render(got),
		}
	}
	return nil
}

// evalNotifications compares the exact ordered list of values the
// watcher received.
func evalNotifications(a *Assertion, res *Result) error {
	want := make([]state.Value, len(a.Values))
	for i, raw := range a.Values {
		v, err := state.FromGo(raw)
		if err != nil {
			return &AssertionError{Type: a.Type, Expected: "convertible values", Actual: err.Error()}
		}
		want[i] = v
	}
	got := res.Notifications[a.Watch]
	if !valuesEqual(got, want) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s notified %s", a.Watch, render(state.Array(want))),
			Actual:   render(state.Array(got)),
		}
	}
	return nil
}

func evalRecomputes(a *Assertion, res *Result) error {
	got := res.Recomputes[a.Sub]
	if got != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s recomputed %d times", a.Sub, a.Count),
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

func evalTraceCount(a *Assertion, res *Result) error {
	got := 0
	for _, ev := range res.Trace {
		if ev.Type != a.Trace {
			continue
		}
		if a.Event != "" && ev.Event != a.Event {
			continue
		}
		got++
	}
	if got != a.Count {
		expected := fmt.Sprintf("%d %s events", a.Count, a.Trace)
		if a.Event != "" {
			expected += fmt.Sprintf(" for %s", a.Event)
		}
		return &AssertionError{
			Type:     a.Type,
			Expected: expected,
			Actual:   fmt.Sprintf("%d", got),
		}
	}
	return nil
}

// render gives a value its canonical form for failure messages,
// falling back to Go syntax for values with no canonical form.
func render(v state.Value) string {
	b, err := state.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func valuesEqual(a, b []state.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !state.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
