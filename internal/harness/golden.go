package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/reflow/internal/state"
)

// TraceSnapshot is the canonical rendering of one finished run: the
// scenario name, pass or fail, the final tree and the full trace.
// Golden fixtures hold its canonical JSON bytes, so any behavior
// change in the engine shows up as a fixture diff.
type TraceSnapshot struct {
	Scenario string       `json:"scenario"`
	Pass     bool         `json:"pass"`
	Final    state.Object `json:"final"`
	Version  int64        `json:"version"`
	Trace    []TraceEvent `json:"trace"`
	Failures []string     `json:"failures,omitempty"`
}

// Snapshot collects the golden-relevant parts of a result.
func Snapshot(res *Result) *TraceSnapshot {
	return &TraceSnapshot{
		Scenario: res.Name,
		Pass:     res.Pass,
		Final:    res.Final.Root(),
		Version:  res.Final.Version(),
		Trace:    res.Trace,
		Failures: res.Failures,
	}
}

// MarshalCanonical renders the snapshot deterministically: sorted
// keys, no insignificant whitespace, unset trace fields left out.
// Equal runs produce equal bytes.
func (s *TraceSnapshot) MarshalCanonical() ([]byte, error) {
	trace := make(state.Array, len(s.Trace))
	for i, ev := range s.Trace {
		trace[i] = ev.toValue()
	}
	obj := state.Object{
		"scenario": state.String(s.Scenario),
		"pass":     state.Bool(s.Pass),
		"final":    s.Final,
		"version":  state.Int(s.Version),
		"trace":    trace,
	}
	if len(s.Failures) > 0 {
		fails := make(state.Array, len(s.Failures))
		for i, f := range s.Failures {
			fails[i] = state.String(f)
		}
		obj["failures"] = fails
	}
	return state.MarshalCanonical(obj)
}

// RunWithGolden executes the scenario and compares its snapshot
// against testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, sc *Scenario) (*Result, error) {
	t.Helper()
	res, err := Run(sc)
	if err != nil {
		return nil, err
	}
	return res, AssertGolden(t, sc.Name, res)
}

// AssertGolden compares an already-run result against the golden
// fixture for name.
func AssertGolden(t *testing.T, name string, res *Result) error {
	t.Helper()
	data, err := Snapshot(res).MarshalCanonical()
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
