package journal

import (
	"path/filepath"
	"testing"

	"github.com/roach88/reflow/internal/engine"
	"github.com/roach88/reflow/internal/event"
	"github.com/roach88/reflow/internal/state"
	"github.com/roach88/reflow/internal/testutil"
)

// openTestJournal opens a journal in a temp directory, closed with the
// test.
func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

// counterHandlers registers the shared fixture catalog: a counter key
// with set and inc events, plus a chain event whose effect dispatches
// a follow-up inc.
func counterHandlers(reg *engine.Registry) {
	reg.RegisterRoot("counter", "counter")
	reg.RegisterEvent("counter/set", func(ctx *engine.Context) error {
		return ctx.Set("counter", ctx.Arg(0))
	})
	reg.RegisterEvent("counter/inc", func(ctx *engine.Context) error {
		return ctx.Update("counter", func(v state.Value) state.Value {
			n, _ := v.(state.Int)
			return n + 1
		})
	})
	reg.RegisterEvent("counter/set-then-inc", func(ctx *engine.Context) error {
		if err := ctx.Set("counter", ctx.Arg(0)); err != nil {
			return err
		}
		ctx.Dispatch(event.NewVector("counter/inc"))
		return nil
	})
}

// newTestEngine builds an engine over a manual scheduler with the
// given registry setup. rec may be nil for replay targets.
func newTestEngine(t *testing.T, setup func(*engine.Registry), rec engine.Recorder) (*engine.Engine, *testutil.ManualScheduler) {
	t.Helper()
	reg := engine.NewRegistry()
	setup(reg)
	sched := testutil.NewManualScheduler()
	opts := []engine.Option{
		engine.WithLogger(testutil.NewLogRecorder().Logger()),
		engine.WithIDGenerator(testutil.NewSequentialIDGenerator("corr")),
	}
	if rec != nil {
		opts = append(opts, engine.WithRecorder(rec))
	}
	eng := engine.New(reg, sched, opts...)
	t.Cleanup(eng.Close)
	return eng, sched
}
