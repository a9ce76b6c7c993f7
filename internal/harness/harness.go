package harness

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/reflow/internal/engine"
	"github.com/roach88/reflow/internal/event"
	"github.com/roach88/reflow/internal/state"
	"github.com/roach88/reflow/internal/testutil"
)

// scenarioEpoch is the fixed instant behind the now coeffect. Every
// run sees the same clock.
var scenarioEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Result is the outcome of one scenario run.
type Result struct {
	// Name is the scenario name.
	Name string

	// Pass is true when every assertion held.
	Pass bool

	// Failures lists assertion failures in assertion order.
	Failures []string

	// Trace is every observable step, in execution order.
	Trace []TraceEvent

	// Final is the committed state after the flow settled.
	Final state.Snapshot

	// Recomputes counts compute runs per derived subscription id.
	Recomputes map[string]int

	// Notifications lists delivered values per watched subscription
	// id, in delivery order.
	Notifications map[string][]state.Value
}

// Option adjusts one run.
type Option func(*runConfig)

type runConfig struct {
	logger   *slog.Logger
	recorder engine.Recorder
}

// WithLogger routes engine logs somewhere visible. Runs are silent by
// default.
func WithLogger(log *slog.Logger) Option {
	return func(c *runConfig) { c.logger = log }
}

// WithRecorder attaches a journal to the run. Commit trace events are
// collected either way; the recorder receives the same entries.
func WithRecorder(r engine.Recorder) Option {
	return func(c *runConfig) { c.recorder = r }
}

func newRunConfig(opts []Option) runConfig {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Run executes one scenario on a fresh engine and evaluates its
// assertions. Every run is isolated: its own registry, engine,
// schedule and id sequence. The returned error covers setup problems
// like catalog construction, subscription cycles or watcher
// attachment; assertion failures are not errors, they land in
// Result.Failures.
func Run(sc *Scenario, opts ...Option) (*Result, error) {
	cfg := newRunConfig(opts)

	tr := newTracer()
	reg := engine.NewRegistry()
	if err := buildCatalog(reg, sc, tr); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}

	ms := testutil.NewManualScheduler()
	eng := engine.New(reg, ms,
		engine.WithLogger(cfg.logger),
		engine.WithIDGenerator(testutil.NewSequentialIDGenerator("t")),
		engine.WithNow(func() time.Time { return scenarioEpoch }),
		engine.WithRecorder(tr.recorder(cfg.recorder)),
		engine.WithGlobalInterceptors(tr.interceptor()),
	)
	defer eng.Close()

	if err := eng.CheckSubscriptions(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	eng.OnInvalidate(tr.invalidated)

	initial, err := initialState(sc)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	eng.ResetState(initial)

	// Watchers attach after the reset and before the flow, so they
	// see flow-driven changes only.
	for _, id := range sc.Watch {
		if _, err := eng.Watch(event.NewVector(id), tr.watchFunc(id)); err != nil {
			return nil, fmt.Errorf("scenario %s: watch %s: %w", sc.Name, id, err)
		}
	}

	for i, step := range sc.Flow {
		if !step.Run.isZero() {
			if step.Run.All {
				ms.RunAll()
				continue
			}
			for n := 0; n < step.Run.N; n++ {
				ms.Step()
			}
			continue
		}
		if err := dispatchStep(eng, tr, step); err != nil {
			return nil, fmt.Errorf("scenario %s: flow[%d]: %w", sc.Name, i, err)
		}
	}
	ms.RunAll()

	res := &Result{
		Name:          sc.Name,
		Trace:         tr.trace,
		Final:         eng.Snapshot(),
		Recomputes:    tr.recomputes,
		Notifications: tr.notifications,
	}
	res.Failures = EvaluateAssertions(sc, res)
	res.Pass = len(res.Failures) == 0
	return res, nil
}

func dispatchStep(eng *engine.Engine, tr *tracer, step FlowStep) error {
	vec, err := vectorFromList(step.Dispatch)
	if err != nil {
		return err
	}
	mode, err := event.ParseDefer(step.Defer)
	if err != nil {
		return err
	}
	ev := TraceEvent{Type: TraceEnqueue, Event: vec.ID, Args: vec.Args}
	if mode != event.DeferNone {
		ev.Defer = mode.String()
	}
	tr.add(ev)
	switch mode {
	case event.DeferSettle:
		return eng.DispatchSettled(vec)
	case event.DeferYield:
		return eng.DispatchYield(vec)
	default:
		return eng.Dispatch(vec)
	}
}

func initialState(sc *Scenario) (state.Object, error) {
	if len(sc.Initial) == 0 {
		return state.Object{}, nil
	}
	v, err := state.FromGo(sc.Initial)
	if err != nil {
		return nil, err
	}
	return v.(state.Object), nil
}

// NewReplayEngine builds an engine with the scenario's catalog and
// initial state but runs no flow: the caller feeds it recorded
// entries one by one. No trace hooks and no error handler are wired,
// so handler failures surface as dispatch errors, and the schedule is
// never stepped, so events queued by effects stay parked. That matches
// how the journal drives replay: every processed event of the
// recording run is an entry of its own.
func NewReplayEngine(sc *Scenario, opts ...Option) (*engine.Engine, error) {
	cfg := newRunConfig(opts)

	reg := engine.NewRegistry()
	if err := buildCatalog(reg, sc, nil); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	eng := engine.New(reg, testutil.NewManualScheduler(),
		engine.WithLogger(cfg.logger),
		engine.WithIDGenerator(testutil.NewSequentialIDGenerator("t")),
		engine.WithNow(func() time.Time { return scenarioEpoch }),
	)
	if err := eng.CheckSubscriptions(); err != nil {
		eng.Close()
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	initial, err := initialState(sc)
	if err != nil {
		eng.Close()
		return nil, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	eng.ResetState(initial)
	return eng, nil
}
