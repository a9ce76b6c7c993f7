// Package harness executes declarative scenario files against a fresh
// engine and reports what happened as a trace.
//
// # Scenario Format
//
// Scenarios are YAML documents with the following structure:
//
//	name: counter-basic
//	description: "Coalesced notification after two commits"
//	initial:
//	  counter: 0
//	handlers:
//	  - event: counter/set
//	    action: set
//	    key: counter
//	  - event: counter/inc
//	    action: inc
//	    key: counter
//	subscriptions:
//	  - id: counter
//	    kind: root
//	    key: counter
//	watch: [counter]
//	flow:
//	  - dispatch: [counter/set, 5]
//	  - dispatch: [counter/inc]
//	assertions:
//	  - type: final-state
//	    key: counter
//	    value: 6
//	  - type: notifications
//	    watch: counter
//	    values: [6]
//
// Handlers are built from a fixed set of actions (set, set-in, inc,
// remove, fail, emit) and subscriptions from a fixed set of operators
// (identity, sum, count, pluck, concat), so a scenario file fully
// describes its catalog without any code.
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - final-state: compares one key, one path or the whole committed tree
//   - notifications: compares the ordered values a watcher received
//   - recomputes: compares how often a derived subscription recomputed
//   - trace-count: counts trace events of one type, optionally per event id
//
// # Deterministic Execution
//
// Runs are reproducible byte for byte. Each scenario gets its own
// engine driven by a step-controlled scheduler, correlation ids come
// from a sequential generator, and the time coeffect is pinned to a
// fixed instant. Identical traces across runs are what make golden
// comparison meaningful. Recompute counts include the computation that
// runs when a watcher first attaches.
//
// # Validation
//
// Scenario files are checked against an embedded CUE schema before
// unmarshalling, then against semantic rules the schema cannot
// express: flow dispatches must name declared handlers, subscription
// inputs must name declared subscriptions, and operator arity must
// match. Dependency cycles among subscriptions are rejected when the
// engine is built, before any event runs.
//
// # Usage
//
// Load and run a scenario:
//
//	sc, err := harness.Load("testdata/scenarios/counter-basic.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := harness.Run(sc)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !res.Pass {
//	    for _, f := range res.Failures {
//	        log.Println(f)
//	    }
//	}
package harness
