package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/reflow/internal/event"
	"github.com/roach88/reflow/internal/state"
)

// Scenario is one declarative engine run: a catalog, an initial state,
// a flow of dispatches and assertions over the outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It doubles as the golden
	// fixture name.
	Name string `yaml:"name"`

	// Description explains what this scenario demonstrates.
	Description string `yaml:"description,omitempty"`

	// Initial is the state tree installed before the flow runs. Keys
	// are top-level state keys.
	Initial map[string]any `yaml:"initial,omitempty"`

	// Handlers declares the event catalog. Every event dispatched by
	// the flow or emitted by another handler must appear here.
	Handlers []HandlerDef `yaml:"handlers,omitempty"`

	// Subscriptions declares roots and derived subscriptions.
	Subscriptions []SubDef `yaml:"subscriptions,omitempty"`

	// Watch lists subscription ids to attach watchers to before the
	// flow starts. Notifications they receive are traced and available
	// to assertions.
	Watch []string `yaml:"watch,omitempty"`

	// Flow is the ordered list of steps to execute.
	Flow []FlowStep `yaml:"flow,omitempty"`

	// Assertions validate the final state, watcher notifications,
	// recompute counts and the trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// HandlerDef declares one event handler in terms of a fixed action.
type HandlerDef struct {
	// Event is the event id this handler is registered under.
	Event string `yaml:"event"`

	// Action selects the handler body: set, set-in, inc, remove, fail
	// or emit.
	Action string `yaml:"action"`

	// Key is the top-level state key written by set, inc and remove.
	Key string `yaml:"key,omitempty"`

	// Path is the nested path written by set-in.
	Path []string `yaml:"path,omitempty"`

	// Value fixes the written value for set and set-in. When absent,
	// the value is the event's first argument.
	Value any `yaml:"value,omitempty"`

	// By is the increment step for inc. Zero means one; negative
	// values decrement.
	By int64 `yaml:"by,omitempty"`

	// Message is the failure text for fail. Empty means a generic
	// message.
	Message string `yaml:"message,omitempty"`

	// Unrecoverable makes fail purge the queue instead of dropping
	// just the failed event.
	Unrecoverable bool `yaml:"unrecoverable,omitempty"`

	// Events lists the vectors emit dispatches, each in [id, args...]
	// form. Targets must be declared handlers.
	Events [][]any `yaml:"events,omitempty"`
}

// SubDef declares one subscription.
type SubDef struct {
	// ID is the subscription id, referenced by watch lists, inputs of
	// other subscriptions and assertions.
	ID string `yaml:"id"`

	// Kind is root or derived.
	Kind string `yaml:"kind"`

	// Key is the top-level state key a root reads.
	Key string `yaml:"key,omitempty"`

	// Op selects the derived computation: identity, sum, count, pluck
	// or concat.
	Op string `yaml:"op,omitempty"`

	// Inputs names the subscriptions a derived subscription reads.
	Inputs []string `yaml:"inputs,omitempty"`

	// Field is the object key pluck extracts from each element.
	Field string `yaml:"field,omitempty"`
}

// FlowStep is one step of the flow: either a dispatch or a schedule
// advance, never both.
type FlowStep struct {
	// Dispatch is an event vector in [id, args...] form.
	Dispatch []any `yaml:"dispatch,omitempty"`

	// Defer is the dispatch's scheduling metadata: none, after-commit
	// or next-slice.
	Defer string `yaml:"defer,omitempty"`

	// Run advances the schedule: a positive slice count or "all" to
	// run until quiescent. The flow always ends with an implicit run
	// of all.
	Run RunCount `yaml:"run,omitempty"`
}

// RunCount is the parsed value of a flow step's run field.
type RunCount struct {
	All bool
	N   int
}

// UnmarshalYAML accepts a positive integer or the word "all".
func (r *RunCount) UnmarshalYAML(node *yaml.Node) error {
	var n int
	if err := node.Decode(&n); err == nil {
		if n <= 0 {
			return fmt.Errorf("run must be positive, got %d", n)
		}
		r.N = n
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil || s != "all" {
		return fmt.Errorf("run must be a positive integer or \"all\"")
	}
	r.All = true
	return nil
}

func (r RunCount) isZero() bool { return !r.All && r.N == 0 }

// Assertion validates one aspect of a finished run.
type Assertion struct {
	// Type selects the check: final-state, notifications, recomputes
	// or trace-count.
	Type string `yaml:"type"`

	// Key selects a top-level state key for final-state. Empty key and
	// path compare the whole tree.
	Key string `yaml:"key,omitempty"`

	// Path selects a nested value for final-state.
	Path []string `yaml:"path,omitempty"`

	// Value is the expected value for final-state. A missing key
	// compares equal to null.
	Value any `yaml:"value,omitempty"`

	// Watch names the watched subscription for notifications.
	Watch string `yaml:"watch,omitempty"`

	// Values is the exact ordered notification list for notifications.
	Values []any `yaml:"values,omitempty"`

	// Sub names the derived subscription for recomputes.
	Sub string `yaml:"sub,omitempty"`

	// Count is the expected count for recomputes and trace-count.
	Count int `yaml:"count,omitempty"`

	// Trace is the trace event type counted by trace-count.
	Trace string `yaml:"trace,omitempty"`

	// Event optionally narrows trace-count to one event id.
	Event string `yaml:"event,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState    = "final-state"
	AssertNotifications = "notifications"
	AssertRecomputes    = "recomputes"
	AssertTraceCount    = "trace-count"
)

// Handler action constants.
const (
	ActionSet    = "set"
	ActionSetIn  = "set-in"
	ActionInc    = "inc"
	ActionRemove = "remove"
	ActionFail   = "fail"
	ActionEmit   = "emit"
)

// Subscription kind and operator constants.
const (
	KindRoot    = "root"
	KindDerived = "derived"

	OpIdentity = "identity"
	OpSum      = "sum"
	OpCount    = "count"
	OpPluck    = "pluck"
	OpConcat   = "concat"
)

// Load reads, schema-checks and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(path, data)
}

// Parse validates data against the embedded schema, decodes it
// strictly and applies the semantic checks the schema cannot express.
// The filename only labels errors.
func Parse(filename string, data []byte) (*Scenario, error) {
	if errs := ValidateBytes(filename, data); len(errs) > 0 {
		return nil, &SchemaError{File: filename, Errors: errs}
	}

	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", filename, err)
	}

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", filename, err)
	}
	return &sc, nil
}

// Validate applies the semantic rules: ids are well formed and
// declared before use, actions and operators get the fields they
// need, and assertions reference things the run will produce.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	handlers := make(map[string]bool, len(s.Handlers))
	for i, h := range s.Handlers {
		if err := validateHandler(i, &h); err != nil {
			return err
		}
		if handlers[h.Event] {
			return fmt.Errorf("handlers[%d]: duplicate event %q", i, h.Event)
		}
		handlers[h.Event] = true
	}
	for i, h := range s.Handlers {
		for j, raw := range h.Events {
			vec, err := vectorFromList(raw)
			if err != nil {
				return fmt.Errorf("handlers[%d].events[%d]: %v", i, j, err)
			}
			if !handlers[vec.ID] {
				return fmt.Errorf("handlers[%d].events[%d]: %q is not a declared handler", i, j, vec.ID)
			}
		}
	}

	subs := make(map[string]string, len(s.Subscriptions))
	for i, sub := range s.Subscriptions {
		if err := validateSub(i, &sub); err != nil {
			return err
		}
		if _, dup := subs[sub.ID]; dup {
			return fmt.Errorf("subscriptions[%d]: duplicate id %q", i, sub.ID)
		}
		subs[sub.ID] = sub.Kind
	}
	for i, sub := range s.Subscriptions {
		for j, in := range sub.Inputs {
			if _, ok := subs[in]; !ok {
				return fmt.Errorf("subscriptions[%d].inputs[%d]: %q is not a declared subscription", i, j, in)
			}
		}
	}

	watched := make(map[string]bool, len(s.Watch))
	for i, w := range s.Watch {
		if _, ok := subs[w]; !ok {
			return fmt.Errorf("watch[%d]: %q is not a declared subscription", i, w)
		}
		if watched[w] {
			return fmt.Errorf("watch[%d]: duplicate %q", i, w)
		}
		watched[w] = true
	}

	for i, step := range s.Flow {
		hasDispatch := len(step.Dispatch) > 0
		hasRun := !step.Run.isZero()
		if hasDispatch == hasRun {
			return fmt.Errorf("flow[%d]: exactly one of dispatch or run is required", i)
		}
		if hasRun {
			if step.Defer != "" {
				return fmt.Errorf("flow[%d]: defer applies only to dispatch", i)
			}
			continue
		}
		vec, err := vectorFromList(step.Dispatch)
		if err != nil {
			return fmt.Errorf("flow[%d]: %v", i, err)
		}
		if !handlers[vec.ID] {
			return fmt.Errorf("flow[%d]: %q is not a declared handler", i, vec.ID)
		}
		if _, err := event.ParseDefer(step.Defer); err != nil {
			return fmt.Errorf("flow[%d]: %v", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, subs, watched); err != nil {
			return err
		}
	}
	return nil
}

func validateHandler(i int, h *HandlerDef) error {
	if h.Event == "" {
		return fmt.Errorf("handlers[%d]: event is required", i)
	}
	if err := event.ValidateID(h.Event); err != nil {
		return fmt.Errorf("handlers[%d]: %v", i, err)
	}
	switch h.Action {
	case ActionSet, ActionInc, ActionRemove:
		if h.Key == "" {
			return fmt.Errorf("handlers[%d]: %s requires key", i, h.Action)
		}
	case ActionSetIn:
		if len(h.Path) == 0 {
			return fmt.Errorf("handlers[%d]: set-in requires path", i)
		}
	case ActionFail:
	case ActionEmit:
		if len(h.Events) == 0 {
			return fmt.Errorf("handlers[%d]: emit requires events", i)
		}
	case "":
		return fmt.Errorf("handlers[%d]: action is required", i)
	default:
		return fmt.Errorf("handlers[%d]: unknown action %q", i, h.Action)
	}
	if h.Value != nil {
		if _, err := state.FromGo(h.Value); err != nil {
			return fmt.Errorf("handlers[%d]: value: %v", i, err)
		}
	}
	return nil
}

func validateSub(i int, sub *SubDef) error {
	if sub.ID == "" {
		return fmt.Errorf("subscriptions[%d]: id is required", i)
	}
	if err := event.ValidateID(sub.ID); err != nil {
		return fmt.Errorf("subscriptions[%d]: %v", i, err)
	}
	switch sub.Kind {
	case KindRoot:
		if sub.Key == "" {
			return fmt.Errorf("subscriptions[%d]: root requires key", i)
		}
	case KindDerived:
		switch sub.Op {
		case OpIdentity, OpCount:
			if len(sub.Inputs) != 1 {
				return fmt.Errorf("subscriptions[%d]: %s takes exactly one input", i, sub.Op)
			}
		case OpPluck:
			if len(sub.Inputs) != 1 {
				return fmt.Errorf("subscriptions[%d]: pluck takes exactly one input", i)
			}
			if sub.Field == "" {
				return fmt.Errorf("subscriptions[%d]: pluck requires field", i)
			}
		case OpSum, OpConcat:
			if len(sub.Inputs) == 0 {
				return fmt.Errorf("subscriptions[%d]: %s requires inputs", i, sub.Op)
			}
		case "":
			return fmt.Errorf("subscriptions[%d]: derived requires op", i)
		default:
			return fmt.Errorf("subscriptions[%d]: unknown op %q", i, sub.Op)
		}
	case "":
		return fmt.Errorf("subscriptions[%d]: kind is required", i)
	default:
		return fmt.Errorf("subscriptions[%d]: unknown kind %q", i, sub.Kind)
	}
	return nil
}

func validateAssertion(i int, a *Assertion, subs map[string]string, watched map[string]bool) error {
	switch a.Type {
	case AssertFinalState:
		if a.Key != "" && len(a.Path) > 0 {
			return fmt.Errorf("assertions[%d]: key and path are mutually exclusive", i)
		}
		if a.Value != nil {
			if _, err := state.FromGo(a.Value); err != nil {
				return fmt.Errorf("assertions[%d]: value: %v", i, err)
			}
		}
	case AssertNotifications:
		if a.Watch == "" {
			return fmt.Errorf("assertions[%d]: notifications requires watch", i)
		}
		if !watched[a.Watch] {
			return fmt.Errorf("assertions[%d]: %q is not in the watch list", i, a.Watch)
		}
	case AssertRecomputes:
		if a.Sub == "" {
			return fmt.Errorf("assertions[%d]: recomputes requires sub", i)
		}
		if kind, ok := subs[a.Sub]; !ok || kind != KindDerived {
			return fmt.Errorf("assertions[%d]: %q is not a derived subscription", i, a.Sub)
		}
	case AssertTraceCount:
		switch a.Trace {
		case TraceEnqueue, TraceHandler, TraceCommit, TraceEffect,
			TraceInvalidate, TraceRecompute, TraceNotify, TraceError:
		case "":
			return fmt.Errorf("assertions[%d]: trace-count requires trace", i)
		default:
			return fmt.Errorf("assertions[%d]: unknown trace type %q", i, a.Trace)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}

// vectorFromList converts the YAML [id, args...] form into a vector.
func vectorFromList(raw []any) (event.Vector, error) {
	if len(raw) == 0 {
		return event.Vector{}, fmt.Errorf("event vector must be a non-empty list")
	}
	id, ok := raw[0].(string)
	if !ok {
		return event.Vector{}, fmt.Errorf("event vector must start with a string id")
	}
	vec := event.Vector{ID: id}
	for i, arg := range raw[1:] {
		v, err := state.FromGo(arg)
		if err != nil {
			return event.Vector{}, fmt.Errorf("argument %d of %q: %v", i, id, err)
		}
		vec.Args = append(vec.Args, v)
	}
	if err := vec.Validate(); err != nil {
		return event.Vector{}, err
	}
	return vec, nil
}
