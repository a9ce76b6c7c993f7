package event

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/reflow/internal/state"
)

// idPattern constrains vector identifiers to the namespaced form used
// throughout: segments of word characters joined by separators, e.g.
// "counter/increment" or "todo.visible".
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.:-]*(/[A-Za-z0-9_][A-Za-z0-9_.:-]*)*$`)

// Vector is an identifier with positional arguments. It is the shape
// of both dispatched events and subscription queries.
type Vector struct {
	ID   string
	Args []state.Value
}

// NewVector builds a vector from an id and its arguments.
func NewVector(id string, args ...state.Value) Vector {
	return Vector{ID: id, Args: args}
}

// ValidateID checks an identifier against the namespaced form. All
// registries and vectors share this rule.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("event: empty id")
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("event: invalid id %q", id)
	}
	return nil
}

// Validate checks the identifier shape. Arguments are unrestricted.
func (v Vector) Validate() error {
	return ValidateID(v.ID)
}

// Key returns the canonical string form of the vector, its identity
// for caching and journaling. Vectors with equal ids and structurally
// equal arguments share a key.
func (v Vector) Key() (string, error) {
	arr := make(state.Array, 0, len(v.Args)+1)
	arr = append(arr, state.String(v.ID))
	arr = append(arr, v.Args...)
	b, err := state.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("event: key for %q: %w", v.ID, err)
	}
	return string(b), nil
}

// ToValue renders the vector as the array value [id, args...], the
// form it takes inside effect payloads and scenario files.
func (v Vector) ToValue() state.Value {
	arr := make(state.Array, 0, len(v.Args)+1)
	arr = append(arr, state.String(v.ID))
	arr = append(arr, v.Args...)
	return arr
}

// VectorFromValue parses the array form produced by Vector.ToValue.
func VectorFromValue(val state.Value) (Vector, error) {
	arr, ok := val.(state.Array)
	if !ok || len(arr) == 0 {
		return Vector{}, fmt.Errorf("event: vector value must be a non-empty array, got %v", kindOf(val))
	}
	id, ok := arr[0].(state.String)
	if !ok {
		return Vector{}, fmt.Errorf("event: vector value must start with a string id")
	}
	vec := Vector{ID: string(id)}
	if len(arr) > 1 {
		vec.Args = append([]state.Value(nil), arr[1:]...)
	}
	if err := vec.Validate(); err != nil {
		return Vector{}, err
	}
	return vec, nil
}

func kindOf(v state.Value) string {
	if v == nil {
		return "null"
	}
	return v.Kind().String()
}

// Equal reports identity of id and deep equality of arguments.
func (v Vector) Equal(o Vector) bool {
	if v.ID != o.ID || len(v.Args) != len(o.Args) {
		return false
	}
	for i := range v.Args {
		if !state.Equal(v.Args[i], o.Args[i]) {
			return false
		}
	}
	return true
}

// String renders the vector compactly for logs.
func (v Vector) String() string {
	if len(v.Args) == 0 {
		return v.ID
	}
	parts := make([]string, len(v.Args))
	for i, a := range v.Args {
		if b, err := state.MarshalCanonical(a); err == nil {
			parts[i] = string(b)
		} else {
			parts[i] = "?"
		}
	}
	return v.ID + "(" + strings.Join(parts, ",") + ")"
}

// Defer is the scheduling metadata an event may carry. The queue
// consults it when the event reaches the front of the line and pauses
// before running the event if it asks for one of the hooks.
type Defer int

const (
	// DeferNone runs the event as soon as the queue reaches it.
	DeferNone Defer = iota
	// DeferSettle pauses the queue in front of the event until pending
	// watcher notifications have flushed, for handlers that need
	// observers caught up before they run.
	DeferSettle
	// DeferYield pauses the queue in front of the event until the next
	// scheduler slice, giving other queued work a chance to interleave.
	DeferYield
)

// String returns the wire form used in scenario files and traces.
func (d Defer) String() string {
	switch d {
	case DeferNone:
		return "none"
	case DeferSettle:
		return "after-commit"
	case DeferYield:
		return "next-slice"
	default:
		return fmt.Sprintf("defer(%d)", int(d))
	}
}

// ParseDefer reads the wire form of the scheduling metadata. The empty
// string means no deferral.
func ParseDefer(s string) (Defer, error) {
	switch s {
	case "", "none":
		return DeferNone, nil
	case "after-commit":
		return DeferSettle, nil
	case "next-slice":
		return DeferYield, nil
	default:
		return DeferNone, fmt.Errorf("event: unknown defer %q", s)
	}
}

// Event is a vector queued for processing, tagged with the ids that
// tie it into traces and the journal. Correlation identifies this
// dispatch; Cause carries the correlation of the event whose effect
// dispatched it, empty for external dispatches.
type Event struct {
	Vector      Vector
	Correlation string
	Cause       string
	Defer       Defer
}

// Effect is a named instruction produced by an event handler and run
// after its state change commits.
type Effect struct {
	ID      string
	Payload state.Value
}
