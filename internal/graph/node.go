package graph

import (
	"fmt"
	"strings"

	"github.com/roach88/reflow/internal/event"
	"github.com/roach88/reflow/internal/state"
)

// ComputeFunc derives a node's value from its input values. The
// vector is passed through so parameterized subscriptions can read
// their arguments. Implementations must be pure: same inputs, same
// output, no access to anything but the arguments.
type ComputeFunc func(vec event.Vector, inputs []state.Value) (state.Value, error)

// EqualFunc decides whether a recomputed value counts as changed.
// Returning true suppresses propagation.
type EqualFunc func(a, b state.Value) bool

// EqualNever forces propagation on every recompute, for values where
// structural comparison costs more than downstream work.
func EqualNever(a, b state.Value) bool { return false }

// EqualAlways pins a node after its first computation. Dependents and
// watchers never hear from it again until it is disposed.
func EqualAlways(a, b state.Value) bool { return true }

// Spec describes how to build the node for a vector. Exactly one of
// RootKey or Compute must be set: root nodes extract a top-level key
// from the snapshot, derived nodes compute from Inputs.
type Spec struct {
	RootKey string
	Inputs  []event.Vector
	Compute ComputeFunc
	Equal   EqualFunc
}

func (s Spec) validate(vec event.Vector) error {
	if s.RootKey != "" {
		if s.Compute != nil || len(s.Inputs) > 0 {
			return fmt.Errorf("graph: %s: root spec cannot also declare inputs or compute", vec)
		}
		return nil
	}
	if s.Compute == nil {
		return fmt.Errorf("graph: %s: spec needs a root key or a compute function", vec)
	}
	return nil
}

// Resolver maps a subscription vector to its spec. The engine's
// registry provides one at construction.
type Resolver func(vec event.Vector) (Spec, error)

// SnapshotFunc returns the snapshot root nodes extract from.
type SnapshotFunc func() state.Snapshot

// WatchFunc receives a node's new value after it changes.
type WatchFunc func(v state.Value)

// CycleError reports a subscription whose inputs reach back to
// itself. Path lists the vectors along the cycle, origin first.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "graph: subscription cycle: " + strings.Join(e.Path, " -> ")
}

type watcherEntry struct {
	fn      WatchFunc
	seen    int64
	stopped bool
}

// node is one vertex of the derivation graph. All fields are guarded
// by the graph mutex.
type node struct {
	key  string
	vec  event.Vector
	spec Spec

	inputs     []*node
	dependents map[*node]struct{}
	watchers   map[uint64]*watcherEntry

	value      state.Value
	version    int64
	lastInputs []int64
	computed   bool
	dirty      bool
}

func (n *node) alive() bool {
	return len(n.watchers) > 0 || len(n.dependents) > 0
}

func (n *node) equal(a, b state.Value) bool {
	if n.spec.Equal != nil {
		return n.spec.Equal(a, b)
	}
	return state.Equal(a, b)
}
