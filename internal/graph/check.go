package graph

import (
	"github.com/roach88/reflow/internal/event"
)

// CheckAcyclic resolves every vector in vecs and walks the declared
// inputs, failing on the first dependency cycle it finds. It never
// materializes nodes, so a whole catalog can be vetted before
// anything subscribes.
func CheckAcyclic(resolver Resolver, vecs []event.Vector) error {
	c := &checker{resolver: resolver, done: make(map[string]bool)}
	for _, vec := range vecs {
		if err := c.visit(vec, nil); err != nil {
			return err
		}
	}
	return nil
}

type checker struct {
	resolver Resolver
	done     map[string]bool
}

// visit walks vec's inputs depth-first. done[key] is false while the
// key sits on the current path and true once its subtree is clear.
func (c *checker) visit(vec event.Vector, trail []string) error {
	key, err := vec.Key()
	if err != nil {
		return err
	}
	if cleared, seen := c.done[key]; seen {
		if cleared {
			return nil
		}
		return &CycleError{Path: cyclePath(trail, vec.String())}
	}
	c.done[key] = false

	spec, err := c.resolver(vec)
	if err != nil {
		return err
	}
	if err := spec.validate(vec); err != nil {
		return err
	}
	trail = append(trail, vec.String())
	for _, in := range spec.Inputs {
		if err := c.visit(in, trail); err != nil {
			return err
		}
	}
	c.done[key] = true
	return nil
}

// cyclePath trims the trail to start where the repeated vector first
// appeared and closes the loop with it.
func cyclePath(trail []string, repeat string) []string {
	start := 0
	for i, s := range trail {
		if s == repeat {
			start = i
			break
		}
	}
	path := make([]string, 0, len(trail)-start+1)
	path = append(path, trail[start:]...)
	return append(path, repeat)
}
