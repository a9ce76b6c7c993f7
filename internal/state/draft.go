package state

import (
	"fmt"
	"sort"
)

// Patch records one top-level key change produced by a commit. Path
// always has exactly one element; nested writes are reported at the
// granularity of the top-level key they happened under.
type Patch struct {
	Path    []string
	Value   Value
	Removed bool
}

// Key returns the top-level key this patch addresses.
func (p Patch) Key() string { return p.Path[0] }

// Draft is a mutable working copy layered over a base snapshot.
// Handlers stage writes here; nothing is visible to readers until the
// draft is committed through the store.
//
// A Draft is not safe for concurrent use. The event loop owns it for
// the duration of one event.
type Draft struct {
	base    Snapshot
	working map[string]Value
	removed map[string]bool
}

// NewDraft starts a draft over base.
func NewDraft(base Snapshot) *Draft {
	return &Draft{
		base:    base,
		working: make(map[string]Value),
		removed: make(map[string]bool),
	}
}

// Base returns the snapshot the draft was opened against.
func (d *Draft) Base() Snapshot { return d.base }

// Get returns the draft's view of a top-level key: staged writes win
// over the base snapshot, staged deletions read as absent.
func (d *Draft) Get(key string) (Value, bool) {
	if d.removed[key] {
		return nil, false
	}
	if v, ok := d.working[key]; ok {
		return v, true
	}
	return d.base.Get(key)
}

// GetIn walks a nested path through the draft's view.
func (d *Draft) GetIn(path ...string) (Value, bool) {
	if len(path) == 0 {
		return d.Root(), true
	}
	top, ok := d.Get(path[0])
	if !ok {
		return nil, false
	}
	cur := top
	for _, key := range path[1:] {
		obj, isObj := cur.(Object)
		if !isObj {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set stages a write to a top-level key.
func (d *Draft) Set(key string, v Value) {
	if v == nil {
		v = Null{}
	}
	delete(d.removed, key)
	d.working[key] = v
}

// Update stages a write computed from the current draft view of the
// key. fn receives Null when the key is absent.
func (d *Draft) Update(key string, fn func(Value) Value) {
	cur, ok := d.Get(key)
	if !ok {
		cur = Null{}
	}
	d.Set(key, fn(cur))
}

// Delete stages the removal of a top-level key.
func (d *Draft) Delete(key string) {
	delete(d.working, key)
	d.removed[key] = true
}

// SetIn stages a nested write. Missing intermediate keys are created
// as objects; a non-object intermediate is an error. A single-element
// path is equivalent to Set.
func (d *Draft) SetIn(path []string, v Value) error {
	if len(path) == 0 {
		return fmt.Errorf("state: SetIn requires a non-empty path")
	}
	if v == nil {
		v = Null{}
	}
	if len(path) == 1 {
		d.Set(path[0], v)
		return nil
	}
	top, _ := d.Get(path[0])
	next, err := setAt(top, path[1:], v)
	if err != nil {
		return fmt.Errorf("state: SetIn %v: %w", path, err)
	}
	d.Set(path[0], next)
	return nil
}

// DeleteIn stages a nested removal. Deleting a missing path is a
// no-op. A single-element path is equivalent to Delete.
func (d *Draft) DeleteIn(path []string) error {
	if len(path) == 0 {
		return fmt.Errorf("state: DeleteIn requires a non-empty path")
	}
	if len(path) == 1 {
		d.Delete(path[0])
		return nil
	}
	top, ok := d.Get(path[0])
	if !ok {
		return nil
	}
	next, changed, err := deleteAt(top, path[1:])
	if err != nil {
		return fmt.Errorf("state: DeleteIn %v: %w", path, err)
	}
	if changed {
		d.Set(path[0], next)
	}
	return nil
}

// setAt writes v at path below cur, copying only the spine of objects
// it descends through. Everything off the spine stays shared with the
// original tree.
func setAt(cur Value, path []string, v Value) (Value, error) {
	if len(path) == 0 {
		return v, nil
	}
	var obj Object
	switch t := cur.(type) {
	case nil, Null:
		obj = make(Object, 1)
	case Object:
		obj = make(Object, len(t)+1)
		for k, e := range t {
			obj[k] = e
		}
	default:
		return nil, fmt.Errorf("cannot descend into %s", cur.Kind())
	}
	child := obj[path[0]]
	next, err := setAt(child, path[1:], v)
	if err != nil {
		return nil, err
	}
	obj[path[0]] = next
	return obj, nil
}

func deleteAt(cur Value, path []string) (Value, bool, error) {
	obj, ok := cur.(Object)
	if !ok {
		return nil, false, fmt.Errorf("cannot descend into %s", cur.Kind())
	}
	child, ok := obj[path[0]]
	if !ok {
		return cur, false, nil
	}
	out := make(Object, len(obj))
	for k, e := range obj {
		out[k] = e
	}
	if len(path) == 1 {
		delete(out, path[0])
		return out, true, nil
	}
	next, changed, err := deleteAt(child, path[1:])
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return cur, false, nil
	}
	out[path[0]] = next
	return out, true, nil
}

// Root materializes the draft's full view as a fresh top-level map.
// Nested values are shared with the base snapshot.
func (d *Draft) Root() Object {
	base := d.base.Root()
	out := make(Object, len(base)+len(d.working))
	for k, v := range base {
		if d.removed[k] {
			continue
		}
		out[k] = v
	}
	for k, v := range d.working {
		out[k] = v
	}
	return out
}

// Dirty reports whether any write or deletion has been staged. A
// staged write that restores the base value still counts until Commit
// filters it out.
func (d *Draft) Dirty() bool {
	return len(d.working) > 0 || len(d.removed) > 0
}

// Commit produces the next snapshot and the patches for every key
// whose value actually changed. Writes equal to the base value and
// deletions of absent keys produce no patch. Patches are sorted by
// key so downstream consumers see a deterministic order.
func (d *Draft) Commit(version int64) (Snapshot, []Patch) {
	var patches []Patch
	for key, v := range d.working {
		if old, ok := d.base.Get(key); ok && Equal(old, v) {
			continue
		}
		patches = append(patches, Patch{Path: []string{key}, Value: v})
	}
	for key := range d.removed {
		if _, ok := d.base.Get(key); !ok {
			continue
		}
		patches = append(patches, Patch{Path: []string{key}, Removed: true})
	}
	if len(patches) == 0 {
		return d.base, nil
	}
	sort.Slice(patches, func(i, j int) bool {
		return patches[i].Key() < patches[j].Key()
	})

	base := d.base.Root()
	root := make(Object, len(base))
	for k, v := range base {
		root[k] = v
	}
	for _, p := range patches {
		if p.Removed {
			delete(root, p.Key())
		} else {
			root[p.Key()] = p.Value
		}
	}
	return Snapshot{root: root, version: version}, patches
}
