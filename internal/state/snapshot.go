package state

import "sync"

// Snapshot is one immutable version of the state tree. The zero value
// is an empty tree at version 0.
type Snapshot struct {
	root    Object
	version int64
}

// NewSnapshot wraps root as a snapshot at the given version. The
// caller hands over ownership of root and must not mutate it after.
func NewSnapshot(root Object, version int64) Snapshot {
	return Snapshot{root: root, version: version}
}

// Version returns the commit counter this snapshot was produced at.
func (s Snapshot) Version() int64 { return s.version }

// Root returns the underlying tree. Read-only.
func (s Snapshot) Root() Object {
	if s.root == nil {
		return Object{}
	}
	return s.root
}

// Get returns the value at a top-level key.
func (s Snapshot) Get(key string) (Value, bool) {
	v, ok := s.root[key]
	return v, ok
}

// GetIn walks a nested path of object keys. It returns false if any
// step is missing or a non-object intervenes.
func (s Snapshot) GetIn(path ...string) (Value, bool) {
	if len(path) == 0 {
		return s.Root(), true
	}
	var cur Value = s.Root()
	for _, key := range path {
		obj, ok := cur.(Object)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Fingerprint returns the canonical hash of the whole tree.
func (s Snapshot) Fingerprint() (string, error) {
	return Fingerprint(s.Root())
}

// Store holds the current snapshot. Commits come from a single writer
// (the engine loop); the lock exists for concurrent readers such as
// graph pulls and CLI inspection.
type Store struct {
	mu      sync.RWMutex
	current Snapshot
}

// NewStore returns a store holding the empty snapshot.
func NewStore() *Store {
	return &Store{}
}

// Current returns the latest committed snapshot.
func (s *Store) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Apply commits a draft against the current snapshot, advancing the
// version by one. It returns the new snapshot and the patches that
// describe which top-level keys changed. A no-op draft still advances
// nothing: when no patches result, the stored snapshot is unchanged.
func (s *Store) Apply(d *Draft) (Snapshot, []Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, patches := d.Commit(s.current.version + 1)
	if len(patches) == 0 {
		return s.current, nil
	}
	s.current = next
	return next, patches
}

// Reset replaces the tree wholesale, advancing the version. Used by
// the harness to install a scenario's initial state and by replay.
func (s *Store) Reset(root Object) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = Snapshot{root: root, version: s.current.version + 1}
	return s.current
}
