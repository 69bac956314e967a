package database

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
)

// profileSet is an immutable snapshot of the store contents.
type profileSet struct {
	byIdentity map[string]FaceProfile
	order      []string // identities, sorted
}

func newProfileSet(profiles map[string]FaceProfile) *profileSet {
	order := make([]string, 0, len(profiles))
	for id := range profiles {
		order = append(order, id)
	}
	slices.Sort(order)
	return &profileSet{byIdentity: profiles, order: order}
}

func (s *profileSet) list() []FaceProfile {
	out := make([]FaceProfile, len(s.order))
	for i, id := range s.order {
		out[i] = s.byIdentity[id]
	}
	return out
}

// MemoryStore is a copy-on-write ProfileStore. Readers load the current
// snapshot without locking; writers serialise on a mutex, build the next
// snapshot and swap it in atomically.
type MemoryStore struct {
	mu      sync.Mutex
	current atomic.Pointer[profileSet]

	// commit, when set, runs under the writer lock before a new snapshot is
	// published. An error aborts the write and leaves the store unchanged.
	commit func(next *profileSet) error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{}
	m.current.Store(newProfileSet(map[string]FaceProfile{}))
	return m
}

// List returns every profile ordered by identity.
func (m *MemoryStore) List(ctx context.Context) ([]FaceProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.current.Load().list(), nil
}

// Get returns the profile for identity, or nil if it is not enrolled.
func (m *MemoryStore) Get(ctx context.Context, identity string) (*FaceProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := m.current.Load().byIdentity[identity]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// Count returns the number of enrolled profiles.
func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(m.current.Load().order), nil
}

// Put stores a private copy of the profile.
func (m *MemoryStore) Put(ctx context.Context, p FaceProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	p = p.Clone()

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.current.Load().byIdentity
	next := make(map[string]FaceProfile, len(cur)+1)
	for id, existing := range cur {
		next[id] = existing
	}
	next[p.Identity] = p
	return m.publish(newProfileSet(next))
}

// Delete removes the profile and reports whether it existed.
func (m *MemoryStore) Delete(ctx context.Context, identity string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.current.Load().byIdentity
	if _, ok := cur[identity]; !ok {
		return false, nil
	}
	next := make(map[string]FaceProfile, len(cur))
	for id, existing := range cur {
		if id != identity {
			next[id] = existing
		}
	}
	if err := m.publish(newProfileSet(next)); err != nil {
		return false, err
	}
	return true, nil
}

// replaceAll swaps in a complete profile set without running commit.
func (m *MemoryStore) replaceAll(profiles []FaceProfile) {
	next := make(map[string]FaceProfile, len(profiles))
	for _, p := range profiles {
		next[p.Identity] = p
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Store(newProfileSet(next))
}

// publish must be called with mu held.
func (m *MemoryStore) publish(next *profileSet) error {
	if m.commit != nil {
		if err := m.commit(next); err != nil {
			return err
		}
	}
	m.current.Store(next)
	return nil
}
