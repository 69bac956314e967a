// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/features"
)

// MockProfileStore is a mock implementation of database.ProfileStore
type MockProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]database.FaceProfile

	// Track calls
	PutCalls    []database.FaceProfile
	DeleteCalls []string
	ListCalls   int

	// Error injection
	ListError   error
	GetError    error
	CountError  error
	PutError    error
	DeleteError error
}

// NewMockProfileStore creates a new mock profile store
func NewMockProfileStore() *MockProfileStore {
	return &MockProfileStore{
		profiles: make(map[string]database.FaceProfile),
	}
}

// AddProfile adds a profile without recording a call
func (m *MockProfileStore) AddProfile(p database.FaceProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.Identity] = p
}

// List returns all profiles sorted by identity
func (m *MockProfileStore) List(ctx context.Context) ([]database.FaceProfile, error) {
	m.mu.Lock()
	m.ListCalls++
	m.mu.Unlock()
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.profiles))
	for id := range m.profiles {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]database.FaceProfile, len(ids))
	for i, id := range ids {
		out[i] = m.profiles[id]
	}
	return out, nil
}

// Get retrieves a profile by identity
func (m *MockProfileStore) Get(ctx context.Context, identity string) (*database.FaceProfile, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[identity]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// Count returns the number of profiles
func (m *MockProfileStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.profiles), nil
}

// Put stores a profile
func (m *MockProfileStore) Put(ctx context.Context, p database.FaceProfile) error {
	if m.PutError != nil {
		return m.PutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls = append(m.PutCalls, p)
	m.profiles[p.Identity] = p
	return nil
}

// Delete removes a profile
func (m *MockProfileStore) Delete(ctx context.Context, identity string) (bool, error) {
	if m.DeleteError != nil {
		return false, m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls = append(m.DeleteCalls, identity)
	_, ok := m.profiles[identity]
	delete(m.profiles, identity)
	return ok, nil
}

// MockShortlister is a profile store that also ranks identities itself,
// returning a fixed answer.
type MockShortlister struct {
	*MockProfileStore

	Identities   []string
	NearestError error
	NearestCalls []int
}

// NewMockShortlister creates a store whose Nearest returns identities
func NewMockShortlister(identities ...string) *MockShortlister {
	return &MockShortlister{MockProfileStore: NewMockProfileStore(), Identities: identities}
}

// Nearest returns up to k of the configured identities
func (m *MockShortlister) Nearest(ctx context.Context, probe features.Bundle, k int) ([]string, error) {
	m.mu.Lock()
	m.NearestCalls = append(m.NearestCalls, k)
	m.mu.Unlock()
	if m.NearestError != nil {
		return nil, m.NearestError
	}
	if k > len(m.Identities) {
		k = len(m.Identities)
	}
	return slices.Clone(m.Identities[:k]), nil
}
