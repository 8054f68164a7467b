package view

import (
	"context"
	"sync"
	"time"

	domain "cardrec/internal/domain/view"
)

type memoryStore struct {
	mu    sync.RWMutex
	views map[string]domain.State
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryStore returns a Store that keeps views in process memory.
// Views idle longer than ttl are reported as not found; ttl 0 keeps them forever.
func NewMemoryStore(ttl time.Duration) Store {
	return &memoryStore{
		views: make(map[string]domain.State),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns a copy of the view with the given ID.
// POST: returns ErrNotFound for unknown or expired views
func (m *memoryStore) Get(_ context.Context, id string) (domain.State, error) {
	m.mu.RLock()
	s, ok := m.views[id]
	m.mu.RUnlock()
	if !ok || s.Expired(m.now(), m.ttl) {
		return domain.State{}, ErrNotFound
	}
	return s.Clone(), nil
}

// Save stores a copy of s, replacing any previous version.
// PRE: s.ID is non-empty
func (m *memoryStore) Save(_ context.Context, s domain.State) error {
	m.mu.Lock()
	m.views[s.ID] = s.Clone()
	m.mu.Unlock()
	return nil
}

// Delete removes the view. Unknown IDs are not an error.
func (m *memoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.views, id)
	m.mu.Unlock()
	return nil
}

// DeleteExpired removes views idle longer than ttl.
func (m *memoryStore) DeleteExpired(_ context.Context, now time.Time, ttl time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.views {
		if s.Expired(now, ttl) {
			delete(m.views, id)
			n++
		}
	}
	return n, nil
}
