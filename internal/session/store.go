// Package session holds session persistence contracts and per-session
// request serialization.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/soyeahso/maestro/internal/domain"
)

// Store loads and saves session context. Get returns
// domain.ErrSessionNotFound for unknown ids.
type Store interface {
	Get(ctx context.Context, id string) (*domain.Session, error)
	Save(ctx context.Context, sess *domain.Session) error
}

// MemoryStore is an in-process Store. Sessions are stored as snapshots so
// callers never share memory with the store.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*domain.Session)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	return sess.Snapshot(), nil
}

func (m *MemoryStore) Save(_ context.Context, sess *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.ID] = sess.Snapshot()
	return nil
}

// List returns all stored session ids, sorted.
func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
