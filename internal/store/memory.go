package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/aeroimpact/internal/impact"
)

// MemoryStore is a concurrency-safe in-memory implementation of ImpactStore.
type MemoryStore struct {
	mu sync.RWMutex

	// key: impact id
	data map[string]impact.Impact
	// ids in insertion order, oldest first
	order []string

	// retention configuration
	maxHistory int // max number of impacts kept

	now   func() time.Time
	newID func() string
}

// NewMemoryStore creates a new MemoryStore.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]impact.Impact),
		maxHistory: maxHistory,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Save stores imp, assigning an id and creation time when missing.
// Saving an existing id replaces it in place.
func (s *MemoryStore) Save(_ context.Context, imp impact.Impact) (impact.Impact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if imp.ID == "" {
		imp.ID = s.newID()
	}
	if imp.CreatedAt.IsZero() {
		imp.CreatedAt = s.now().UTC()
	}

	if _, exists := s.data[imp.ID]; !exists {
		s.order = append(s.order, imp.ID)
	}
	s.data[imp.ID] = imp

	// Enforce retention by count.
	if s.maxHistory > 0 && len(s.order) > s.maxHistory {
		over := len(s.order) - s.maxHistory
		for _, id := range s.order[:over] {
			delete(s.data, id)
		}
		s.order = append([]string(nil), s.order[over:]...)
	}

	return imp, nil
}

// Get returns the impact with the given id.
func (s *MemoryStore) Get(_ context.Context, id string) (impact.Impact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	imp, ok := s.data[id]
	if !ok {
		return impact.Impact{}, ErrNotFound
	}
	return imp, nil
}

// List returns up to limit impacts, newest first. limit <= 0 returns all.
func (s *MemoryStore) List(_ context.Context, limit int) ([]impact.Impact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.order)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]impact.Impact, 0, n)
	for i := len(s.order) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, s.data[s.order[i]])
	}
	return result, nil
}

// Delete removes the impact with the given id.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[id]; !ok {
		return ErrNotFound
	}
	delete(s.data, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Stats counts stored impacts per severity.
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := emptyStats()
	st.Total = len(s.data)
	for _, imp := range s.data {
		st.BySeverity[imp.Severity]++
	}
	return st, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
