package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is a thread-safe in-memory Store, used by tests and the
// daemon's ephemeral mode.
type MemoryStore struct {
	mu     sync.RWMutex
	grants map[string]*Grant
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{grants: make(map[string]*Grant)}
}

func (s *MemoryStore) Create(_ context.Context, g *Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[g.ID]; ok {
		return fmt.Errorf("grant %s already exists", g.ID)
	}
	cp := *g
	s.grants[g.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGrantNotFound, id)
	}
	cp := *g
	return &cp, nil
}

func (s *MemoryStore) Update(_ context.Context, g *Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[g.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrGrantNotFound, g.ID)
	}
	cp := *g
	s.grants[g.ID] = &cp
	return nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]*Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Grant, 0, len(s.grants))
	for _, g := range s.grants {
		cp := *g
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.grants[id]; !ok {
		return fmt.Errorf("%w: %s", ErrGrantNotFound, id)
	}
	delete(s.grants, id)
	return nil
}
