package store

import (
	"context"
	"sync"
)

// MemoryStore provides thread-safe in-memory decision counters
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]*Counts
}

// Ensure MemoryStore implements Store interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[string]*Counts)}
}

// Record counts one event
func (s *MemoryStore) Record(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counts[ev.Filter]
	if !ok {
		c = &Counts{RejectedByScope: make(map[string]int64)}
		s.counts[ev.Filter] = c
	}
	if ev.Admitted {
		c.Admitted++
	} else {
		c.Rejected++
		c.RejectedByScope[string(ev.Scope)]++
	}
	return nil
}

// Counts returns a copy of the totals for filter
func (s *MemoryStore) Counts(_ context.Context, filter string) (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Counts{RejectedByScope: make(map[string]int64)}
	c, ok := s.counts[filter]
	if !ok {
		return out, nil
	}
	out.Admitted = c.Admitted
	out.Rejected = c.Rejected
	for k, v := range c.RejectedByScope {
		out.RejectedByScope[k] = v
	}
	return out, nil
}

// Clear removes all counters
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[string]*Counts)
	return nil
}
