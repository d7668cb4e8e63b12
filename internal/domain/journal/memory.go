package journal

import (
	"context"
	"sync"
)

// MemoryStore keeps the most recent records in a fixed-size ring.
type MemoryStore struct {
	mu    sync.RWMutex
	ring  []Record
	next  int
	count int
}

func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = 500
	}
	return &MemoryStore{ring: make([]Record, capacity)}
}

func (s *MemoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring[s.next] = rec
	s.next = (s.next + 1) % len(s.ring)
	if s.count < len(s.ring) {
		s.count++
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit = clampLimit(limit, len(s.ring))
	if limit > s.count {
		limit = s.count
	}
	out := make([]Record, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + len(s.ring)) % len(s.ring)
		out = append(out, s.ring[idx])
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
