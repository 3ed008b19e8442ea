package outbox

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory obligation store for tests and local
// development.
type MemoryStore struct {
	mu          sync.RWMutex
	obligations map[uuid.UUID]*Obligation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{obligations: make(map[uuid.UUID]*Obligation)}
}

func (s *MemoryStore) Enqueue(_ context.Context, obligation Obligation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := obligation
	s.obligations[obligation.ID] = &dup
	return nil
}

func (s *MemoryStore) ListPending(_ context.Context, limit int) ([]Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Obligation
	for _, o := range s.obligations {
		if o.SettledAt == nil {
			out = append(out, *o)
		}
	}
	slices.SortFunc(out, func(a, b Obligation) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkSettled(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.obligations[id]
	if !ok {
		return ErrNotFound
	}
	t := at
	o.SettledAt = &t
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.obligations[id]
	if !ok {
		return ErrNotFound
	}
	o.Attempts++
	o.LastError = reason
	return nil
}
