package store

import (
	"context"
	"sync"
	"time"

	"civid/internal/holder/models"
	"civid/pkg/domain"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu        sync.RWMutex
	byUIN     map[domain.UIN]*models.Holder
	bySubject map[domain.SubjectID]domain.UIN
	byApp     map[domain.ApplicationID]domain.UIN
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		byUIN:     make(map[domain.UIN]*models.Holder),
		bySubject: make(map[domain.SubjectID]domain.UIN),
		byApp:     make(map[domain.ApplicationID]domain.UIN),
	}
}

func (s *MemoryStore) Create(_ context.Context, holder *models.Holder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUIN[holder.UIN]; exists {
		return ErrConflict
	}
	if _, exists := s.byApp[holder.ApplicationID]; exists {
		return ErrConflict
	}
	s.byUIN[holder.UIN] = holder.Clone()
	s.bySubject[holder.SubjectID] = holder.UIN
	s.byApp[holder.ApplicationID] = holder.UIN
	return nil
}

func (s *MemoryStore) GetByUIN(_ context.Context, uin domain.UIN) (*models.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	holder, ok := s.byUIN[uin]
	if !ok {
		return nil, ErrNotFound
	}
	return holder.Clone(), nil
}

func (s *MemoryStore) GetBySubject(_ context.Context, subjectID domain.SubjectID) (*models.Holder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uin, ok := s.bySubject[subjectID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.byUIN[uin].Clone(), nil
}

func (s *MemoryStore) ExistsUIN(_ context.Context, uin domain.UIN) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byUIN[uin]
	return ok, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, uin domain.UIN, from, to models.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	holder, ok := s.byUIN[uin]
	if !ok {
		return ErrNotFound
	}
	if holder.Status != from {
		return ErrConflict
	}
	holder.Status = to
	holder.StatusAt = at
	if to == models.StatusRevoked {
		t := at
		holder.RevokedAt = &t
	}
	return nil
}
