package store

import (
	"context"
	"slices"
	"sync"

	"civid/internal/application/models"
	"civid/pkg/domain"
)

// MemoryStore is an in-memory Store for tests and local development.
// Conditional writes are serialized under one lock, which gives the same
// observable CAS behavior as the row-level conditions in PostgresStore.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[domain.ApplicationID]*models.Application
	bySubject map[domain.SubjectID]domain.ApplicationID
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[domain.ApplicationID]*models.Application),
		bySubject: make(map[domain.SubjectID]domain.ApplicationID),
	}
}

func (s *MemoryStore) Create(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bySubject[app.SubjectID]; exists {
		return ErrConflict
	}
	s.byID[app.ID] = app.Clone()
	s.bySubject[app.SubjectID] = app.ID
	return nil
}

func (s *MemoryStore) Update(_ context.Context, app *models.Application, expected ...models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[app.ID]
	if !ok {
		return ErrNotFound
	}
	if len(expected) > 0 && !slices.Contains(expected, current.Status) {
		return ErrConflict
	}
	s.byID[app.ID] = app.Clone()
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id domain.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	app, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return app.Clone(), nil
}

func (s *MemoryStore) GetBySubject(_ context.Context, subjectID domain.SubjectID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySubject[subjectID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.byID[id].Clone(), nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status models.Status, limit int) ([]*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Application
	for _, app := range s.byID {
		if app.Status == status {
			out = append(out, app.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Application) int {
		return a.SubmittedAt.Compare(b.SubmittedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id domain.ApplicationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.bySubject, app.SubjectID)
	delete(s.byID, id)
	return nil
}
