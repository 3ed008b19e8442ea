// Package store persists credential applications. Both implementations honor
// the same contract: one record per subject, conditional status writes, and
// fair-queue ordering for review listings.
package store

import (
	"context"
	"errors"

	"civid/internal/application/models"
	"civid/pkg/domain"
)

var (
	// ErrNotFound is returned when no application matches the lookup.
	ErrNotFound = errors.New("application not found")
	// ErrConflict is returned when a conditional write loses: the record's
	// current status was not among the expected ones, or a create raced an
	// existing record for the same subject.
	ErrConflict = errors.New("application state conflict")
)

type Store interface {
	// Create inserts a new application. Fails with ErrConflict when the
	// subject already has a record.
	Create(ctx context.Context, app *models.Application) error

	// Update writes the full record only if its stored status is one of
	// expected (compare-and-swap). Fails with ErrConflict otherwise so the
	// losing writer of a race can observe the actual current state.
	Update(ctx context.Context, app *models.Application, expected ...models.Status) error

	GetByID(ctx context.Context, id domain.ApplicationID) (*models.Application, error)
	GetBySubject(ctx context.Context, subjectID domain.SubjectID) (*models.Application, error)

	// ListByStatus returns applications in the given status ordered by
	// submission time ascending, oldest first.
	ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Application, error)

	// Delete removes the record entirely. Administrative purge only.
	Delete(ctx context.Context, id domain.ApplicationID) error
}
