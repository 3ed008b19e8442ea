// Package store persists credential holder records. The UIN uniqueness
// guarantee lives here: Create fails with ErrConflict rather than ever
// overwriting an existing credential.
package store

import (
	"context"
	"errors"
	"time"

	"civid/internal/holder/models"
	"civid/pkg/domain"
)

var (
	ErrNotFound = errors.New("holder not found")
	ErrConflict = errors.New("holder already exists")
)

type Store interface {
	// Create inserts a new holder. Fails with ErrConflict when the UIN or
	// the source application already has a credential.
	Create(ctx context.Context, holder *models.Holder) error

	GetByUIN(ctx context.Context, uin domain.UIN) (*models.Holder, error)
	GetBySubject(ctx context.Context, subjectID domain.SubjectID) (*models.Holder, error)

	// ExistsUIN is the issuance collision check; cheaper than a full read.
	ExistsUIN(ctx context.Context, uin domain.UIN) (bool, error)

	// UpdateStatus conditionally moves the credential lifecycle state
	// (compare-and-swap on the current status). revokedAt is recorded when
	// to is revoked. Fails with ErrConflict when the stored status differs
	// from from.
	UpdateStatus(ctx context.Context, uin domain.UIN, from, to models.Status, at time.Time) error
}
