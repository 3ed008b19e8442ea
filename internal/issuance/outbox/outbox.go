// Package outbox records issuance obligations: approvals whose holder write
// failed and must be repaired. The workflow engine enqueues, the reconciler
// drains. An approved application without a holder record is never left
// unaccounted for.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"civid/pkg/domain"
)

var ErrNotFound = errors.New("obligation not found")

// Obligation is one pending holder write.
type Obligation struct {
	ID            uuid.UUID            `json:"id"`
	ApplicationID domain.ApplicationID `json:"application_id"`
	UIN           domain.UIN           `json:"uin"`
	CreatedAt     time.Time            `json:"created_at"`
	Attempts      int                  `json:"attempts"`
	LastError     string               `json:"last_error,omitempty"`
	SettledAt     *time.Time           `json:"settled_at,omitempty"`
}

// NewObligation builds an obligation for an approved application.
func NewObligation(applicationID domain.ApplicationID, uin domain.UIN) Obligation {
	return Obligation{
		ID:            uuid.New(),
		ApplicationID: applicationID,
		UIN:           uin,
		CreatedAt:     time.Now().UTC(),
	}
}

type Store interface {
	Enqueue(ctx context.Context, obligation Obligation) error
	// ListPending returns unsettled obligations, oldest first.
	ListPending(ctx context.Context, limit int) ([]Obligation, error)
	MarkSettled(ctx context.Context, id uuid.UUID, at time.Time) error
	// MarkFailed bumps the attempt counter and records the failure reason;
	// the obligation stays pending.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}
