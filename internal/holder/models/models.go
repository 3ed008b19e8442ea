// Package models defines the credential holder record, the durable registry
// entry created exactly once per approved application.
package models

import (
	"time"

	"civid/internal/application/models"
	"civid/pkg/domain"
)

// Status is the credential lifecycle state. Revocation is terminal;
// suspension is reversible.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusRevoked:
		return true
	}
	return false
}

// Holder is one issued credential. The UIN is globally unique and never
// reassigned, even after revocation.
type Holder struct {
	UIN           domain.UIN           `json:"uin"`
	SubjectID     domain.SubjectID     `json:"subject_id"`
	ApplicationID domain.ApplicationID `json:"application_id"`
	Status        Status               `json:"status"`

	FullName    string        `json:"full_name"`
	DateOfBirth string        `json:"date_of_birth"`
	Nationality string        `json:"nationality,omitempty"`
	FaceID      domain.FaceID `json:"face_id,omitempty"`

	IssuedAt   time.Time  `json:"issued_at"`
	ExpiryDate time.Time  `json:"expiry_date"`
	StatusAt   time.Time  `json:"status_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// FromApplication builds the holder record issued for an approved
// application. validity determines the credential expiry.
func FromApplication(app *models.Application, validity time.Duration) *Holder {
	issuedAt := time.Now().UTC()
	if app.IssuedAt != nil {
		issuedAt = *app.IssuedAt
	}
	return &Holder{
		UIN:           app.UIN,
		SubjectID:     app.SubjectID,
		ApplicationID: app.ID,
		Status:        StatusActive,
		FullName:      app.Fields.FullName,
		DateOfBirth:   app.Fields.DateOfBirth,
		Nationality:   app.Fields.Nationality,
		FaceID:        app.FaceID,
		IssuedAt:      issuedAt,
		ExpiryDate:    issuedAt.Add(validity),
		StatusAt:      issuedAt,
	}
}

// CanSuspend reports whether the credential may be suspended.
func (h *Holder) CanSuspend() bool { return h.Status == StatusActive }

// CanReinstate reports whether the credential may return to active.
func (h *Holder) CanReinstate() bool { return h.Status == StatusSuspended }

// CanRevoke reports whether the credential may be revoked. Revoking an
// already revoked credential is caught by the caller as an idempotent no-op.
func (h *Holder) CanRevoke() bool {
	return h.Status == StatusActive || h.Status == StatusSuspended
}

// Expired reports whether the credential has passed its expiry date.
func (h *Holder) Expired(now time.Time) bool { return now.After(h.ExpiryDate) }

// Clone returns a deep copy so store reads never alias store internals.
func (h *Holder) Clone() *Holder {
	dup := *h
	if h.RevokedAt != nil {
		t := *h.RevokedAt
		dup.RevokedAt = &t
	}
	return &dup
}
