// Package models defines the credential application aggregate and its
// lifecycle. The status graph is the heart of the workflow engine; every
// transition rule lives here so stores and services share one source of truth.
package models

import (
	"time"

	"civid/pkg/domain"
)

// Status is the application lifecycle state.
type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether s is a decision state. A terminal application
// only changes again through resubmission (rejected) or never (approved).
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// DocumentType identifies the breeder document backing an application.
type DocumentType string

const (
	DocumentPassport      DocumentType = "passport"
	DocumentNationalID    DocumentType = "national_id"
	DocumentBirthCert     DocumentType = "birth_certificate"
	DocumentDrivingPermit DocumentType = "driving_permit"
)

// Valid reports whether d is an accepted document type.
func (d DocumentType) Valid() bool {
	switch d {
	case DocumentPassport, DocumentNationalID, DocumentBirthCert, DocumentDrivingPermit:
		return true
	}
	return false
}

// Fields carries the demographic data captured from the applicant and, where
// available, corrected by document extraction.
type Fields struct {
	FullName       string `json:"full_name"`
	DateOfBirth    string `json:"date_of_birth"` // ISO 8601 date
	DocumentNumber string `json:"document_number"`
	Nationality    string `json:"nationality,omitempty"`
	Address        string `json:"address,omitempty"`
}

// ImageRefs holds opaque storage keys for the captured images. Keys are
// resolved to time-limited URLs by the blob signer; raw bytes never pass
// through this service.
type ImageRefs struct {
	DocumentKey string `json:"document_key,omitempty"`
	SelfieKey   string `json:"selfie_key,omitempty"`
}

// Application is one subject's request for a credential. There is at most one
// live application per subject; resubmission rewrites this record in place
// and keeps the original identifier.
type Application struct {
	ID        domain.ApplicationID `json:"id"`
	SubjectID domain.SubjectID     `json:"subject_id"`
	Status    Status               `json:"status"`

	DocumentType DocumentType `json:"document_type"`
	Fields       Fields       `json:"fields"`
	Images       ImageRefs    `json:"images"`

	// Advisory vision results. Confidence is nil when face comparison did
	// not run or failed; a nil confidence always forces manual review.
	Confidence           *float64      `json:"confidence,omitempty"`
	RequiresManualReview bool          `json:"requires_manual_review"`
	FaceID               domain.FaceID `json:"face_id,omitempty"`

	// Review outcome. Set only in terminal states.
	UIN             domain.UIN        `json:"uin,omitempty"`
	IssuedAt        *time.Time        `json:"issued_at,omitempty"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
	ReviewedBy      domain.ReviewerID `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time        `json:"reviewed_at,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CanResubmit reports whether a new submission may overwrite this record.
// Only untouched or rejected applications can be resubmitted; an application
// under review is owned by its reviewer and an approved one is settled.
func (a *Application) CanResubmit() bool {
	return a.Status == StatusPending || a.Status == StatusRejected
}

// CanDecide reports whether a reviewer may move this record to a terminal
// state. Decisions are allowed from pending as well as under_review so a
// reviewer is not forced through an explicit claim step.
func (a *Application) CanDecide() bool {
	return a.Status == StatusPending || a.Status == StatusUnderReview
}

// Resubmit rewrites the mutable portion of the record for a fresh attempt,
// clearing any previous outcome. The identifier and SubmittedAt are stable
// across resubmissions: the applicant keeps their original queue position.
func (a *Application) Resubmit(docType DocumentType, fields Fields, images ImageRefs, now time.Time) {
	a.Status = StatusPending
	a.DocumentType = docType
	a.Fields = fields
	a.Images = images
	a.Confidence = nil
	a.RequiresManualReview = false
	a.FaceID = ""
	a.UIN = ""
	a.IssuedAt = nil
	a.RejectionReason = ""
	a.ReviewedBy = ""
	a.ReviewedAt = nil
	a.UpdatedAt = now
}

// Approve records the approval outcome on the aggregate. The caller is
// responsible for the conditional store write and holder creation.
func (a *Application) Approve(uin domain.UIN, reviewer domain.ReviewerID, now time.Time) {
	a.Status = StatusApproved
	a.UIN = uin
	a.IssuedAt = &now
	a.RejectionReason = ""
	a.ReviewedBy = reviewer
	a.ReviewedAt = &now
	a.UpdatedAt = now
}

// Reject records the rejection outcome on the aggregate.
func (a *Application) Reject(reviewer domain.ReviewerID, reason string, now time.Time) {
	a.Status = StatusRejected
	a.UIN = ""
	a.IssuedAt = nil
	a.RejectionReason = reason
	a.ReviewedBy = reviewer
	a.ReviewedAt = &now
	a.UpdatedAt = now
}

// Clone returns a deep copy so store reads never alias store internals.
func (a *Application) Clone() *Application {
	dup := *a
	if a.Confidence != nil {
		c := *a.Confidence
		dup.Confidence = &c
	}
	if a.IssuedAt != nil {
		t := *a.IssuedAt
		dup.IssuedAt = &t
	}
	if a.ReviewedAt != nil {
		t := *a.ReviewedAt
		dup.ReviewedAt = &t
	}
	return &dup
}
