package handler

import (
	"strings"

	"civid/internal/application/models"
	"civid/pkg/validation"
)

// SubmitRequest is the citizen-facing submission payload.
type SubmitRequest struct {
	DocumentType string `json:"document_type" validate:"required,oneof=passport national_id birth_certificate driving_permit"`

	FullName       string `json:"full_name" validate:"required,notblank,max=200"`
	DateOfBirth    string `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	DocumentNumber string `json:"document_number" validate:"required,notblank,max=64"`
	Nationality    string `json:"nationality" validate:"omitempty,max=64"`
	Address        string `json:"address" validate:"omitempty,max=500"`

	DocumentKey string `json:"document_key" validate:"omitempty,max=512"`
	SelfieKey   string `json:"selfie_key" validate:"omitempty,max=512"`
}

func (r *SubmitRequest) Normalize() {
	r.FullName = strings.TrimSpace(r.FullName)
	r.DocumentNumber = strings.TrimSpace(r.DocumentNumber)
	r.Nationality = strings.ToUpper(strings.TrimSpace(r.Nationality))
	r.Address = strings.TrimSpace(r.Address)
}

func (r *SubmitRequest) Validate() error {
	return validation.Validate(r)
}

func (r *SubmitRequest) fields() models.Fields {
	return models.Fields{
		FullName:       r.FullName,
		DateOfBirth:    r.DateOfBirth,
		DocumentNumber: r.DocumentNumber,
		Nationality:    r.Nationality,
		Address:        r.Address,
	}
}

func (r *SubmitRequest) images() models.ImageRefs {
	return models.ImageRefs{
		DocumentKey: r.DocumentKey,
		SelfieKey:   r.SelfieKey,
	}
}

// RejectRequest carries the reviewer's rejection reason.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required,notblank,max=1000"`
}

func (r *RejectRequest) Normalize() {
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *RejectRequest) Validate() error {
	return validation.Validate(r)
}
