package service

import (
	"fmt"
	"strings"
	"time"

	"civid/internal/application/models"
	"civid/pkg/domain"
	dErrors "civid/pkg/domain-errors"
)

// SubmitCommand carries a citizen's application submission.
type SubmitCommand struct {
	SubjectID    domain.SubjectID
	DocumentType models.DocumentType
	Fields       models.Fields
	Images       models.ImageRefs

	RequestID string
	IP        string
}

// Validate enforces the submission invariants before any store or
// collaborator work happens.
func (c SubmitCommand) Validate() error {
	if c.SubjectID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "subject_id is required")
	}
	if !c.DocumentType.Valid() {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown document type %q", c.DocumentType))
	}
	if strings.TrimSpace(c.Fields.FullName) == "" {
		return dErrors.New(dErrors.CodeValidation, "full_name is required")
	}
	if strings.TrimSpace(c.Fields.DocumentNumber) == "" {
		return dErrors.New(dErrors.CodeValidation, "document_number is required")
	}
	if c.Fields.DateOfBirth == "" {
		return dErrors.New(dErrors.CodeValidation, "date_of_birth is required")
	}
	dob, err := time.Parse("2006-01-02", c.Fields.DateOfBirth)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "date_of_birth must be an ISO 8601 date")
	}
	if dob.After(time.Now()) {
		return dErrors.New(dErrors.CodeValidation, "date_of_birth cannot be in the future")
	}
	if c.Images.SelfieKey != "" && c.Images.DocumentKey == "" {
		return dErrors.New(dErrors.CodeValidation, "selfie_key requires a document_key")
	}
	return nil
}

// ReviewCommand identifies a reviewer acting on an application.
type ReviewCommand struct {
	ApplicationID domain.ApplicationID
	Reviewer      domain.ReviewerID
	Roles         []string

	RequestID string
	IP        string
}

func (c ReviewCommand) Validate() error {
	if c.ApplicationID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "application_id is required")
	}
	if c.Reviewer.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "reviewer is required")
	}
	return nil
}

// RejectCommand is a review decision that requires a stated reason.
type RejectCommand struct {
	ReviewCommand
	Reason string
}

func (c RejectCommand) Validate() error {
	if err := c.ReviewCommand.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Reason) == "" {
		return dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}
	return nil
}

// PurgeCommand removes an application record entirely.
type PurgeCommand struct {
	ApplicationID domain.ApplicationID
	Actor         string
	Roles         []string

	RequestID string
	IP        string
}
