// Package testutil holds shared helpers for building test data and driving
// concurrent scenarios. Test-only; never imported from production code.
package testutil

import (
	"time"

	appmodels "civid/internal/application/models"
	holdermodels "civid/internal/holder/models"
	"civid/pkg/domain"
)

// TestIDs provides convenient pre-generated IDs for tests.
// Use these for deterministic test data.
var TestIDs = struct {
	SubjectID1    domain.SubjectID
	SubjectID2    domain.SubjectID
	ApplicationID domain.ApplicationID
	ReviewerID    domain.ReviewerID
	UIN1          domain.UIN
	UIN2          domain.UIN
}{
	SubjectID1:    domain.SubjectID("11111111-1111-1111-1111-111111111111"),
	SubjectID2:    domain.SubjectID("22222222-2222-2222-2222-222222222222"),
	ApplicationID: domain.ApplicationID("app_000000001aaaaaa"),
	ReviewerID:    domain.ReviewerID("officer-1"),
	UIN1:          domain.UIN("CID000001000001"),
	UIN2:          domain.UIN("CID000002000002"),
}

// ApplicationBuilder provides a fluent interface for building test applications.
type ApplicationBuilder struct {
	app *appmodels.Application
}

// NewApplicationBuilder creates an ApplicationBuilder with sensible defaults:
// a pending passport application for SubjectID1 with both image keys set.
func NewApplicationBuilder() *ApplicationBuilder {
	now := time.Now()
	return &ApplicationBuilder{
		app: &appmodels.Application{
			ID:           TestIDs.ApplicationID,
			SubjectID:    TestIDs.SubjectID1,
			Status:       appmodels.StatusPending,
			DocumentType: appmodels.DocumentPassport,
			Fields: appmodels.Fields{
				FullName:       "Test Applicant",
				DateOfBirth:    "1990-01-01",
				DocumentNumber: "P1234567",
				Nationality:    "USA",
			},
			Images: appmodels.ImageRefs{
				DocumentKey: "subjects/" + string(TestIDs.SubjectID1) + "/document.jpg",
				SelfieKey:   "subjects/" + string(TestIDs.SubjectID1) + "/selfie.jpg",
			},
			SubmittedAt: now,
			UpdatedAt:   now,
		},
	}
}

func (b *ApplicationBuilder) WithID(id domain.ApplicationID) *ApplicationBuilder {
	b.app.ID = id
	return b
}

func (b *ApplicationBuilder) WithSubject(subjectID domain.SubjectID) *ApplicationBuilder {
	b.app.SubjectID = subjectID
	return b
}

func (b *ApplicationBuilder) WithStatus(status appmodels.Status) *ApplicationBuilder {
	b.app.Status = status
	return b
}

func (b *ApplicationBuilder) WithDocumentType(docType appmodels.DocumentType) *ApplicationBuilder {
	b.app.DocumentType = docType
	return b
}

func (b *ApplicationBuilder) WithFields(fields appmodels.Fields) *ApplicationBuilder {
	b.app.Fields = fields
	return b
}

func (b *ApplicationBuilder) WithConfidence(confidence float64) *ApplicationBuilder {
	b.app.Confidence = &confidence
	return b
}

func (b *ApplicationBuilder) ManualReview() *ApplicationBuilder {
	b.app.RequiresManualReview = true
	return b
}

func (b *ApplicationBuilder) Approved(uin domain.UIN, reviewer domain.ReviewerID) *ApplicationBuilder {
	b.app.Approve(uin, reviewer, time.Now())
	return b
}

func (b *ApplicationBuilder) Rejected(reviewer domain.ReviewerID, reason string) *ApplicationBuilder {
	b.app.Reject(reviewer, reason, time.Now())
	return b
}

func (b *ApplicationBuilder) SubmittedAt(t time.Time) *ApplicationBuilder {
	b.app.SubmittedAt = t
	b.app.UpdatedAt = t
	return b
}

func (b *ApplicationBuilder) Build() *appmodels.Application {
	return b.app
}

// HolderBuilder provides a fluent interface for building test holders.
type HolderBuilder struct {
	holder *holdermodels.Holder
}

// NewHolderBuilder creates a HolderBuilder with sensible defaults: an active
// credential for SubjectID1 valid for ten years.
func NewHolderBuilder() *HolderBuilder {
	now := time.Now()
	return &HolderBuilder{
		holder: &holdermodels.Holder{
			UIN:           TestIDs.UIN1,
			SubjectID:     TestIDs.SubjectID1,
			ApplicationID: TestIDs.ApplicationID,
			Status:        holdermodels.StatusActive,
			FullName:      "Test Applicant",
			DateOfBirth:   "1990-01-01",
			Nationality:   "USA",
			IssuedAt:      now,
			ExpiryDate:    now.Add(10 * 365 * 24 * time.Hour),
			StatusAt:      now,
		},
	}
}

func (b *HolderBuilder) WithUIN(uin domain.UIN) *HolderBuilder {
	b.holder.UIN = uin
	return b
}

func (b *HolderBuilder) WithSubject(subjectID domain.SubjectID) *HolderBuilder {
	b.holder.SubjectID = subjectID
	return b
}

func (b *HolderBuilder) WithApplication(id domain.ApplicationID) *HolderBuilder {
	b.holder.ApplicationID = id
	return b
}

func (b *HolderBuilder) WithStatus(status holdermodels.Status) *HolderBuilder {
	b.holder.Status = status
	return b
}

func (b *HolderBuilder) ExpiresAt(t time.Time) *HolderBuilder {
	b.holder.ExpiryDate = t
	return b
}

func (b *HolderBuilder) Revoked() *HolderBuilder {
	now := time.Now()
	b.holder.Status = holdermodels.StatusRevoked
	b.holder.StatusAt = now
	b.holder.RevokedAt = &now
	return b
}

func (b *HolderBuilder) Build() *holdermodels.Holder {
	return b.holder
}
