package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"civid/internal/application/models"
	"civid/internal/application/store"
	"civid/internal/audit"
	holdermodels "civid/internal/holder/models"
	holderstore "civid/internal/holder/store"
	"civid/internal/issuance/outbox"
	"civid/internal/policy"
	"civid/internal/vision"
	"civid/pkg/domain"
	dErrors "civid/pkg/domain-errors"
)

// stubHolders records created holders and can be set to fail.
type stubHolders struct {
	created []*holdermodels.Holder
	err     error
}

func (s *stubHolders) Create(_ context.Context, h *holdermodels.Holder) error {
	if s.err != nil {
		return s.err
	}
	s.created = append(s.created, h)
	return nil
}

// stubUINs mints sequential UINs and can be set to fail.
type stubUINs struct {
	next int
	err  error
}

func (s *stubUINs) Issue(context.Context) (domain.UIN, error) {
	if s.err != nil {
		return "", s.err
	}
	s.next++
	return domain.UIN(fmt.Sprintf("CID%012d", s.next)), nil
}

// stubVerifier returns a canned vision result.
type stubVerifier struct {
	result *vision.Result
	err    error
	calls  int
}

func (s *stubVerifier) Verify(context.Context, string, string) (*vision.Result, error) {
	s.calls++
	return s.result, s.err
}

type stubIssuedPublisher struct {
	published []*models.Application
	err       error
}

func (s *stubIssuedPublisher) PublishIssued(app *models.Application) error {
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, app)
	return nil
}

func confidence(v float64) *vision.Result {
	return &vision.Result{
		Extraction: &vision.Extraction{
			FullName:       "ADA OBI",
			DateOfBirth:    "1990-01-15",
			DocumentNumber: "P1234567",
			Nationality:    "NGA",
		},
		Confidence: &v,
		FaceID:     "face-1",
	}
}

type ServiceSuite struct {
	suite.Suite
	ctx         context.Context
	store       *store.MemoryStore
	holders     *stubHolders
	uins        *stubUINs
	verifier    *stubVerifier
	obligations *outbox.MemoryStore
	auditStore  *audit.MemoryStore
	issued      *stubIssuedPublisher
	svc         *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewMemory()
	s.holders = &stubHolders{}
	s.uins = &stubUINs{}
	s.verifier = &stubVerifier{result: confidence(92)}
	s.obligations = outbox.NewMemoryStore()
	s.auditStore = audit.NewMemoryStore()
	s.issued = &stubIssuedPublisher{}
	s.svc = s.newService()
}

func (s *ServiceSuite) newService(opts ...Option) *Service {
	base := []Option{
		WithVerifier(s.verifier),
		WithObligationQueue(s.obligations),
		WithIssuedPublisher(s.issued),
	}
	return NewService(s.store, s.holders, s.uins,
		audit.NewPublisher(s.auditStore),
		slog.New(slog.DiscardHandler),
		append(base, opts...)...)
}

func (s *ServiceSuite) submitCommand() SubmitCommand {
	return SubmitCommand{
		SubjectID:    "subj-1",
		DocumentType: models.DocumentPassport,
		Fields: models.Fields{
			FullName:       "Ada Obi",
			DateOfBirth:    "1990-01-15",
			DocumentNumber: "P1234567",
		},
		Images: models.ImageRefs{DocumentKey: "doc/1.jpg", SelfieKey: "selfie/1.jpg"},
	}
}

func (s *ServiceSuite) officer(id domain.ApplicationID) ReviewCommand {
	return ReviewCommand{ApplicationID: id, Reviewer: "officer-1", Roles: []string{policy.RoleOfficer}}
}

func (s *ServiceSuite) submitted() *models.Application {
	app, err := s.svc.Submit(s.ctx, s.submitCommand())
	s.Require().NoError(err)
	return app
}

// --- Submit ---

func (s *ServiceSuite) TestSubmitCreatesPendingApplication() {
	app := s.submitted()

	s.Equal(models.StatusPending, app.Status)
	s.NotEmpty(app.ID)
	s.Require().NotNil(app.Confidence)
	s.Equal(92.0, *app.Confidence)
	s.False(app.RequiresManualReview)
	s.Equal(domain.FaceID("face-1"), app.FaceID)

	stored, err := s.svc.Lookup(s.ctx, "subj-1")
	s.Require().NoError(err)
	s.Equal(app.ID, stored.ID)
}

func (s *ServiceSuite) TestSubmitValidation() {
	cases := map[string]func(*SubmitCommand){
		"missing subject":      func(c *SubmitCommand) { c.SubjectID = "" },
		"bad document type":    func(c *SubmitCommand) { c.DocumentType = "library_card" },
		"missing full name":    func(c *SubmitCommand) { c.Fields.FullName = "  " },
		"missing doc number":   func(c *SubmitCommand) { c.Fields.DocumentNumber = "" },
		"malformed birth date": func(c *SubmitCommand) { c.Fields.DateOfBirth = "15/01/1990" },
		"future birth date":    func(c *SubmitCommand) { c.Fields.DateOfBirth = "2999-01-01" },
		"selfie without doc":   func(c *SubmitCommand) { c.Images = models.ImageRefs{SelfieKey: "selfie/1.jpg"} },
	}
	for name, mutate := range cases {
		s.Run(name, func() {
			cmd := s.submitCommand()
			mutate(&cmd)
			_, err := s.svc.Submit(s.ctx, cmd)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "expected validation error, got %v", err)
		})
	}
}

func (s *ServiceSuite) TestSubmitLowConfidenceFlagsManualReview() {
	s.verifier.result = confidence(60)

	app := s.submitted()
	s.True(app.RequiresManualReview)
	s.Require().NotNil(app.Confidence)
	s.Equal(60.0, *app.Confidence)
}

func (s *ServiceSuite) TestSubmitVisionFailureDegrades() {
	s.verifier.err = dErrors.New(dErrors.CodeUpstream, "vision down")
	s.verifier.result = nil

	app := s.submitted()
	s.Equal(models.StatusPending, app.Status, "vision failure must not fail the submission")
	s.True(app.RequiresManualReview)
	s.Nil(app.Confidence)
}

func (s *ServiceSuite) TestSubmitVisionPartialResultKept() {
	conf := confidence(90)
	conf.Confidence = nil
	conf.FaceID = ""
	s.verifier.result = conf
	s.verifier.err = errors.New("face compare timed out")

	cmd := s.submitCommand()
	cmd.Fields.Nationality = ""
	app, err := s.svc.Submit(s.ctx, cmd)
	s.Require().NoError(err)

	s.True(app.RequiresManualReview)
	s.Equal("NGA", app.Fields.Nationality, "extraction from before the failure is kept")
}

func (s *ServiceSuite) TestSubmitExtractionSupplementsBlankFields() {
	cmd := s.submitCommand()
	cmd.Fields.Nationality = ""
	app, err := s.svc.Submit(s.ctx, cmd)
	s.Require().NoError(err)

	s.Equal("NGA", app.Fields.Nationality)
	s.Equal("Ada Obi", app.Fields.FullName, "applicant-entered fields win over extraction")
}

func (s *ServiceSuite) TestSubmitWithoutImagesGoesToManualReview() {
	cmd := s.submitCommand()
	cmd.Images = models.ImageRefs{}

	app, err := s.svc.Submit(s.ctx, cmd)
	s.Require().NoError(err)
	s.True(app.RequiresManualReview)
	s.Zero(s.verifier.calls)
}

func (s *ServiceSuite) TestResubmission() {
	first := s.submitted()
	reject := RejectCommand{ReviewCommand: s.officer(first.ID), Reason: "document unreadable"}
	_, err := s.svc.Reject(s.ctx, reject)
	s.Require().NoError(err)

	s.Run("rejected application can be resubmitted", func() {
		again, err := s.svc.Submit(s.ctx, s.submitCommand())
		s.Require().NoError(err)
		s.Equal(first.ID, again.ID, "identifier is stable across resubmissions")
		s.Equal(models.StatusPending, again.Status)
		s.Empty(again.RejectionReason)
	})

	s.Run("approved application cannot be resubmitted", func() {
		_, err := s.svc.Approve(s.ctx, s.officer(first.ID))
		s.Require().NoError(err)

		_, err = s.svc.Submit(s.ctx, s.submitCommand())
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *ServiceSuite) TestResubmissionKeepsSubmissionTime() {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	clock := start
	svc := s.newService(WithClock(func() time.Time { return clock }))

	first, err := svc.Submit(s.ctx, s.submitCommand())
	s.Require().NoError(err)
	_, err = svc.Reject(s.ctx, RejectCommand{ReviewCommand: s.officer(first.ID), Reason: "document unreadable"})
	s.Require().NoError(err)

	clock = start.Add(48 * time.Hour)
	again, err := svc.Submit(s.ctx, s.submitCommand())
	s.Require().NoError(err)

	s.Equal(first.SubmittedAt, again.SubmittedAt, "submission time never mutates after creation")
	s.Equal(clock, again.UpdatedAt)
}

func (s *ServiceSuite) TestResubmissionBlockedUnderReview() {
	app := s.submitted()
	_, err := s.svc.StartReview(s.ctx, s.officer(app.ID))
	s.Require().NoError(err)

	_, err = s.svc.Submit(s.ctx, s.submitCommand())
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

// --- StartReview ---

func (s *ServiceSuite) TestStartReview() {
	app := s.submitted()

	claimed, err := s.svc.StartReview(s.ctx, s.officer(app.ID))
	s.Require().NoError(err)
	s.Equal(models.StatusUnderReview, claimed.Status)
	s.Equal(domain.ReviewerID("officer-1"), claimed.ReviewedBy)

	s.Run("same reviewer reclaim is a no-op", func() {
		again, err := s.svc.StartReview(s.ctx, s.officer(app.ID))
		s.Require().NoError(err)
		s.Equal(models.StatusUnderReview, again.Status)
	})

	s.Run("second reviewer cannot claim", func() {
		cmd := s.officer(app.ID)
		cmd.Reviewer = "officer-2"
		_, err := s.svc.StartReview(s.ctx, cmd)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *ServiceSuite) TestStartReviewRequiresRole() {
	app := s.submitted()
	cmd := s.officer(app.ID)
	cmd.Roles = []string{policy.RoleCitizen}

	_, err := s.svc.StartReview(s.ctx, cmd)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

// --- Approve ---

func (s *ServiceSuite) TestApprove() {
	app := s.submitted()

	approved, err := s.svc.Approve(s.ctx, s.officer(app.ID))
	s.Require().NoError(err)

	s.Equal(models.StatusApproved, approved.Status)
	s.NotEmpty(approved.UIN)
	s.NotNil(approved.IssuedAt)
	s.Equal(domain.ReviewerID("officer-1"), approved.ReviewedBy)

	s.Run("holder record created", func() {
		s.Require().Len(s.holders.created, 1)
		h := s.holders.created[0]
		s.Equal(approved.UIN, h.UIN)
		s.Equal(approved.SubjectID, h.SubjectID)
		s.Equal(holdermodels.StatusActive, h.Status)
	})

	s.Run("issued event published", func() {
		s.Require().Len(s.issued.published, 1)
		s.Equal(approved.UIN, s.issued.published[0].UIN)
	})

	s.Run("audit trail records the decision", func() {
		events, err := s.auditStore.ListBySubject(s.ctx, "subj-1")
		s.Require().NoError(err)
		var found bool
		for _, e := range events {
			if e.Action == audit.ActionApplicationApproved {
				found = true
				s.Equal("officer-1", e.Actor)
			}
		}
		s.True(found)
	})
}

func (s *ServiceSuite) TestApproveIdempotent() {
	app := s.submitted()
	first, err := s.svc.Approve(s.ctx, s.officer(app.ID))
	s.Require().NoError(err)

	second, err := s.svc.Approve(s.ctx, s.officer(app.ID))
	s.Require().NoError(err)
	s.Equal(first.UIN, second.UIN, "repeat approval returns the settled outcome")
	s.Len(s.holders.created, 1, "no second holder record")
}

func (s *ServiceSuite) TestApproveAfterRejectIsInvalidState() {
	app := s.submitted()
	_, err := s.svc.Reject(s.ctx, RejectCommand{ReviewCommand: s.officer(app.ID), Reason: "face mismatch"})
	s.Require().NoError(err)

	_, err = s.svc.Approve(s.ctx, s.officer(app.ID))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	s.Contains(err.Error(), string(models.StatusRejected), "error carries the current status")
}

func (s *ServiceSuite) TestApproveRequiresRole() {
	app := s.submitted()
	cmd := s.officer(app.ID)
	cmd.Roles = []string{policy.RoleVoucher}

	_, err := s.svc.Approve(s.ctx, cmd)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Empty(s.holders.created)
}

func (s *ServiceSuite) TestApproveIssuanceFailure() {
	app := s.submitted()
	s.uins.err = dErrors.New(dErrors.CodeIssuance, "collision retries exhausted")

	_, err := s.svc.Approve(s.ctx, s.officer(app.ID))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeIssuance))

	current, lookupErr := s.svc.Lookup(s.ctx, "subj-1")
	s.Require().NoError(lookupErr)
	s.Equal(models.StatusPending, current.Status, "failed issuance must not move the application")
}

func (s *ServiceSuite) TestApproveHolderFailureQueuesObligation() {
	app := s.submitted()
	s.holders.err = errors.New("holders table unavailable")

	approved, err := s.svc.Approve(s.ctx, s.officer(app.ID))
	s.Require().NoError(err, "approval stands even when the holder write fails")
	s.Equal(models.StatusApproved, approved.Status)

	pending, err := s.obligations.ListPending(s.ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(approved.ID, pending[0].ApplicationID)
	s.Equal(approved.UIN, pending[0].UIN)
}

func (s *ServiceSuite) TestApproveHolderConflictIsBenign() {
	app := s.submitted()
	s.holders.err = holderstore.ErrConflict

	_, err := s.svc.Approve(s.ctx, s.officer(app.ID))
	s.Require().NoError(err)

	pending, err := s.obligations.ListPending(s.ctx, 0)
	s.Require().NoError(err)
	s.Empty(pending, "an existing holder needs no repair")
}

func (s *ServiceSuite) TestApproveNotFound() {
	_, err := s.svc.Approve(s.ctx, s.officer("app_missing"))
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

// --- Reject ---

func (s *ServiceSuite) TestReject() {
	app := s.submitted()

	rejected, err := s.svc.Reject(s.ctx, RejectCommand{ReviewCommand: s.officer(app.ID), Reason: "document expired"})
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, rejected.Status)
	s.Equal("document expired", rejected.RejectionReason)
	s.Empty(rejected.UIN)
}

func (s *ServiceSuite) TestRejectRequiresReason() {
	app := s.submitted()

	_, err := s.svc.Reject(s.ctx, RejectCommand{ReviewCommand: s.officer(app.ID), Reason: "   "})
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestRejectIdempotent() {
	app := s.submitted()
	_, err := s.svc.Reject(s.ctx, RejectCommand{ReviewCommand: s.officer(app.ID), Reason: "blurred photo"})
	s.Require().NoError(err)

	again, err := s.svc.Reject(s.ctx, RejectCommand{ReviewCommand: s.officer(app.ID), Reason: "different reason"})
	s.Require().NoError(err)
	s.Equal("blurred photo", again.RejectionReason, "repeat rejection keeps the original reason")
}

func (s *ServiceSuite) TestRejectAfterApproveIsInvalidState() {
	app := s.submitted()
	_, err := s.svc.Approve(s.ctx, s.officer(app.ID))
	s.Require().NoError(err)

	_, err = s.svc.Reject(s.ctx, RejectCommand{ReviewCommand: s.officer(app.ID), Reason: "changed my mind"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

// --- Query / Lookup / Purge ---

func (s *ServiceSuite) TestQueryOrdersFairly() {
	base := time.Unix(1_700_000_000, 0)
	clock := base
	s.svc = s.newService(WithClock(func() time.Time { return clock }))

	for i, subject := range []string{"subj-a", "subj-b", "subj-c"} {
		clock = base.Add(time.Duration(i) * time.Minute)
		cmd := s.submitCommand()
		cmd.SubjectID = domain.SubjectID(subject)
		_, err := s.svc.Submit(s.ctx, cmd)
		s.Require().NoError(err)
	}

	apps, err := s.svc.Query(s.ctx, []string{policy.RoleOfficer}, models.StatusPending, 0)
	s.Require().NoError(err)
	s.Require().Len(apps, 3)
	s.Equal(domain.SubjectID("subj-a"), apps[0].SubjectID, "oldest submission first")
	s.Equal(domain.SubjectID("subj-c"), apps[2].SubjectID)
}

func (s *ServiceSuite) TestQueryRequiresRole() {
	_, err := s.svc.Query(s.ctx, []string{policy.RoleCitizen}, models.StatusPending, 0)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}

func (s *ServiceSuite) TestQueryRejectsUnknownStatus() {
	_, err := s.svc.Query(s.ctx, []string{policy.RoleOfficer}, "archived", 0)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestLookupNotFound() {
	_, err := s.svc.Lookup(s.ctx, "subj-unknown")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestPurge() {
	app := s.submitted()

	s.Run("requires admin role", func() {
		err := s.svc.Purge(s.ctx, PurgeCommand{ApplicationID: app.ID, Actor: "officer-1", Roles: []string{policy.RoleOfficer}})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("admin purge removes the record", func() {
		err := s.svc.Purge(s.ctx, PurgeCommand{ApplicationID: app.ID, Actor: "admin-1", Roles: []string{policy.RoleAdmin}})
		s.Require().NoError(err)

		_, err = s.svc.Lookup(s.ctx, "subj-1")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// --- Auto-approval ---

func (s *ServiceSuite) TestAutoApprove() {
	s.verifier.result = confidence(97)
	s.svc = s.newService(WithAutoApprove(95))

	app, err := s.svc.Submit(s.ctx, s.submitCommand())
	s.Require().NoError(err)

	s.Equal(models.StatusApproved, app.Status)
	s.Equal(domain.ReviewerID(policy.SystemReviewer), app.ReviewedBy)
	s.NotEmpty(app.UIN)
	s.Len(s.holders.created, 1)
}

func (s *ServiceSuite) TestAutoApproveBelowThresholdStaysPending() {
	s.verifier.result = confidence(90)
	s.svc = s.newService(WithAutoApprove(95))

	app, err := s.svc.Submit(s.ctx, s.submitCommand())
	s.Require().NoError(err)
	s.Equal(models.StatusPending, app.Status)
}

func (s *ServiceSuite) TestAutoApproveDisabledByDefault() {
	s.verifier.result = confidence(99)

	app, err := s.svc.Submit(s.ctx, s.submitCommand())
	s.Require().NoError(err)
	s.Equal(models.StatusPending, app.Status)
}

func (s *ServiceSuite) TestAutoApproveFailureLeavesPending() {
	s.verifier.result = confidence(99)
	s.uins.err = errors.New("registry down")
	s.svc = s.newService(WithAutoApprove(95))

	app, err := s.svc.Submit(s.ctx, s.submitCommand())
	s.Require().NoError(err, "auto-approval is best effort")
	s.Equal(models.StatusPending, app.Status)
}
