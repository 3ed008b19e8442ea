// Package service implements the application workflow engine: submission,
// review claims, terminal decisions and the issuance handshake with the
// holder registry.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"civid/internal/application/metrics"
	"civid/internal/application/models"
	"civid/internal/application/store"
	"civid/internal/audit"
	holdermodels "civid/internal/holder/models"
	holderstore "civid/internal/holder/store"
	"civid/internal/issuance/outbox"
	"civid/internal/platform/tracer"
	"civid/internal/policy"
	"civid/internal/vision"
	"civid/pkg/domain"
	dErrors "civid/pkg/domain-errors"
)

// Store is the persistence contract the engine depends on.
// Error contract:
//   - lookups return store.ErrNotFound when no record exists
//   - Create and conditional Update return store.ErrConflict when they lose
//     a race; everything else is a wrapped infrastructure error
type Store interface {
	Create(ctx context.Context, app *models.Application) error
	Update(ctx context.Context, app *models.Application, expected ...models.Status) error
	GetByID(ctx context.Context, id domain.ApplicationID) (*models.Application, error)
	GetBySubject(ctx context.Context, subjectID domain.SubjectID) (*models.Application, error)
	ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Application, error)
	Delete(ctx context.Context, id domain.ApplicationID) error
}

// HolderRegistry is the slice of the holder store the engine needs at
// approval time.
type HolderRegistry interface {
	Create(ctx context.Context, holder *holdermodels.Holder) error
}

// Verifier runs the advisory vision pipeline for a submission.
type Verifier interface {
	Verify(ctx context.Context, documentKey, selfieKey string) (*vision.Result, error)
}

// UINSource mints collision-checked UINs.
type UINSource interface {
	Issue(ctx context.Context) (domain.UIN, error)
}

// ObligationQueue records holder writes that must be repaired later.
type ObligationQueue interface {
	Enqueue(ctx context.Context, obligation outbox.Obligation) error
}

// IssuedPublisher announces completed issuances to downstream consumers.
type IssuedPublisher interface {
	PublishIssued(app *models.Application) error
}

// Option configures the Service.
type Option func(*Service)

const defaultManualReviewThreshold = 85.0

// Service is the workflow engine.
type Service struct {
	store        Store
	holders      HolderRegistry
	verifier     Verifier
	uins         UINSource
	obligations  ObligationQueue
	auditor      *audit.Publisher
	issuedEvents IssuedPublisher
	metrics      *metrics.Metrics
	tracer       tracer.Tracer
	logger       *slog.Logger

	manualReviewThreshold float64
	autoApprove           bool
	autoApproveThreshold  float64
	credentialValidity    time.Duration

	now func() time.Time
}

func NewService(store Store, holders HolderRegistry, uins UINSource, auditor *audit.Publisher, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:                 store,
		holders:               holders,
		uins:                  uins,
		auditor:               auditor,
		logger:                logger,
		tracer:                tracer.NewNoop(),
		manualReviewThreshold: defaultManualReviewThreshold,
		autoApproveThreshold:  95,
		credentialValidity:    10 * 365 * 24 * time.Hour,
		now:                   time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// WithVerifier wires the vision pipeline. Without it submissions always go
// to manual review.
func WithVerifier(v Verifier) Option {
	return func(s *Service) { s.verifier = v }
}

// WithObligationQueue wires the issuance outbox.
func WithObligationQueue(q ObligationQueue) Option {
	return func(s *Service) { s.obligations = q }
}

// WithIssuedPublisher wires the credential.issued event stream.
func WithIssuedPublisher(p IssuedPublisher) Option {
	return func(s *Service) { s.issuedEvents = p }
}

// WithMetrics sets the metrics instance for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer sets the tracer for workflow spans.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithManualReviewThreshold sets the confidence below which applications are
// flagged for manual review.
func WithManualReviewThreshold(threshold float64) Option {
	return func(s *Service) {
		if threshold > 0 {
			s.manualReviewThreshold = threshold
		}
	}
}

// WithAutoApprove enables system approval at or above the given confidence.
func WithAutoApprove(threshold float64) Option {
	return func(s *Service) {
		s.autoApprove = true
		if threshold > 0 {
			s.autoApproveThreshold = threshold
		}
	}
}

// WithCredentialValidity sets how long issued credentials remain valid.
func WithCredentialValidity(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.credentialValidity = d
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Submit files or refiles an application for the subject. The application
// identifier is stable across resubmissions; only pending and rejected
// records may be overwritten.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (*models.Application, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanSubmit)
	var err error
	defer func() { span.End(err) }()

	if err = cmd.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	resubmission := false

	app, lookupErr := s.store.GetBySubject(ctx, cmd.SubjectID)
	switch {
	case lookupErr == nil:
		if !app.CanResubmit() {
			err = invalidState(app.Status, "application cannot be resubmitted")
			return nil, err
		}
		resubmission = true
		app.Resubmit(cmd.DocumentType, cmd.Fields, cmd.Images, now)
	case errors.Is(lookupErr, store.ErrNotFound):
		var id domain.ApplicationID
		if id, err = domain.NewApplicationID(now); err != nil {
			return nil, err
		}
		app = &models.Application{
			ID:           id,
			SubjectID:    cmd.SubjectID,
			Status:       models.StatusPending,
			DocumentType: cmd.DocumentType,
			Fields:       cmd.Fields,
			Images:       cmd.Images,
			SubmittedAt:  now,
			UpdatedAt:    now,
		}
	default:
		err = dErrors.Wrap(lookupErr, dErrors.CodeInternal, "could not look up application")
		return nil, err
	}
	span.SetAttributes(
		tracer.String(tracer.AttrApplicationID, app.ID.String()),
		tracer.Bool(tracer.AttrResubmission, resubmission),
	)

	s.enrich(ctx, app)

	if resubmission {
		err = s.store.Update(ctx, app, models.StatusPending, models.StatusRejected)
	} else {
		err = s.store.Create(ctx, app)
	}
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// A concurrent submission or review claim won the race.
			if s.metrics != nil {
				s.metrics.RecordStateConflict()
			}
			err = dErrors.Wrap(err, dErrors.CodeConflict, "application was modified concurrently")
			return nil, err
		}
		err = dErrors.Wrap(err, dErrors.CodeInternal, "could not persist application")
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordSubmission(resubmission)
		if app.RequiresManualReview {
			s.metrics.RecordManualReviewFlag()
		}
	}

	action := audit.ActionApplicationSubmitted
	if resubmission {
		action = audit.ActionApplicationResubmitted
	}
	s.emitAudit(ctx, audit.Event{
		Actor:     cmd.SubjectID.String(),
		Subject:   cmd.SubjectID.String(),
		Action:    action,
		RequestID: cmd.RequestID,
		IP:        cmd.IP,
	})

	s.logger.Info("application submitted",
		"application_id", app.ID,
		"resubmission", resubmission,
		"requires_manual_review", app.RequiresManualReview,
	)

	if approved := s.tryAutoApprove(ctx, app, cmd.RequestID); approved != nil {
		return approved, nil
	}
	return app, nil
}

// enrich runs the advisory vision pipeline. Failures never fail the
// submission; they degrade to manual review with no confidence recorded.
func (s *Service) enrich(ctx context.Context, app *models.Application) {
	if s.verifier == nil || app.Images.DocumentKey == "" {
		app.RequiresManualReview = true
		return
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanVisionCheck)
	result, err := s.verifier.Verify(ctx, app.Images.DocumentKey, app.Images.SelfieKey)
	span.End(err)
	if result != nil {
		if result.Extraction != nil {
			mergeExtraction(&app.Fields, result.Extraction)
		}
		app.Confidence = result.Confidence
		app.FaceID = result.FaceID
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordVisionFailure()
		}
		s.logger.Warn("vision enrichment failed, flagging for manual review",
			"application_id", app.ID,
			"error", err,
		)
		app.RequiresManualReview = true
		return
	}

	app.RequiresManualReview = app.Confidence == nil || *app.Confidence < s.manualReviewThreshold
}

// mergeExtraction fills fields the applicant left blank with extracted
// values. Applicant-entered data wins; extraction only supplements.
func mergeExtraction(fields *models.Fields, ext *vision.Extraction) {
	if fields.FullName == "" {
		fields.FullName = ext.FullName
	}
	if fields.DateOfBirth == "" {
		fields.DateOfBirth = ext.DateOfBirth
	}
	if fields.DocumentNumber == "" {
		fields.DocumentNumber = ext.DocumentNumber
	}
	if fields.Nationality == "" {
		fields.Nationality = ext.Nationality
	}
}

// tryAutoApprove approves on the engine's own authority when enabled and the
// confidence clears the bar. Best effort: a failure leaves the application
// pending for a human.
func (s *Service) tryAutoApprove(ctx context.Context, app *models.Application, requestID string) *models.Application {
	if !s.autoApprove || app.RequiresManualReview || app.Confidence == nil || *app.Confidence < s.autoApproveThreshold {
		return nil
	}

	approved, err := s.Approve(ctx, ReviewCommand{
		ApplicationID: app.ID,
		Reviewer:      policy.SystemReviewer,
		Roles:         []string{policy.RoleOfficer},
		RequestID:     requestID,
	})
	if err != nil {
		s.logger.Warn("auto-approval failed, application left for manual review",
			"application_id", app.ID,
			"error", err,
		)
		return nil
	}
	if s.metrics != nil {
		s.metrics.RecordAutoApproval()
	}
	return approved
}

// StartReview claims a pending application for a reviewer.
func (s *Service) StartReview(ctx context.Context, cmd ReviewCommand) (*models.Application, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanStartReview,
		tracer.String(tracer.AttrApplicationID, cmd.ApplicationID.String()))
	var err error
	defer func() { span.End(err) }()

	if err = cmd.Validate(); err != nil {
		return nil, err
	}
	if !policy.CanReview(cmd.Roles) {
		err = dErrors.New(dErrors.CodeForbidden, "reviewer role required")
		return nil, err
	}

	app, err := s.getApplication(ctx, cmd.ApplicationID)
	if err != nil {
		return nil, err
	}

	// Claiming a record you already hold is a no-op.
	if app.Status == models.StatusUnderReview && app.ReviewedBy == cmd.Reviewer {
		return app, nil
	}
	if app.Status != models.StatusPending {
		err = invalidState(app.Status, "application is not awaiting review")
		return nil, err
	}

	now := s.now().UTC()
	app.Status = models.StatusUnderReview
	app.ReviewedBy = cmd.Reviewer
	app.UpdatedAt = now

	if err = s.store.Update(ctx, app, models.StatusPending); err != nil {
		err = s.classifyWriteError(ctx, err, cmd.ApplicationID, "claim application for review")
		return nil, err
	}

	s.emitAudit(ctx, audit.Event{
		Actor:     cmd.Reviewer.String(),
		Subject:   app.SubjectID.String(),
		Action:    audit.ActionReviewStarted,
		RequestID: cmd.RequestID,
		IP:        cmd.IP,
	})
	return app, nil
}

// Approve issues a credential for the application. Repeating an approval is
// an idempotent no-op returning the existing record; approving a rejected
// application is an invalid state transition.
func (s *Service) Approve(ctx context.Context, cmd ReviewCommand) (*models.Application, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanApprove,
		tracer.String(tracer.AttrApplicationID, cmd.ApplicationID.String()))
	var err error
	defer func() { span.End(err) }()

	if err = cmd.Validate(); err != nil {
		return nil, err
	}
	if !policy.CanReview(cmd.Roles) {
		err = dErrors.New(dErrors.CodeForbidden, "reviewer role required")
		return nil, err
	}

	app, err := s.getApplication(ctx, cmd.ApplicationID)
	if err != nil {
		return nil, err
	}

	if app.Status == models.StatusApproved {
		// Same decision twice: return the settled outcome, same UIN.
		return app, nil
	}
	if !app.CanDecide() {
		err = invalidState(app.Status, "application cannot be approved")
		return nil, err
	}

	uinCtx, uinSpan := s.tracer.Start(ctx, tracer.SpanIssueUIN)
	uin, err := s.uins.Issue(uinCtx)
	uinSpan.End(err)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	app.Approve(uin, cmd.Reviewer, now)

	if err = s.store.Update(ctx, app, models.StatusPending, models.StatusUnderReview); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return s.resolveDecisionConflict(ctx, cmd.ApplicationID, models.StatusApproved)
		}
		err = dErrors.Wrap(err, dErrors.CodeInternal, "could not record approval")
		return nil, err
	}

	s.createHolder(ctx, app)

	if s.metrics != nil {
		s.metrics.RecordDecision("approved")
	}
	s.emitAudit(ctx, audit.Event{
		Actor:     cmd.Reviewer.String(),
		Subject:   app.SubjectID.String(),
		Action:    audit.ActionApplicationApproved,
		Decision:  string(models.StatusApproved),
		RequestID: cmd.RequestID,
		IP:        cmd.IP,
	})
	if s.issuedEvents != nil {
		if pubErr := s.issuedEvents.PublishIssued(app); pubErr != nil {
			s.logger.Warn("could not publish credential.issued event",
				"application_id", app.ID,
				"error", pubErr,
			)
		}
	}

	s.logger.Info("application approved",
		"application_id", app.ID,
		"uin", app.UIN.Redacted(),
		"reviewer", cmd.Reviewer,
	)
	return app, nil
}

// createHolder writes the registry record for an approval. When the write
// fails the approval stands and an obligation is queued for the reconciler;
// the engine never silently accepts an approved application with no holder.
func (s *Service) createHolder(ctx context.Context, app *models.Application) {
	holder := holdermodels.FromApplication(app, s.credentialValidity)
	err := s.holders.Create(ctx, holder)
	if err == nil || errors.Is(err, holderstore.ErrConflict) {
		return
	}

	s.logger.Error("holder creation failed, queueing issuance obligation",
		"application_id", app.ID,
		"uin", app.UIN.Redacted(),
		"error", err,
	)
	if s.obligations == nil {
		return
	}
	if qErr := s.obligations.Enqueue(ctx, outbox.NewObligation(app.ID, app.UIN)); qErr != nil {
		// Both the write and the outbox failed; the periodic reconciler
		// sweep cannot see this one, so make it loud.
		s.logger.Error("could not queue issuance obligation",
			"application_id", app.ID,
			"uin", app.UIN.Redacted(),
			"error", qErr,
		)
	}
}

// Reject declines the application with a stated reason. Repeating a
// rejection is an idempotent no-op; rejecting an approved application is an
// invalid state transition.
func (s *Service) Reject(ctx context.Context, cmd RejectCommand) (*models.Application, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanReject,
		tracer.String(tracer.AttrApplicationID, cmd.ApplicationID.String()))
	var err error
	defer func() { span.End(err) }()

	if err = cmd.Validate(); err != nil {
		return nil, err
	}
	if !policy.CanReview(cmd.Roles) {
		err = dErrors.New(dErrors.CodeForbidden, "reviewer role required")
		return nil, err
	}

	app, err := s.getApplication(ctx, cmd.ApplicationID)
	if err != nil {
		return nil, err
	}

	if app.Status == models.StatusRejected {
		return app, nil
	}
	if !app.CanDecide() {
		err = invalidState(app.Status, "application cannot be rejected")
		return nil, err
	}

	app.Reject(cmd.Reviewer, cmd.Reason, s.now().UTC())

	if err = s.store.Update(ctx, app, models.StatusPending, models.StatusUnderReview); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return s.resolveDecisionConflict(ctx, cmd.ApplicationID, models.StatusRejected)
		}
		err = dErrors.Wrap(err, dErrors.CodeInternal, "could not record rejection")
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordDecision("rejected")
	}
	s.emitAudit(ctx, audit.Event{
		Actor:     cmd.Reviewer.String(),
		Subject:   app.SubjectID.String(),
		Action:    audit.ActionApplicationRejected,
		Decision:  string(models.StatusRejected),
		Reason:    cmd.Reason,
		RequestID: cmd.RequestID,
		IP:        cmd.IP,
	})

	s.logger.Info("application rejected",
		"application_id", app.ID,
		"reviewer", cmd.Reviewer,
	)
	return app, nil
}

// resolveDecisionConflict handles a lost terminal write: the record moved
// concurrently. If it landed on the same decision we wanted, the outcome is
// idempotent; otherwise the second writer observes the invalid state.
func (s *Service) resolveDecisionConflict(ctx context.Context, id domain.ApplicationID, wanted models.Status) (*models.Application, error) {
	if s.metrics != nil {
		s.metrics.RecordStateConflict()
	}
	current, err := s.getApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == wanted {
		return current, nil
	}
	return nil, invalidState(current.Status, "application was decided concurrently")
}

// Lookup returns the subject's own application. Read-after-write consistent:
// it always reads the primary store.
func (s *Service) Lookup(ctx context.Context, subjectID domain.SubjectID) (*models.Application, error) {
	if subjectID.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "subject_id is required")
	}
	return s.getBySubject(ctx, subjectID)
}

// Query lists applications in a status, oldest submission first, for the
// review queue.
func (s *Service) Query(ctx context.Context, roles []string, status models.Status, limit int) ([]*models.Application, error) {
	if !policy.CanReview(roles) {
		return nil, dErrors.New(dErrors.CodeForbidden, "reviewer role required")
	}
	if !status.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown status %q", status))
	}

	apps, err := s.store.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not list applications")
	}
	if s.metrics != nil && status == models.StatusPending && limit <= 0 {
		s.metrics.SetReviewQueueSize(len(apps))
	}
	return apps, nil
}

// Purge removes an application record entirely. Administrative use only;
// issued holder records are untouched.
func (s *Service) Purge(ctx context.Context, cmd PurgeCommand) error {
	if !policy.CanAdminister(cmd.Roles) {
		return dErrors.New(dErrors.CodeForbidden, "admin role required")
	}
	if cmd.ApplicationID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "application_id is required")
	}

	app, err := s.getApplication(ctx, cmd.ApplicationID)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, cmd.ApplicationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "application not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not delete application")
	}

	s.emitAudit(ctx, audit.Event{
		Actor:     cmd.Actor,
		Subject:   app.SubjectID.String(),
		Action:    audit.ActionApplicationPurged,
		RequestID: cmd.RequestID,
		IP:        cmd.IP,
	})
	s.logger.Info("application purged", "application_id", cmd.ApplicationID, "actor", cmd.Actor)
	return nil
}

func (s *Service) getApplication(ctx context.Context, id domain.ApplicationID) (*models.Application, error) {
	app, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load application")
	}
	return app, nil
}

func (s *Service) getBySubject(ctx context.Context, subjectID domain.SubjectID) (*models.Application, error) {
	app, err := s.store.GetBySubject(ctx, subjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no application for subject")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load application")
	}
	return app, nil
}

func (s *Service) classifyWriteError(ctx context.Context, err error, id domain.ApplicationID, action string) error {
	if errors.Is(err, store.ErrConflict) {
		if s.metrics != nil {
			s.metrics.RecordStateConflict()
		}
		current, getErr := s.getApplication(ctx, id)
		if getErr != nil {
			return getErr
		}
		return invalidState(current.Status, "application moved state concurrently")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "could not "+action)
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.Warn("audit emit failed", "action", event.Action, "error", err)
	}
}

// invalidState builds the error conflicting writers observe; the message
// carries the current status so clients can react.
func invalidState(current models.Status, msg string) error {
	return dErrors.New(dErrors.CodeInvalidState, fmt.Sprintf("%s: current status is %s", msg, current))
}
