// Package service manages the administrative lifecycle of issued
// credentials: suspension, reinstatement and revocation.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"civid/internal/audit"
	"civid/internal/holder/models"
	"civid/internal/holder/store"
	"civid/internal/policy"
	"civid/pkg/domain"
	dErrors "civid/pkg/domain-errors"
)

// Store is the persistence contract for holder records.
type Store interface {
	GetByUIN(ctx context.Context, uin domain.UIN) (*models.Holder, error)
	GetBySubject(ctx context.Context, subjectID domain.SubjectID) (*models.Holder, error)
	UpdateStatus(ctx context.Context, uin domain.UIN, from, to models.Status, at time.Time) error
}

// LifecycleCommand identifies an administrative action on a credential.
type LifecycleCommand struct {
	UIN   domain.UIN
	Actor string
	Roles []string

	RequestID string
	IP        string
}

// Option configures the Service.
type Option func(*Service)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service guards the credential registry.
type Service struct {
	store   Store
	auditor *audit.Publisher
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(store Store, auditor *audit.Publisher, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:   store,
		auditor: auditor,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Get returns the credential for a UIN. Officer or admin only; citizens go
// through the application surface.
func (s *Service) Get(ctx context.Context, roles []string, uin domain.UIN) (*models.Holder, error) {
	if !policy.CanReview(roles) {
		return nil, dErrors.New(dErrors.CodeForbidden, "reviewer role required")
	}
	return s.get(ctx, uin)
}

// Suspend takes an active credential out of service, reversibly.
func (s *Service) Suspend(ctx context.Context, cmd LifecycleCommand) (*models.Holder, error) {
	return s.transition(ctx, cmd, models.StatusActive, models.StatusSuspended, audit.ActionCredentialSuspended,
		func(h *models.Holder) bool { return h.CanSuspend() })
}

// Reinstate returns a suspended credential to active.
func (s *Service) Reinstate(ctx context.Context, cmd LifecycleCommand) (*models.Holder, error) {
	return s.transition(ctx, cmd, models.StatusSuspended, models.StatusActive, audit.ActionCredentialReinstated,
		func(h *models.Holder) bool { return h.CanReinstate() })
}

// Revoke permanently invalidates a credential. Revoking an already revoked
// credential is an idempotent no-op.
func (s *Service) Revoke(ctx context.Context, cmd LifecycleCommand) (*models.Holder, error) {
	if !policy.CanAdminister(cmd.Roles) {
		return nil, dErrors.New(dErrors.CodeForbidden, "admin role required")
	}

	holder, err := s.get(ctx, cmd.UIN)
	if err != nil {
		return nil, err
	}
	if holder.Status == models.StatusRevoked {
		return holder, nil
	}

	now := s.now().UTC()
	if err := s.store.UpdateStatus(ctx, cmd.UIN, holder.Status, models.StatusRevoked, now); err != nil {
		return s.resolveStatusRace(ctx, err, cmd.UIN, models.StatusRevoked)
	}
	holder.Status = models.StatusRevoked
	holder.StatusAt = now
	holder.RevokedAt = &now

	s.emitAudit(ctx, cmd, audit.ActionCredentialRevoked, holder)
	s.logger.Info("credential revoked", "uin", cmd.UIN.Redacted(), "actor", cmd.Actor)
	return holder, nil
}

func (s *Service) transition(ctx context.Context, cmd LifecycleCommand, from, to models.Status, action audit.Action, allowed func(*models.Holder) bool) (*models.Holder, error) {
	if !policy.CanAdminister(cmd.Roles) {
		return nil, dErrors.New(dErrors.CodeForbidden, "admin role required")
	}

	holder, err := s.get(ctx, cmd.UIN)
	if err != nil {
		return nil, err
	}
	if holder.Status == to {
		// Same transition twice is a no-op.
		return holder, nil
	}
	if !allowed(holder) {
		return nil, invalidState(holder.Status, fmt.Sprintf("credential cannot move to %s", to))
	}

	now := s.now().UTC()
	if err := s.store.UpdateStatus(ctx, cmd.UIN, from, to, now); err != nil {
		return s.resolveStatusRace(ctx, err, cmd.UIN, to)
	}
	holder.Status = to
	holder.StatusAt = now

	s.emitAudit(ctx, cmd, action, holder)
	s.logger.Info("credential status changed",
		"uin", cmd.UIN.Redacted(),
		"status", to,
		"actor", cmd.Actor,
	)
	return holder, nil
}

func (s *Service) get(ctx context.Context, uin domain.UIN) (*models.Holder, error) {
	if uin.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "uin is required")
	}
	holder, err := s.store.GetByUIN(ctx, uin)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "credential not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not load credential")
	}
	return holder, nil
}

// resolveStatusRace resolves a lost status race: if the credential already
// sits in the wanted state the operation is idempotent and the reloaded
// record is returned, otherwise the caller observes the current state.
func (s *Service) resolveStatusRace(ctx context.Context, err error, uin domain.UIN, wanted models.Status) (*models.Holder, error) {
	if !errors.Is(err, store.ErrConflict) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not update credential status")
	}
	current, getErr := s.get(ctx, uin)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status == wanted {
		return current, nil
	}
	return nil, invalidState(current.Status, "credential status changed concurrently")
}

func (s *Service) emitAudit(ctx context.Context, cmd LifecycleCommand, action audit.Action, holder *models.Holder) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, audit.Event{
		Actor:     cmd.Actor,
		Subject:   holder.SubjectID.String(),
		Action:    action,
		RequestID: cmd.RequestID,
		IP:        cmd.IP,
	}); err != nil {
		s.logger.Warn("audit emit failed", "action", action, "error", err)
	}
}

func invalidState(current models.Status, msg string) error {
	return dErrors.New(dErrors.CodeInvalidState, fmt.Sprintf("%s: current status is %s", msg, current))
}
