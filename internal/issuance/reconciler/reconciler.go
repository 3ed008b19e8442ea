// Package reconciler repairs approvals whose holder record failed to write.
// It drains the issuance obligation outbox on an interval, re-attempting
// holder creation until each approved application has its credential.
package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	appmodels "civid/internal/application/models"
	appstore "civid/internal/application/store"
	holdermodels "civid/internal/holder/models"
	holderstore "civid/internal/holder/store"
	"civid/internal/issuance"
	"civid/internal/issuance/outbox"
	"civid/pkg/domain"
)

// ApplicationReader loads the approved application an obligation refers to.
type ApplicationReader interface {
	GetByID(ctx context.Context, id domain.ApplicationID) (*appmodels.Application, error)
}

// HolderWriter creates the missing holder record.
type HolderWriter interface {
	Create(ctx context.Context, holder *holdermodels.Holder) error
}

// Reconciler is the background repair worker.
type Reconciler struct {
	obligations  outbox.Store
	applications ApplicationReader
	holders      HolderWriter
	validity     time.Duration
	interval     time.Duration
	batchSize    int
	logger       *slog.Logger
	metrics      *issuance.Metrics
}

// Option configures the Reconciler.
type Option func(*Reconciler)

// WithInterval sets the sweep interval.
func WithInterval(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithBatchSize bounds obligations processed per sweep.
func WithBatchSize(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithMetrics attaches issuance metrics.
func WithMetrics(m *issuance.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

func New(obligations outbox.Store, applications ApplicationReader, holders HolderWriter, validity time.Duration, logger *slog.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		obligations:  obligations,
		applications: applications,
		holders:      holders,
		validity:     validity,
		interval:     30 * time.Second,
		batchSize:    50,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sweeps until ctx is canceled. Intended to be launched in the server's
// run group.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep processes one batch of pending obligations.
func (r *Reconciler) Sweep(ctx context.Context) {
	pending, err := r.obligations.ListPending(ctx, r.batchSize)
	if err != nil {
		r.logger.Error("could not list pending obligations", "error", err)
		return
	}

	for _, obligation := range pending {
		if err := r.settle(ctx, obligation); err != nil {
			r.logger.Warn("obligation repair failed",
				"application_id", obligation.ApplicationID,
				"uin", obligation.UIN.Redacted(),
				"attempts", obligation.Attempts+1,
				"error", err,
			)
			if r.metrics != nil {
				r.metrics.RecordObligationFailed()
			}
			if markErr := r.obligations.MarkFailed(ctx, obligation.ID, err.Error()); markErr != nil {
				r.logger.Error("could not record obligation failure", "error", markErr)
			}
		}
	}
}

func (r *Reconciler) settle(ctx context.Context, obligation outbox.Obligation) error {
	app, err := r.applications.GetByID(ctx, obligation.ApplicationID)
	if err != nil {
		if errors.Is(err, appstore.ErrNotFound) {
			// Application purged after approval; nothing left to repair.
			return r.markSettled(ctx, obligation)
		}
		return err
	}

	if app.Status != appmodels.StatusApproved || app.UIN != obligation.UIN {
		// The approval this obligation covered no longer stands, e.g. the
		// record was purged and resubmitted. The obligation is void.
		return r.markSettled(ctx, obligation)
	}

	holder := holdermodels.FromApplication(app, r.validity)
	if err := r.holders.Create(ctx, holder); err != nil {
		if errors.Is(err, holderstore.ErrConflict) {
			// Holder already exists; the original write landed after all.
			return r.markSettled(ctx, obligation)
		}
		return err
	}

	r.logger.Info("issuance obligation repaired",
		"application_id", obligation.ApplicationID,
		"uin", obligation.UIN.Redacted(),
	)
	return r.markSettled(ctx, obligation)
}

func (r *Reconciler) markSettled(ctx context.Context, obligation outbox.Obligation) error {
	if err := r.obligations.MarkSettled(ctx, obligation.ID, time.Now().UTC()); err != nil {
		return err
	}
	if r.metrics != nil {
		r.metrics.RecordObligationSettled()
	}
	return nil
}
