// Package handler exposes the application workflow over HTTP.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"civid/internal/application/models"
	"civid/internal/application/service"
	"civid/internal/platform/middleware"
	"civid/pkg/domain"
	dErrors "civid/pkg/domain-errors"
	"civid/pkg/platform/httputil"
)

const defaultQueueLimit = 100

// Handler serves the application workflow endpoints.
type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the workflow endpoints. Authentication middleware runs
// upstream; authorization happens in the service layer.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/applications", h.Submit)
	r.Get("/applications", h.Query)
	r.Get("/applications/me", h.Me)
	r.Post("/applications/{id}/review", h.StartReview)
	r.Post("/applications/{id}/approve", h.Approve)
	r.Post("/applications/{id}/reject", h.Reject)
	r.Delete("/applications/{id}", h.Purge)
}

// Submit handles POST /v1/applications: a citizen filing or refiling their
// own application. The authenticated subject is the applicant; the body
// cannot submit on behalf of anyone else.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	subjectID, err := domain.ParseSubjectID(middleware.GetSubject(ctx))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authenticated subject required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	app, err := h.svc.Submit(ctx, service.SubmitCommand{
		SubjectID:    subjectID,
		DocumentType: models.DocumentType(req.DocumentType),
		Fields:       req.fields(),
		Images:       req.images(),
		RequestID:    requestID,
		IP:           clientIP(r),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	if app.Status == models.StatusApproved {
		// Auto-approved on submission; the outcome is already settled.
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, toResponse(app))
}

// Me handles GET /v1/applications/me: the subject's own record.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subjectID, err := domain.ParseSubjectID(middleware.GetSubject(ctx))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authenticated subject required"))
		return
	}

	app, err := h.svc.Lookup(ctx, subjectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(app))
}

// Query handles GET /v1/applications?status=&limit=: the review queue.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := models.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = models.StatusPending
	}
	limit := defaultQueueLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 1000"))
			return
		}
		limit = n
	}

	apps, err := h.svc.Query(ctx, middleware.GetRoles(ctx), status, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"applications": toResponses(apps),
	})
}

// StartReview handles POST /v1/applications/{id}/review.
func (h *Handler) StartReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cmd, err := h.reviewCommand(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	app, err := h.svc.StartReview(ctx, cmd)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(app))
}

// Approve handles POST /v1/applications/{id}/approve.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cmd, err := h.reviewCommand(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	app, err := h.svc.Approve(ctx, cmd)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(app))
}

// Reject handles POST /v1/applications/{id}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	cmd, err := h.reviewCommand(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[RejectRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	app, err := h.svc.Reject(ctx, service.RejectCommand{
		ReviewCommand: cmd,
		Reason:        req.Reason,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(app))
}

// Purge handles DELETE /v1/applications/{id}. Admin only, enforced by the
// service.
func (h *Handler) Purge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	applicationID, err := domain.ParseApplicationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	err = h.svc.Purge(ctx, service.PurgeCommand{
		ApplicationID: applicationID,
		Actor:         middleware.GetSubject(ctx),
		Roles:         middleware.GetRoles(ctx),
		RequestID:     middleware.GetRequestID(ctx),
		IP:            clientIP(r),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reviewCommand(r *http.Request) (service.ReviewCommand, error) {
	ctx := r.Context()

	applicationID, err := domain.ParseApplicationID(chi.URLParam(r, "id"))
	if err != nil {
		return service.ReviewCommand{}, err
	}
	reviewer, err := domain.ParseReviewerID(middleware.GetSubject(ctx))
	if err != nil {
		return service.ReviewCommand{}, dErrors.New(dErrors.CodeUnauthorized, "authenticated reviewer required")
	}

	return service.ReviewCommand{
		ApplicationID: applicationID,
		Reviewer:      reviewer,
		Roles:         middleware.GetRoles(ctx),
		RequestID:     middleware.GetRequestID(ctx),
		IP:            clientIP(r),
	}, nil
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
