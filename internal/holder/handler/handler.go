// Package handler exposes the credential registry over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"civid/internal/holder/models"
	"civid/internal/holder/service"
	"civid/internal/platform/middleware"
	"civid/pkg/domain"
	"civid/pkg/platform/httputil"
)

// Handler serves holder registry endpoints.
type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the registry endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/holders/{uin}", h.Get)
	r.Post("/holders/{uin}/suspend", h.lifecycle(h.svc.Suspend))
	r.Post("/holders/{uin}/reinstate", h.lifecycle(h.svc.Reinstate))
	r.Post("/holders/{uin}/revoke", h.lifecycle(h.svc.Revoke))
}

// HolderResponse is the API shape of a credential record.
type HolderResponse struct {
	UIN           string     `json:"uin"`
	SubjectID     string     `json:"subject_id"`
	ApplicationID string     `json:"application_id"`
	Status        string     `json:"status"`
	FullName      string     `json:"full_name"`
	DateOfBirth   string     `json:"date_of_birth"`
	Nationality   string     `json:"nationality,omitempty"`
	IssuedAt      time.Time  `json:"issued_at"`
	ExpiryDate    time.Time  `json:"expiry_date"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
}

func toResponse(h *models.Holder) HolderResponse {
	return HolderResponse{
		UIN:           h.UIN.String(),
		SubjectID:     h.SubjectID.String(),
		ApplicationID: h.ApplicationID.String(),
		Status:        string(h.Status),
		FullName:      h.FullName,
		DateOfBirth:   h.DateOfBirth,
		Nationality:   h.Nationality,
		IssuedAt:      h.IssuedAt,
		ExpiryDate:    h.ExpiryDate,
		RevokedAt:     h.RevokedAt,
	}
}

// Get handles GET /v1/holders/{uin}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	uin, err := domain.ParseUIN(chi.URLParam(r, "uin"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	holder, err := h.svc.Get(ctx, middleware.GetRoles(ctx), uin)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(holder))
}

type lifecycleFunc func(ctx context.Context, cmd service.LifecycleCommand) (*models.Holder, error)

func (h *Handler) lifecycle(op lifecycleFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		uin, err := domain.ParseUIN(chi.URLParam(r, "uin"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}

		holder, err := op(ctx, service.LifecycleCommand{
			UIN:       uin,
			Actor:     middleware.GetSubject(ctx),
			Roles:     middleware.GetRoles(ctx),
			RequestID: middleware.GetRequestID(ctx),
			IP:        clientIP(r),
		})
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, toResponse(holder))
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
