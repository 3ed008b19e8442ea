package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"civid/internal/application/service"
	"civid/internal/application/store"
	"civid/internal/audit"
	holdermodels "civid/internal/holder/models"
	"civid/internal/platform/middleware"
	"civid/internal/policy"
	"civid/pkg/domain"
)

type stubHolders struct{ created []*holdermodels.Holder }

func (s *stubHolders) Create(_ context.Context, h *holdermodels.Holder) error {
	s.created = append(s.created, h)
	return nil
}

type stubUINs struct{ next int }

func (s *stubUINs) Issue(context.Context) (domain.UIN, error) {
	s.next++
	return domain.UIN(fmt.Sprintf("CID%012d", s.next)), nil
}

type HandlerSuite struct {
	suite.Suite
	router chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)
	svc := service.NewService(
		store.NewMemory(),
		&stubHolders{},
		&stubUINs{},
		audit.NewPublisher(audit.NewMemoryStore()),
		logger,
	)

	h := New(svc, logger)
	s.router = chi.NewRouter()
	s.router.Route("/v1", h.Routes)
}

func (s *HandlerSuite) request(method, path string, body any, claims *middleware.Claims) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if claims != nil {
		req = req.WithContext(middleware.WithClaims(req.Context(), claims))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) citizen(subject string) *middleware.Claims {
	return &middleware.Claims{Subject: subject, Roles: []string{policy.RoleCitizen}}
}

func (s *HandlerSuite) officer() *middleware.Claims {
	return &middleware.Claims{Subject: "officer-1", Roles: []string{policy.RoleOfficer}}
}

func (s *HandlerSuite) admin() *middleware.Claims {
	return &middleware.Claims{Subject: "admin-1", Roles: []string{policy.RoleAdmin}}
}

func (s *HandlerSuite) submitBody() map[string]any {
	return map[string]any{
		"document_type":   "passport",
		"full_name":       "Ada Obi",
		"date_of_birth":   "1990-01-15",
		"document_number": "P1234567",
	}
}

func (s *HandlerSuite) submitApplication(subject string) ApplicationResponse {
	rec := s.request(http.MethodPost, "/v1/applications", s.submitBody(), s.citizen(subject))
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var resp ApplicationResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (s *HandlerSuite) TestSubmit() {
	resp := s.submitApplication("subj-1")
	s.Equal("pending", resp.Status)
	s.Equal("subj-1", resp.SubjectID)
	s.NotEmpty(resp.ID)
	s.True(resp.RequiresManualReview, "no vision pipeline wired in tests")
}

func (s *HandlerSuite) TestSubmitValidation() {
	body := s.submitBody()
	body["date_of_birth"] = "not-a-date"

	rec := s.request(http.MethodPost, "/v1/applications", body, s.citizen("subj-1"))
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(rec.Body.String(), "validation_failed")
}

func (s *HandlerSuite) TestSubmitRequiresSubject() {
	rec := s.request(http.MethodPost, "/v1/applications", s.submitBody(), nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestSubmitMalformedBody() {
	req := httptest.NewRequest(http.MethodPost, "/v1/applications", bytes.NewBufferString("{not json"))
	req = req.WithContext(middleware.WithClaims(req.Context(), s.citizen("subj-1")))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestMe() {
	s.submitApplication("subj-1")

	rec := s.request(http.MethodGet, "/v1/applications/me", nil, s.citizen("subj-1"))
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp ApplicationResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("subj-1", resp.SubjectID)

	s.Run("not found for subject without application", func() {
		rec := s.request(http.MethodGet, "/v1/applications/me", nil, s.citizen("subj-2"))
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *HandlerSuite) TestQueryQueue() {
	s.submitApplication("subj-1")
	s.submitApplication("subj-2")

	rec := s.request(http.MethodGet, "/v1/applications?status=pending", nil, s.officer())
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp struct {
		Applications []ApplicationResponse `json:"applications"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Len(resp.Applications, 2)

	s.Run("citizens cannot read the queue", func() {
		rec := s.request(http.MethodGet, "/v1/applications", nil, s.citizen("subj-1"))
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("bad limit", func() {
		rec := s.request(http.MethodGet, "/v1/applications?limit=0", nil, s.officer())
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestReviewFlow() {
	app := s.submitApplication("subj-1")

	rec := s.request(http.MethodPost, "/v1/applications/"+app.ID+"/review", nil, s.officer())
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.request(http.MethodPost, "/v1/applications/"+app.ID+"/approve", nil, s.officer())
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp ApplicationResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("approved", resp.Status)
	s.NotEmpty(resp.UIN)
	s.NotNil(resp.IssuedAt)
}

func (s *HandlerSuite) TestApproveConflictAfterReject() {
	app := s.submitApplication("subj-1")

	rec := s.request(http.MethodPost, "/v1/applications/"+app.ID+"/reject",
		map[string]any{"reason": "document unreadable"}, s.officer())
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.request(http.MethodPost, "/v1/applications/"+app.ID+"/approve", nil, s.officer())
	s.Equal(http.StatusConflict, rec.Code)
	s.Contains(rec.Body.String(), "invalid_state")
}

func (s *HandlerSuite) TestRejectRequiresReason() {
	app := s.submitApplication("subj-1")

	rec := s.request(http.MethodPost, "/v1/applications/"+app.ID+"/reject",
		map[string]any{"reason": "   "}, s.officer())
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestDecisionsRequireReviewerRole() {
	app := s.submitApplication("subj-1")

	rec := s.request(http.MethodPost, "/v1/applications/"+app.ID+"/approve", nil, s.citizen("subj-1"))
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *HandlerSuite) TestBadApplicationID() {
	rec := s.request(http.MethodPost, "/v1/applications/not-an-id/approve", nil, s.officer())
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestPurge() {
	app := s.submitApplication("subj-1")

	s.Run("officer cannot purge", func() {
		rec := s.request(http.MethodDelete, "/v1/applications/"+app.ID, nil, s.officer())
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("admin purge", func() {
		rec := s.request(http.MethodDelete, "/v1/applications/"+app.ID, nil, s.admin())
		s.Equal(http.StatusNoContent, rec.Code)

		rec = s.request(http.MethodGet, "/v1/applications/me", nil, s.citizen("subj-1"))
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *HandlerSuite) TestApproveNotFound() {
	rec := s.request(http.MethodPost, "/v1/applications/app_00000000000000x/approve", nil, s.officer())
	s.Equal(http.StatusNotFound, rec.Code)
}
