package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"civid/internal/audit"
	"civid/internal/holder/models"
	"civid/internal/holder/service"
	"civid/internal/holder/store"
	"civid/internal/platform/middleware"
	"civid/internal/policy"
)

type HolderHandlerSuite struct {
	suite.Suite
	router chi.Router
	store  *store.MemoryStore
}

func TestHolderHandlerSuite(t *testing.T) {
	suite.Run(t, new(HolderHandlerSuite))
}

func (s *HolderHandlerSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)
	s.store = store.NewMemory()
	svc := service.NewService(s.store, audit.NewPublisher(audit.NewMemoryStore()), logger)

	h := New(svc, logger)
	s.router = chi.NewRouter()
	s.router.Route("/v1", h.Routes)

	issued := time.Now().UTC()
	s.Require().NoError(s.store.Create(context.Background(), &models.Holder{
		UIN:           "CID000000000001",
		SubjectID:     "subj-1",
		ApplicationID: "app_1",
		Status:        models.StatusActive,
		FullName:      "Ada Obi",
		DateOfBirth:   "1990-01-15",
		IssuedAt:      issued,
		ExpiryDate:    issued.AddDate(10, 0, 0),
		StatusAt:      issued,
	}))
}

func (s *HolderHandlerSuite) request(method, path string, claims *middleware.Claims) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if claims != nil {
		req = req.WithContext(middleware.WithClaims(req.Context(), claims))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HolderHandlerSuite) officer() *middleware.Claims {
	return &middleware.Claims{Subject: "officer-1", Roles: []string{policy.RoleOfficer}}
}

func (s *HolderHandlerSuite) admin() *middleware.Claims {
	return &middleware.Claims{Subject: "admin-1", Roles: []string{policy.RoleAdmin}}
}

func (s *HolderHandlerSuite) TestGet() {
	rec := s.request(http.MethodGet, "/v1/holders/CID000000000001", s.officer())
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp HolderResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("CID000000000001", resp.UIN)
	s.Equal("active", resp.Status)

	s.Run("citizen forbidden", func() {
		claims := &middleware.Claims{Subject: "subj-1", Roles: []string{policy.RoleCitizen}}
		rec := s.request(http.MethodGet, "/v1/holders/CID000000000001", claims)
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("malformed uin", func() {
		rec := s.request(http.MethodGet, "/v1/holders/not-a-uin", s.officer())
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("unknown uin", func() {
		rec := s.request(http.MethodGet, "/v1/holders/CID999999999999", s.officer())
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *HolderHandlerSuite) TestLifecycle() {
	rec := s.request(http.MethodPost, "/v1/holders/CID000000000001/suspend", s.admin())
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "suspended")

	rec = s.request(http.MethodPost, "/v1/holders/CID000000000001/reinstate", s.admin())
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "active")

	rec = s.request(http.MethodPost, "/v1/holders/CID000000000001/revoke", s.admin())
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "revoked")

	s.Run("suspend after revoke conflicts", func() {
		rec := s.request(http.MethodPost, "/v1/holders/CID000000000001/suspend", s.admin())
		s.Equal(http.StatusConflict, rec.Code)
		s.Contains(rec.Body.String(), "invalid_state")
	})
}

func (s *HolderHandlerSuite) TestLifecycleRequiresAdmin() {
	rec := s.request(http.MethodPost, "/v1/holders/CID000000000001/suspend", s.officer())
	s.Equal(http.StatusForbidden, rec.Code)
}
