package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"civid/internal/application/models"
	"civid/pkg/domain"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
	ctx   context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemory()
	s.ctx = context.Background()
}

func (s *MemoryStoreSuite) newApplication(id, subject string, status models.Status, submittedAt time.Time) *models.Application {
	return &models.Application{
		ID:           domain.ApplicationID(id),
		SubjectID:    domain.SubjectID(subject),
		Status:       status,
		DocumentType: models.DocumentPassport,
		Fields:       models.Fields{FullName: "Ada Obi", DateOfBirth: "1990-01-15", DocumentNumber: "P1234567"},
		SubmittedAt:  submittedAt,
		UpdatedAt:    submittedAt,
	}
}

func (s *MemoryStoreSuite) TestCreateAndGet() {
	app := s.newApplication("app_1", "subj-1", models.StatusPending, time.Now())
	s.Require().NoError(s.store.Create(s.ctx, app))

	got, err := s.store.GetByID(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(app.SubjectID, got.SubjectID)

	got, err = s.store.GetBySubject(s.ctx, app.SubjectID)
	s.Require().NoError(err)
	s.Equal(app.ID, got.ID)
}

func (s *MemoryStoreSuite) TestCreateRejectsSecondRecordForSubject() {
	s.Require().NoError(s.store.Create(s.ctx, s.newApplication("app_1", "subj-1", models.StatusPending, time.Now())))

	err := s.store.Create(s.ctx, s.newApplication("app_2", "subj-1", models.StatusPending, time.Now()))
	s.ErrorIs(err, ErrConflict)
}

func (s *MemoryStoreSuite) TestGetNotFound() {
	_, err := s.store.GetByID(s.ctx, "app_missing")
	s.ErrorIs(err, ErrNotFound)

	_, err = s.store.GetBySubject(s.ctx, "subj-missing")
	s.ErrorIs(err, ErrNotFound)
}

func (s *MemoryStoreSuite) TestConditionalUpdate() {
	app := s.newApplication("app_1", "subj-1", models.StatusPending, time.Now())
	s.Require().NoError(s.store.Create(s.ctx, app))

	s.Run("succeeds when status matches", func() {
		app.Status = models.StatusUnderReview
		s.NoError(s.store.Update(s.ctx, app, models.StatusPending))
	})

	s.Run("fails with conflict when status moved on", func() {
		stale := app.Clone()
		stale.Status = models.StatusApproved
		err := s.store.Update(s.ctx, stale, models.StatusPending)
		s.ErrorIs(err, ErrConflict)

		current, getErr := s.store.GetByID(s.ctx, app.ID)
		s.Require().NoError(getErr)
		s.Equal(models.StatusUnderReview, current.Status, "losing write must not change the record")
	})

	s.Run("accepts any of several expected statuses", func() {
		app.Status = models.StatusApproved
		s.NoError(s.store.Update(s.ctx, app, models.StatusPending, models.StatusUnderReview))
	})

	s.Run("not found for unknown record", func() {
		ghost := s.newApplication("app_ghost", "subj-ghost", models.StatusPending, time.Now())
		s.ErrorIs(s.store.Update(s.ctx, ghost, models.StatusPending), ErrNotFound)
	})
}

func (s *MemoryStoreSuite) TestListByStatusOrdersBySubmission() {
	base := time.Now()
	s.Require().NoError(s.store.Create(s.ctx, s.newApplication("app_b", "subj-b", models.StatusPending, base.Add(time.Minute))))
	s.Require().NoError(s.store.Create(s.ctx, s.newApplication("app_a", "subj-a", models.StatusPending, base)))
	s.Require().NoError(s.store.Create(s.ctx, s.newApplication("app_c", "subj-c", models.StatusApproved, base)))

	list, err := s.store.ListByStatus(s.ctx, models.StatusPending, 0)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(domain.ApplicationID("app_a"), list[0].ID, "oldest submission first")
	s.Equal(domain.ApplicationID("app_b"), list[1].ID)
}

func (s *MemoryStoreSuite) TestListByStatusHonorsLimit() {
	base := time.Now()
	for i, id := range []string{"app_1", "app_2", "app_3"} {
		app := s.newApplication(id, "subj-"+id, models.StatusPending, base.Add(time.Duration(i)*time.Second))
		s.Require().NoError(s.store.Create(s.ctx, app))
	}

	list, err := s.store.ListByStatus(s.ctx, models.StatusPending, 2)
	s.Require().NoError(err)
	s.Len(list, 2)
}

func (s *MemoryStoreSuite) TestDelete() {
	app := s.newApplication("app_1", "subj-1", models.StatusRejected, time.Now())
	s.Require().NoError(s.store.Create(s.ctx, app))

	s.Require().NoError(s.store.Delete(s.ctx, app.ID))

	_, err := s.store.GetByID(s.ctx, app.ID)
	s.ErrorIs(err, ErrNotFound)
	_, err = s.store.GetBySubject(s.ctx, app.SubjectID)
	s.ErrorIs(err, ErrNotFound, "subject index entry must go with the record")

	s.ErrorIs(s.store.Delete(s.ctx, app.ID), ErrNotFound)
}

func (s *MemoryStoreSuite) TestReadsDoNotAliasStore() {
	conf := 90.0
	app := s.newApplication("app_1", "subj-1", models.StatusPending, time.Now())
	app.Confidence = &conf
	s.Require().NoError(s.store.Create(s.ctx, app))

	got, err := s.store.GetByID(s.ctx, app.ID)
	s.Require().NoError(err)
	*got.Confidence = 5
	got.Status = models.StatusApproved

	again, err := s.store.GetByID(s.ctx, app.ID)
	s.Require().NoError(err)
	s.Equal(90.0, *again.Confidence)
	s.Equal(models.StatusPending, again.Status)
}
