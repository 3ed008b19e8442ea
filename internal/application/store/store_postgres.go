package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"civid/internal/application/models"
	"civid/pkg/domain"
)

// PostgresStore persists applications in PostgreSQL. Conditional status
// writes are expressed as a status predicate on the UPDATE so concurrent
// reviewers race on the row itself rather than on advisory locks.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const applicationColumns = `
	id, subject_id, status, document_type,
	full_name, date_of_birth, document_number, nationality, address,
	document_key, selfie_key,
	confidence, requires_manual_review, face_id,
	uin, issued_at, rejection_reason, reviewed_by, reviewed_at,
	submitted_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, app *models.Application) error {
	query := `
		INSERT INTO applications (` + applicationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (subject_id) DO NOTHING
		RETURNING id
	`
	var storedID string
	err := s.db.QueryRowContext(ctx, query, applicationArgs(app)...).Scan(&storedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrConflict
		}
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, app *models.Application, expected ...models.Status) error {
	query := `
		UPDATE applications SET
			status = $2, document_type = $3,
			full_name = $4, date_of_birth = $5, document_number = $6, nationality = $7, address = $8,
			document_key = $9, selfie_key = $10,
			confidence = $11, requires_manual_review = $12, face_id = $13,
			uin = $14, issued_at = $15, rejection_reason = $16, reviewed_by = $17, reviewed_at = $18,
			submitted_at = $19, updated_at = $20
		WHERE id = $1
	`
	args := applicationArgs(app)
	// subject_id never changes after create; drop it from the update set.
	args = append(args[:1], args[2:]...)
	if len(expected) > 0 {
		placeholders := make([]string, len(expected))
		for i, st := range expected {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, string(st))
		}
		query += " AND status IN (" + strings.Join(placeholders, ", ") + ")"
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update application rows: %w", err)
	}
	if rows == 0 {
		// Distinguish a missing row from a lost status race.
		if _, getErr := s.GetByID(ctx, app.ID); getErr != nil {
			return getErr
		}
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id domain.ApplicationID) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	return scanApplication(s.db.QueryRowContext(ctx, query, string(id)))
}

func (s *PostgresStore) GetBySubject(ctx context.Context, subjectID domain.SubjectID) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE subject_id = $1`
	return scanApplication(s.db.QueryRowContext(ctx, query, string(subjectID)))
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.Status, limit int) ([]*models.Application, error) {
	query := `
		SELECT ` + applicationColumns + `
		FROM applications
		WHERE status = $1
		ORDER BY submitted_at ASC
	`
	args := []any{string(status)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var out []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.ApplicationID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete application rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func applicationArgs(app *models.Application) []any {
	return []any{
		string(app.ID),
		string(app.SubjectID),
		string(app.Status),
		string(app.DocumentType),
		app.Fields.FullName,
		app.Fields.DateOfBirth,
		app.Fields.DocumentNumber,
		nullString(app.Fields.Nationality),
		nullString(app.Fields.Address),
		nullString(app.Images.DocumentKey),
		nullString(app.Images.SelfieKey),
		app.Confidence,
		app.RequiresManualReview,
		nullString(string(app.FaceID)),
		nullString(string(app.UIN)),
		app.IssuedAt,
		nullString(app.RejectionReason),
		nullString(string(app.ReviewedBy)),
		app.ReviewedAt,
		app.SubmittedAt,
		app.UpdatedAt,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApplication(row scanner) (*models.Application, error) {
	var app models.Application
	var nationality, address, documentKey, selfieKey sql.NullString
	var faceID, uin, rejectionReason, reviewedBy sql.NullString
	var confidence sql.NullFloat64
	var issuedAt, reviewedAt sql.NullTime

	err := row.Scan(
		&app.ID, &app.SubjectID, &app.Status, &app.DocumentType,
		&app.Fields.FullName, &app.Fields.DateOfBirth, &app.Fields.DocumentNumber, &nationality, &address,
		&documentKey, &selfieKey,
		&confidence, &app.RequiresManualReview, &faceID,
		&uin, &issuedAt, &rejectionReason, &reviewedBy, &reviewedAt,
		&app.SubmittedAt, &app.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan application: %w", err)
	}

	app.Fields.Nationality = nationality.String
	app.Fields.Address = address.String
	app.Images.DocumentKey = documentKey.String
	app.Images.SelfieKey = selfieKey.String
	app.FaceID = domain.FaceID(faceID.String)
	app.UIN = domain.UIN(uin.String)
	app.RejectionReason = rejectionReason.String
	app.ReviewedBy = domain.ReviewerID(reviewedBy.String)
	if confidence.Valid {
		app.Confidence = &confidence.Float64
	}
	if issuedAt.Valid {
		app.IssuedAt = &issuedAt.Time
	}
	if reviewedAt.Valid {
		app.ReviewedAt = &reviewedAt.Time
	}
	return &app, nil
}
