package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"civid/internal/holder/models"
	"civid/pkg/domain"
)

// PostgresStore persists holders in PostgreSQL. UIN uniqueness rides on the
// primary key; the unique index on application_id closes the race where two
// approvals of the same application both reach holder creation.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const holderColumns = `
	uin, subject_id, application_id, status,
	full_name, date_of_birth, nationality, face_id,
	issued_at, expiry_date, status_at, revoked_at`

func (s *PostgresStore) Create(ctx context.Context, holder *models.Holder) error {
	query := `
		INSERT INTO holders (` + holderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		string(holder.UIN),
		string(holder.SubjectID),
		string(holder.ApplicationID),
		string(holder.Status),
		holder.FullName,
		holder.DateOfBirth,
		nullString(holder.Nationality),
		nullString(string(holder.FaceID)),
		holder.IssuedAt,
		holder.ExpiryDate,
		holder.StatusAt,
		holder.RevokedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("create holder: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByUIN(ctx context.Context, uin domain.UIN) (*models.Holder, error) {
	query := `SELECT ` + holderColumns + ` FROM holders WHERE uin = $1`
	return scanHolder(s.db.QueryRowContext(ctx, query, string(uin)))
}

func (s *PostgresStore) GetBySubject(ctx context.Context, subjectID domain.SubjectID) (*models.Holder, error) {
	query := `SELECT ` + holderColumns + ` FROM holders WHERE subject_id = $1`
	return scanHolder(s.db.QueryRowContext(ctx, query, string(subjectID)))
}

func (s *PostgresStore) ExistsUIN(ctx context.Context, uin domain.UIN) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM holders WHERE uin = $1)`, string(uin)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check uin exists: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, uin domain.UIN, from, to models.Status, at time.Time) error {
	query := `
		UPDATE holders
		SET status = $2, status_at = $3,
		    revoked_at = CASE WHEN $2 = 'revoked' THEN $3 ELSE revoked_at END
		WHERE uin = $1 AND status = $4
	`
	res, err := s.db.ExecContext(ctx, query, string(uin), string(to), at, string(from))
	if err != nil {
		return fmt.Errorf("update holder status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update holder status rows: %w", err)
	}
	if rows == 0 {
		if _, getErr := s.GetByUIN(ctx, uin); getErr != nil {
			return getErr
		}
		return ErrConflict
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHolder(row scanner) (*models.Holder, error) {
	var h models.Holder
	var nationality, faceID sql.NullString
	var revokedAt sql.NullTime

	err := row.Scan(
		&h.UIN, &h.SubjectID, &h.ApplicationID, &h.Status,
		&h.FullName, &h.DateOfBirth, &nationality, &faceID,
		&h.IssuedAt, &h.ExpiryDate, &h.StatusAt, &revokedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan holder: %w", err)
	}

	h.Nationality = nationality.String
	h.FaceID = domain.FaceID(faceID.String)
	if revokedAt.Valid {
		h.RevokedAt = &revokedAt.Time
	}
	return &h, nil
}
