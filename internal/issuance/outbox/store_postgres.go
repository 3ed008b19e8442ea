package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresStore persists obligations in PostgreSQL so repairs survive
// restarts.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Enqueue(ctx context.Context, obligation Obligation) error {
	query := `
		INSERT INTO issuance_obligations (id, application_id, uin, created_at, attempts, last_error, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (application_id) WHERE settled_at IS NULL DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		obligation.ID,
		string(obligation.ApplicationID),
		string(obligation.UIN),
		obligation.CreatedAt,
		obligation.Attempts,
		sql.NullString{String: obligation.LastError, Valid: obligation.LastError != ""},
		obligation.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue obligation: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPending(ctx context.Context, limit int) ([]Obligation, error) {
	query := `
		SELECT id, application_id, uin, created_at, attempts, last_error, settled_at
		FROM issuance_obligations
		WHERE settled_at IS NULL
		ORDER BY created_at ASC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending obligations: %w", err)
	}
	defer rows.Close()

	var out []Obligation
	for rows.Next() {
		var o Obligation
		var lastError sql.NullString
		var settledAt sql.NullTime
		if err := rows.Scan(&o.ID, &o.ApplicationID, &o.UIN, &o.CreatedAt, &o.Attempts, &lastError, &settledAt); err != nil {
			return nil, fmt.Errorf("scan obligation: %w", err)
		}
		o.LastError = lastError.String
		if settledAt.Valid {
			o.SettledAt = &settledAt.Time
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate obligations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) MarkSettled(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE issuance_obligations SET settled_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("settle obligation: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("settle obligation rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE issuance_obligations SET attempts = attempts + 1, last_error = $2 WHERE id = $1`, id, reason)
	if err != nil {
		return fmt.Errorf("record obligation failure: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record obligation failure rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
