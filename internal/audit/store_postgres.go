package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists audit events in PostgreSQL. Append-only; there is
// deliberately no update or delete path.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO audit_events (id, ts, actor, subject, action, decision, reason, request_id, ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Timestamp,
		event.Actor,
		event.Subject,
		string(event.Action),
		nullString(event.Decision),
		nullString(event.Reason),
		nullString(event.RequestID),
		nullString(event.IP),
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBySubject(ctx context.Context, subject string) ([]Event, error) {
	query := `
		SELECT id, ts, actor, subject, action, decision, reason, request_id, ip
		FROM audit_events
		WHERE subject = $1
		ORDER BY ts ASC
	`
	rows, err := s.db.QueryContext(ctx, query, subject)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var decision, reason, requestID, ip sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Actor, &e.Subject, &e.Action, &decision, &reason, &requestID, &ip); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Decision = decision.String
		e.Reason = reason.String
		e.RequestID = requestID.String
		e.IP = ip.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
