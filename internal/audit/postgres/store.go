package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rosterd/internal/audit"
)

// Store implements audit.Store using a transactional outbox table. Events are
// inserted into the outbox and also materialized into audit_events so that
// ListByRecord can serve history queries without a consumer round-trip.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append writes the event to the outbox and the audit_events table.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.New()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	aggregateType := "audit"
	aggregateID := eventID.String()
	if event.RecordID != "" {
		aggregateType = "participant"
		aggregateID = event.RecordID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, eventID, aggregateType, aggregateID, string(event.Action), payload, time.Now())
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_events (id, timestamp, actor, action, collection, record_id, request_id, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`, eventID, event.Timestamp, event.Actor, string(event.Action),
		event.Collection, event.RecordID, event.RequestID, event.Detail)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit tx: %w", err)
	}
	return nil
}

// ListByRecord returns events for one record id, oldest first.
func (s *Store) ListByRecord(ctx context.Context, recordID string) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, actor, action, collection, record_id, request_id, detail
		FROM audit_events
		WHERE record_id = $1
		ORDER BY timestamp ASC
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			event  audit.Event
			action string
		)
		err := rows.Scan(
			&event.Timestamp,
			&event.Actor,
			&action,
			&event.Collection,
			&event.RecordID,
			&event.RequestID,
			&event.Detail,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Action = audit.Action(action)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
