package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AppendEvent records a new event with an auto-assigned sequence number.
// The sequence number is calculated within a transaction to avoid races.
// Payload is JSON-serialized if non-nil; empty tier and errMsg are stored as NULL.
func (s *Store) AppendEvent(sessionID, eventType, tier string, payload any, errMsg string, at time.Time) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sequence, err := nextSequenceInTx(tx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to get next sequence: %w", err)
	}

	var payloadJSON *string
	if payload != nil {
		jsonBytes, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to serialize payload: %w", err)
		}
		jsonStr := string(jsonBytes)
		payloadJSON = &jsonStr
	}

	query := `
		INSERT INTO events (session_id, sequence, event_type, tier, payload_json, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.Exec(query, sessionID, sequence, eventType, nullable(tier), payloadJSON, nullable(errMsg), at.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// nextSequenceInTx returns the next sequence number within a transaction.
func nextSequenceInTx(tx *sql.Tx, sessionID string) (int, error) {
	query := `SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE session_id = ?`

	var nextSeq int
	err := tx.QueryRow(query, sessionID).Scan(&nextSeq)
	if err != nil {
		return 0, fmt.Errorf("failed to get next sequence in transaction: %w", err)
	}

	return nextSeq, nil
}

// ListEvents returns all events for a session in sequence order.
func (s *Store) ListEvents(sessionID string) ([]*EventRecord, error) {
	return s.ListEventsSince(sessionID, 0)
}

// ListEventsSince returns all events with sequence > the given value.
// Used for incremental event fetching (e.g., for live monitoring).
func (s *Store) ListEventsSince(sessionID string, sequence int) ([]*EventRecord, error) {
	query := `
		SELECT id, session_id, sequence, event_type, tier, payload_json, error, created_at
		FROM events
		WHERE session_id = ? AND sequence > ?
		ORDER BY sequence
	`

	rows, err := s.conn.Query(query, sessionID, sequence)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*EventRecord
	for rows.Next() {
		event := &EventRecord{}
		err := rows.Scan(
			&event.ID,
			&event.SessionID,
			&event.Sequence,
			&event.EventType,
			&event.Tier,
			&event.PayloadJSON,
			&event.Error,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
