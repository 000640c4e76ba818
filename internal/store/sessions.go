package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/RevCBH/siren/internal/escalation"
)

const sessionColumns = `id, mode, label, tier, missed_count, config_json,
		       created_at, updated_at, last_ack_at, ended_at`

// CreateSession inserts a session from its creation snapshot.
func (s *Store) CreateSession(snap escalation.Snapshot) error {
	cfgJSON, err := json.Marshal(snap.Config)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	query := `
		INSERT INTO sessions (
			id, mode, label, tier, missed_count, config_json,
			created_at, updated_at, last_ack_at, ended_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.conn.Exec(
		query,
		snap.ID,
		string(snap.Config.Mode),
		snap.Config.Label,
		string(snap.Tier),
		snap.MissedCount,
		string(cfgJSON),
		snap.CreatedAt.UTC(),
		snap.UpdatedAt.UTC(),
		utcPtr(snap.LastAcknowledgedAt),
		endedAt(snap),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// UpdateSessionState records the tier, missed count and timestamps of snap.
// Returns ErrNotFound if the session was never created.
func (s *Store) UpdateSessionState(snap escalation.Snapshot) error {
	query := `
		UPDATE sessions
		SET tier = ?, missed_count = ?, updated_at = ?, last_ack_at = ?,
		    ended_at = COALESCE(ended_at, ?)
		WHERE id = ?
	`

	result, err := s.conn.Exec(
		query,
		string(snap.Tier),
		snap.MissedCount,
		snap.UpdatedAt.UTC(),
		utcPtr(snap.LastAcknowledgedAt),
		endedAt(snap),
		snap.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session %s: %w", snap.ID, ErrNotFound)
	}
	return nil
}

// GetSession retrieves a session by its ID.
// Returns nil, nil if the session does not exist.
func (s *Store) GetSession(id string) (*SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`

	rec, err := scanSession(s.conn.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return rec, nil
}

// ListSessions returns sessions newest first. With activeOnly set, sessions
// in a terminal tier are skipped.
func (s *Store) ListSessions(activeOnly bool) ([]*SessionRecord, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var args []any
	if activeOnly {
		query += ` WHERE tier NOT IN (?, ?)`
		args = append(args, string(escalation.TierResolved), string(escalation.TierCancelled))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}

// MarkInterrupted cancels every session left non-terminal by a previous
// process. Timers do not survive a restart, so neither do sessions.
// Returns the number of sessions updated.
func (s *Store) MarkInterrupted(at time.Time) (int, error) {
	query := `
		UPDATE sessions
		SET tier = ?, updated_at = ?, ended_at = ?
		WHERE tier NOT IN (?, ?)
	`

	result, err := s.conn.Exec(
		query,
		string(escalation.TierCancelled),
		at.UTC(),
		at.UTC(),
		string(escalation.TierResolved),
		string(escalation.TierCancelled),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark interrupted sessions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// DeleteSessionsBefore removes terminal sessions that ended before cutoff,
// along with their events. Returns the number of sessions removed.
func (s *Store) DeleteSessionsBefore(cutoff time.Time) (int, error) {
	result, err := s.conn.Exec(
		`DELETE FROM sessions WHERE ended_at IS NOT NULL AND ended_at < ?`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	rec := &SessionRecord{}
	var mode, tier string
	var label sql.NullString
	err := row.Scan(
		&rec.ID,
		&mode,
		&label,
		&tier,
		&rec.MissedCount,
		&rec.ConfigJSON,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.LastAcknowledgedAt,
		&rec.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Mode = escalation.Mode(mode)
	rec.Tier = escalation.Tier(tier)
	rec.Label = label.String
	return rec, nil
}

func endedAt(snap escalation.Snapshot) *time.Time {
	if !snap.Tier.IsTerminal() {
		return nil
	}
	t := snap.UpdatedAt.UTC()
	return &t
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
