package store

import (
	"fmt"
	"time"

	"github.com/RevCBH/siren/internal/escalation"
)

// UpsertContact adds a contact to the local contact book or replaces the
// contact with the same ID.
func (s *Store) UpsertContact(c escalation.Contact) error {
	if c.ID == "" {
		return fmt.Errorf("contact id must not be empty")
	}

	query := `
		INSERT INTO contacts (id, name, phone, priority, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			priority = excluded.priority,
			updated_at = excluded.updated_at
	`

	_, err := s.conn.Exec(query, c.ID, c.Name, c.Phone, c.Priority, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}
	return nil
}

// ListContacts returns the contact book in calling order: ascending
// priority with unset (0) priorities last, then by ID.
func (s *Store) ListContacts() ([]escalation.Contact, error) {
	query := `
		SELECT id, name, phone, priority
		FROM contacts
		ORDER BY priority = 0, priority, id
	`

	rows, err := s.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []escalation.Contact
	for rows.Next() {
		var c escalation.Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contacts: %w", err)
	}

	return contacts, nil
}

// DeleteContact removes a contact. Returns ErrNotFound if it does not exist.
func (s *Store) DeleteContact(id string) error {
	result, err := s.conn.Exec(`DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete contact: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("contact %s: %w", id, ErrNotFound)
	}
	return nil
}
