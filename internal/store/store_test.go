package store

import (
	"testing"
)

func TestOpen(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()
}

// TestOpenWALMode verifies that WAL mode is enabled after open
func TestOpenWALMode(t *testing.T) {
	// In-memory databases don't support WAL
	s, err := Open(t.TempDir() + "/siren.db")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	var journalMode string
	if err := s.conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("Expected WAL mode, got %s", journalMode)
	}
}

func TestOpenForeignKeys(t *testing.T) {
	s := openTestStore(t)

	var foreignKeys int
	if err := s.conn.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("Failed to query foreign_keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Errorf("Expected foreign keys enabled (1), got %d", foreignKeys)
	}
}

func TestOpenMigration(t *testing.T) {
	s := openTestStore(t)

	for _, table := range []string{"sessions", "events", "contacts"} {
		var name string
		query := "SELECT name FROM sqlite_master WHERE type='table' AND name=?"
		if err := s.conn.QueryRow(query, table).Scan(&name); err != nil {
			t.Errorf("Table %s does not exist: %v", table, err)
		}
	}
}

func TestOpenIdempotentMigration(t *testing.T) {
	path := t.TempDir() + "/siren.db"
	for i := 0; i < 2; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open #%d failed: %v", i+1, err)
		}
		s.Close()
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
