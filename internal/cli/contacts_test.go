package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RevCBH/siren/internal/escalation"
)

func TestNewBookContact(t *testing.T) {
	c, err := newBookContact("", " Mom ", " +15551234567 ", 1)
	if err != nil {
		t.Fatalf("newBookContact: %v", err)
	}
	if c.ID == "" {
		t.Error("expected a minted id")
	}
	if c.Name != "Mom" || c.Phone != "+15551234567" || c.Priority != 1 {
		t.Errorf("unexpected contact %+v", c)
	}

	c, err = newBookContact("keep-me", "", "+1555", 2)
	if err != nil {
		t.Fatalf("newBookContact: %v", err)
	}
	if c.ID != "keep-me" {
		t.Errorf("ID = %q, want keep-me", c.ID)
	}

	if _, err := newBookContact("", "Mom", "  ", 1); err == nil {
		t.Error("expected error for missing phone")
	}
	if _, err := newBookContact("", "Mom", "+1555", 0); err == nil {
		t.Error("expected error for priority 0")
	}
}

func TestContactsCmd_AddListRemove(t *testing.T) {
	home := t.TempDir()

	out, err := runCLI(t, home, "contacts", "list")
	if err != nil {
		t.Fatalf("contacts list: %v", err)
	}
	if !strings.Contains(out, "No contacts configured") {
		t.Errorf("expected empty book message, got:\n%s", out)
	}
	if !strings.Contains(out, "escalation would notify nobody") {
		t.Errorf("expected nobody warning, got:\n%s", out)
	}

	out, err = runCLI(t, home, "contacts", "add", "--name", "Mom", "--phone", "+15551234567")
	if err != nil {
		t.Fatalf("contacts add: %v", err)
	}
	if !strings.HasPrefix(out, "Saved contact ") {
		t.Fatalf("unexpected add output: %q", out)
	}
	id := strings.Fields(out)[2]

	out, err = runCLI(t, home, "contacts", "ls")
	if err != nil {
		t.Fatalf("contacts ls: %v", err)
	}
	for _, want := range []string{id, "Mom", "+15551234567", "local", "store list (1 contact(s))"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}

	out, err = runCLI(t, home, "contacts", "remove", id)
	if err != nil {
		t.Fatalf("contacts remove: %v", err)
	}
	if !strings.Contains(out, "Removed contact "+id) {
		t.Errorf("unexpected remove output: %q", out)
	}

	_, err = runCLI(t, home, "contacts", "rm", id)
	if err == nil || !strings.Contains(err.Error(), "no contact with id") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestContactsCmd_ConfiguredListWins(t *testing.T) {
	home := t.TempDir()
	yaml := `contacts:
  - id: sis
    name: Sarah
    phone: "+15550001111"
    priority: 1
`
	if err := os.WriteFile(filepath.Join(home, "siren.yaml"), []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, home, "contacts", "add", "--name", "Mom", "--phone", "+1555"); err != nil {
		t.Fatalf("contacts add: %v", err)
	}

	out, err := runCLI(t, home, "contacts", "list")
	if err != nil {
		t.Fatalf("contacts list: %v", err)
	}
	for _, want := range []string{"Sarah", "config", "Mom", "local", "config list (1 contact(s))"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output missing %q:\n%s", want, out)
		}
	}
}

func TestDisplayContacts(t *testing.T) {
	var buf bytes.Buffer
	displayContacts(&buf,
		[]escalation.Contact{{ID: "a", Name: "Ann", Phone: "+1", Priority: 1}},
		[]escalation.Contact{{ID: "b", Phone: "+2", Priority: 2}},
	)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got:\n%s", buf.String())
	}
	if !strings.Contains(lines[1], "config") || !strings.Contains(lines[2], "local") {
		t.Errorf("unexpected rows:\n%s", buf.String())
	}
	if !strings.Contains(lines[2], "-") {
		t.Errorf("empty name should render as a dash: %q", lines[2])
	}
}
