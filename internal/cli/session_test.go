package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/RevCBH/siren/internal/escalation"
)

func TestParseContact(t *testing.T) {
	tests := []struct {
		input    string
		position int
		want     escalation.Contact
		wantErr  string
	}{
		{
			input:    "Mom:+15551234567",
			position: 1,
			want:     escalation.Contact{ID: "cli-1", Name: "Mom", Phone: "+15551234567", Priority: 1},
		},
		{
			input:    " Dad : +15559876543 : 3 ",
			position: 2,
			want:     escalation.Contact{ID: "cli-2", Name: "Dad", Phone: "+15559876543", Priority: 3},
		},
		{
			input:    ":+15550000000",
			position: 4,
			want:     escalation.Contact{ID: "cli-4", Phone: "+15550000000", Priority: 4},
		},
		{input: "Mom", position: 1, wantErr: "expected name:phone"},
		{input: "a:b:c:d", position: 1, wantErr: "expected name:phone"},
		{input: "Mom:", position: 1, wantErr: "no phone number"},
		{input: "Mom:+1555:0", position: 1, wantErr: "priority must be a positive integer"},
		{input: "Mom:+1555:first", position: 1, wantErr: "priority must be a positive integer"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseContact(tt.input, tt.position)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseContact: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSessionStartOptions_Validate(t *testing.T) {
	opts := SessionStartOptions{
		Mode:          "shake",
		Label:         "run",
		Timeout:       15 * time.Second,
		CallThreshold: 2,
		Contacts:      []string{"Mom:+1555", "Dad:+1666"},
	}

	got, err := opts.Validate()
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.Mode != escalation.ModeShakeWatch {
		t.Errorf("Mode = %q, want %q", got.Mode, escalation.ModeShakeWatch)
	}
	if got.Label != "run" || got.Timeout != 15*time.Second || got.CallThreshold != 2 {
		t.Errorf("options not carried over: %+v", got)
	}
	if len(got.Contacts) != 2 || got.Contacts[1].Priority != 2 {
		t.Errorf("unexpected contacts: %+v", got.Contacts)
	}
}

func TestSessionStartOptions_ValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		opts SessionStartOptions
	}{
		{"unknown mode", SessionStartOptions{Mode: "sleep"}},
		{"negative interval", SessionStartOptions{Mode: "checkin", Interval: -time.Second}},
		{"negative threshold", SessionStartOptions{Mode: "checkin", CallThreshold: -1}},
		{"bad contact", SessionStartOptions{Mode: "checkin", Contacts: []string{"nobody"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.opts.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSessionStartCmd_Flags(t *testing.T) {
	app := New()
	cmd, _, err := app.rootCmd.Find([]string{"session", "start"})
	if err != nil {
		t.Fatalf("find session start: %v", err)
	}

	mode := cmd.Flags().Lookup("mode")
	if mode == nil || mode.DefValue != "checkin" || mode.Shorthand != "m" {
		t.Errorf("unexpected --mode flag: %+v", mode)
	}
	for _, name := range []string{"label", "interval", "timeout", "message-threshold", "call-threshold", "contact", "watch"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("missing --%s flag", name)
		}
	}
}

func TestSessionStart_RejectsBadFlagsBeforeDialing(t *testing.T) {
	// No daemon runs in home: validation must fail first
	_, err := runCLI(t, t.TempDir(), "session", "start", "--mode", "nap")
	if err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if strings.Contains(err.Error(), "daemon not running") {
		t.Errorf("validation should precede dialing, got %v", err)
	}
}

func TestTriggerCmd_RejectsUnknownKind(t *testing.T) {
	_, err := runCLI(t, t.TempDir(), "trigger", "s1", "--kind", "heat")
	if err == nil {
		t.Fatal("expected error for unknown trigger kind")
	}
}

func TestSessionCommands_NoDaemon(t *testing.T) {
	home := t.TempDir()

	for _, args := range [][]string{
		{"status"},
		{"ack", "s1"},
		{"complete", "s1"},
	} {
		_, err := runCLI(t, home, args...)
		if err == nil || !strings.Contains(err.Error(), "daemon not running") {
			t.Errorf("%v: expected daemon not running error, got %v", args, err)
		}
	}
}
