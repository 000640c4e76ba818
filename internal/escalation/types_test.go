package escalation

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"checkin":     ModeCheckIn,
		"check-in":    ModeCheckIn,
		"shake":       ModeShakeWatch,
		"SHAKE_WATCH": ModeShakeWatch,
		"voice":       ModeVoiceWatch,
	}
	for in, want := range tests {
		got, err := ParseMode(in)
		if err != nil {
			t.Errorf("ParseMode(%q) error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseMode(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseMode("sos"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestParseTriggerKind(t *testing.T) {
	if k, err := ParseTriggerKind(" Motion "); err != nil || k != TriggerMotion {
		t.Errorf("ParseTriggerKind(motion) = %s, %v", k, err)
	}
	if _, err := ParseTriggerKind("tap"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestTriggerEvent_WellFormed(t *testing.T) {
	tests := []struct {
		name string
		ev   TriggerEvent
		want bool
	}{
		{"motion", TriggerEvent{Kind: TriggerMotion, Value: 22.5}, true},
		{"zero", TriggerEvent{Kind: TriggerMotion, Value: 0}, true},
		{"negative", TriggerEvent{Kind: TriggerMotion, Value: -1}, false},
		{"nan", TriggerEvent{Kind: TriggerMotion, Value: math.NaN()}, false},
		{"inf", TriggerEvent{Kind: TriggerVoice, Value: math.Inf(1)}, false},
		{"voice in range", TriggerEvent{Kind: TriggerVoice, Value: 100}, true},
		{"voice over 100", TriggerEvent{Kind: TriggerVoice, Value: 100.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.wellFormed(); got != tt.want {
				t.Errorf("wellFormed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSessionConfig_WithDefaults(t *testing.T) {
	c := SessionConfig{Mode: ModeCheckIn}.WithDefaults()
	if c.Interval != 15*time.Minute || c.CheckInTimeout != 30*time.Second {
		t.Errorf("unexpected checkin defaults: %+v", c)
	}
	if c.MessageThreshold != 1 || c.CallThreshold != 3 {
		t.Errorf("unexpected thresholds: %d/%d", c.MessageThreshold, c.CallThreshold)
	}

	r := SessionConfig{Mode: ModeShakeWatch}.WithDefaults()
	if r.Interval != 0 {
		t.Errorf("expected no scheduled interval for shake watch, got %v", r.Interval)
	}
	if r.CheckInTimeout != 10*time.Second || r.Refractory != 5*time.Second {
		t.Errorf("unexpected reflex defaults: %+v", r)
	}
}

func TestSessionConfig_Validate(t *testing.T) {
	base := SessionConfig{Mode: ModeCheckIn}.WithDefaults()

	tests := []struct {
		name   string
		mutate func(*SessionConfig)
	}{
		{"unknown mode", func(c *SessionConfig) { c.Mode = "sos" }},
		{"negative interval", func(c *SessionConfig) { c.Interval = -time.Second }},
		{"zero timeout", func(c *SessionConfig) { c.CheckInTimeout = 0 }},
		{"zero call threshold", func(c *SessionConfig) { c.CallThreshold = 0 }},
		{"negative refractory", func(c *SessionConfig) { c.Refractory = -1 }},
		{"contact without id", func(c *SessionConfig) { c.Contacts = []Contact{{Name: "x"}} }},
		{"duplicate contact", func(c *SessionConfig) { c.Contacts = []Contact{{ID: "a"}, {ID: "a"}} }},
		{"negative priority", func(c *SessionConfig) { c.Contacts = []Contact{{ID: "a", Priority: -2}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}

	if err := base.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}
}

func TestSnapshot_Remaining(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(90 * time.Second)

	s := Snapshot{Deadline: &deadline}
	if got := s.Remaining(now); got != 90*time.Second {
		t.Errorf("Remaining = %v, want 90s", got)
	}
	if got := s.Remaining(now.Add(time.Hour)); got != 0 {
		t.Errorf("Remaining past deadline = %v, want 0", got)
	}
	if got := (Snapshot{}).Remaining(now); got != 0 {
		t.Errorf("Remaining without deadline = %v, want 0", got)
	}
}

func TestContact_DisplayName(t *testing.T) {
	if got := (Contact{ID: "c1", Phone: "+1555"}).DisplayName(); got != "+1555" {
		t.Errorf("DisplayName = %q", got)
	}
	if got := (Contact{ID: "c1"}).DisplayName(); got != "c1" {
		t.Errorf("DisplayName = %q", got)
	}
}
