package escalation

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Mode identifies which trigger source owns a session
type Mode string

const (
	ModeCheckIn    Mode = "checkin"
	ModeShakeWatch Mode = "shake_watch"
	ModeVoiceWatch Mode = "voice_watch"
)

// ParseMode accepts the canonical mode names plus the short CLI aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "checkin", "check_in", "check-in":
		return ModeCheckIn, nil
	case "shake_watch", "shake", "shake-watch":
		return ModeShakeWatch, nil
	case "voice_watch", "voice", "voice-watch":
		return ModeVoiceWatch, nil
	}
	return "", fmt.Errorf("unknown mode %q (expected checkin, shake or voice)", s)
}

// IsValid returns true for known modes
func (m Mode) IsValid() bool {
	return m == ModeCheckIn || m == ModeShakeWatch || m == ModeVoiceWatch
}

// IsReflex returns true for modes driven by sensor triggers rather than a schedule
func (m Mode) IsReflex() bool {
	return m == ModeShakeWatch || m == ModeVoiceWatch
}

// TriggerKind identifies the source of a TriggerEvent
type TriggerKind string

const (
	TriggerManual TriggerKind = "manual"
	TriggerMotion TriggerKind = "motion"
	TriggerVoice  TriggerKind = "voice"
)

// ParseTriggerKind parses a trigger kind name
func ParseTriggerKind(s string) (TriggerKind, error) {
	k := TriggerKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case TriggerManual, TriggerMotion, TriggerVoice:
		return k, nil
	}
	return "", fmt.Errorf("unknown trigger kind %q (expected manual, motion or voice)", s)
}

// IsReflex returns true for sensor-driven trigger kinds
func (k TriggerKind) IsReflex() bool {
	return k == TriggerMotion || k == TriggerVoice
}

// TriggerEvent is an immutable event produced by a trigger adapter.
// Value is the acceleration magnitude for Motion and the recognizer
// confidence percentage (0-100) for Voice; Manual ignores it.
type TriggerEvent struct {
	Kind  TriggerKind `json:"kind"`
	At    time.Time   `json:"at"`
	Value float64     `json:"value"`
}

// wellFormed reports whether the event's value is usable. Out-of-range
// values are non-triggering rather than errors.
func (ev TriggerEvent) wellFormed() bool {
	v := ev.Value
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return false
	}
	if ev.Kind == TriggerVoice && v > 100 {
		return false
	}
	return true
}

// ActionKind is what the notifier should do for a contact
type ActionKind string

const (
	ActionCall    ActionKind = "call"
	ActionMessage ActionKind = "message"
)

// Action reasons
const (
	ReasonMissedCheckIn = "missed_checkin"
	ReasonEscalation    = "escalation"
)

// Contact is a person notified during escalation. Lower Priority values are
// more urgent; priority 1 is called first. Priority 0 means unset and sorts last.
type Contact struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Phone    string `json:"phone" yaml:"phone"`
	Priority int    `json:"priority" yaml:"priority"`
}

// DisplayName returns the name, falling back to the phone number and id
func (c Contact) DisplayName() string {
	switch {
	case c.Name != "":
		return c.Name
	case c.Phone != "":
		return c.Phone
	}
	return c.ID
}

// Action is a command emitted by the engine to the Notifier
type Action struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Label       string     `json:"label,omitempty"`
	ContactID   string     `json:"contact_id"`
	Contact     Contact    `json:"contact"`
	Kind        ActionKind `json:"action"`
	Reason      string     `json:"reason"`
	MissedCount int        `json:"missed_count"`
	At          time.Time  `json:"at"`
}

// SessionConfig is loaded once at session creation and never mutated by the engine.
type SessionConfig struct {
	Mode  Mode   `json:"mode"`
	Label string `json:"label,omitempty"`

	// Interval is the quiet period before a check-in is due. Zero disables
	// the scheduled countdown (reflex-only sessions).
	Interval time.Duration `json:"interval"`

	// CheckInTimeout is the grace period spent in AwaitingAck.
	CheckInTimeout time.Duration `json:"checkin_timeout"`

	MessageThreshold int `json:"message_threshold"`
	CallThreshold    int `json:"call_threshold"`

	// Refractory is the minimum spacing between accepted reflex triggers.
	Refractory time.Duration `json:"refractory"`

	Contacts []Contact `json:"contacts"`
}

// Default timings
const (
	DefaultCheckInInterval  = 15 * time.Minute
	DefaultCheckInTimeout   = 30 * time.Second
	DefaultReflexTimeout    = 10 * time.Second
	DefaultRefractory       = 5 * time.Second
	DefaultMessageThreshold = 1
	DefaultCallThreshold    = 3
)

// WithDefaults fills zero fields with the per-mode defaults.
// A reflex-mode session keeps Interval zero unless one is given.
func (c SessionConfig) WithDefaults() SessionConfig {
	if c.Mode == ModeCheckIn && c.Interval == 0 {
		c.Interval = DefaultCheckInInterval
	}
	if c.CheckInTimeout == 0 {
		if c.Mode.IsReflex() {
			c.CheckInTimeout = DefaultReflexTimeout
		} else {
			c.CheckInTimeout = DefaultCheckInTimeout
		}
	}
	if c.MessageThreshold == 0 {
		c.MessageThreshold = DefaultMessageThreshold
	}
	if c.CallThreshold == 0 {
		c.CallThreshold = DefaultCallThreshold
	}
	if c.Refractory == 0 {
		c.Refractory = DefaultRefractory
	}
	return c
}

// Validate checks the configuration after defaults have been applied.
func (c SessionConfig) Validate() error {
	if !c.Mode.IsValid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	if c.Interval < 0 {
		return fmt.Errorf("%w: interval must not be negative", ErrInvalidConfig)
	}
	if c.Mode == ModeCheckIn && c.Interval == 0 {
		return fmt.Errorf("%w: checkin mode requires an interval", ErrInvalidConfig)
	}
	if c.CheckInTimeout <= 0 {
		return fmt.Errorf("%w: checkin timeout must be positive", ErrInvalidConfig)
	}
	if c.MessageThreshold < 1 {
		return fmt.Errorf("%w: message threshold must be at least 1", ErrInvalidConfig)
	}
	if c.CallThreshold < 1 {
		return fmt.Errorf("%w: call threshold must be at least 1", ErrInvalidConfig)
	}
	if c.Refractory < 0 {
		return fmt.Errorf("%w: refractory window must not be negative", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(c.Contacts))
	for i, ct := range c.Contacts {
		if ct.ID == "" {
			return fmt.Errorf("%w: contact %d has no id", ErrInvalidConfig, i)
		}
		if seen[ct.ID] {
			return fmt.Errorf("%w: duplicate contact id %q", ErrInvalidConfig, ct.ID)
		}
		seen[ct.ID] = true
		if ct.Priority < 0 {
			return fmt.Errorf("%w: contact %q has negative priority", ErrInvalidConfig, ct.ID)
		}
	}
	return nil
}

// Snapshot is a point-in-time copy of a session's state
type Snapshot struct {
	ID          string        `json:"id"`
	Config      SessionConfig `json:"config"`
	Tier        Tier          `json:"tier"`
	MissedCount int           `json:"missed_count"`
	Epoch       uint64        `json:"epoch"`

	// Reflex is set while AwaitingAck was entered (or upgraded) by a sensor trigger
	Reflex bool `json:"reflex,omitempty"`

	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	LastAcknowledgedAt *time.Time `json:"last_acknowledged_at,omitempty"`

	// Deadline is when the pending countdown fires; nil when none runs
	Deadline *time.Time `json:"deadline,omitempty"`
}

// Remaining returns the time left on the pending countdown relative to now
func (s Snapshot) Remaining(now time.Time) time.Duration {
	if s.Deadline == nil {
		return 0
	}
	if d := s.Deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Transition is the payload of session.tier_changed events
type Transition struct {
	From    Tier     `json:"from"`
	To      Tier     `json:"to"`
	Reason  string   `json:"reason"`
	Session Snapshot `json:"session"`
}

// TriggerOutcome is the payload of trigger.accepted and trigger.dropped events
type TriggerOutcome struct {
	Trigger   TriggerEvent `json:"trigger"`
	Reason    string       `json:"reason,omitempty"`
	Collapsed bool         `json:"collapsed,omitempty"`
}

// Trigger drop reasons
const (
	DropMalformed  = "malformed"
	DropUnknown    = "unknown_kind"
	DropRefractory = "refractory"
	DropEscalating = "escalating"
)
