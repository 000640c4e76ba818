package events

import (
	"fmt"
	"strings"
	"time"
)

// Event represents a single occurrence in a safety session's lifecycle
type Event struct {
	// Time is when the event occurred (set by bus on emit if zero)
	Time time.Time `json:"time"`

	// Type identifies what happened
	Type EventType `json:"type"`

	// Session is the session ID this event relates to (empty for daemon events)
	Session string `json:"session,omitempty"`

	// Mode is the session mode (checkin, shake_watch, voice_watch)
	Mode string `json:"mode,omitempty"`

	// Tier is the session tier after the event was applied
	Tier string `json:"tier,omitempty"`

	// Payload contains event-specific data (type varies by event)
	Payload any `json:"payload,omitempty"`

	// Error contains error message if this is a failure event
	Error string `json:"error,omitempty"`
}

// EventType is a string constant identifying the event category
type EventType string

// Session lifecycle events
const (
	SessionCreated     EventType = "session.created"
	SessionWarning     EventType = "session.warning"
	SessionTierChanged EventType = "session.tier_changed"
	SessionResolved    EventType = "session.resolved"
	SessionCancelled   EventType = "session.cancelled"
)

// Trigger events. Payload: kind, magnitude, reason (dropped only)
const (
	TriggerAccepted EventType = "trigger.accepted"
	TriggerDropped  EventType = "trigger.dropped"
)

// Escalation action events
const (
	// ActionEmitted is published synchronously when the engine decides on an action.
	ActionEmitted EventType = "action.emitted"

	// ActionDelivered is published after the notifier accepted the action.
	ActionDelivered EventType = "action.delivered"

	// ActionFailed is published when the notifier reported a failure.
	ActionFailed EventType = "action.failed"
)

// Daemon events
const (
	DaemonStarted        EventType = "daemon.started"
	DaemonConfigReloaded EventType = "daemon.config_reloaded"
)

// NewEvent creates an event with the given type and session
func NewEvent(eventType EventType, session string) Event {
	return Event{
		Type:    eventType,
		Session: session,
	}
}

// WithMode returns a copy of the event with the session mode set
func (e Event) WithMode(mode string) Event {
	e.Mode = mode
	return e
}

// WithTier returns a copy of the event with the tier set
func (e Event) WithTier(tier string) Event {
	e.Tier = tier
	return e
}

// WithPayload returns a copy of the event with the payload set
func (e Event) WithPayload(payload any) Event {
	e.Payload = payload
	return e
}

// WithError returns a copy of the event with the error message set
func (e Event) WithError(err error) Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// IsFailure returns true if this is a failure event type
func (e Event) IsFailure() bool {
	return strings.HasSuffix(string(e.Type), ".failed")
}

// String returns a human-readable representation of the event
func (e Event) String() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Type))

	if e.Session != "" {
		parts = append(parts, e.Session)
	}

	if e.Mode != "" {
		parts = append(parts, "mode="+e.Mode)
	}

	if e.Tier != "" {
		parts = append(parts, "tier="+e.Tier)
	}

	if e.Error != "" {
		parts = append(parts, fmt.Sprintf("error=%q", e.Error))
	}

	return strings.Join(parts, " ")
}
