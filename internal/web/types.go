package web

import (
	"context"
	"encoding/json"
	"time"

	"github.com/RevCBH/siren/internal/escalation"
	"github.com/RevCBH/siren/internal/events"
	"github.com/RevCBH/siren/internal/store"
)

// Config holds web server settings
type Config struct {
	// Addr is the HTTP listen address (default: :8787)
	Addr string
}

// Backend is the session service the HTTP API drives
type Backend interface {
	CreateSession(ctx context.Context, req escalation.SessionConfig) (escalation.Snapshot, []string, error)
	Acknowledge(id string) (escalation.Snapshot, error)
	Trigger(id string, kind escalation.TriggerKind, value float64) (escalation.Snapshot, error)
	Complete(id string) (escalation.Snapshot, error)
	Cancel(id string) (escalation.Snapshot, error)
	Session(id string) (escalation.Snapshot, error)
	Sessions(activeOnly bool) ([]escalation.Snapshot, error)
	History(id string, since int) ([]*store.EventRecord, error)

	Motion(id string, x, y, z float64) (bool, error)
	Magnitude(id string, magnitude float64) (bool, error)
	Transcript(id, text string, confidence float64) (bool, error)

	Subscribe(h events.Handler) func()
}

// CreateSessionBody is the POST /api/sessions request. Durations are Go
// duration strings; empty fields take configured defaults.
type CreateSessionBody struct {
	Mode             string               `json:"mode"`
	Label            string               `json:"label,omitempty"`
	Interval         string               `json:"interval,omitempty"`
	Timeout          string               `json:"timeout,omitempty"`
	MessageThreshold int                  `json:"message_threshold,omitempty"`
	CallThreshold    int                  `json:"call_threshold,omitempty"`
	Contacts         []escalation.Contact `json:"contacts,omitempty"`
}

// CreateSessionReply is the POST /api/sessions response
type CreateSessionReply struct {
	Session  escalation.Snapshot `json:"session"`
	Warnings []string            `json:"warnings,omitempty"`
}

// TriggerBody is the POST /api/sessions/{id}/trigger request
type TriggerBody struct {
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
}

// HistoryEvent is one stored event returned by GET /api/sessions/{id}/events
type HistoryEvent struct {
	Sequence int             `json:"sequence"`
	Type     string          `json:"type"`
	Tier     string          `json:"tier,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Error    string          `json:"error,omitempty"`
	Time     time.Time       `json:"time"`
}

// SensorFrame is a message on the sensor WebSocket.
// Type is one of motion, magnitude, transcript or ack.
type SensorFrame struct {
	Type       string  `json:"type"`
	X          float64 `json:"x,omitempty"`
	Y          float64 `json:"y,omitempty"`
	Z          float64 `json:"z,omitempty"`
	Value      float64 `json:"value,omitempty"`
	Text       string  `json:"text,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// SensorReply answers every SensorFrame
type SensorReply struct {
	Type      string `json:"type"`
	Triggered bool   `json:"triggered"`
	Tier      string `json:"tier,omitempty"`
	Error     string `json:"error,omitempty"`
}

// errorBody is the JSON error envelope
type errorBody struct {
	Error string `json:"error"`
}
