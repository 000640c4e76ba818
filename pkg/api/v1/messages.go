// Package apiv1 defines the daemon control API: message types, the
// siren.v1.Siren service descriptor and its client stub. Messages travel as
// JSON over gRPC.
package apiv1

import "time"

// Contact is an emergency contact
type Contact struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Priority int    `json:"priority"`
}

// Session is the externally visible state of a safety session
type Session struct {
	ID               string     `json:"id"`
	Mode             string     `json:"mode"`
	Label            string     `json:"label,omitempty"`
	Tier             string     `json:"tier"`
	MissedCount      int        `json:"missed_count"`
	Reflex           bool       `json:"reflex,omitempty"`
	IntervalMs       int64      `json:"interval_ms"`
	TimeoutMs        int64      `json:"timeout_ms"`
	RefractoryMs     int64      `json:"refractory_ms"`
	MessageThreshold int        `json:"message_threshold"`
	CallThreshold    int        `json:"call_threshold"`
	Contacts         []Contact  `json:"contacts,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastAckAt        *time.Time `json:"last_ack_at,omitempty"`
	Deadline         *time.Time `json:"deadline,omitempty"`
}

// CreateSessionRequest starts a session. Zero values take configured defaults;
// an empty contact list is resolved by the daemon.
type CreateSessionRequest struct {
	Mode             string    `json:"mode"`
	Label            string    `json:"label,omitempty"`
	IntervalMs       int64     `json:"interval_ms,omitempty"`
	TimeoutMs        int64     `json:"timeout_ms,omitempty"`
	MessageThreshold int       `json:"message_threshold,omitempty"`
	CallThreshold    int       `json:"call_threshold,omitempty"`
	Contacts         []Contact `json:"contacts,omitempty"`
}

type CreateSessionResponse struct {
	Session  Session  `json:"session"`
	Warnings []string `json:"warnings,omitempty"`
}

// SessionRequest addresses one session (Acknowledge, Complete, Cancel, GetSession)
type SessionRequest struct {
	SessionID string `json:"session_id"`
}

type SessionResponse struct {
	Session Session `json:"session"`
}

// TriggerRequest injects a trigger event
type TriggerRequest struct {
	SessionID string  `json:"session_id"`
	Kind      string  `json:"kind"`
	Value     float64 `json:"value"`
}

type ListSessionsRequest struct {
	ActiveOnly bool `json:"active_only"`
}

type ListSessionsResponse struct {
	Sessions []Session `json:"sessions"`
}

type ShutdownRequest struct{}

type ShutdownResponse struct {
	ActiveSessions int `json:"active_sessions"`
}

type HealthRequest struct{}

type HealthResponse struct {
	Healthy        bool      `json:"healthy"`
	Version        string    `json:"version"`
	ActiveSessions int       `json:"active_sessions"`
	StartedAt      time.Time `json:"started_at"`
}

// WatchRequest subscribes to events. An empty SessionID watches every
// session. With Replay set, stored history after FromSequence is sent first.
type WatchRequest struct {
	SessionID    string `json:"session_id,omitempty"`
	Replay       bool   `json:"replay,omitempty"`
	FromSequence int    `json:"from_sequence,omitempty"`
}

// Event is one streamed event. Sequence is set for replayed history only.
type Event struct {
	Sequence    int       `json:"sequence,omitempty"`
	Type        string    `json:"type"`
	SessionID   string    `json:"session_id"`
	Mode        string    `json:"mode,omitempty"`
	Tier        string    `json:"tier,omitempty"`
	PayloadJSON string    `json:"payload_json,omitempty"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
