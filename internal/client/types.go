package client

import (
	"time"

	"github.com/RevCBH/siren/internal/escalation"
)

// SessionOptions contains parameters for starting a session.
// Zero values take the daemon's configured defaults.
type SessionOptions struct {
	Mode             escalation.Mode
	Label            string
	Interval         time.Duration
	Timeout          time.Duration
	MessageThreshold int
	CallThreshold    int
	Contacts         []escalation.Contact // Empty: daemon resolves contacts
}

// Session is the daemon's view of one session
type Session struct {
	ID               string
	Mode             escalation.Mode
	Label            string
	Tier             escalation.Tier
	MissedCount      int
	Reflex           bool
	Interval         time.Duration
	Timeout          time.Duration
	Refractory       time.Duration
	MessageThreshold int
	CallThreshold    int
	Contacts         []escalation.Contact
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastAckAt        *time.Time
	Deadline         *time.Time
}

// Remaining returns the time left on the session countdown
func (s *Session) Remaining(now time.Time) time.Duration {
	if s.Deadline == nil {
		return 0
	}
	if d := s.Deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Created is the result of StartSession
type Created struct {
	Session  *Session
	Warnings []string
}

// HealthInfo contains daemon health check response
type HealthInfo struct {
	Healthy        bool
	ActiveSessions int
	Version        string
	StartedAt      time.Time
}
