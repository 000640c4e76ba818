package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/RevCBH/siren/internal/escalation"
)

// SessionRecord is the persisted form of a safety session
type SessionRecord struct {
	ID                 string
	Mode               escalation.Mode
	Label              string
	Tier               escalation.Tier
	MissedCount        int
	ConfigJSON         string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	LastAcknowledgedAt *time.Time
	EndedAt            *time.Time
}

// Config decodes the session configuration captured at creation
func (r *SessionRecord) Config() (escalation.SessionConfig, error) {
	var cfg escalation.SessionConfig
	if err := json.Unmarshal([]byte(r.ConfigJSON), &cfg); err != nil {
		return cfg, fmt.Errorf("decode config for session %s: %w", r.ID, err)
	}
	return cfg, nil
}

// EventRecord is one entry of a session's history
type EventRecord struct {
	ID          int64
	SessionID   string
	Sequence    int
	EventType   string
	Tier        *string
	PayloadJSON *string
	Error       *string
	CreatedAt   time.Time
}
