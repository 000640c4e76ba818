package client

import (
	"encoding/json"
	"time"

	"github.com/RevCBH/siren/internal/escalation"
	"github.com/RevCBH/siren/internal/events"
	apiv1 "github.com/RevCBH/siren/pkg/api/v1"
)

// optionsToRequest converts SessionOptions to a CreateSession request
func optionsToRequest(opts SessionOptions) *apiv1.CreateSessionRequest {
	req := &apiv1.CreateSessionRequest{
		Mode:             string(opts.Mode),
		Label:            opts.Label,
		IntervalMs:       opts.Interval.Milliseconds(),
		TimeoutMs:        opts.Timeout.Milliseconds(),
		MessageThreshold: opts.MessageThreshold,
		CallThreshold:    opts.CallThreshold,
	}
	for _, c := range opts.Contacts {
		req.Contacts = append(req.Contacts, apiv1.Contact{ID: c.ID, Name: c.Name, Phone: c.Phone, Priority: c.Priority})
	}
	return req
}

// apiToSession converts a wire session to the client type
func apiToSession(s apiv1.Session) *Session {
	out := &Session{
		ID:               s.ID,
		Mode:             escalation.Mode(s.Mode),
		Label:            s.Label,
		Tier:             escalation.Tier(s.Tier),
		MissedCount:      s.MissedCount,
		Reflex:           s.Reflex,
		Interval:         time.Duration(s.IntervalMs) * time.Millisecond,
		Timeout:          time.Duration(s.TimeoutMs) * time.Millisecond,
		Refractory:       time.Duration(s.RefractoryMs) * time.Millisecond,
		MessageThreshold: s.MessageThreshold,
		CallThreshold:    s.CallThreshold,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
		LastAckAt:        s.LastAckAt,
		Deadline:         s.Deadline,
	}
	for _, c := range s.Contacts {
		out.Contacts = append(out.Contacts, escalation.Contact{ID: c.ID, Name: c.Name, Phone: c.Phone, Priority: c.Priority})
	}
	return out
}

// apiToSessions converts a slice of wire sessions
func apiToSessions(list []apiv1.Session) []*Session {
	result := make([]*Session, len(list))
	for i, s := range list {
		result[i] = apiToSession(s)
	}
	return result
}

// apiToEvent converts a streamed event back into a bus event.
// The JSON payload is decoded into a generic map.
func apiToEvent(e *apiv1.Event) events.Event {
	out := events.Event{
		Time:    e.Timestamp,
		Type:    events.EventType(e.Type),
		Session: e.SessionID,
		Mode:    e.Mode,
		Tier:    e.Tier,
		Error:   e.Error,
	}
	if e.PayloadJSON != "" {
		var payload map[string]any
		if err := json.Unmarshal([]byte(e.PayloadJSON), &payload); err == nil {
			out.Payload = payload
		} else {
			out.Payload = e.PayloadJSON
		}
	}
	return out
}

// apiToHealthInfo converts HealthResponse to client HealthInfo
func apiToHealthInfo(resp *apiv1.HealthResponse) *HealthInfo {
	return &HealthInfo{
		Healthy:        resp.Healthy,
		ActiveSessions: resp.ActiveSessions,
		Version:        resp.Version,
		StartedAt:      resp.StartedAt,
	}
}
