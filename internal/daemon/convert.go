package daemon

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/RevCBH/siren/internal/escalation"
	"github.com/RevCBH/siren/internal/events"
	"github.com/RevCBH/siren/internal/store"
	apiv1 "github.com/RevCBH/siren/pkg/api/v1"
)

// snapshotToAPI converts an engine snapshot to the wire Session
func snapshotToAPI(s escalation.Snapshot) apiv1.Session {
	out := apiv1.Session{
		ID:               s.ID,
		Mode:             string(s.Config.Mode),
		Label:            s.Config.Label,
		Tier:             string(s.Tier),
		MissedCount:      s.MissedCount,
		Reflex:           s.Reflex,
		IntervalMs:       s.Config.Interval.Milliseconds(),
		TimeoutMs:        s.Config.CheckInTimeout.Milliseconds(),
		RefractoryMs:     s.Config.Refractory.Milliseconds(),
		MessageThreshold: s.Config.MessageThreshold,
		CallThreshold:    s.Config.CallThreshold,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
		LastAckAt:        s.LastAcknowledgedAt,
		Deadline:         s.Deadline,
	}
	for _, c := range s.Config.Contacts {
		out.Contacts = append(out.Contacts, contactToAPI(c))
	}
	return out
}

func contactToAPI(c escalation.Contact) apiv1.Contact {
	return apiv1.Contact{ID: c.ID, Name: c.Name, Phone: c.Phone, Priority: c.Priority}
}

func contactFromAPI(c apiv1.Contact) escalation.Contact {
	return escalation.Contact{ID: c.ID, Name: c.Name, Phone: c.Phone, Priority: c.Priority}
}

// createRequestFromAPI converts a CreateSession request to a session config
// whose zero fields the service fills from configuration.
func createRequestFromAPI(req *apiv1.CreateSessionRequest) (escalation.SessionConfig, error) {
	mode, err := escalation.ParseMode(req.Mode)
	if err != nil {
		return escalation.SessionConfig{}, fmt.Errorf("%w: %v", escalation.ErrInvalidConfig, err)
	}
	cfg := escalation.SessionConfig{
		Mode:             mode,
		Label:            req.Label,
		Interval:         time.Duration(req.IntervalMs) * time.Millisecond,
		CheckInTimeout:   time.Duration(req.TimeoutMs) * time.Millisecond,
		MessageThreshold: req.MessageThreshold,
		CallThreshold:    req.CallThreshold,
	}
	for _, c := range req.Contacts {
		cfg.Contacts = append(cfg.Contacts, contactFromAPI(c))
	}
	return cfg, nil
}

// eventToAPI converts a live bus event
func eventToAPI(e events.Event) *apiv1.Event {
	out := &apiv1.Event{
		Type:      string(e.Type),
		SessionID: e.Session,
		Mode:      e.Mode,
		Tier:      e.Tier,
		Error:     e.Error,
		Timestamp: e.Time,
	}
	if e.Payload != nil {
		if data, err := json.Marshal(e.Payload); err == nil {
			out.PayloadJSON = string(data)
		}
	}
	return out
}

// recordToAPI converts a stored event
func recordToAPI(r *store.EventRecord) *apiv1.Event {
	out := &apiv1.Event{
		Sequence:  r.Sequence,
		Type:      r.EventType,
		SessionID: r.SessionID,
		Timestamp: r.CreatedAt,
	}
	if r.Tier != nil {
		out.Tier = *r.Tier
	}
	if r.PayloadJSON != nil {
		out.PayloadJSON = *r.PayloadJSON
	}
	if r.Error != nil {
		out.Error = *r.Error
	}
	return out
}
