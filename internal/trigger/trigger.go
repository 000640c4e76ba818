// Package trigger adapts sensor input and user actions into escalation
// engine calls. Adapters never touch session state directly; they only hold
// a session id and a Sink.
package trigger

import (
	"github.com/RevCBH/siren/internal/escalation"
)

// Sink receives trigger events and acknowledgements.
// *escalation.Engine satisfies it.
type Sink interface {
	OnTrigger(sessionID string, ev escalation.TriggerEvent) error
	Acknowledge(sessionID string) error
}

// Adapter is implemented by every trigger source
type Adapter interface {
	// Session returns the session id the adapter feeds
	Session() string

	// Kind returns the trigger kind the adapter produces
	Kind() escalation.TriggerKind
}

// CheckIn relays the user's explicit "I'm safe" into the engine. The
// countdown itself belongs to the engine; this adapter synthesizes nothing.
type CheckIn struct {
	session string
	sink    Sink
}

// NewCheckIn creates a check-in relay for a session
func NewCheckIn(sessionID string, sink Sink) *CheckIn {
	return &CheckIn{session: sessionID, sink: sink}
}

// Confirm acknowledges the session
func (c *CheckIn) Confirm() error {
	return c.sink.Acknowledge(c.session)
}

func (c *CheckIn) Session() string { return c.session }

func (c *CheckIn) Kind() escalation.TriggerKind { return escalation.TriggerManual }
