package escalation

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Outcome is the tier policy's verdict for an unacknowledged scheduled expiry
type Outcome int

const (
	// OutcomeRearm returns to Armed without notifying anyone
	OutcomeRearm Outcome = iota
	// OutcomeMessage messages every contact and returns to Armed
	OutcomeMessage
	// OutcomeEscalate enters Escalating
	OutcomeEscalate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMessage:
		return "message"
	case OutcomeEscalate:
		return "escalate"
	}
	return "rearm"
}

// Policy classifies missed check-in counts against the two thresholds
type Policy struct {
	MessageThreshold int
	CallThreshold    int
}

// PolicyFor returns the policy configured for a session
func PolicyFor(cfg SessionConfig) Policy {
	return Policy{MessageThreshold: cfg.MessageThreshold, CallThreshold: cfg.CallThreshold}
}

// Classify returns the outcome for the given missed count
func (p Policy) Classify(missed int) Outcome {
	switch {
	case missed >= p.CallThreshold:
		return OutcomeEscalate
	case missed >= p.MessageThreshold:
		return OutcomeMessage
	}
	return OutcomeRearm
}

// byPriority returns contacts ordered by priority, unset (0) last.
// Equal priorities keep their list order.
func byPriority(contacts []Contact) []Contact {
	out := make([]Contact, len(contacts))
	copy(out, contacts)
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i]) < rank(out[j])
	})
	return out
}

func rank(c Contact) int {
	if c.Priority <= 0 {
		return int(^uint(0) >> 1)
	}
	return c.Priority
}

// messageRound builds one Message action per contact
func messageRound(s Snapshot, reason string, at time.Time) []Action {
	actions := make([]Action, 0, len(s.Config.Contacts))
	for _, c := range s.Config.Contacts {
		actions = append(actions, newAction(s, c, ActionMessage, reason, at))
	}
	return actions
}

// escalationRound builds a Call for the most urgent contact followed by a
// Message for every other contact. Contacts are already priority-ordered.
func escalationRound(s Snapshot, at time.Time) []Action {
	contacts := s.Config.Contacts
	if len(contacts) == 0 {
		return nil
	}
	actions := make([]Action, 0, len(contacts))
	actions = append(actions, newAction(s, contacts[0], ActionCall, ReasonEscalation, at))
	for _, c := range contacts[1:] {
		actions = append(actions, newAction(s, c, ActionMessage, ReasonEscalation, at))
	}
	return actions
}

func newAction(s Snapshot, c Contact, kind ActionKind, reason string, at time.Time) Action {
	return Action{
		ID:          uuid.NewString(),
		SessionID:   s.ID,
		Label:       s.Config.Label,
		ContactID:   c.ID,
		Contact:     c,
		Kind:        kind,
		Reason:      reason,
		MissedCount: s.MissedCount,
		At:          at,
	}
}
