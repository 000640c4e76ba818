package escalation

// Tier represents the escalation state of a session
type Tier string

const (
	TierArmed       Tier = "armed"
	TierAwaitingAck Tier = "awaiting_ack"
	TierEscalating  Tier = "escalating"
	TierResolved    Tier = "resolved"  // Terminal: user confirmed safe
	TierCancelled   Tier = "cancelled" // Terminal: monitoring stopped
)

// ValidTransitions defines allowed tier transitions.
// Flow: armed -> awaiting_ack -> {armed (ack'd) | escalating} -> {armed (ack'd) | resolved}
// Escalating is only ever entered from awaiting_ack.
var ValidTransitions = map[Tier][]Tier{
	TierArmed:       {TierArmed, TierAwaitingAck, TierResolved, TierCancelled},
	TierAwaitingAck: {TierArmed, TierAwaitingAck, TierEscalating, TierResolved, TierCancelled},
	TierEscalating:  {TierArmed, TierResolved, TierCancelled},
	TierResolved:    {},
	TierCancelled:   {},
}

// IsTerminal returns true if the tier is a final state
func (t Tier) IsTerminal() bool {
	return t == TierResolved || t == TierCancelled
}

// IsValid returns true if t is one of the known tiers
func (t Tier) IsValid() bool {
	_, ok := ValidTransitions[t]
	return ok
}

// CanTransition checks if a transition from -> to is valid
func CanTransition(from, to Tier) bool {
	validTargets, exists := ValidTransitions[from]
	if !exists {
		return false
	}
	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}
