package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/RevCBH/siren/internal/escalation"
)

// Notifier delivers escalation actions to contacts.
// Every backend in this package satisfies escalation.Notifier.
type Notifier interface {
	// Send delivers one action. Returns nil if the backend accepted it.
	// Implementations should respect context cancellation.
	Send(ctx context.Context, a escalation.Action) error

	// Name returns the backend type for logging
	Name() string
}

// Render returns the human-readable text for an action
func Render(a escalation.Action) string {
	subject := "a Siren session"
	if a.Label != "" {
		subject = fmt.Sprintf("Siren session %q", a.Label)
	}

	switch {
	case a.Kind == escalation.ActionCall:
		return fmt.Sprintf("This is an emergency call from Siren. %s has escalated after %s with no response. Please try to reach them immediately.",
			capitalize(subject), missed(a.MissedCount))
	case a.Reason == escalation.ReasonEscalation:
		return fmt.Sprintf("EMERGENCY: %s escalated after %s. The primary contact is being called. Please try to reach them now.",
			subject, missed(a.MissedCount))
	}
	return fmt.Sprintf("Siren alert: %s missed a check-in (%s so far). Please check on them.",
		subject, missed(a.MissedCount))
}

// Title returns a one-line summary for an action
func Title(a escalation.Action) string {
	if a.Kind == escalation.ActionCall {
		return fmt.Sprintf("Calling %s", a.Contact.DisplayName())
	}
	return fmt.Sprintf("Messaging %s", a.Contact.DisplayName())
}

func missed(n int) string {
	if n == 1 {
		return "1 missed check-in"
	}
	return fmt.Sprintf("%d missed check-ins", n)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
