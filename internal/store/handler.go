package store

import (
	"log"

	"github.com/RevCBH/siren/internal/escalation"
	"github.com/RevCBH/siren/internal/events"
)

// Handler returns a bus handler that persists session state and appends
// every session-scoped event to the history. Write failures are logged;
// persistence never feeds back into the engine.
func Handler(s *Store) events.Handler {
	return func(e events.Event) {
		if e.Session == "" {
			return
		}

		var err error
		switch e.Type {
		case events.SessionCreated:
			if snap, ok := e.Payload.(escalation.Snapshot); ok {
				err = s.CreateSession(snap)
			}
		case events.SessionTierChanged:
			if tr, ok := e.Payload.(escalation.Transition); ok {
				err = s.UpdateSessionState(tr.Session)
			}
		case events.SessionResolved, events.SessionCancelled:
			if snap, ok := e.Payload.(escalation.Snapshot); ok {
				err = s.UpdateSessionState(snap)
			}
		}
		if err != nil {
			log.Printf("WARN: store: %s for %s: %v", e.Type, e.Session, err)
			return
		}

		if err := s.AppendEvent(e.Session, string(e.Type), e.Tier, e.Payload, e.Error, e.Time); err != nil {
			log.Printf("WARN: store: append %s for %s: %v", e.Type, e.Session, err)
		}
	}
}
