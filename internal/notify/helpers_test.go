package notify

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/RevCBH/siren/internal/escalation"
)

type mockNotifier struct {
	name  string
	err   error
	calls int32
}

func (m *mockNotifier) Send(ctx context.Context, a escalation.Action) error {
	atomic.AddInt32(&m.calls, 1)
	return m.err
}

func (m *mockNotifier) Name() string {
	return m.name
}

func callAction() escalation.Action {
	return escalation.Action{
		ID:          "act-1",
		SessionID:   "01HXSESSION",
		Label:       "walk home",
		ContactID:   "mom",
		Contact:     escalation.Contact{ID: "mom", Name: "Mom", Phone: "+15550001", Priority: 1},
		Kind:        escalation.ActionCall,
		Reason:      escalation.ReasonEscalation,
		MissedCount: 3,
		At:          time.Date(2026, 4, 5, 22, 0, 0, 0, time.UTC),
	}
}

func messageAction() escalation.Action {
	a := callAction()
	a.ID = "act-2"
	a.ContactID = "dad"
	a.Contact = escalation.Contact{ID: "dad", Name: "Dad", Phone: "+15550002", Priority: 2}
	a.Kind = escalation.ActionMessage
	a.Reason = escalation.ReasonMissedCheckIn
	a.MissedCount = 1
	return a
}

var _ escalation.Notifier = Notifier(nil)
