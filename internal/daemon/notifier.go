package daemon

import (
	"context"
	"sync"

	"github.com/RevCBH/siren/internal/escalation"
)

// swappableNotifier lets a config reload replace notifier backends while the
// engine keeps a single Notifier for its lifetime.
type swappableNotifier struct {
	mu    sync.RWMutex
	inner escalation.Notifier
}

func newSwappableNotifier(n escalation.Notifier) *swappableNotifier {
	return &swappableNotifier{inner: n}
}

func (s *swappableNotifier) Send(ctx context.Context, a escalation.Action) error {
	return s.current().Send(ctx, a)
}

func (s *swappableNotifier) Name() string {
	return s.current().Name()
}

// Swap installs n for all future deliveries
func (s *swappableNotifier) Swap(n escalation.Notifier) {
	s.mu.Lock()
	s.inner = n
	s.mu.Unlock()
}

func (s *swappableNotifier) current() escalation.Notifier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inner
}
