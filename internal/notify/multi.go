package notify

import (
	"context"
	"sync"

	"github.com/RevCBH/siren/internal/escalation"
)

// Multi wraps multiple notifiers and fans out to all of them
type Multi struct {
	notifiers []Notifier
}

// NewMulti creates a Multi notifier that sends to all provided backends
func NewMulti(notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

// Send delivers the action to all backends concurrently.
// Returns the first error encountered, but continues sending to all backends.
func (m *Multi) Send(ctx context.Context, a escalation.Action) error {
	if len(m.notifiers) == 0 {
		return nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for _, n := range m.notifiers {
		wg.Add(1)
		go func(n Notifier) {
			defer wg.Done()
			if err := n.Send(ctx, a); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(n)
	}

	wg.Wait()
	return firstErr
}

// Name returns "multi"
func (m *Multi) Name() string {
	return "multi"
}
