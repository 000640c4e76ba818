package escalation

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/RevCBH/siren/internal/events"
)

// fakeClock is the subset of clockwork's fake clock the tests drive
type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

type recordingNotifier struct {
	mu      sync.Mutex
	actions []Action
	err     error
}

func (n *recordingNotifier) Send(ctx context.Context, a Action) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.actions = append(n.actions, a)
	return n.err
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Actions() []Action {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Action(nil), n.actions...)
}

type collector struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *collector) handle(e events.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *collector) ofType(typ events.EventType) []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Event
	for _, e := range c.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	engine   *Engine
	clock    fakeClock
	notifier *recordingNotifier
	bus      *events.Bus
	events   *collector
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := clockwork.NewFakeClock()
	bus := events.NewBus(1024)
	col := &collector{}
	bus.Subscribe(col.handle)
	n := &recordingNotifier{}

	h := &harness{
		engine:   New(EngineConfig{Clock: clock, Notifier: n, Bus: bus, Logger: quietLogger()}),
		clock:    clock,
		notifier: n,
		bus:      bus,
		events:   col,
	}
	t.Cleanup(h.shutdown)
	return h
}

// shutdown drains queued actions and events; safe to call twice
func (h *harness) shutdown() {
	h.engine.Close()
	h.bus.Close()
}

func (h *harness) waitSnapshot(t *testing.T, id string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		s, err := h.engine.Session(id)
		if err != nil {
			return false
		}
		snap = s
		return cond(s)
	}, 2*time.Second, time.Millisecond, "session %s never reached expected state (last: tier=%s missed=%d)", id, snap.Tier, snap.MissedCount)
	return snap
}

func (h *harness) waitTier(t *testing.T, id string, tier Tier) Snapshot {
	t.Helper()
	return h.waitSnapshot(t, id, func(s Snapshot) bool { return s.Tier == tier })
}

func (h *harness) waitActions(t *testing.T, n int) []Action {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(h.notifier.Actions()) >= n
	}, 2*time.Second, time.Millisecond, "expected %d delivered actions", n)
	return h.notifier.Actions()
}

// miss lets one scheduled check-in go unanswered: interval then grace
func (h *harness) miss(t *testing.T, id string, interval, grace time.Duration) {
	t.Helper()
	h.waitTier(t, id, TierArmed)
	h.clock.Advance(interval)
	h.waitTier(t, id, TierAwaitingAck)
	h.clock.Advance(grace)
}

func family() []Contact {
	return []Contact{
		{ID: "mom", Name: "Mom", Phone: "+15550001", Priority: 1},
		{ID: "dad", Name: "Dad", Phone: "+15550002", Priority: 2},
		{ID: "sarah", Name: "Sarah", Phone: "+15550003", Priority: 3},
	}
}

var errBackendDown = errors.New("backend down")
