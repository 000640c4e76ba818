package web

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/RevCBH/siren/internal/escalation"
	"github.com/RevCBH/siren/internal/events"
	"github.com/RevCBH/siren/internal/store"
)

var testTime = time.Date(2026, 3, 1, 21, 0, 0, 0, time.UTC)

// fakeBackend is an in-memory Backend. Motion frames with x > 20 trigger.
type fakeBackend struct {
	mu       sync.Mutex
	sessions map[string]escalation.Snapshot
	history  map[string][]*store.EventRecord
	handlers []events.Handler
	created  []escalation.SessionConfig
	triggers []escalation.TriggerKind
	warnings []string
	next     int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		sessions: make(map[string]escalation.Snapshot),
		history:  make(map[string][]*store.EventRecord),
	}
}

func (f *fakeBackend) add(mode escalation.Mode) escalation.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	snap := escalation.Snapshot{
		ID:        fmt.Sprintf("s%d", f.next),
		Config:    escalation.SessionConfig{Mode: mode},
		Tier:      escalation.TierArmed,
		CreatedAt: testTime,
		UpdatedAt: testTime,
	}
	f.sessions[snap.ID] = snap
	return snap
}

func (f *fakeBackend) CreateSession(ctx context.Context, req escalation.SessionConfig) (escalation.Snapshot, []string, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return escalation.Snapshot{}, nil, err
	}
	snap := f.add(req.Mode)
	f.mu.Lock()
	defer f.mu.Unlock()
	snap.Config = req
	f.sessions[snap.ID] = snap
	f.created = append(f.created, req)
	return snap, f.warnings, nil
}

func (f *fakeBackend) setTier(id string, tier escalation.Tier) (escalation.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.sessions[id]
	if !ok || snap.Tier.IsTerminal() {
		return escalation.Snapshot{}, escalation.ErrInvalidSession
	}
	snap.Tier = tier
	f.sessions[id] = snap
	return snap, nil
}

func (f *fakeBackend) Acknowledge(id string) (escalation.Snapshot, error) {
	return f.setTier(id, escalation.TierArmed)
}

func (f *fakeBackend) Trigger(id string, kind escalation.TriggerKind, value float64) (escalation.Snapshot, error) {
	f.mu.Lock()
	f.triggers = append(f.triggers, kind)
	f.mu.Unlock()
	return f.setTier(id, escalation.TierAwaitingAck)
}

func (f *fakeBackend) Complete(id string) (escalation.Snapshot, error) {
	return f.setTier(id, escalation.TierResolved)
}

func (f *fakeBackend) Cancel(id string) (escalation.Snapshot, error) {
	return f.setTier(id, escalation.TierCancelled)
}

func (f *fakeBackend) Session(id string) (escalation.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.sessions[id]
	if !ok {
		return escalation.Snapshot{}, escalation.ErrInvalidSession
	}
	return snap, nil
}

func (f *fakeBackend) Sessions(activeOnly bool) ([]escalation.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []escalation.Snapshot
	for i := 1; i <= f.next; i++ {
		snap, ok := f.sessions[fmt.Sprintf("s%d", i)]
		if !ok || (activeOnly && snap.Tier.IsTerminal()) {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

func (f *fakeBackend) History(id string, since int) ([]*store.EventRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.EventRecord
	for _, rec := range f.history[id] {
		if rec.Sequence > since {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeBackend) Motion(id string, x, y, z float64) (bool, error) {
	snap, err := f.Session(id)
	if err != nil {
		return false, err
	}
	if snap.Config.Mode != escalation.ModeShakeWatch {
		return false, fmt.Errorf("session %s: motion: %w", id, escalation.ErrUnsupportedInput)
	}
	if x <= 20 {
		return false, nil
	}
	_, err = f.setTier(id, escalation.TierAwaitingAck)
	return err == nil, err
}

func (f *fakeBackend) Magnitude(id string, magnitude float64) (bool, error) {
	return f.Motion(id, magnitude, 0, 0)
}

func (f *fakeBackend) Transcript(id, text string, confidence float64) (bool, error) {
	return false, fmt.Errorf("session %s: transcript: %w", id, escalation.ErrUnsupportedInput)
}

func (f *fakeBackend) Subscribe(h events.Handler) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, h)
	idx := len(f.handlers) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.handlers[idx] = nil
	}
}

func (f *fakeBackend) emit(e events.Event) {
	f.mu.Lock()
	hs := append([]events.Handler(nil), f.handlers...)
	f.mu.Unlock()
	for _, h := range hs {
		if h != nil {
			h(e)
		}
	}
}

func (f *fakeBackend) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, h := range f.handlers {
		if h != nil {
			n++
		}
	}
	return n
}
