package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/RevCBH/siren/internal/config"
	"github.com/RevCBH/siren/internal/contacts"
	"github.com/RevCBH/siren/internal/escalation"
	"github.com/RevCBH/siren/internal/events"
	"github.com/RevCBH/siren/internal/store"
	"github.com/RevCBH/siren/internal/trigger"
)

// ErrUnsupportedInput is returned when sensor input reaches a session whose
// mode has no adapter for it (e.g. a transcript for a shake-watch session).
var ErrUnsupportedInput = escalation.ErrUnsupportedInput

// NoContactsWarning is reported when a session is created with nobody to notify
const NoContactsWarning = "no emergency contacts configured; escalation will notify nobody"

// Service is the application layer around the escalation engine. It applies
// configured defaults, resolves contacts, owns the trigger adapters of each
// session and answers history queries from the store.
type Service struct {
	engine *escalation.Engine
	bus    *events.Bus
	store  *store.Store
	clock  clockwork.Clock

	mu       sync.RWMutex
	cfg      *config.Config
	sources  []contacts.Source
	adapters map[string]*sessionAdapters

	unsubscribe func()
}

// sessionAdapters are the trigger sources bound to one session
type sessionAdapters struct {
	checkIn *trigger.CheckIn
	motion  *trigger.MotionDetector
	voice   *trigger.VoiceMatcher
}

// ServiceConfig holds Service dependencies. Store and Bus are optional.
type ServiceConfig struct {
	Config *config.Config
	Engine *escalation.Engine
	Bus    *events.Bus
	Store  *store.Store
	Clock  clockwork.Clock
}

// NewService creates a service around an engine
func NewService(cfg ServiceConfig) *Service {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	s := &Service{
		engine:   cfg.Engine,
		bus:      cfg.Bus,
		store:    cfg.Store,
		clock:    cfg.Clock,
		adapters: make(map[string]*sessionAdapters),
	}
	s.SetConfig(cfg.Config)

	if s.bus != nil {
		s.unsubscribe = s.bus.Subscribe(events.FilterHandler(func(e events.Event) {
			s.mu.Lock()
			delete(s.adapters, e.Session)
			s.mu.Unlock()
		}, events.SessionResolved, events.SessionCancelled))
	}
	return s
}

// SetConfig swaps the configuration used for future sessions.
// Running sessions keep the settings they were created with.
func (s *Service) SetConfig(cfg *config.Config) {
	sources := []contacts.Source{contacts.Static(cfg.Contacts)}
	if cfg.ContactsBackend.URL != "" {
		timeout, _ := cfg.ContactsTimeoutDuration()
		sources = append(sources, contacts.NewHTTPSource(cfg.ContactsBackend.URL, cfg.ContactsBackend.Token, timeout))
	}
	if s.store != nil {
		sources = append(sources, contacts.StoreSource{Book: s.store})
	}

	s.mu.Lock()
	s.cfg = cfg
	s.sources = sources
	s.mu.Unlock()
}

// Config returns the configuration currently applied to new sessions
func (s *Service) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// CreateSession starts a session. Zero fields of req take the configured
// defaults for req.Mode; an empty contact list is resolved from the contact
// sources. The returned warnings are also published as session.warning.
func (s *Service) CreateSession(ctx context.Context, req escalation.SessionConfig) (escalation.Snapshot, []string, error) {
	if !req.Mode.IsValid() {
		return escalation.Snapshot{}, nil, fmt.Errorf("%w: unknown mode %q", escalation.ErrInvalidConfig, req.Mode)
	}

	s.mu.RLock()
	cfg := s.cfg
	sources := s.sources
	s.mu.RUnlock()

	sc, err := cfg.SessionConfig(req.Mode)
	if err != nil {
		return escalation.Snapshot{}, nil, err
	}
	sc.Label = req.Label
	if req.Interval != 0 {
		sc.Interval = req.Interval
	}
	if req.CheckInTimeout != 0 {
		sc.CheckInTimeout = req.CheckInTimeout
	}
	if req.Refractory != 0 {
		sc.Refractory = req.Refractory
	}
	if req.MessageThreshold != 0 {
		sc.MessageThreshold = req.MessageThreshold
	}
	if req.CallThreshold != 0 {
		sc.CallThreshold = req.CallThreshold
	}

	sc.Contacts = req.Contacts
	if len(sc.Contacts) == 0 {
		list, from, err := contacts.Resolve(ctx, sources...)
		if err != nil {
			log.Printf("WARN: resolve contacts: %v", err)
		} else if from != "" {
			log.Printf("Using %d contact(s) from %s", len(list), from)
		}
		sc.Contacts = list
	}

	if sc.Mode == escalation.ModeVoiceWatch {
		if err := trigger.CheckVoiceSettings(cfg.Voice.Phrase, cfg.Voice.Sensitivity); err != nil {
			return escalation.Snapshot{}, nil, fmt.Errorf("%w: %v", escalation.ErrInvalidConfig, err)
		}
	}

	id, err := s.engine.CreateSession(sc)
	if err != nil {
		return escalation.Snapshot{}, nil, err
	}

	ad := &sessionAdapters{checkIn: trigger.NewCheckIn(id, s.engine)}
	switch sc.Mode {
	case escalation.ModeShakeWatch:
		ad.motion = trigger.NewMotionDetector(id, s.engine, cfg.Shake.Sensitivity, cfg.Shake.Window)
	case escalation.ModeVoiceWatch:
		ad.voice, err = trigger.NewVoiceMatcher(id, s.engine, cfg.Voice.Phrase, cfg.Voice.Sensitivity)
		if err != nil {
			_ = s.engine.Cancel(id)
			return escalation.Snapshot{}, nil, err
		}
	}
	s.mu.Lock()
	s.adapters[id] = ad
	s.mu.Unlock()

	var warnings []string
	if len(sc.Contacts) == 0 {
		warnings = append(warnings, NoContactsWarning)
		log.Printf("WARN: session %s: %s", id, NoContactsWarning)
		if s.bus != nil {
			s.bus.Emit(events.NewEvent(events.SessionWarning, id).
				WithMode(string(sc.Mode)).
				WithPayload(map[string]string{"warning": NoContactsWarning}))
		}
	}

	snap, err := s.engine.Session(id)
	if err != nil {
		return escalation.Snapshot{}, nil, err
	}
	return snap, warnings, nil
}

// Acknowledge relays the user's "I'm safe" through the session's check-in adapter
func (s *Service) Acknowledge(id string) (escalation.Snapshot, error) {
	if ad := s.adaptersFor(id); ad != nil {
		if err := ad.checkIn.Confirm(); err != nil {
			return escalation.Snapshot{}, err
		}
	} else if err := s.engine.Acknowledge(id); err != nil {
		return escalation.Snapshot{}, err
	}
	return s.engine.Session(id)
}

// Trigger injects a raw trigger event stamped with the current time
func (s *Service) Trigger(id string, kind escalation.TriggerKind, value float64) (escalation.Snapshot, error) {
	ev := escalation.TriggerEvent{Kind: kind, At: s.clock.Now(), Value: value}
	if err := s.engine.OnTrigger(id, ev); err != nil {
		return escalation.Snapshot{}, err
	}
	return s.engine.Session(id)
}

// Motion feeds an accelerometer sample to a shake-watch session
func (s *Service) Motion(id string, x, y, z float64) (bool, error) {
	ad, err := s.sensor(id)
	if err != nil {
		return false, err
	}
	if ad.motion == nil {
		return false, fmt.Errorf("session %s: motion: %w", id, ErrUnsupportedInput)
	}
	return ad.motion.Sample(x, y, z, s.clock.Now())
}

// Magnitude feeds a precomputed acceleration magnitude to a shake-watch session
func (s *Service) Magnitude(id string, magnitude float64) (bool, error) {
	ad, err := s.sensor(id)
	if err != nil {
		return false, err
	}
	if ad.motion == nil {
		return false, fmt.Errorf("session %s: magnitude: %w", id, ErrUnsupportedInput)
	}
	return ad.motion.Observe(magnitude, s.clock.Now())
}

// Transcript feeds a speech recognition result to a voice-watch session
func (s *Service) Transcript(id, text string, confidence float64) (bool, error) {
	ad, err := s.sensor(id)
	if err != nil {
		return false, err
	}
	if ad.voice == nil {
		return false, fmt.Errorf("session %s: transcript: %w", id, ErrUnsupportedInput)
	}
	return ad.voice.Hear(text, confidence)
}

// Complete resolves a session
func (s *Service) Complete(id string) (escalation.Snapshot, error) {
	if err := s.engine.Complete(id); err != nil {
		return escalation.Snapshot{}, err
	}
	return s.engine.Session(id)
}

// Cancel cancels a session; cancelling a finished session is a no-op
func (s *Service) Cancel(id string) (escalation.Snapshot, error) {
	if err := s.engine.Cancel(id); err != nil {
		return escalation.Snapshot{}, err
	}
	return s.engine.Session(id)
}

// Session returns the live session, falling back to stored history for
// sessions the engine no longer tracks.
func (s *Service) Session(id string) (escalation.Snapshot, error) {
	snap, err := s.engine.Session(id)
	if err == nil || !errors.Is(err, escalation.ErrInvalidSession) || s.store == nil {
		return snap, err
	}

	rec, serr := s.store.GetSession(id)
	if serr != nil {
		return escalation.Snapshot{}, serr
	}
	if rec == nil {
		return escalation.Snapshot{}, err
	}
	return recordSnapshot(rec)
}

// Sessions lists sessions oldest first. Without activeOnly, stored sessions
// from earlier runs are included.
func (s *Service) Sessions(activeOnly bool) ([]escalation.Snapshot, error) {
	var out []escalation.Snapshot
	seen := make(map[string]bool)
	for _, snap := range s.engine.Sessions() {
		seen[snap.ID] = true
		if activeOnly && snap.Tier.IsTerminal() {
			continue
		}
		out = append(out, snap)
	}

	if !activeOnly && s.store != nil {
		records, err := s.store.ListSessions(false)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if seen[rec.ID] {
				continue
			}
			snap, err := recordSnapshot(rec)
			if err != nil {
				log.Printf("WARN: %v", err)
				continue
			}
			out = append(out, snap)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ActiveCount returns the number of non-terminal sessions
func (s *Service) ActiveCount() int {
	n := 0
	for _, snap := range s.engine.Sessions() {
		if !snap.Tier.IsTerminal() {
			n++
		}
	}
	return n
}

// History returns stored events of a session after sequence since
func (s *Service) History(id string, since int) ([]*store.EventRecord, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.ListEventsSince(id, since)
}

// Subscribe registers h for every published event
func (s *Service) Subscribe(h events.Handler) func() {
	if s.bus == nil {
		return func() {}
	}
	return s.bus.Subscribe(h)
}

// CancelAll cancels every live session and returns how many were active
func (s *Service) CancelAll() int {
	n := 0
	for _, snap := range s.engine.Sessions() {
		if snap.Tier.IsTerminal() {
			continue
		}
		if err := s.engine.Cancel(snap.ID); err == nil {
			n++
		}
	}
	return n
}

// Prune forgets finished sessions older than the configured retention in
// memory and in the database.
func (s *Service) Prune() {
	cfg := s.Config()
	now := s.clock.Now()

	if after, err := cfg.PruneAfterDuration(); err == nil {
		if n := s.engine.Prune(now.Add(-after)); n > 0 {
			log.Printf("Pruned %d finished session(s) from memory", n)
		}
	}

	if s.store == nil {
		return
	}
	if keep, err := cfg.HistoryRetentionDuration(); err == nil {
		n, err := s.store.DeleteSessionsBefore(now.Add(-keep))
		if err != nil {
			log.Printf("WARN: prune history: %v", err)
		} else if n > 0 {
			log.Printf("Pruned %d session(s) from history", n)
		}
	}
}

// RunPruner calls Prune every interval until ctx is cancelled
func (s *Service) RunPruner(ctx context.Context, every time.Duration) {
	ticker := s.clock.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Prune()
		}
	}
}

// Close detaches the service from the bus
func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Service) adaptersFor(id string) *sessionAdapters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adapters[id]
}

// sensor returns the adapters of a live session
func (s *Service) sensor(id string) (*sessionAdapters, error) {
	ad := s.adaptersFor(id)
	if ad == nil {
		return nil, fmt.Errorf("session %s: %w", id, escalation.ErrInvalidSession)
	}
	return ad, nil
}

// recordSnapshot rebuilds a snapshot from a stored session
func recordSnapshot(rec *store.SessionRecord) (escalation.Snapshot, error) {
	cfg, err := rec.Config()
	if err != nil {
		return escalation.Snapshot{}, err
	}
	return escalation.Snapshot{
		ID:                 rec.ID,
		Config:             cfg,
		Tier:               rec.Tier,
		MissedCount:        rec.MissedCount,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
		LastAcknowledgedAt: rec.LastAcknowledgedAt,
	}, nil
}
