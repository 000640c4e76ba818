package escalation

import (
	"context"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"

	"github.com/RevCBH/siren/internal/events"
)

// Notifier delivers escalation actions. The engine calls it from a single
// dispatch goroutine and never waits on it from the state machine.
type Notifier interface {
	Send(ctx context.Context, a Action) error
	Name() string
}

// EngineConfig holds engine dependencies
type EngineConfig struct {
	// Clock drives countdowns (default: real clock)
	Clock clockwork.Clock

	// Notifier receives emitted actions; nil disables delivery
	Notifier Notifier

	// Bus receives lifecycle, trigger and action events; nil disables publishing
	Bus *events.Bus

	// Logger for warnings (default: log.Default())
	Logger *log.Logger

	// DispatchBuffer is the initial capacity of the action queue
	DispatchBuffer int

	// SendTimeout bounds a single Notifier.Send call (default: 30s)
	SendTimeout time.Duration
}

type entryCause int

const (
	causeScheduled entryCause = iota
	causeReflex
)

// session is owned by the engine; every field is guarded by mu
type session struct {
	mu sync.Mutex

	id     string
	cfg    SessionConfig
	policy Policy

	tier   Tier
	missed int
	cause  entryCause

	epoch    uint64
	timer    clockwork.Timer
	deadline time.Time

	lastReflex time.Time
	createdAt  time.Time
	updatedAt  time.Time
	lastAck    time.Time
}

// Engine runs one escalation state machine per safety session
type Engine struct {
	clock       clockwork.Clock
	notifier    Notifier
	bus         *events.Bus
	logger      *log.Logger
	sendTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*session
	closed   atomic.Bool

	queue     *actionQueue
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// New creates an engine and starts its dispatch goroutine
func New(cfg EngineConfig) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	if cfg.DispatchBuffer <= 0 {
		cfg.DispatchBuffer = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		clock:       cfg.Clock,
		notifier:    cfg.Notifier,
		bus:         cfg.Bus,
		logger:      cfg.Logger,
		sendTimeout: cfg.SendTimeout,
		sessions:    make(map[string]*session),
		queue:       newActionQueue(cfg.DispatchBuffer),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go e.dispatchLoop()
	return e
}

// CreateSession validates cfg, applies per-mode defaults and starts the
// session in Armed with its interval countdown running.
func (e *Engine) CreateSession(cfg SessionConfig) (string, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	cfg.Contacts = byPriority(cfg.Contacts)

	now := e.clock.Now()
	s := &session{
		id:        ulid.Make().String(),
		cfg:       cfg,
		policy:    PolicyFor(cfg),
		tier:      TierArmed,
		createdAt: now,
		updatedAt: now,
	}

	e.mu.Lock()
	if e.closed.Load() {
		e.mu.Unlock()
		return "", ErrEngineClosed
	}
	e.sessions[s.id] = s
	e.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	e.arm(s, cfg.Interval)
	e.publish(s, events.SessionCreated, s.snapshot())
	return s.id, nil
}

// Acknowledge records the user's "I'm safe". From AwaitingAck or Escalating
// the session returns to Armed; from Armed the countdown restarts. The missed
// count always resets to zero.
func (e *Engine) Acknowledge(id string) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if s.tier.IsTerminal() {
		return ErrInvalidSession
	}
	e.acknowledgeLocked(s, "acknowledged")
	return nil
}

func (e *Engine) acknowledgeLocked(s *session, reason string) {
	now := e.clock.Now()
	s.missed = 0
	s.cause = causeScheduled
	s.lastAck = now
	e.arm(s, s.cfg.Interval)
	e.transition(s, TierArmed, reason)
}

// OnTrigger feeds a trigger event into the session. Manual events act as an
// acknowledgement. Motion and Voice events force AwaitingAck, collapsing
// repeats inside the refractory window. Malformed values are dropped.
func (e *Engine) OnTrigger(id string, ev TriggerEvent) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if s.tier.IsTerminal() {
		return ErrInvalidSession
	}

	if ev.At.IsZero() {
		ev.At = e.clock.Now()
	}

	switch {
	case ev.Kind == TriggerManual:
		e.publish(s, events.TriggerAccepted, TriggerOutcome{Trigger: ev})
		e.acknowledgeLocked(s, "manual_trigger")
		return nil
	case !ev.Kind.IsReflex():
		e.drop(s, ev, DropUnknown)
		return nil
	case !ev.wellFormed():
		e.drop(s, ev, DropMalformed)
		return nil
	case s.tier == TierEscalating:
		e.drop(s, ev, DropEscalating)
		return nil
	case s.withinRefractory(ev.At):
		e.drop(s, ev, DropRefractory)
		return nil
	}

	s.lastReflex = ev.At
	if s.tier == TierAwaitingAck {
		// Already waiting: the pending entry becomes reflex-caused, the
		// grace countdown keeps running.
		s.cause = causeReflex
		e.publish(s, events.TriggerAccepted, TriggerOutcome{Trigger: ev, Collapsed: true})
		return nil
	}

	e.publish(s, events.TriggerAccepted, TriggerOutcome{Trigger: ev})
	s.cause = causeReflex
	e.arm(s, s.cfg.CheckInTimeout)
	e.transition(s, TierAwaitingAck, string(ev.Kind)+"_trigger")
	return nil
}

// Complete resolves a non-terminal session and stops its timers
func (e *Engine) Complete(id string) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tier.IsTerminal() {
		return ErrInvalidSession
	}
	s.stopTimer()
	e.transition(s, TierResolved, "completed")
	e.publish(s, events.SessionResolved, s.snapshot())
	return nil
}

// Cancel stops all timers and moves the session to Cancelled.
// Cancelling a terminal session is a no-op.
func (e *Engine) Cancel(id string) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tier.IsTerminal() {
		return nil
	}
	s.stopTimer()
	e.transition(s, TierCancelled, "cancelled")
	e.publish(s, events.SessionCancelled, s.snapshot())
	return nil
}

// Session returns a snapshot of one session
func (e *Engine) Session(id string) (Snapshot, error) {
	s, err := e.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

// Sessions returns snapshots of all known sessions, oldest first
func (e *Engine) Sessions() []Snapshot {
	e.mu.RLock()
	list := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		list = append(list, s)
	}
	e.mu.RUnlock()

	out := make([]Snapshot, 0, len(list))
	for _, s := range list {
		s.mu.Lock()
		out = append(out, s.snapshot())
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Prune forgets terminal sessions last updated before cutoff and returns how
// many were removed.
func (e *Engine) Prune(cutoff time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for id, s := range e.sessions {
		s.mu.Lock()
		if s.tier.IsTerminal() && s.updatedAt.Before(cutoff) {
			delete(e.sessions, id)
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// Close stops every countdown, delivers queued actions and stops the
// dispatch goroutine. Session tiers are left as they are. Afterwards
// CreateSession, Acknowledge and OnTrigger return ErrEngineClosed; Complete
// and Cancel still end sessions.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed.Store(true)
		list := make([]*session, 0, len(e.sessions))
		for _, s := range e.sessions {
			list = append(list, s)
		}
		e.mu.Unlock()

		for _, s := range list {
			s.mu.Lock()
			s.stopTimer()
			s.mu.Unlock()
		}

		e.queue.close()
		<-e.done
		e.cancel()
	})
}

func (e *Engine) lookup(id string) (*session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, ErrInvalidSession
	}
	return s, nil
}

// arm replaces the session's countdown. Caller holds s.mu.
// A non-positive duration leaves no countdown running.
func (e *Engine) arm(s *session, d time.Duration) {
	s.stopTimer()
	if d <= 0 {
		return
	}
	id, epoch := s.id, s.epoch
	s.deadline = e.clock.Now().Add(d)
	s.timer = e.clock.AfterFunc(d, func() {
		_ = e.expire(id, epoch)
	})
}

// expire handles a countdown reaching zero. Callbacks carrying an epoch
// other than the session's current one lost a race and are dropped.
func (e *Engine) expire(id string, epoch uint64) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e.closed.Load() || epoch != s.epoch || s.tier.IsTerminal() {
		return ErrStaleEpoch
	}
	s.timer = nil
	s.deadline = time.Time{}

	switch s.tier {
	case TierArmed:
		s.cause = causeScheduled
		e.arm(s, s.cfg.CheckInTimeout)
		e.transition(s, TierAwaitingAck, "interval_expired")

	case TierAwaitingAck:
		s.missed++
		if s.cause == causeReflex {
			e.escalate(s, "reflex_unacknowledged")
			return nil
		}
		switch s.policy.Classify(s.missed) {
		case OutcomeEscalate:
			e.escalate(s, "call_threshold_reached")
		case OutcomeMessage:
			e.emit(s, messageRound(s.snapshot(), ReasonMissedCheckIn, e.clock.Now()))
			e.arm(s, s.cfg.Interval)
			e.transition(s, TierArmed, "missed_checkin")
		default:
			e.arm(s, s.cfg.Interval)
			e.transition(s, TierArmed, "missed_checkin")
		}

	default:
		return ErrStaleEpoch
	}
	return nil
}

// escalate enters Escalating and emits the call round once. Caller holds s.mu.
func (e *Engine) escalate(s *session, reason string) {
	s.stopTimer()
	e.transition(s, TierEscalating, reason)
	e.emit(s, escalationRound(s.snapshot(), e.clock.Now()))
}

// transition moves the session to a new tier and publishes the change.
// Caller holds s.mu.
func (e *Engine) transition(s *session, to Tier, reason string) {
	from := s.tier
	if !CanTransition(from, to) {
		e.logger.Printf("WARN: session %s: refusing transition %s -> %s (%s)", s.id, from, to, reason)
		return
	}
	s.tier = to
	s.updatedAt = e.clock.Now()
	if to != TierAwaitingAck {
		s.cause = causeScheduled
	}
	e.publish(s, events.SessionTierChanged, Transition{
		From:    from,
		To:      to,
		Reason:  reason,
		Session: s.snapshot(),
	})
}

func (e *Engine) drop(s *session, ev TriggerEvent, reason string) {
	e.publish(s, events.TriggerDropped, TriggerOutcome{Trigger: ev, Reason: reason})
}

// emit publishes and queues actions for delivery. Caller holds s.mu.
func (e *Engine) emit(s *session, actions []Action) {
	for _, a := range actions {
		e.publish(s, events.ActionEmitted, a)
		if e.notifier != nil && !e.queue.push(a) {
			e.logger.Printf("WARN: session %s: engine closed, dropping %s to %s", a.SessionID, a.Kind, a.Contact.DisplayName())
		}
	}
}

func (e *Engine) publish(s *session, typ events.EventType, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Emit(events.NewEvent(typ, s.id).
		WithMode(string(s.cfg.Mode)).
		WithTier(string(s.tier)).
		WithPayload(payload))
}

func (e *Engine) dispatchLoop() {
	defer close(e.done)
	for {
		batch, ok := e.queue.take()
		if !ok {
			return
		}
		for _, a := range batch {
			e.deliver(a)
		}
	}
}

func (e *Engine) deliver(a Action) {
	ctx, cancel := context.WithTimeout(e.ctx, e.sendTimeout)
	err := e.notifier.Send(ctx, a)
	cancel()

	if err != nil {
		failure := &NotifierFailure{Notifier: e.notifier.Name(), Action: a, Err: err}
		e.logger.Printf("WARN: %v", failure)
		if e.bus != nil {
			e.bus.Emit(events.NewEvent(events.ActionFailed, a.SessionID).WithPayload(a).WithError(failure))
		}
		return
	}
	if e.bus != nil {
		e.bus.Emit(events.NewEvent(events.ActionDelivered, a.SessionID).WithPayload(a))
	}
}

// stopTimer cancels the pending countdown and advances the epoch so a
// callback already in flight is recognised as stale. Caller holds s.mu.
func (s *session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.epoch++
	s.deadline = time.Time{}
}

func (s *session) withinRefractory(at time.Time) bool {
	if s.lastReflex.IsZero() || s.cfg.Refractory <= 0 {
		return false
	}
	d := at.Sub(s.lastReflex)
	if d < 0 {
		d = -d
	}
	return d < s.cfg.Refractory
}

// snapshot copies the session state. Caller holds s.mu.
func (s *session) snapshot() Snapshot {
	cfg := s.cfg
	cfg.Contacts = append([]Contact(nil), s.cfg.Contacts...)

	snap := Snapshot{
		ID:          s.id,
		Config:      cfg,
		Tier:        s.tier,
		MissedCount: s.missed,
		Epoch:       s.epoch,
		Reflex:      s.tier == TierAwaitingAck && s.cause == causeReflex,
		CreatedAt:   s.createdAt,
		UpdatedAt:   s.updatedAt,
	}
	if !s.lastAck.IsZero() {
		t := s.lastAck
		snap.LastAcknowledgedAt = &t
	}
	if !s.deadline.IsZero() {
		t := s.deadline
		snap.Deadline = &t
	}
	return snap
}
