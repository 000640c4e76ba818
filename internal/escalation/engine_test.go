package escalation

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RevCBH/siren/internal/events"
)

func TestEngine_CreateSession(t *testing.T) {
	h := newHarness(t)

	id, err := h.engine.CreateSession(SessionConfig{Mode: ModeCheckIn, Label: "walk home", Contacts: family()})
	require.NoError(t, err)

	// ULID format (26 characters)
	assert.Len(t, id, 26)

	snap, err := h.engine.Session(id)
	require.NoError(t, err)
	assert.Equal(t, TierArmed, snap.Tier)
	assert.Equal(t, 0, snap.MissedCount)
	assert.Equal(t, 15*time.Minute, snap.Config.Interval)
	assert.Equal(t, 30*time.Second, snap.Config.CheckInTimeout)
	require.NotNil(t, snap.Deadline)
	assert.Equal(t, h.clock.Now().Add(15*time.Minute), *snap.Deadline)
	assert.Nil(t, snap.LastAcknowledgedAt)

	h.shutdown()
	created := h.events.ofType(events.SessionCreated)
	require.Len(t, created, 1)
	assert.Equal(t, id, created[0].Session)
	assert.Equal(t, "checkin", created[0].Mode)
}

func TestEngine_CreateSession_InvalidConfig(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.CreateSession(SessionConfig{Mode: "panic"})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = h.engine.CreateSession(SessionConfig{Mode: ModeCheckIn, CallThreshold: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEngine_CreateSession_ReflexHasNoCountdown(t *testing.T) {
	h := newHarness(t)

	id, err := h.engine.CreateSession(SessionConfig{Mode: ModeShakeWatch})
	require.NoError(t, err)

	snap, err := h.engine.Session(id)
	require.NoError(t, err)
	assert.Nil(t, snap.Deadline)
	assert.Equal(t, 10*time.Second, snap.Config.CheckInTimeout)
}

func TestEngine_CreateSession_AfterClose(t *testing.T) {
	h := newHarness(t)
	h.engine.Close()

	_, err := h.engine.CreateSession(SessionConfig{Mode: ModeCheckIn})
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestEngine_ThreeMissedCheckIns(t *testing.T) {
	h := newHarness(t)
	interval, grace := 900*time.Second, 30*time.Second

	id, err := h.engine.CreateSession(SessionConfig{
		Mode:           ModeCheckIn,
		Interval:       interval,
		CheckInTimeout: grace,
		CallThreshold:  3,
		Contacts:       family(),
	})
	require.NoError(t, err)

	for round := 1; round <= 2; round++ {
		h.miss(t, id, interval, grace)
		h.waitSnapshot(t, id, func(s Snapshot) bool {
			return s.Tier == TierArmed && s.MissedCount == round
		})
	}

	h.miss(t, id, interval, grace)
	snap := h.waitTier(t, id, TierEscalating)
	assert.Equal(t, 3, snap.MissedCount)
	assert.Nil(t, snap.Deadline, "escalating must not repeat on a timer")

	actions := h.waitActions(t, 9)
	require.Len(t, actions, 9)

	// Two message rounds to every contact
	for i, a := range actions[:6] {
		assert.Equal(t, ActionMessage, a.Kind, "action %d", i)
		assert.Equal(t, ReasonMissedCheckIn, a.Reason, "action %d", i)
	}
	assert.Equal(t, []string{"mom", "dad", "sarah"}, contactIDs(actions[0:3]))
	assert.Equal(t, []string{"mom", "dad", "sarah"}, contactIDs(actions[3:6]))

	// Then one call to Mom and messages to the others
	assert.Equal(t, ActionCall, actions[6].Kind)
	assert.Equal(t, "mom", actions[6].ContactID)
	assert.Equal(t, ActionMessage, actions[7].Kind)
	assert.Equal(t, "dad", actions[7].ContactID)
	assert.Equal(t, ActionMessage, actions[8].Kind)
	assert.Equal(t, "sarah", actions[8].ContactID)

	// Escalating emits once per entry: more time passing adds nothing
	h.clock.Advance(24 * time.Hour)
	h.shutdown()
	assert.Len(t, h.notifier.Actions(), 9)
}

func TestEngine_MessageRoundBeforeCallThreshold(t *testing.T) {
	h := newHarness(t)

	id, err := h.engine.CreateSession(SessionConfig{
		Mode:           ModeCheckIn,
		Interval:       time.Minute,
		CheckInTimeout: 10 * time.Second,
		Contacts:       family(),
	})
	require.NoError(t, err)

	h.miss(t, id, time.Minute, 10*time.Second)
	snap := h.waitSnapshot(t, id, func(s Snapshot) bool { return s.Tier == TierArmed && s.MissedCount == 1 })
	require.NotNil(t, snap.Deadline, "countdown must restart after a message round")

	h.shutdown()
	actions := h.notifier.Actions()
	require.Len(t, actions, 3)
	for _, a := range actions {
		assert.Equal(t, ActionMessage, a.Kind)
		assert.Equal(t, 1, a.MissedCount)
	}
}

func TestEngine_AcknowledgeDuringGrace(t *testing.T) {
	h := newHarness(t)

	id, err := h.engine.CreateSession(SessionConfig{Mode: ModeCheckIn, Interval: time.Minute, Contacts: family()})
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	pending := h.waitTier(t, id, TierAwaitingAck)

	require.NoError(t, h.engine.Acknowledge(id))
	snap, err := h.engine.Session(id)
	require.NoError(t, err)
	assert.Equal(t, TierArmed, snap.Tier)
	assert.Equal(t, 0, snap.MissedCount)
	require.NotNil(t, snap.LastAcknowledgedAt)
	require.NotNil(t, snap.Deadline)
	assert.Equal(t, h.clock.Now().Add(time.Minute), *snap.Deadline)

	// The grace callback from the previous epoch loses the race
	assert.ErrorIs(t, h.engine.expire(id, pending.Epoch), ErrStaleEpoch)

	h.shutdown()
	assert.Empty(t, h.notifier.Actions())
}

func TestEngine_AcknowledgeWhileArmedExtends(t *testing.T) {
	h := newHarness(t)

	id, err := h.engine.CreateSession(SessionConfig{Mode: ModeCheckIn, Interval: 15 * time.Minute})
	require.NoError(t, err)

	h.clock.Advance(10 * time.Minute)
	require.NoError(t, h.engine.Acknowledge(id))

	snap, err := h.engine.Session(id)
	require.NoError(t, err)
	assert.Equal(t, TierArmed, snap.Tier)
	require.NotNil(t, snap.Deadline)
	assert.Equal(t, h.clock.Now().Add(15*time.Minute), *snap.Deadline)

	// The original deadline passes without leaving Armed
	h.clock.Advance(6 * time.Minute)
	time.Sleep(10 * time.Millisecond)
	snap, err = h.engine.Session(id)
	require.NoError(t, err)
	assert.Equal(t, TierArmed, snap.Tier)
}

func TestEngine_AcknowledgeFromEscalating(t *testing.T) {
	h := newHarness(t)

	id, err := h.engine.CreateSession(SessionConfig{
		Mode:           ModeCheckIn,
		Interval:       time.Minute,
		CheckInTimeout: 10 * time.Second,
		CallThreshold:  1,
		Contacts:       family(),
	})
	require.NoError(t, err)

	h.miss(t, id, time.Minute, 10*time.Second)
	h.waitTier(t, id, TierEscalating)

	require.NoError(t, h.engine.Acknowledge(id))
	snap, err := h.engine.Session(id)
	require.NoError(t, err)
	assert.Equal(t, TierArmed, snap.Tier)
	assert.Equal(t, 0, snap.MissedCount)
	assert.NotNil(t, snap.Deadline)
}

func TestEngine_CancelStopsCallbacks(t *testing.T) {
	h := newHarness(t)

	id, err := h.engine.CreateSession(SessionConfig{Mode: ModeCheckIn, Interval: time.Minute, Contacts: family()})
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	pending := h.waitTier(t, id, TierAwaitingAck)

	require.NoError(t, h.engine.Cancel(id))
	require.NoError(t, h.engine.Cancel(id), "cancel must be idempotent")

	assert.ErrorIs(t, h.engine.expire(id, pending.Epoch), ErrStaleEpoch)
	h.clock.Advance(time.Hour)

	h.shutdown()
	snap, err := h.engine.Session(id)
	require.NoError(t, err)
	assert.Equal(t, TierCancelled, snap.Tier)
	assert.Nil(t, snap.Deadline)
	assert.Empty(t, h.notifier.Actions())
	assert.Len(t, h.events.ofType(events.SessionCancelled), 1)
}

func TestEngine_CompleteIsTerminal(t *testing.T) {
	h := newHarness(t)

	id, err := h.engine.CreateSession(SessionConfig{Mode: ModeVoiceWatch})
	require.NoError(t, err)

	require.NoError(t, h.engine.Complete(id))
	snap, err := h.engine.Session(id)
	require.NoError(t, err)
	assert.Equal(t, TierResolved, snap.Tier)

	assert.ErrorIs(t, h.engine.Complete(id), ErrInvalidSession)
	assert.ErrorIs(t, h.engine.Acknowledge(id), ErrInvalidSession)
	assert.ErrorIs(t, h.engine.OnTrigger(id, TriggerEvent{Kind: TriggerVoice, Value: 90}), ErrInvalidSession)
	assert.NoError(t, h.engine.Cancel(id))

	snap, err = h.engine.Session(id)
	require.NoError(t, err)
	assert.Equal(t, TierResolved, snap.Tier, "cancel must not rewrite a resolved session")
}

func TestEngine_UnknownSession(t *testing.T) {
	h := newHarness(t)

	assert.ErrorIs(t, h.engine.Acknowledge("nope"), ErrInvalidSession)
	assert.ErrorIs(t, h.engine.OnTrigger("nope", TriggerEvent{Kind: TriggerMotion}), ErrInvalidSession)
	assert.ErrorIs(t, h.engine.Complete("nope"), ErrInvalidSession)
	assert.ErrorIs(t, h.engine.Cancel("nope"), ErrInvalidSession)
	_, err := h.engine.Session("nope")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestEngine_MotionStormCollapses(t *testing.T) {
	h := newHarness(t)

	id, err := h.engine.CreateSession(SessionConfig{Mode: ModeShakeWatch, Refractory: 5 * time.Second})
	require.NoError(t, err)

	base := h.clock.Now()
	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * 500 * time.Millisecond)
		require.NoError(t, h.engine.OnTrigger(id, TriggerEvent{Kind: TriggerMotion, At: at, Value: 30}))
	}

	snap, err := h.engine.Session(id)
	require.NoError(t, err)
	assert.Equal(t, TierAwaitingAck, snap.Tier)
	assert.True(t, snap.Reflex)

	h.shutdown()
	entries := 0
	for _, e := range h.events.ofType(events.SessionTierChanged) {
		if tr := e.Payload.(Transition); tr.To == TierAwaitingAck {
			entries++
		}
	}
	assert.Equal(t, 1, entries)
	assert.Len(t, h.events.ofType(events.TriggerAccepted), 1)
	dropped := h.events.ofType(events.TriggerDropped)
	require.Len(t, dropped, 4)
	assert.Equal(t, DropRefractory, dropped[0].Payload.(TriggerOutcome).Reason)
}

func TestEngine_ReflexGraceExpiryEscalates(t *testing.T) {
	h := newHarness(t)

	id, err := h.engine.CreateSession(SessionConfig{Mode: ModeShakeWatch, Contacts: family()})
	require.NoError(t, err)

	require.NoError(t, h.engine.OnTrigger(id, TriggerEvent{Kind: TriggerMotion, Value: 25}))
	h.clock.Advance(10 * time.Second)

	snap := h.waitTier(t, id, TierEscalating)
	assert.Equal(t, 1, snap.MissedCount)

	actions := h.waitActions(t, 3)
	assert.Equal(t, ActionCall, actions[0].Kind)
	assert.Equal(t, "mom", actions[0].ContactID)
}

func TestEngine_ReflexUpgradesScheduledWait(t *testing.T) {
	h := newHarness(t)

	id, err := h.engine.CreateSession(SessionConfig{
		Mode:           ModeCheckIn,
		Interval:       time.Minute,
		CheckInTimeout: 30 * time.Second,
		Contacts:       family(),
	})
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	pending := h.waitTier(t, id, TierAwaitingAck)
	assert.False(t, pending.Reflex)

	require.NoError(t, h.engine.OnTrigger(id, TriggerEvent{Kind: TriggerVoice, Value: 80}))
	snap, err := h.engine.Session(id)
	require.NoError(t, err)
	assert.True(t, snap.Reflex)
	assert.Equal(t, pending.Epoch, snap.Epoch, "grace countdown keeps running")

	h.clock.Advance(30 * time.Second)
	h.waitTier(t, id, TierEscalating)
}

func TestEngine_MalformedTriggersDropped(t *testing.T) {
	h := newHarness(t)

	id, err := h.engine.CreateSession(SessionConfig{Mode: ModeShakeWatch})
	require.NoError(t, err)

	bad := []TriggerEvent{
		{Kind: TriggerMotion, Value: math.NaN()},
		{Kind: TriggerMotion, Value: -4},
		{Kind: TriggerMotion, Value: math.Inf(1)},
		{Kind: TriggerVoice, Value: 150},
		{Kind: "tap", Value: 1},
	}
	for _, ev := range bad {
		assert.NoError(t, h.engine.OnTrigger(id, ev))
	}

	snap, err := h.engine.Session(id)
	require.NoError(t, err)
	assert.Equal(t, TierArmed, snap.Tier)

	h.shutdown()
	assert.Len(t, h.events.ofType(events.TriggerDropped), len(bad))
}

func TestEngine_TriggerWhileEscalatingDropped(t *testing.T) {
	h := newHarness(t)

	id, err := h.engine.CreateSession(SessionConfig{Mode: ModeShakeWatch, Refractory: time.Second})
	require.NoError(t, err)

	require.NoError(t, h.engine.OnTrigger(id, TriggerEvent{Kind: TriggerMotion, Value: 25}))
	h.clock.Advance(10 * time.Second)
	h.waitTier(t, id, TierEscalating)

	require.NoError(t, h.engine.OnTrigger(id, TriggerEvent{Kind: TriggerMotion, Value: 25}))
	snap, err := h.engine.Session(id)
	require.NoError(t, err)
	assert.Equal(t, TierEscalating, snap.Tier)

	h.shutdown()
	dropped := h.events.ofType(events.TriggerDropped)
	require.Len(t, dropped, 1)
	assert.Equal(t, DropEscalating, dropped[0].Payload.(TriggerOutcome).Reason)
}

func TestEngine_ManualTriggerAcknowledges(t *testing.T) {
	h := newHarness(t)

	id, err := h.engine.CreateSession(SessionConfig{Mode: ModeCheckIn, Interval: time.Minute})
	require.NoError(t, err)

	h.clock.Advance(time.Minute)
	h.waitTier(t, id, TierAwaitingAck)

	require.NoError(t, h.engine.OnTrigger(id, TriggerEvent{Kind: TriggerManual}))
	snap, err := h.engine.Session(id)
	require.NoError(t, err)
	assert.Equal(t, TierArmed, snap.Tier)
	assert.NotNil(t, snap.LastAcknowledgedAt)
}

func TestEngine_EmptyContactsStillEscalates(t *testing.T) {
	h := newHarness(t)

	id, err := h.engine.CreateSession(SessionConfig{
		Mode:           ModeCheckIn,
		Interval:       time.Minute,
		CheckInTimeout: 10 * time.Second,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		h.miss(t, id, time.Minute, 10*time.Second)
		h.waitSnapshot(t, id, func(s Snapshot) bool { return s.MissedCount == i+1 })
	}
	h.waitTier(t, id, TierEscalating)

	h.shutdown()
	assert.Empty(t, h.notifier.Actions())
	assert.Empty(t, h.events.ofType(events.ActionEmitted))
}

func TestEngine_CallGoesToLowestPriority(t *testing.T) {
	h := newHarness(t)

	contacts := []Contact{
		{ID: "sarah", Priority: 3},
		{ID: "mom", Priority: 1},
		{ID: "dad", Priority: 2},
	}
	id, err := h.engine.CreateSession(SessionConfig{Mode: ModeVoiceWatch, Contacts: contacts})
	require.NoError(t, err)

	require.NoError(t, h.engine.OnTrigger(id, TriggerEvent{Kind: TriggerVoice, Value: 95}))
	h.clock.Advance(10 * time.Second)

	actions := h.waitActions(t, 3)
	assert.Equal(t, []string{"mom", "dad", "sarah"}, contactIDs(actions))
	assert.Equal(t, ActionCall, actions[0].Kind)
}

func TestEngine_NotifierFailureIsPublished(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errBackendDown

	id, err := h.engine.CreateSession(SessionConfig{Mode: ModeShakeWatch, Contacts: family()[:1]})
	require.NoError(t, err)

	require.NoError(t, h.engine.OnTrigger(id, TriggerEvent{Kind: TriggerMotion, Value: 25}))
	h.clock.Advance(10 * time.Second)
	h.waitActions(t, 1)

	h.shutdown()
	failed := h.events.ofType(events.ActionFailed)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Error, "backend down")

	snap, err := h.engine.Session(id)
	require.NoError(t, err)
	assert.Equal(t, TierEscalating, snap.Tier)
}

func TestNotifierFailure_Unwrap(t *testing.T) {
	f := &NotifierFailure{Notifier: "twilio", Action: Action{Kind: ActionCall, ContactID: "mom"}, Err: errBackendDown}
	assert.True(t, errors.Is(f, errBackendDown))
	assert.Contains(t, f.Error(), "twilio")
	assert.Contains(t, f.Error(), "call to mom")
}

func TestEngine_ExpireRaceHasOneWinner(t *testing.T) {
	h := newHarness(t)

	id, err := h.engine.CreateSession(SessionConfig{Mode: ModeCheckIn, Interval: time.Minute})
	require.NoError(t, err)
	snap, err := h.engine.Session(id)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.engine.expire(id, snap.Epoch) == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	after, err := h.engine.Session(id)
	require.NoError(t, err)
	assert.Equal(t, TierAwaitingAck, after.Tier)
}

func TestEngine_Sessions(t *testing.T) {
	h := newHarness(t)

	a, err := h.engine.CreateSession(SessionConfig{Mode: ModeCheckIn})
	require.NoError(t, err)
	b, err := h.engine.CreateSession(SessionConfig{Mode: ModeShakeWatch})
	require.NoError(t, err)

	list := h.engine.Sessions()
	require.Len(t, list, 2)
	ids := []string{list[0].ID, list[1].ID}
	assert.ElementsMatch(t, []string{a, b}, ids)
}

func TestEngine_Prune(t *testing.T) {
	h := newHarness(t)

	done, err := h.engine.CreateSession(SessionConfig{Mode: ModeCheckIn})
	require.NoError(t, err)
	live, err := h.engine.CreateSession(SessionConfig{Mode: ModeCheckIn})
	require.NoError(t, err)
	require.NoError(t, h.engine.Cancel(done))

	assert.Equal(t, 0, h.engine.Prune(h.clock.Now()), "cutoff is exclusive")
	assert.Equal(t, 1, h.engine.Prune(h.clock.Now().Add(time.Second)))

	_, err = h.engine.Session(done)
	assert.ErrorIs(t, err, ErrInvalidSession)
	_, err = h.engine.Session(live)
	assert.NoError(t, err)
}

func TestEngine_CloseDeliversQueuedActions(t *testing.T) {
	h := newHarness(t)

	id, err := h.engine.CreateSession(SessionConfig{Mode: ModeShakeWatch, Contacts: family()})
	require.NoError(t, err)
	require.NoError(t, h.engine.OnTrigger(id, TriggerEvent{Kind: TriggerMotion, Value: 25}))

	snap, err := h.engine.Session(id)
	require.NoError(t, err)
	require.NoError(t, h.engine.expire(id, snap.Epoch))

	h.engine.Close()
	assert.Len(t, h.notifier.Actions(), 3)
}

func TestEngine_MutationsAfterClose(t *testing.T) {
	h := newHarness(t)
	interval, grace := time.Minute, 10*time.Second

	id, err := h.engine.CreateSession(SessionConfig{
		Mode:           ModeCheckIn,
		Interval:       interval,
		CheckInTimeout: grace,
		CallThreshold:  1,
		Contacts:       family(),
	})
	require.NoError(t, err)
	h.engine.Close()

	assert.ErrorIs(t, h.engine.Acknowledge(id), ErrEngineClosed)
	assert.ErrorIs(t, h.engine.OnTrigger(id, TriggerEvent{Kind: TriggerManual}), ErrEngineClosed)
	assert.ErrorIs(t, h.engine.OnTrigger(id, TriggerEvent{Kind: TriggerMotion, Value: 25}), ErrEngineClosed)

	// No countdown survives Close, so nothing escalates
	h.clock.Advance(interval + grace)
	snap, err := h.engine.Session(id)
	require.NoError(t, err)
	assert.Equal(t, TierArmed, snap.Tier)
	assert.Equal(t, ErrStaleEpoch, h.engine.expire(id, snap.Epoch))
	assert.Empty(t, h.notifier.Actions())

	// Ending a session is still allowed
	require.NoError(t, h.engine.Cancel(id))
	snap, err = h.engine.Session(id)
	require.NoError(t, err)
	assert.Equal(t, TierCancelled, snap.Tier)
}

func TestEngine_ActionEventsCarryModeAndTier(t *testing.T) {
	h := newHarness(t)

	id, err := h.engine.CreateSession(SessionConfig{Mode: ModeShakeWatch, Contacts: family()})
	require.NoError(t, err)
	require.NoError(t, h.engine.OnTrigger(id, TriggerEvent{Kind: TriggerMotion, Value: 25}))

	snap, err := h.engine.Session(id)
	require.NoError(t, err)
	require.NoError(t, h.engine.expire(id, snap.Epoch))

	h.shutdown()
	emitted := h.events.ofType(events.ActionEmitted)
	require.Len(t, emitted, 3)
	for _, e := range emitted {
		assert.Equal(t, id, e.Session)
		assert.Equal(t, string(ModeShakeWatch), e.Mode)
		assert.Equal(t, string(TierEscalating), e.Tier)
	}
}

func contactIDs(actions []Action) []string {
	ids := make([]string, len(actions))
	for i, a := range actions {
		ids[i] = a.ContactID
	}
	return ids
}
