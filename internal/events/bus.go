package events

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Handler receives events from the bus
type Handler func(Event)

type subscription struct {
	id int
	fn Handler
}

// Bus provides event distribution across components.
// Events are delivered in emit order on a single goroutine.
type Bus struct {
	Capacity int

	mu       sync.RWMutex
	subs     []subscription
	nextID   int
	events   chan Event
	closed   bool
	done     chan struct{}
	dropped  atomic.Int64
	now      func() time.Time
	closeMux sync.Once
}

// NewBus creates a new event bus with the specified capacity and starts
// its dispatch loop.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 1
	}
	b := &Bus{
		Capacity: capacity,
		events:   make(chan Event, capacity),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	go b.loop()
	return b
}

// Subscribe registers a handler and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: h})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit queues an event for delivery. It never blocks: when the buffer is
// full the event is dropped and false is returned.
func (b *Bus) Emit(e Event) bool {
	if e.Time.IsZero() {
		e.Time = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false
	}

	select {
	case b.events <- e:
		return true
	default:
		b.dropped.Add(1)
		log.Printf("WARN: event bus full, dropping %s for %s", e.Type, e.Session)
		return false
	}
}

// Close shuts down the event bus after delivering all queued events.
// Safe to call more than once.
func (b *Bus) Close() error {
	b.closeMux.Do(func() {
		b.mu.Lock()
		b.closed = true
		close(b.events)
		b.mu.Unlock()
	})
	<-b.done
	return nil
}

// Dropped returns how many events were discarded because the buffer was full.
func (b *Bus) Dropped() int {
	return int(b.dropped.Load())
}

func (b *Bus) loop() {
	defer close(b.done)
	for e := range b.events {
		b.mu.RLock()
		handlers := make([]Handler, len(b.subs))
		for i, s := range b.subs {
			handlers[i] = s.fn
		}
		b.mu.RUnlock()

		for _, h := range handlers {
			h(e)
		}
	}
}
