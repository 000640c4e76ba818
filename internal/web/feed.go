package web

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/RevCBH/siren/internal/events"
)

// subscriberBuffer is how many events a slow stream may fall behind
// before events are dropped for it
const subscriberBuffer = 256

// ErrFeedClosed is returned by Subscribe once the feed has been closed
var ErrFeedClosed = errors.New("event feed closed")

// Feed fans bus events out to SSE streams. A subscriber with a session
// filter sees only that session's events.
type Feed struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	closed bool
}

// Subscriber is one open event stream. C is closed when the subscriber
// leaves or the feed closes.
type Subscriber struct {
	ID      string
	Session string
	C       chan events.JSONEvent

	dropped atomic.Int64
}

// NewFeed creates an empty feed
func NewFeed() *Feed {
	return &Feed{subs: make(map[*Subscriber]struct{})}
}

// Subscribe opens a stream. An empty session receives every event.
func (f *Feed) Subscribe(id, session string) (*Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrFeedClosed
	}
	s := &Subscriber{
		ID:      id,
		Session: session,
		C:       make(chan events.JSONEvent, subscriberBuffer),
	}
	f.subs[s] = struct{}{}
	return s, nil
}

// Unsubscribe closes s. Unknown or already closed subscribers are ignored.
func (f *Feed) Unsubscribe(s *Subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[s]; ok {
		delete(f.subs, s)
		close(s.C)
	}
}

// Publish hands e to every interested subscriber without blocking.
// A full subscriber misses the event and its drop count goes up.
func (f *Feed) Publish(e events.Event) {
	je := events.ToJSONEvent(e)

	f.mu.RLock()
	defer f.mu.RUnlock()
	for s := range f.subs {
		if s.Session != "" && s.Session != je.Session {
			continue
		}
		select {
		case s.C <- je:
		default:
			s.dropped.Add(1)
		}
	}
}

// Handler adapts the feed to an events.Bus subscriber
func (f *Feed) Handler() events.Handler {
	return f.Publish
}

// Close ends every open stream and refuses new ones
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for s := range f.subs {
		close(s.C)
	}
	f.subs = nil
}

// Count returns the number of open streams
func (f *Feed) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// Dropped returns how many events this subscriber has missed
func (s *Subscriber) Dropped() int64 {
	return s.dropped.Load()
}
