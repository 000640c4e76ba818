package escalation

import "sync"

// actionQueue is an unbounded FIFO between the state machine and the
// dispatch goroutine. push never blocks.
type actionQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Action
	closed bool
}

func newActionQueue(capacity int) *actionQueue {
	q := &actionQueue{items: make([]Action, 0, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *actionQueue) push(a Action) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, a)
	q.cond.Signal()
	return true
}

// take blocks until actions are queued and returns all of them. After close
// it drains what is left, then reports false.
func (q *actionQueue) take() ([]Action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	batch := q.items
	q.items = nil
	return batch, true
}

func (q *actionQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
