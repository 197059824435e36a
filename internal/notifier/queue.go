package notifier

import (
	"context"
	"sync"

	"github.com/alertrelay/alertrelay/internal/bus"
)

// queue is an unbounded FIFO with a single consumer. push never blocks.
type queue struct {
	mu     sync.Mutex
	items  []bus.Envelope
	closed bool
	// ready holds at most one wake-up token for the consumer.
	ready chan struct{}
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{}, 1)}
}

func (q *queue) push(env bus.Envelope) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, env)
	q.mu.Unlock()
	q.wake()
	return true
}

// pop blocks until an item is available. It returns false once the queue is
// closed and empty, or when ctx is done. A done ctx wins over queued items.
func (q *queue) pop(ctx context.Context) (bus.Envelope, bool) {
	for {
		if ctx.Err() != nil {
			return bus.Envelope{}, false
		}
		q.mu.Lock()
		if len(q.items) > 0 {
			env := q.items[0]
			q.items[0] = bus.Envelope{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return env, true
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return bus.Envelope{}, false
		}

		select {
		case <-q.ready:
		case <-ctx.Done():
			return bus.Envelope{}, false
		}
	}
}

// close stops intake. Items already queued can still be popped.
func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// drain removes and returns everything still queued.
func (q *queue) drain() []bus.Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *queue) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
