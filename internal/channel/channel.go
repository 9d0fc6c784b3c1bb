// Package channel hands finalized response units from the stdout pump to the
// poller.
//
// A ResponseChannel is a FIFO paired with a readiness signal. The signal is
// set on every push and cleared once the queue has been drained, so a burst of
// back-to-back replies never leaves units stranded behind a cleared signal.
package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// Unit is one finalized, cleaned model reply.
type Unit struct {
	ID         string
	Text       string
	Generation uint64
	CreatedAt  time.Time
}

// NewUnit creates a unit stamped with a fresh ULID.
func NewUnit(text string, generation uint64) Unit {
	return Unit{
		ID:         ulid.Make().String(),
		Text:       text,
		Generation: generation,
		CreatedAt:  time.Now(),
	}
}

// ResponseChannel is a single-producer, single-consumer handoff of units.
type ResponseChannel struct {
	mu     sync.Mutex
	queue  []Unit
	ready  atomic.Bool
	notify chan struct{}
}

// New creates an empty ResponseChannel.
func New() *ResponseChannel {
	return &ResponseChannel{
		queue:  make([]Unit, 0, 8),
		notify: make(chan struct{}, 1),
	}
}

// Push enqueues a unit and sets the readiness signal.
func (c *ResponseChannel) Push(u Unit) {
	c.mu.Lock()
	c.queue = append(c.queue, u)
	c.ready.Store(true)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Ready reports whether the readiness signal is set.
func (c *ResponseChannel) Ready() bool {
	return c.ready.Load()
}

// ClearReady clears the readiness signal without touching the queue.
func (c *ResponseChannel) ClearReady() {
	c.ready.Store(false)
}

// Notify returns a channel that receives after a push. Wake-ups coalesce.
func (c *ResponseChannel) Notify() <-chan struct{} {
	return c.notify
}

// Len returns the number of queued units.
func (c *ResponseChannel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.queue)
}

// TryPop dequeues the oldest unit without waiting.
func (c *ResponseChannel) TryPop() (Unit, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return Unit{}, false
	}

	u := c.queue[0]
	c.queue[0] = Unit{}
	c.queue = c.queue[1:]

	if len(c.queue) == 0 {
		c.ready.Store(false)
	}

	return u, true
}

// Pop dequeues the oldest unit, waiting up to wait for one to arrive.
// It returns false when the wait elapses or ctx is done first.
func (c *ResponseChannel) Pop(ctx context.Context, wait time.Duration) (Unit, bool) {
	if u, ok := c.TryPop(); ok {
		return u, true
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return Unit{}, false
		case <-timer.C:
			return c.TryPop()
		case <-c.notify:
			if u, ok := c.TryPop(); ok {
				return u, true
			}
		}
	}
}

// Drain removes and returns every queued unit and clears the signal.
func (c *ResponseChannel) Drain() []Unit {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.queue
	c.queue = make([]Unit, 0, 8)
	c.ready.Store(false)

	return out
}
