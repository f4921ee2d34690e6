package subscription

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timzifer/orbit/runtime/state"
)

// DefaultStopTimeout is the grace period between the last observer detaching
// and Unsubscribed being announced.
const DefaultStopTimeout = 100 * time.Millisecond

// Status describes whether any observer is attached.
type Status int

const (
	// Unsubscribed means no observer has been attached for at least the stop timeout.
	Unsubscribed Status = iota
	// Subscribed means at least one observer is attached.
	Subscribed
)

func (s Status) String() string {
	if s == Subscribed {
		return "subscribed"
	}
	return "unsubscribed"
}

// Counter tracks attached observers and announces Subscribed/Unsubscribed
// transitions. The count itself is atomic; the mutex only guards the
// delayed-stop timer.
type Counter struct {
	ctx     context.Context
	timeout time.Duration
	count   atomic.Int64
	status  *state.Cell[Status]

	mu    sync.Mutex
	timer *time.Timer
}

// NewCounter builds a counter. Pending stop timers are abandoned once ctx is done.
func NewCounter(ctx context.Context, stopTimeout time.Duration) *Counter {
	if ctx == nil {
		ctx = context.Background()
	}
	if stopTimeout < 0 {
		stopTimeout = 0
	}
	return &Counter{
		ctx:     ctx,
		timeout: stopTimeout,
		status:  state.NewCell(Unsubscribed, func(a, b Status) bool { return a == b }),
	}
}

// Count returns the number of attached observers.
func (c *Counter) Count() int {
	return int(c.count.Load())
}

// Status returns the last announced status.
func (c *Counter) Status() Status {
	return c.status.Get()
}

// Stream emits the current status and every transition until ctx is done.
func (c *Counter) Stream(ctx context.Context) <-chan Status {
	return c.status.Subscribe(ctx)
}

// Increment registers an observer. The first observer cancels any pending stop
// and announces Subscribed.
func (c *Counter) Increment() {
	if c.count.Add(1) != 1 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count.Load() == 0 {
		// a racing Decrement already scheduled the stop
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.status.Set(Subscribed)
}

// Decrement unregisters an observer. When the count drops to zero,
// Unsubscribed is announced after the stop timeout unless an observer returns.
func (c *Counter) Decrement() {
	n := c.count.Add(-1)
	if n < 0 {
		c.count.CompareAndSwap(n, 0)
		return
	}
	if n != 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count.Load() != 0 {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.timeout == 0 {
		c.status.Set(Unsubscribed)
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(c.timeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.timer != timer {
			return
		}
		c.timer = nil
		if c.ctx.Err() != nil || c.count.Load() != 0 {
			return
		}
		c.status.Set(Unsubscribed)
	})
	c.timer = timer
}
