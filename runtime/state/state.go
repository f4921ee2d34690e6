package state

import (
	"context"
	"sync"
	"sync/atomic"
)

// Cell models the single authoritative value managed by a container.
//
// Reads never block: the current value is published through an atomic pointer.
// Writers are serialised by a mutex so reducers are applied one at a time and
// listeners observe distinct values in the order they were produced. Cells are
// safe for concurrent use by multiple goroutines.
type Cell[S any] struct {
	equal func(a, b S) bool

	mu        sync.Mutex
	current   atomic.Pointer[S]
	listeners map[uint64]func(S)
	nextID    uint64
	updates   atomic.Uint64
}

// NewCell constructs a cell holding initial. A nil equal function treats every
// update as a change.
func NewCell[S any](initial S, equal func(a, b S) bool) *Cell[S] {
	c := &Cell[S]{
		equal:     equal,
		listeners: make(map[uint64]func(S)),
	}
	c.current.Store(&initial)
	return c
}

// Get returns the latest value without blocking.
func (c *Cell[S]) Get() S {
	return *c.current.Load()
}

// Updates reports how many distinct values were stored since construction.
func (c *Cell[S]) Updates() uint64 {
	return c.updates.Load()
}

// Update applies fn to the current value under the write lock. Results equal to
// the current value are neither stored nor emitted. A panicking fn leaves the
// cell untouched and the panic propagates to the caller.
func (c *Cell[S]) Update(fn func(S) S) (S, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := *c.current.Load()
	next := fn(old)
	if c.equal != nil && c.equal(old, next) {
		return old, false
	}
	c.publish(next)
	return next, true
}

// Set replaces the current value and reports whether it changed.
func (c *Cell[S]) Set(value S) bool {
	_, changed := c.Update(func(S) S { return value })
	return changed
}

func (c *Cell[S]) publish(next S) {
	c.current.Store(&next)
	c.updates.Add(1)
	for _, fn := range c.listeners {
		fn(next)
	}
}

// Listen registers a synchronous listener. fn receives the current value right
// away and every distinct value afterwards, in production order. fn runs while
// the write lock is held: it must not block and must not touch the cell.
func (c *Cell[S]) Listen(fn func(S)) (stop func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	fn(*c.current.Load())
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Subscribe streams the current value followed by every distinct value. Values
// are queued per subscriber, so a slow reader delays but never loses updates.
// The channel is closed once ctx is done.
func (c *Cell[S]) Subscribe(ctx context.Context) <-chan S {
	out := make(chan S)
	sub := &subscriber[S]{wake: make(chan struct{}, 1)}
	stop := c.Listen(sub.push)
	go func() {
		defer close(out)
		defer stop()
		for {
			value, ok := sub.pop()
			if !ok {
				select {
				case <-sub.wake:
					continue
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- value:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

type subscriber[S any] struct {
	mu      sync.Mutex
	pending []S
	wake    chan struct{}
}

func (s *subscriber[S]) push(value S) {
	s.mu.Lock()
	s.pending = append(s.pending, value)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber[S]) pop() (S, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		var zero S
		return zero, false
	}
	value := s.pending[0]
	var zero S
	s.pending[0] = zero
	s.pending = s.pending[1:]
	return value, true
}
