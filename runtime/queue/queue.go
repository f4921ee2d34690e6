package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Unlimited configures a queue without a capacity bound.
const Unlimited = -1

// ErrClosed is returned once a closed queue has been drained.
var ErrClosed = errors.New("queue closed")

// Queue is an ordered buffer with backpressure.
//
// Senders block while a bounded queue is full and are admitted in the order
// they started waiting. Items are handed out in FIFO order to whichever
// receiver asks first, so several concurrent readers split the items between
// them rather than each seeing all of them.
type Queue[T any] struct {
	capacity int

	mu       sync.Mutex
	items    []T
	waiters  []*waiter[T]
	closed   bool
	notEmpty chan struct{}
}

// waiter is a sender parked on a full queue. Its item is moved into the
// buffer by admit; ready is closed once that happened or the queue closed.
type waiter[T any] struct {
	v        T
	ready    chan struct{}
	admitted bool
}

// New constructs a queue. Capacity must be positive or Unlimited.
func New[T any](capacity int) (*Queue[T], error) {
	if capacity == 0 || capacity < Unlimited {
		return nil, fmt.Errorf("queue capacity must be positive or unlimited, got %d", capacity)
	}
	return &Queue[T]{
		capacity: capacity,
		notEmpty: make(chan struct{}),
	}, nil
}

// Capacity returns the configured bound, or Unlimited.
func (q *Queue[T]) Capacity() int {
	if q == nil {
		return 0
	}
	return q.capacity
}

// Len returns the number of buffered items.
func (q *Queue[T]) Len() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Waiting returns the number of senders blocked on a full queue.
func (q *Queue[T]) Waiting() int {
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiters)
}

func (q *Queue[T]) full() bool {
	return q.capacity != Unlimited && len(q.items) >= q.capacity
}

// signal wakes every goroutine waiting on ch and returns a fresh channel.
// Callers must hold q.mu.
func signal(ch chan struct{}) chan struct{} {
	close(ch)
	return make(chan struct{})
}

// admit moves waiting senders into free slots, oldest first. Callers must
// hold q.mu.
func (q *Queue[T]) admit() {
	moved := false
	for len(q.waiters) > 0 && !q.full() {
		w := q.waiters[0]
		q.waiters[0] = nil
		q.waiters = q.waiters[1:]
		q.items = append(q.items, w.v)
		w.admitted = true
		close(w.ready)
		moved = true
	}
	if moved {
		q.notEmpty = signal(q.notEmpty)
	}
}

// TrySend appends v if there is room and no sender is waiting, and reports
// whether it did.
func (q *Queue[T]) TrySend(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.full() || len(q.waiters) > 0 {
		return false
	}
	q.items = append(q.items, v)
	q.notEmpty = signal(q.notEmpty)
	return true
}

// Send appends v, blocking while the queue is full.
func (q *Queue[T]) Send(ctx context.Context, v T) error {
	return q.SendNotify(ctx, v, nil)
}

// SendNotify is Send that calls blocked after v has joined the line of
// waiting senders and before the caller starts waiting. blocked is not called
// when v fits right away. Senders that joined the line earlier are always
// admitted first.
func (q *Queue[T]) SendNotify(ctx context.Context, v T, blocked func()) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	if !q.full() && len(q.waiters) == 0 {
		q.items = append(q.items, v)
		q.notEmpty = signal(q.notEmpty)
		q.mu.Unlock()
		return nil
	}
	w := &waiter[T]{v: v, ready: make(chan struct{})}
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()

	if blocked != nil {
		blocked()
	}

	select {
	case <-w.ready:
	case <-ctx.Done():
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if w.admitted {
		return nil
	}
	if q.closed {
		return ErrClosed
	}
	for i, other := range q.waiters {
		if other == w {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			break
		}
	}
	return ctx.Err()
}

// Receive removes the oldest item, blocking until one is available. Items
// buffered before Close are still delivered; afterwards ErrClosed is returned.
func (q *Queue[T]) Receive(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.admit()
			q.mu.Unlock()
			return v, nil
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, ErrClosed
		}
		wait := q.notEmpty
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// requeue puts v back at the head, ignoring the capacity bound.
func (q *Queue[T]) requeue(v T) {
	q.mu.Lock()
	q.items = append([]T{v}, q.items...)
	q.notEmpty = signal(q.notEmpty)
	q.mu.Unlock()
}

// Stream forwards items in FIFO order until ctx is done or the queue is closed
// and drained. An item received but not delivered before ctx ends is put back
// at the head of the queue for the next collector.
func (q *Queue[T]) Stream(ctx context.Context) <-chan T {
	out := make(chan T)
	go func() {
		defer close(out)
		for {
			v, err := q.Receive(ctx)
			if err != nil {
				return
			}
			select {
			case out <- v:
			case <-ctx.Done():
				q.requeue(v)
				return
			}
		}
	}()
	return out
}

// Close stops accepting items. Blocked senders return ErrClosed.
func (q *Queue[T]) Close() {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for _, w := range q.waiters {
		close(w.ready)
	}
	q.waiters = nil
	q.notEmpty = signal(q.notEmpty)
}
