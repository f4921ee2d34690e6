package activity

import (
	"context"
	"sync"
	"time"
)

// Tracker captures intent activity, typically to tell instrumentation whether a
// container is idle.
//
// Callers must guard against a nil tracker. Implementations must be safe for
// concurrent use and cheap to call because hooks run on the intent path.
type Tracker interface {
	RecordIntentStart(intentID string, ts time.Time)
	RecordIntentEnd(intentID string, ts time.Time, err error)
}

// Snapshot summarises the activity seen by an IdlingRegistry.
type Snapshot struct {
	Active    int
	Started   uint64
	Completed uint64
	Failed    uint64
	LastStart time.Time
	LastEnd   time.Time
}

// IdlingRegistry counts in-flight intents and lets callers wait until none are
// running. It plays the role of an idling resource for UI test frameworks.
type IdlingRegistry struct {
	mu        sync.Mutex
	active    map[string]time.Time
	started   uint64
	completed uint64
	failed    uint64
	lastStart time.Time
	lastEnd   time.Time
	idle      chan struct{}
}

var _ Tracker = (*IdlingRegistry)(nil)

// NewIdlingRegistry returns an idle registry.
func NewIdlingRegistry() *IdlingRegistry {
	idle := make(chan struct{})
	close(idle)
	return &IdlingRegistry{
		active: make(map[string]time.Time),
		idle:   idle,
	}
}

// RecordIntentStart marks an intent as busy.
func (r *IdlingRegistry) RecordIntentStart(intentID string, ts time.Time) {
	if r == nil || intentID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[intentID]; ok {
		return
	}
	if len(r.active) == 0 {
		r.idle = make(chan struct{})
	}
	r.active[intentID] = ts
	r.started++
	r.lastStart = ts
}

// RecordIntentEnd marks an intent as finished.
func (r *IdlingRegistry) RecordIntentEnd(intentID string, ts time.Time, err error) {
	if r == nil || intentID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[intentID]; !ok {
		return
	}
	delete(r.active, intentID)
	r.completed++
	if err != nil {
		r.failed++
	}
	r.lastEnd = ts
	if len(r.active) == 0 {
		close(r.idle)
	}
}

// Idle reports whether no intent is running.
func (r *IdlingRegistry) Idle() bool {
	if r == nil {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active) == 0
}

// WaitIdle blocks until no intent is running or ctx is done.
func (r *IdlingRegistry) WaitIdle(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	idle := r.idle
	r.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current counters.
func (r *IdlingRegistry) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Active:    len(r.active),
		Started:   r.started,
		Completed: r.completed,
		Failed:    r.failed,
		LastStart: r.lastStart,
		LastEnd:   r.lastEnd,
	}
}
