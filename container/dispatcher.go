package container

// Dispatcher decides where a unit of work runs. Dispatch must not run fn on the
// calling goroutine: the dispatch loop waits for intents it launched.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(fn func())

// Dispatch calls f(fn).
func (f DispatcherFunc) Dispatch(fn func()) { f(fn) }

// Goroutines runs every unit of work on its own goroutine.
var Goroutines Dispatcher = DispatcherFunc(func(fn func()) { go fn() })

// LimitedDispatcher runs work on goroutines but lets at most n of them execute
// at a time. Work waiting for a slot does not block Dispatch.
//
// Intents that wait on intents submitted after them can deadlock when every
// slot is taken; size the limit accordingly. Used for both the event loop and
// intents, the loop holds one slot for the container's lifetime, so such a
// dispatcher needs at least two slots.
type LimitedDispatcher struct {
	slots chan struct{}
}

// NewLimitedDispatcher builds a dispatcher with n slots. Values below one are
// treated as one.
func NewLimitedDispatcher(n int) *LimitedDispatcher {
	if n <= 0 {
		n = 1
	}
	return &LimitedDispatcher{slots: make(chan struct{}, n)}
}

// Dispatch schedules fn once a slot is free.
func (d *LimitedDispatcher) Dispatch(fn func()) {
	go func() {
		d.slots <- struct{}{}
		defer func() { <-d.slots }()
		fn()
	}()
}

// Limit returns the number of slots.
func (d *LimitedDispatcher) Limit() int {
	return cap(d.slots)
}

// Active returns how many slots are taken.
func (d *LimitedDispatcher) Active() int {
	return len(d.slots)
}
