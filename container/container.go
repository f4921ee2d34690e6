package container

import (
	"context"
	"errors"
)

// Container owns one state value, one side-effect queue and the dispatch loop
// that launches intents against them.
//
// A stream stays open, and keeps its goroutine, until the ctx it was opened
// with is done or the container is cancelled. Observers that detach before
// the container ends must pass a ctx they cancel.
type Container[S, SE any] interface {
	// Settings returns the immutable container configuration.
	Settings() Settings
	// State returns the current state without blocking.
	State() S
	// StateStream emits the current state and every distinct state after it.
	StateStream(ctx context.Context) <-chan S
	// SideEffectStream delivers side effects in posting order to the active collector.
	SideEffectStream(ctx context.Context) <-chan SE
	// RefCountStateStream is StateStream that counts as a subscription while ctx lives.
	RefCountStateStream(ctx context.Context) <-chan S
	// RefCountSideEffectStream is SideEffectStream that counts as a subscription while ctx lives.
	RefCountSideEffectStream(ctx context.Context) <-chan SE
	// Orbit queues intent and returns its job immediately.
	Orbit(intent Intent[S, SE]) *Job
	// InlineOrbit runs intent on the calling goroutine and returns its error.
	InlineOrbit(ctx context.Context, intent Intent[S, SE]) error
	// Cancel stops the dispatch loop and every in-flight intent.
	Cancel()
	// JoinIntents waits for every intent tracked at call time.
	JoinIntents(ctx context.Context) error
	// Done is closed once the container is cancelled.
	Done() <-chan struct{}
	// Err returns the cancellation cause, or nil while running.
	Err() error
}

// Host is anything that exposes a container, typically a view model whose
// methods submit intents.
type Host[S, SE any] interface {
	Container() Container[S, SE]
}

// Decorator wraps another container by delegation.
type Decorator[S, SE any] interface {
	Container[S, SE]
	Actual() Container[S, SE]
}

// Switchable lets the wrapped container be substituted at runtime, which is
// how test harnesses take over a host's container.
type Switchable[S, SE any] interface {
	Decorator[S, SE]
	Delegate() Container[S, SE]
	Swap(next Container[S, SE]) (previous Container[S, SE])
}

// New builds the production container chain for initial. When onCreate is not
// nil it runs once, lazily, on first observation or interaction.
func New[S, SE any](ctx context.Context, initial S, onCreate Intent[S, SE], opts ...Option) (Container[S, SE], error) {
	settings, err := NewSettings(opts...)
	if err != nil {
		return nil, err
	}
	rc, err := NewRealContainer[S, SE](ctx, initial, settings)
	if err != nil {
		return nil, err
	}
	var actual Container[S, SE] = rc
	if onCreate != nil {
		actual = NewLazyCreate(actual, onCreate)
	}
	return NewSwitchable(actual), nil
}

// Find walks the decorator chain of c and returns the first container of type T.
func Find[T any, S, SE any](c Container[S, SE]) (T, bool) {
	for c != nil {
		if match, ok := c.(T); ok {
			return match, true
		}
		dec, ok := c.(Decorator[S, SE])
		if !ok {
			break
		}
		c = dec.Actual()
	}
	var zero T
	return zero, false
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrCancelled)
}
