// Package orbittest swaps a host's container for an intercepting one so intents
// can be run one at a time and their states and side effects asserted.
package orbittest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timzifer/orbit/container"
)

// ErrOnCreateAlreadyRun is returned by a second RunOnCreate call.
var ErrOnCreateAlreadyRun = errors.New("orbittest: on-create intent already run")

type options struct {
	initial    any
	hasInitial bool
	isolated   bool
	ctx        context.Context
}

// Option configures a harness.
type Option func(*options)

// WithInitialState seeds the intercepting container with state instead of the
// host's current state. The value must have the host's state type.
func WithInitialState(state any) Option {
	return func(o *options) {
		o.initial = state
		o.hasInitial = true
	}
}

// WithIsolation controls whether Invoke runs only the first intent a host
// method submits (true, the default) or every intent until none is pending.
func WithIsolation(isolated bool) Option {
	return func(o *options) {
		o.isolated = isolated
	}
}

// WithContext sets the context intents run under.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		o.ctx = ctx
	}
}

// Harness drives a host whose container has been replaced by an
// intercepting container.
type Harness[S, SE any] struct {
	tb       testing.TB
	ctx      context.Context
	isolated bool
	initial  S

	intercepting *container.InterceptingContainer[S, SE]
	switchable   container.Switchable[S, SE]
	previous     container.Container[S, SE]
	onCreate     container.Intent[S, SE]
	onCreateRun  atomic.Bool
	closeOnce    sync.Once
}

// Test takes over the container of host. The original container is restored
// when the test finishes or Close is called.
func Test[S, SE any](tb testing.TB, host container.Host[S, SE], opts ...Option) *Harness[S, SE] {
	tb.Helper()
	cfg := options{isolated: true, ctx: context.Background()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	current := host.Container()
	switchable, ok := container.Find[container.Switchable[S, SE]](current)
	if !ok {
		tb.Fatalf("orbittest: %v", container.ErrNotSwitchable)
	}

	initial := current.State()
	if cfg.hasInitial {
		typed, ok := cfg.initial.(S)
		if !ok {
			tb.Fatalf("orbittest: initial state has type %T, want %T", cfg.initial, initial)
		}
		initial = typed
	}

	h := &Harness[S, SE]{
		tb:         tb,
		ctx:        cfg.ctx,
		isolated:   cfg.isolated,
		initial:    initial,
		switchable: switchable,
	}
	if lazy, ok := container.Find[*container.LazyCreate[S, SE]](current); ok {
		h.onCreate = lazy.OnCreate()
	}

	intercepting, err := container.NewInterceptingContainer[S, SE](cfg.ctx, initial, current.Settings())
	if err != nil {
		tb.Fatalf("orbittest: %v", err)
	}
	h.intercepting = intercepting
	h.previous = switchable.Swap(intercepting)
	tb.Cleanup(h.Close)
	return h
}

// Container returns the intercepting container installed on the host.
func (h *Harness[S, SE]) Container() *container.InterceptingContainer[S, SE] {
	return h.intercepting
}

// RunOnCreate runs the host's on-create intent. A host without one is a no-op.
func (h *Harness[S, SE]) RunOnCreate() error {
	if !h.onCreateRun.CompareAndSwap(false, true) {
		return ErrOnCreateAlreadyRun
	}
	if h.onCreate == nil {
		return nil
	}
	h.intercepting.Orbit(h.onCreate)
	return h.drain()
}

// Invoke calls fn, typically a host method, and runs the intents it submitted.
func (h *Harness[S, SE]) Invoke(fn func()) error {
	before := h.intercepting.Pending()
	fn()
	if h.intercepting.Pending() == before {
		return fmt.Errorf("orbittest: no intent was submitted")
	}
	return h.drain()
}

func (h *Harness[S, SE]) drain() error {
	if h.isolated {
		_, err := h.intercepting.RunNext(h.ctx)
		h.intercepting.Discard()
		return err
	}
	var errs []error
	for {
		ran, err := h.intercepting.RunNext(h.ctx)
		if !ran {
			return errors.Join(errs...)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
}

// States returns every distinct state emitted after the initial one.
func (h *Harness[S, SE]) States() []S {
	recorded := h.intercepting.RecordedStates()
	if len(recorded) == 0 {
		return []S{}
	}
	return recorded[1:]
}

// SideEffects returns every posted side effect.
func (h *Harness[S, SE]) SideEffects() []SE {
	return h.intercepting.RecordedSideEffects()
}

// AssertStates expects the emitted states to be exactly the results of
// applying reducers one after another to the initial state.
func (h *Harness[S, SE]) AssertStates(reducers ...func(S) S) {
	h.tb.Helper()
	expected := make([]S, 0, len(reducers))
	current := h.initial
	for _, reduce := range reducers {
		current = reduce(current)
		expected = append(expected, current)
	}
	actual := h.States()
	if equal := h.intercepting.Settings().Equal; equal != nil && len(expected) == len(actual) {
		matched := true
		for i := range expected {
			if !equal(expected[i], actual[i]) {
				matched = false
				break
			}
		}
		if matched {
			return
		}
	}
	require.Equal(h.tb, expected, actual)
}

// AssertSideEffects expects exactly the given side effects in order.
func (h *Harness[S, SE]) AssertSideEffects(expected ...SE) {
	h.tb.Helper()
	actual := h.SideEffects()
	if len(expected) == 0 {
		require.Empty(h.tb, actual)
		return
	}
	require.Equal(h.tb, expected, actual)
}

// Close restores the original container and cancels the intercepting one.
func (h *Harness[S, SE]) Close() {
	h.closeOnce.Do(func() {
		h.switchable.Swap(h.previous)
		h.intercepting.Cancel()
	})
}
