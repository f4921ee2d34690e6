package container

import (
	"context"
	"sync"
)

// SwitchableContainer forwards to a delegate that can be replaced at runtime.
// Streams and jobs obtained before a swap stay bound to the old delegate.
type SwitchableContainer[S, SE any] struct {
	mu       sync.RWMutex
	delegate Container[S, SE]
}

var _ Switchable[int, int] = (*SwitchableContainer[int, int])(nil)

// NewSwitchable wraps actual.
func NewSwitchable[S, SE any](actual Container[S, SE]) *SwitchableContainer[S, SE] {
	return &SwitchableContainer[S, SE]{delegate: actual}
}

// Delegate returns the container calls are currently forwarded to.
func (c *SwitchableContainer[S, SE]) Delegate() Container[S, SE] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.delegate
}

// Actual is Delegate, satisfying Decorator.
func (c *SwitchableContainer[S, SE]) Actual() Container[S, SE] { return c.Delegate() }

// Swap installs next and returns the previous delegate.
func (c *SwitchableContainer[S, SE]) Swap(next Container[S, SE]) Container[S, SE] {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous := c.delegate
	c.delegate = next
	return previous
}

func (c *SwitchableContainer[S, SE]) Settings() Settings { return c.Delegate().Settings() }
func (c *SwitchableContainer[S, SE]) State() S           { return c.Delegate().State() }

func (c *SwitchableContainer[S, SE]) StateStream(ctx context.Context) <-chan S {
	return c.Delegate().StateStream(ctx)
}

func (c *SwitchableContainer[S, SE]) SideEffectStream(ctx context.Context) <-chan SE {
	return c.Delegate().SideEffectStream(ctx)
}

func (c *SwitchableContainer[S, SE]) RefCountStateStream(ctx context.Context) <-chan S {
	return c.Delegate().RefCountStateStream(ctx)
}

func (c *SwitchableContainer[S, SE]) RefCountSideEffectStream(ctx context.Context) <-chan SE {
	return c.Delegate().RefCountSideEffectStream(ctx)
}

func (c *SwitchableContainer[S, SE]) Orbit(intent Intent[S, SE]) *Job {
	return c.Delegate().Orbit(intent)
}

func (c *SwitchableContainer[S, SE]) InlineOrbit(ctx context.Context, intent Intent[S, SE]) error {
	return c.Delegate().InlineOrbit(ctx, intent)
}

func (c *SwitchableContainer[S, SE]) Cancel()                                { c.Delegate().Cancel() }
func (c *SwitchableContainer[S, SE]) JoinIntents(ctx context.Context) error { return c.Delegate().JoinIntents(ctx) }
func (c *SwitchableContainer[S, SE]) Done() <-chan struct{}                  { return c.Delegate().Done() }
func (c *SwitchableContainer[S, SE]) Err() error                             { return c.Delegate().Err() }

// SwapContainer replaces the delegate of c when it is switchable.
func SwapContainer[S, SE any](c Container[S, SE], next Container[S, SE]) (Container[S, SE], error) {
	sw, ok := Find[Switchable[S, SE]](c)
	if !ok {
		return nil, ErrNotSwitchable
	}
	return sw.Swap(next), nil
}
