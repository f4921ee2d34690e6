package container

import (
	"context"
	"sync/atomic"
)

// LazyCreate submits an on-create intent the first time the container is
// observed or used.
type LazyCreate[S, SE any] struct {
	actual   Container[S, SE]
	onCreate Intent[S, SE]
	created  atomic.Bool
}

var _ Decorator[int, int] = (*LazyCreate[int, int])(nil)

// NewLazyCreate wraps actual.
func NewLazyCreate[S, SE any](actual Container[S, SE], onCreate Intent[S, SE]) *LazyCreate[S, SE] {
	return &LazyCreate[S, SE]{actual: actual, onCreate: onCreate}
}

// Actual returns the wrapped container.
func (l *LazyCreate[S, SE]) Actual() Container[S, SE] { return l.actual }

// OnCreate returns the on-create intent.
func (l *LazyCreate[S, SE]) OnCreate() Intent[S, SE] { return l.onCreate }

// Created reports whether the on-create intent has been submitted.
func (l *LazyCreate[S, SE]) Created() bool { return l.created.Load() }

// RunOnCreate submits the on-create intent unless that already happened. The
// returned job is nil when nothing was submitted.
func (l *LazyCreate[S, SE]) RunOnCreate() *Job {
	if l.onCreate == nil || !l.created.CompareAndSwap(false, true) {
		return nil
	}
	return l.actual.Orbit(l.onCreate)
}

func (l *LazyCreate[S, SE]) Settings() Settings { return l.actual.Settings() }
func (l *LazyCreate[S, SE]) State() S           { return l.actual.State() }

func (l *LazyCreate[S, SE]) StateStream(ctx context.Context) <-chan S {
	l.RunOnCreate()
	return l.actual.StateStream(ctx)
}

func (l *LazyCreate[S, SE]) SideEffectStream(ctx context.Context) <-chan SE {
	l.RunOnCreate()
	return l.actual.SideEffectStream(ctx)
}

func (l *LazyCreate[S, SE]) RefCountStateStream(ctx context.Context) <-chan S {
	l.RunOnCreate()
	return l.actual.RefCountStateStream(ctx)
}

func (l *LazyCreate[S, SE]) RefCountSideEffectStream(ctx context.Context) <-chan SE {
	l.RunOnCreate()
	return l.actual.RefCountSideEffectStream(ctx)
}

func (l *LazyCreate[S, SE]) Orbit(intent Intent[S, SE]) *Job {
	l.RunOnCreate()
	return l.actual.Orbit(intent)
}

// InlineOrbit does not wait for the on-create intent to finish.
func (l *LazyCreate[S, SE]) InlineOrbit(ctx context.Context, intent Intent[S, SE]) error {
	l.RunOnCreate()
	return l.actual.InlineOrbit(ctx, intent)
}

func (l *LazyCreate[S, SE]) Cancel()                                { l.actual.Cancel() }
func (l *LazyCreate[S, SE]) JoinIntents(ctx context.Context) error { return l.actual.JoinIntents(ctx) }
func (l *LazyCreate[S, SE]) Done() <-chan struct{}                  { return l.actual.Done() }
func (l *LazyCreate[S, SE]) Err() error                             { return l.actual.Err() }
