package container

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/timzifer/orbit/runtime/subscription"
)

// Intent is a unit of work submitted to a container.
type Intent[S, SE any] func(s *Syntax[S, SE]) error

// Context bundles the capabilities a container hands to running intents.
// Containers and decorators build it; intents only see it through Syntax.
type Context[S, SE any] struct {
	Settings       Settings
	State          func() S
	Reduce         func(reducer func(S) S)
	// PostSideEffect enqueues se. blocked is called once se is waiting for
	// buffer space, after earlier waiting posts and before later ones.
	PostSideEffect func(ctx context.Context, se SE, blocked func()) error
	Subscriptions  *subscription.Counter
}

// Syntax is what an intent body works with: state access, reduction, side
// effects and the suspension helpers.
//
// The helpers Delay, Suspend, Join, RepeatOnSubscription and a PostSideEffect
// that has to wait for buffer space are suspension points: reaching one lets
// the dispatch loop move on to the next queued intent. Work that blocks
// outside of them keeps the loop waiting.
type Syntax[S, SE any] struct {
	ctx context.Context
	cc  *Context[S, SE]
	job *Job

	parkOnce sync.Once
	parked   chan struct{}
	// outer parks the dispatched intent this syntax runs inside of, if any.
	outer func()
}

type parkKey struct{}

// NewSyntax builds a syntax bound to ctx. Used by containers that execute
// intents on the caller's goroutine. When ctx descends from a dispatched
// intent's context, suspending here releases the dispatch loop just like
// suspending in that intent does.
func NewSyntax[S, SE any](ctx context.Context, cc *Context[S, SE]) *Syntax[S, SE] {
	s := &Syntax[S, SE]{ctx: ctx, cc: cc}
	if outer, ok := ctx.Value(parkKey{}).(func()); ok {
		s.outer = outer
	}
	return s
}

func newJobSyntax[S, SE any](cc *Context[S, SE], job *Job) *Syntax[S, SE] {
	s := &Syntax[S, SE]{cc: cc, job: job, parked: make(chan struct{})}
	s.ctx = context.WithValue(job.ctx, parkKey{}, s.park)
	return s
}

func (s *Syntax[S, SE]) park() {
	if s.parked == nil {
		if s.outer != nil {
			s.outer()
		}
		return
	}
	s.parkOnce.Do(func() { close(s.parked) })
}

// Context returns the intent's context; it is cancelled with the job or the container.
func (s *Syntax[S, SE]) Context() context.Context { return s.ctx }

// Job returns the job running this intent, or nil for inline execution.
func (s *Syntax[S, SE]) Job() *Job { return s.job }

// Settings returns the container settings.
func (s *Syntax[S, SE]) Settings() Settings { return s.cc.Settings }

// State returns the current state.
func (s *Syntax[S, SE]) State() S { return s.cc.State() }

// Reduce atomically replaces the state with reducer(state). A cancelled intent
// never applies its reducer.
func (s *Syntax[S, SE]) Reduce(reducer func(S) S) error {
	if err := s.ctx.Err(); err != nil {
		return context.Cause(s.ctx)
	}
	s.cc.Reduce(reducer)
	return nil
}

// PostSideEffect enqueues se. It only suspends when the side-effect buffer is full.
func (s *Syntax[S, SE]) PostSideEffect(se SE) error {
	if err := s.ctx.Err(); err != nil {
		return context.Cause(s.ctx)
	}
	return s.cc.PostSideEffect(s.ctx, se, s.park)
}

// Delay suspends the intent for d.
func (s *Syntax[S, SE]) Delay(d time.Duration) error {
	s.park()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-s.ctx.Done():
		return context.Cause(s.ctx)
	}
}

// Suspend runs blocking work without holding up the dispatch loop.
func (s *Syntax[S, SE]) Suspend(fn func(ctx context.Context) error) error {
	s.park()
	return fn(s.ctx)
}

// Join suspends until job completes and returns its outcome.
func (s *Syntax[S, SE]) Join(job *Job) error {
	if job == nil {
		return nil
	}
	s.park()
	return job.Join(s.ctx)
}

// SubIntent runs another intent inline with the same syntax, preserving call order.
func (s *Syntax[S, SE]) SubIntent(intent Intent[S, SE]) error {
	if intent == nil {
		return ErrNilIntent
	}
	return intent(s)
}

// RepeatOnSubscription runs block while at least one ref-counted observer is
// attached. The block is cancelled when the container announces Unsubscribed
// and restarted on the next Subscribed. It returns when the intent is
// cancelled or the block fails.
func (s *Syntax[S, SE]) RepeatOnSubscription(block func(ctx context.Context) error) error {
	s.park()
	if s.cc.Subscriptions == nil {
		return errors.New("container does not track subscriptions")
	}
	statuses := s.cc.Subscriptions.Stream(s.ctx)

	var (
		stop   context.CancelFunc
		result chan error
	)
	halt := func() {
		if stop == nil {
			return
		}
		stop()
		<-result
		stop, result = nil, nil
	}
	defer halt()

	for {
		select {
		case status, ok := <-statuses:
			if !ok {
				return context.Cause(s.ctx)
			}
			halt()
			if status != subscription.Subscribed {
				continue
			}
			runCtx, cancel := context.WithCancel(s.ctx)
			done := make(chan error, 1)
			go func() { done <- block(runCtx) }()
			stop, result = cancel, done
		case err := <-result:
			// the block finished on its own; wait for the next subscription
			stop()
			stop, result = nil, nil
			if err != nil && !isCancellation(err) {
				return err
			}
		case <-s.ctx.Done():
			return context.Cause(s.ctx)
		}
	}
}

// RunOn calls block with the current state when it holds a T.
func RunOn[T any, S, SE any](s *Syntax[S, SE], block func(current T) error) error {
	current, ok := any(s.State()).(T)
	if !ok {
		return nil
	}
	return block(current)
}
