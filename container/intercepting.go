package container

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/timzifer/orbit/runtime/queue"
	"github.com/timzifer/orbit/runtime/state"
	"github.com/timzifer/orbit/runtime/subscription"
)

type interceptedIntent[S, SE any] struct {
	job    *Job
	intent Intent[S, SE]
}

// InterceptingContainer captures submitted intents instead of launching them.
// Captured intents are executed one at a time on the caller's goroutine by
// RunNext, which makes intent ordering deterministic in tests. Every distinct
// state and every posted side effect is recorded.
type InterceptingContainer[S, SE any] struct {
	settings Settings
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc

	state       *state.Cell[S]
	sideEffects *queue.Queue[SE]
	subscribers *subscription.Counter
	cc          *Context[S, SE]
	stopListen  func()
	seq         int

	mu      sync.Mutex
	pending []interceptedIntent[S, SE]
	running map[string]*Job
	states  []S
	effects []SE
}

var _ Container[int, int] = (*InterceptingContainer[int, int])(nil)

// NewInterceptingContainer builds an intercepting container seeded with initial.
// The side-effect queue is always unbounded so recording never blocks.
func NewInterceptingContainer[S, SE any](ctx context.Context, initial S, settings Settings) (*InterceptingContainer[S, SE], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	settings = normalizeSettings(settings)
	sideEffects, err := queue.New[SE](queue.Unlimited)
	if err != nil {
		return nil, fmt.Errorf("side effect queue: %w", err)
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	c := &InterceptingContainer[S, SE]{
		settings:    settings,
		logger:      settings.Logger.With().Str("component", "intercepting_container").Str("container", settings.Name).Logger(),
		ctx:         runCtx,
		cancel:      cancel,
		state:       state.NewCell(initial, stateEquality[S](settings.Equal)),
		sideEffects: sideEffects,
		subscribers: subscription.NewCounter(runCtx, 0),
		running:     make(map[string]*Job),
	}
	c.stopListen = c.state.Listen(func(value S) {
		c.mu.Lock()
		c.states = append(c.states, value)
		c.mu.Unlock()
	})
	c.cc = &Context[S, SE]{
		Settings: settings,
		State:    c.state.Get,
		Reduce: func(reducer func(S) S) {
			c.state.Update(reducer)
		},
		PostSideEffect: func(_ context.Context, se SE, _ func()) error {
			c.record(se)
			return nil
		},
		Subscriptions: c.subscribers,
	}
	context.AfterFunc(runCtx, func() {
		c.stopListen()
		c.sideEffects.Close()
		c.Discard()
	})
	return c, nil
}

func (c *InterceptingContainer[S, SE]) record(se SE) {
	c.mu.Lock()
	c.effects = append(c.effects, se)
	c.mu.Unlock()
	c.sideEffects.TrySend(se)
}

func (c *InterceptingContainer[S, SE]) Settings() Settings { return c.settings }
func (c *InterceptingContainer[S, SE]) State() S           { return c.state.Get() }

// Pending returns the number of captured intents waiting for RunNext.
func (c *InterceptingContainer[S, SE]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// RecordedStates returns every distinct state so far, starting with the initial one.
func (c *InterceptingContainer[S, SE]) RecordedStates() []S {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]S(nil), c.states...)
}

// RecordedSideEffects returns every side effect posted so far.
func (c *InterceptingContainer[S, SE]) RecordedSideEffects() []SE {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SE(nil), c.effects...)
}

// Orbit captures intent. It runs only when RunNext reaches it.
func (c *InterceptingContainer[S, SE]) Orbit(intent Intent[S, SE]) *Job {
	c.mu.Lock()
	c.seq++
	job := newJob(c.ctx, fmt.Sprintf("orbit-intent-%d", c.seq))
	if intent == nil {
		c.mu.Unlock()
		job.complete(ErrNilIntent)
		return job
	}
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		job.complete(context.Cause(c.ctx))
		return job
	}
	c.pending = append(c.pending, interceptedIntent[S, SE]{job: job, intent: intent})
	c.mu.Unlock()
	c.logger.Debug().Str("job", job.name).Msg("intent captured")
	return job
}

// RunNext executes the oldest captured intent on the calling goroutine. It
// reports false when nothing was pending. The returned error is the intent's
// outcome; an installed exception handler sees failures as well.
func (c *InterceptingContainer[S, SE]) RunNext(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return false, nil
	}
	next := c.pending[0]
	c.pending = c.pending[1:]
	c.running[next.job.id] = next.job
	c.mu.Unlock()

	err := c.execute(ctx, next)

	c.mu.Lock()
	delete(c.running, next.job.id)
	c.mu.Unlock()
	return true, err
}

func (c *InterceptingContainer[S, SE]) execute(ctx context.Context, next interceptedIntent[S, SE]) error {
	job := next.job
	if ctx != nil {
		stop := context.AfterFunc(ctx, job.Cancel)
		defer stop()
	}
	if job.ctx.Err() != nil {
		err := context.Cause(job.ctx)
		job.complete(err)
		return err
	}
	err := next.intent(&Syntax[S, SE]{ctx: job.ctx, cc: c.cc, job: job})
	if err != nil && !job.cancelled(err) {
		err = &IntentError{Container: c.settings.Name, JobID: job.id, JobName: job.name, Err: err}
		if h := c.settings.ExceptionHandler; h != nil {
			h(err)
		}
	}
	job.complete(err)
	return err
}

// Discard drops every captured intent and completes them with
// ErrIntentDiscarded. It returns how many were dropped.
func (c *InterceptingContainer[S, SE]) Discard() int {
	c.mu.Lock()
	dropped := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, p := range dropped {
		p.job.complete(ErrIntentDiscarded)
	}
	return len(dropped)
}

// InlineOrbit runs intent immediately on the calling goroutine.
func (c *InterceptingContainer[S, SE]) InlineOrbit(ctx context.Context, intent Intent[S, SE]) error {
	if intent == nil {
		return ErrNilIntent
	}
	if c.ctx.Err() != nil {
		return context.Cause(c.ctx)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(context.Canceled)
	stop := context.AfterFunc(c.ctx, func() { cancel(context.Cause(c.ctx)) })
	defer stop()
	return intent(NewSyntax(runCtx, c.cc))
}

func (c *InterceptingContainer[S, SE]) streamContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	scoped, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(c.ctx, func() { cancel(context.Cause(c.ctx)) })
	context.AfterFunc(scoped, func() { stop() })
	return scoped
}

func (c *InterceptingContainer[S, SE]) StateStream(ctx context.Context) <-chan S {
	return c.state.Subscribe(c.streamContext(ctx))
}

func (c *InterceptingContainer[S, SE]) SideEffectStream(ctx context.Context) <-chan SE {
	return c.sideEffects.Stream(c.streamContext(ctx))
}

func (c *InterceptingContainer[S, SE]) RefCountStateStream(ctx context.Context) <-chan S {
	scoped := c.streamContext(ctx)
	c.subscribers.Increment()
	context.AfterFunc(scoped, c.subscribers.Decrement)
	return c.state.Subscribe(scoped)
}

func (c *InterceptingContainer[S, SE]) RefCountSideEffectStream(ctx context.Context) <-chan SE {
	scoped := c.streamContext(ctx)
	c.subscribers.Increment()
	context.AfterFunc(scoped, c.subscribers.Decrement)
	return c.sideEffects.Stream(scoped)
}

// Cancel stops the container and discards captured intents.
func (c *InterceptingContainer[S, SE]) Cancel() { c.cancel(ErrCancelled) }

// JoinIntents waits for intents currently executing in RunNext. Captured
// intents that have not been run are not waited for.
func (c *InterceptingContainer[S, SE]) JoinIntents(ctx context.Context) error {
	c.mu.Lock()
	jobs := make([]*Job, 0, len(c.running))
	for _, job := range c.running {
		jobs = append(jobs, job)
	}
	c.mu.Unlock()
	for _, job := range jobs {
		if err := job.Join(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (c *InterceptingContainer[S, SE]) Done() <-chan struct{} { return c.ctx.Done() }

func (c *InterceptingContainer[S, SE]) Err() error {
	if c.ctx.Err() == nil {
		return nil
	}
	return context.Cause(c.ctx)
}
