package container

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/orbit/runtime/queue"
	"github.com/timzifer/orbit/runtime/state"
	"github.com/timzifer/orbit/runtime/subscription"
	"github.com/timzifer/orbit/telemetry"
)

type dispatchRequest[S, SE any] struct {
	job    *Job
	intent Intent[S, SE]
}

// RealContainer is the dispatch engine behind every production container.
//
// Intents submitted through Orbit are queued on an unbounded channel and
// launched one by one by a single loop goroutine. The loop waits for each
// launched intent to finish or reach a suspension point before it dequeues the
// next, so reductions made before an intent first suspends are applied before
// any later intent runs.
type RealContainer[S, SE any] struct {
	settings Settings
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc

	state       *state.Cell[S]
	sideEffects *queue.Queue[SE]
	dispatch    *queue.Queue[dispatchRequest[S, SE]]
	subscribers *subscription.Counter
	cc          *Context[S, SE]

	initialised atomic.Bool
	intentSeq   atomic.Uint64

	mu   sync.Mutex
	jobs map[string]*Job
}

var _ Container[int, int] = (*RealContainer[int, int])(nil)

// NewRealContainer constructs the engine. The container lives until ctx is
// done or Cancel is called.
func NewRealContainer[S, SE any](ctx context.Context, initial S, settings Settings) (*RealContainer[S, SE], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	settings = normalizeSettings(settings)
	sideEffects, err := queue.New[SE](settings.SideEffectBufferSize)
	if err != nil {
		return nil, fmt.Errorf("side effect queue: %w", err)
	}
	dispatch, err := queue.New[dispatchRequest[S, SE]](queue.Unlimited)
	if err != nil {
		return nil, fmt.Errorf("dispatch queue: %w", err)
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	c := &RealContainer[S, SE]{
		settings:    settings,
		logger:      settings.Logger.With().Str("component", "container").Str("container", settings.Name).Logger(),
		ctx:         runCtx,
		cancel:      cancel,
		state:       state.NewCell(initial, stateEquality[S](settings.Equal)),
		sideEffects: sideEffects,
		dispatch:    dispatch,
		subscribers: subscription.NewCounter(runCtx, settings.RepeatOnSubscribedStopTimeout),
		jobs:        make(map[string]*Job),
	}
	c.cc = &Context[S, SE]{
		Settings:       settings,
		State:          c.state.Get,
		Reduce:         c.reduce,
		PostSideEffect: c.postSideEffect,
		Subscriptions:  c.subscribers,
	}
	context.AfterFunc(runCtx, c.dispatch.Close)
	return c, nil
}

func normalizeSettings(s Settings) Settings {
	def := defaultSettings()
	if s.Name == "" {
		s.Name = def.Name
	}
	if s.SideEffectBufferSize == 0 {
		s.SideEffectBufferSize = def.SideEffectBufferSize
	}
	if s.EventLoopDispatcher == nil {
		s.EventLoopDispatcher = def.EventLoopDispatcher
	}
	if s.IntentDispatcher == nil {
		s.IntentDispatcher = def.IntentDispatcher
	}
	if s.RepeatOnSubscribedStopTimeout < 0 {
		s.RepeatOnSubscribedStopTimeout = 0
	}
	if s.Telemetry == nil {
		s.Telemetry = telemetry.Noop()
	}
	return s
}

// Settings returns the container configuration.
func (c *RealContainer[S, SE]) Settings() Settings { return c.settings }

// State returns the current state.
func (c *RealContainer[S, SE]) State() S { return c.state.Get() }

// Subscriptions exposes the ref-count of attached observers.
func (c *RealContainer[S, SE]) Subscriptions() *subscription.Counter { return c.subscribers }

// PendingSideEffects returns the number of buffered side effects.
func (c *RealContainer[S, SE]) PendingSideEffects() int { return c.sideEffects.Len() }

// Done is closed when the container is cancelled.
func (c *RealContainer[S, SE]) Done() <-chan struct{} { return c.ctx.Done() }

// Err returns the cancellation cause.
func (c *RealContainer[S, SE]) Err() error {
	if c.ctx.Err() == nil {
		return nil
	}
	return context.Cause(c.ctx)
}

// Cancel stops the container. Queued intents complete as cancelled.
func (c *RealContainer[S, SE]) Cancel() {
	c.cancel(ErrCancelled)
}

func (c *RealContainer[S, SE]) reduce(reducer func(S) S) {
	if _, changed := c.state.Update(reducer); changed {
		c.settings.Telemetry.IncStateUpdate(c.settings.Name)
	}
}

func (c *RealContainer[S, SE]) postSideEffect(ctx context.Context, se SE, blocked func()) error {
	if err := c.sideEffects.SendNotify(ctx, se, blocked); err != nil {
		return err
	}
	c.settings.Telemetry.IncSideEffectPosted(c.settings.Name)
	return nil
}

// streamScope derives a context that ends with either ctx or the container.
// Its registration on the container is dropped as soon as ctx is done.
func (c *RealContainer[S, SE]) streamScope(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	scoped, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(c.ctx, func() { cancel(context.Cause(c.ctx)) })
	context.AfterFunc(scoped, func() { stop() })
	return scoped
}

// scope is streamScope with a cancel func for callers that end it themselves.
func (c *RealContainer[S, SE]) scope(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := context.WithCancel(ctx)
	return c.streamScope(parent), cancel
}

func (c *RealContainer[S, SE]) attach(ctx context.Context) {
	c.subscribers.Increment()
	c.settings.Telemetry.SetSubscribers(c.settings.Name, c.subscribers.Count())
	context.AfterFunc(ctx, func() {
		c.subscribers.Decrement()
		c.settings.Telemetry.SetSubscribers(c.settings.Name, c.subscribers.Count())
	})
}

// StateStream emits the current state and every distinct state after it.
func (c *RealContainer[S, SE]) StateStream(ctx context.Context) <-chan S {
	return c.state.Subscribe(c.streamScope(ctx))
}

// SideEffectStream delivers side effects to the active collector.
func (c *RealContainer[S, SE]) SideEffectStream(ctx context.Context) <-chan SE {
	return c.sideEffects.Stream(c.streamScope(ctx))
}

// RefCountStateStream is StateStream that keeps the container subscribed while ctx lives.
func (c *RealContainer[S, SE]) RefCountStateStream(ctx context.Context) <-chan S {
	scoped := c.streamScope(ctx)
	c.attach(scoped)
	return c.state.Subscribe(scoped)
}

// RefCountSideEffectStream is SideEffectStream that keeps the container subscribed while ctx lives.
func (c *RealContainer[S, SE]) RefCountSideEffectStream(ctx context.Context) <-chan SE {
	scoped := c.streamScope(ctx)
	c.attach(scoped)
	return c.sideEffects.Stream(scoped)
}

// InlineOrbit runs intent on the calling goroutine, bypassing the queue.
func (c *RealContainer[S, SE]) InlineOrbit(ctx context.Context, intent Intent[S, SE]) error {
	if intent == nil {
		return ErrNilIntent
	}
	if c.ctx.Err() != nil {
		return context.Cause(c.ctx)
	}
	scoped, cancel := c.scope(ctx)
	defer cancel()
	return intent(NewSyntax(scoped, c.cc))
}

// Orbit queues intent and returns its job.
func (c *RealContainer[S, SE]) Orbit(intent Intent[S, SE]) *Job {
	job := newJob(c.ctx, fmt.Sprintf("orbit-intent-%d", c.intentSeq.Add(1)))
	if intent == nil {
		job.complete(ErrNilIntent)
		return job
	}
	if c.ctx.Err() != nil {
		job.complete(context.Cause(c.ctx))
		return job
	}
	c.track(job)
	c.initialiseIfNeeded()
	if err := c.dispatch.Send(context.Background(), dispatchRequest[S, SE]{job: job, intent: intent}); err != nil {
		c.untrack(job)
		job.complete(context.Cause(c.ctx))
	}
	return job
}

// JoinIntents waits for every intent that is queued or running at call time.
func (c *RealContainer[S, SE]) JoinIntents(ctx context.Context) error {
	c.mu.Lock()
	jobs := make([]*Job, 0, len(c.jobs))
	for _, job := range c.jobs {
		jobs = append(jobs, job)
	}
	c.mu.Unlock()
	for _, job := range jobs {
		select {
		case <-job.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (c *RealContainer[S, SE]) track(job *Job) {
	c.mu.Lock()
	c.jobs[job.id] = job
	c.mu.Unlock()
}

func (c *RealContainer[S, SE]) untrack(job *Job) {
	c.mu.Lock()
	delete(c.jobs, job.id)
	c.mu.Unlock()
}

func (c *RealContainer[S, SE]) initialiseIfNeeded() {
	if !c.initialised.CompareAndSwap(false, true) {
		return
	}
	c.logger.Debug().Msg("starting dispatch loop")
	c.settings.EventLoopDispatcher.Dispatch(c.loop)
}

func (c *RealContainer[S, SE]) loop() {
	for {
		req, err := c.dispatch.Receive(context.Background())
		if err != nil {
			c.logger.Debug().Msg("dispatch loop stopped")
			return
		}
		if req.job.ctx.Err() != nil {
			c.finish(req.job, time.Time{}, context.Cause(req.job.ctx))
			continue
		}
		c.launch(req)
	}
}

func (c *RealContainer[S, SE]) launch(req dispatchRequest[S, SE]) {
	s := newJobSyntax(c.cc, req.job)
	c.settings.Telemetry.IncIntentDispatched(c.settings.Name)
	c.settings.IntentDispatcher.Dispatch(func() { c.execute(s, req.intent) })
	select {
	case <-s.parked:
	case <-c.ctx.Done():
	}
}

func (c *RealContainer[S, SE]) execute(s *Syntax[S, SE], intent Intent[S, SE]) {
	job := s.job
	start := time.Now()
	if c.settings.IdlingRegistry != nil {
		c.settings.IdlingRegistry.RecordIntentStart(job.id, start)
	}
	var (
		err      error
		returned bool
	)
	defer func() {
		if !returned {
			if c.settings.ExceptionHandler != nil {
				if r := recover(); r != nil {
					err = &PanicError{Value: r, Stack: debug.Stack()}
				}
			} else {
				// the panic keeps unwinding once the job is released
				err = errors.New("intent panicked")
			}
		}
		c.finish(job, start, err)
		s.park()
	}()
	err = intent(s)
	returned = true
}

func (c *RealContainer[S, SE]) finish(job *Job, start time.Time, err error) {
	now := time.Now()
	name := c.settings.Name
	if !start.IsZero() {
		c.settings.Telemetry.ObserveIntentDuration(name, now.Sub(start))
	}

	var failure *IntentError
	switch {
	case err == nil:
	case job.cancelled(err):
		c.settings.Telemetry.IncIntentCancelled(name)
		c.logger.Debug().Str("job", job.name).Err(err).Msg("intent cancelled")
	default:
		c.settings.Telemetry.IncIntentFailed(name)
		failure = &IntentError{Container: name, JobID: job.id, JobName: job.name, Err: err}
		err = failure
	}

	if failure != nil {
		c.handleFailure(failure)
	}
	if c.settings.IdlingRegistry != nil && !start.IsZero() {
		var failed error
		if failure != nil {
			failed = failure
		}
		c.settings.IdlingRegistry.RecordIntentEnd(job.id, now, failed)
	}
	c.untrack(job)
	job.complete(err)
}

func (c *RealContainer[S, SE]) handleFailure(failure *IntentError) {
	if h := c.settings.ExceptionHandler; h != nil {
		h(failure)
		return
	}
	c.logger.Error().Err(failure.Err).Str("job", failure.JobName).Msg("unhandled intent failure, cancelling container")
	c.cancel(failure)
}
