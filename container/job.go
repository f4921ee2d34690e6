package container

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Job is the handle of a submitted intent.
type Job struct {
	id     string
	name   string
	ctx    context.Context
	cancel context.CancelCauseFunc

	once sync.Once
	done chan struct{}
	err  error
}

func newJob(parent context.Context, name string) *Job {
	ctx, cancel := context.WithCancelCause(parent)
	return &Job{
		id:     uuid.NewString(),
		name:   name,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID returns the unique identifier of the job.
func (j *Job) ID() string { return j.id }

// Name returns the human readable job name, e.g. "orbit-intent-3".
func (j *Job) Name() string { return j.name }

// Context is cancelled when the job or its container is cancelled.
func (j *Job) Context() context.Context { return j.ctx }

// Cancel requests cancellation. An intent that has not started yet never runs.
func (j *Job) Cancel() {
	j.cancel(context.Canceled)
}

// Done is closed once the intent completed, failed or was cancelled.
func (j *Job) Done() <-chan struct{} { return j.done }

// Err returns the outcome after Done is closed: nil on success, the failure,
// or a cancellation error.
func (j *Job) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

// Join waits for the job to complete and returns its outcome.
func (j *Job) Join(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Job) complete(err error) {
	j.once.Do(func() {
		j.err = err
		close(j.done)
		j.cancel(context.Canceled)
	})
}

// cancelled reports whether err is a cancellation of this job rather than a failure.
func (j *Job) cancelled(err error) bool {
	if err == nil || j.ctx.Err() == nil {
		return false
	}
	return isCancellation(err) || errors.Is(err, context.Cause(j.ctx))
}
