package container

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newIntercepting(t *testing.T, initial string, opts ...Option) *InterceptingContainer[string, int] {
	t.Helper()
	settings, err := NewSettings(opts...)
	require.NoError(t, err)
	c, err := NewInterceptingContainer[string, int](context.Background(), initial, settings)
	require.NoError(t, err)
	t.Cleanup(c.Cancel)
	return c
}

func TestInterceptingRunsCapturedIntentsInOrder(t *testing.T) {
	c := newIntercepting(t, "")
	ctx := testContext(t)

	set := func(v string, effect int) Intent[string, int] {
		return func(s *Syntax[string, int]) error {
			if err := s.Reduce(func(string) string { return v }); err != nil {
				return err
			}
			return s.PostSideEffect(effect)
		}
	}
	first := c.Orbit(set("a", 1))
	second := c.Orbit(set("b", 2))
	require.Equal(t, 2, c.Pending())
	require.Equal(t, "", c.State())

	ran, err := c.RunNext(ctx)
	require.True(t, ran)
	require.NoError(t, err)
	require.NoError(t, first.Err())
	require.Equal(t, "a", c.State())

	ran, err = c.RunNext(ctx)
	require.True(t, ran)
	require.NoError(t, err)
	require.NoError(t, second.Join(ctx))

	ran, err = c.RunNext(ctx)
	require.False(t, ran)
	require.NoError(t, err)

	require.Equal(t, []string{"", "a", "b"}, c.RecordedStates())
	require.Equal(t, []int{1, 2}, c.RecordedSideEffects())

	effects := c.SideEffectStream(ctx)
	require.Equal(t, 1, receive(t, effects))
	require.Equal(t, 2, receive(t, effects))
}

func TestInterceptingDiscard(t *testing.T) {
	c := newIntercepting(t, "x")

	job := c.Orbit(func(s *Syntax[string, int]) error {
		return s.Reduce(func(string) string { return "never" })
	})
	require.Equal(t, 1, c.Discard())
	require.Zero(t, c.Pending())
	require.ErrorIs(t, job.Err(), ErrIntentDiscarded)
	require.Equal(t, "x", c.State())
}

func TestInterceptingReportsFailures(t *testing.T) {
	var handled error
	c := newIntercepting(t, "", WithExceptionHandler(func(err error) { handled = err }))
	ctx := testContext(t)

	boom := errors.New("boom")
	job := c.Orbit(func(*Syntax[string, int]) error { return boom })
	ran, err := c.RunNext(ctx)
	require.True(t, ran)
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, handled, boom)
	require.ErrorIs(t, job.Err(), boom)
}

func TestInterceptingCancelDiscardsPending(t *testing.T) {
	c := newIntercepting(t, "")
	ctx := testContext(t)

	job := c.Orbit(func(*Syntax[string, int]) error { return nil })
	c.Cancel()

	require.Error(t, job.Join(ctx))
	require.Zero(t, c.Pending())
	require.ErrorIs(t, c.Err(), ErrCancelled)
	require.ErrorIs(t, c.Orbit(func(*Syntax[string, int]) error { return nil }).Err(), ErrCancelled)
}
