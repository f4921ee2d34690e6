package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -2, -10} {
		_, err := New[int](capacity)
		require.Error(t, err, "capacity %d", capacity)
	}
	q, err := New[int](Unlimited)
	require.NoError(t, err)
	require.Equal(t, Unlimited, q.Capacity())
}

func TestQueueFIFO(t *testing.T) {
	q, err := New[string](Unlimited)
	require.NoError(t, err)
	ctx := context.Background()
	for _, v := range []string{"a", "b", "c"} {
		require.NoError(t, q.Send(ctx, v))
	}
	require.Equal(t, 3, q.Len())
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Receive(ctx)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestQueueSendBlocksWhenFull(t *testing.T) {
	q, err := New[string](1)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, "first"))
	require.False(t, q.TrySend("nope"))

	sent := make(chan error, 1)
	go func() { sent <- q.Send(ctx, "second") }()

	select {
	case <-sent:
		t.Fatalf("second send must block while the buffer is full")
	case <-time.After(50 * time.Millisecond):
	}

	got, err := q.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "first", got)

	select {
	case err := <-sent:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatalf("second send did not resume after a slot freed")
	}
	got, err = q.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, "second", got)
}

func TestQueueSendHonoursContext(t *testing.T) {
	q, err := New[int](1)
	require.NoError(t, err)
	require.NoError(t, q.Send(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = q.Send(ctx, 2)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, q.Len())
}

func TestQueueCloseDrainsThenFails(t *testing.T) {
	q, err := New[int](Unlimited)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, 7))
	q.Close()
	require.ErrorIs(t, q.Send(ctx, 8), ErrClosed)

	got, err := q.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, 7, got)
	_, err = q.Receive(ctx)
	require.True(t, errors.Is(err, ErrClosed))
}

func TestQueueCloseReleasesBlockedSender(t *testing.T) {
	q, err := New[int](1)
	require.NoError(t, err)
	require.NoError(t, q.Send(context.Background(), 1))
	done := make(chan error, 1)
	go func() { done <- q.Send(context.Background(), 2) }()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatalf("sender not released by Close")
	}
}

func TestStreamBuffersUntilCollectorAttaches(t *testing.T) {
	q, err := New[int](Unlimited)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		require.True(t, q.TrySend(i))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := q.Stream(ctx)
	for i := 1; i <= 3; i++ {
		select {
		case got := <-stream:
			require.Equal(t, i, got)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %d", i)
		}
	}
}

func TestStreamRequeuesUndeliveredItem(t *testing.T) {
	q, err := New[int](Unlimited)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stream := q.Stream(ctx)
	require.True(t, q.TrySend(1))
	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	require.Eventually(t, func() bool { return q.Len() == 1 }, time.Second, time.Millisecond)
	_, open := <-stream
	require.False(t, open)

	got, err := q.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, got)
}

func TestBlockedSendersAreAdmittedInArrivalOrder(t *testing.T) {
	q, err := New[string](1)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, "x"))

	done := make(chan error, 2)
	go func() { done <- q.Send(ctx, "a") }()
	require.Eventually(t, func() bool { return q.Waiting() == 1 }, time.Second, time.Millisecond)
	go func() { done <- q.Send(ctx, "b") }()
	require.Eventually(t, func() bool { return q.Waiting() == 2 }, time.Second, time.Millisecond)

	require.False(t, q.TrySend("late"), "TrySend must not overtake waiting senders")

	for _, want := range []string{"x", "a", "b"} {
		got, err := q.Receive(ctx)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.NoError(t, <-done)
	require.NoError(t, <-done)
	require.Zero(t, q.Len())
	require.True(t, q.TrySend("late"))
}

func TestSendNotifyReportsBlocking(t *testing.T) {
	q, err := New[int](1)
	require.NoError(t, err)
	ctx := context.Background()

	calls := 0
	require.NoError(t, q.SendNotify(ctx, 1, func() { calls++ }))
	require.Zero(t, calls)

	blocked := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- q.SendNotify(ctx, 2, func() { close(blocked) }) }()
	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatalf("blocked callback not called for a full queue")
	}
	require.Equal(t, 1, q.Waiting())

	_, err = q.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, <-done)
	got, err := q.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, got)
}

func TestCancelledWaiterLeavesTheLine(t *testing.T) {
	q, err := New[int](1)
	require.NoError(t, err)
	require.NoError(t, q.Send(context.Background(), 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Send(ctx, 2) }()
	require.Eventually(t, func() bool { return q.Waiting() == 1 }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	require.Zero(t, q.Waiting())

	_, err = q.Receive(context.Background())
	require.NoError(t, err)
	require.Zero(t, q.Len())
}
