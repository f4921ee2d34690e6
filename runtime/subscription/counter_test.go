package subscription

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func nextStatus(t *testing.T, ch <-chan Status) Status {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for status")
	}
	return Unsubscribed
}

func TestCounterAnnouncesTransitions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	counter := NewCounter(ctx, 0)
	stream := counter.Stream(ctx)
	require.Equal(t, Unsubscribed, nextStatus(t, stream))

	counter.Increment()
	require.Equal(t, Subscribed, nextStatus(t, stream))
	counter.Increment()
	require.Equal(t, 2, counter.Count())

	counter.Decrement()
	require.Equal(t, Subscribed, counter.Status())
	counter.Decrement()
	require.Equal(t, Unsubscribed, nextStatus(t, stream))
	require.Equal(t, 0, counter.Count())
}

func TestCounterGracePeriodAbsorbsResubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	counter := NewCounter(ctx, 100*time.Millisecond)

	counter.Increment()
	require.Equal(t, Subscribed, counter.Status())
	counter.Decrement()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, Subscribed, counter.Status(), "stop must wait for the grace period")
	counter.Increment()

	time.Sleep(150 * time.Millisecond)
	require.Equal(t, Subscribed, counter.Status(), "resubscribe must cancel the pending stop")
}

func TestCounterAnnouncesUnsubscribedAfterTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	counter := NewCounter(ctx, 30*time.Millisecond)
	counter.Increment()
	counter.Decrement()
	require.Eventually(t, func() bool {
		return counter.Status() == Unsubscribed
	}, time.Second, 5*time.Millisecond)
}

func TestCounterIgnoresExtraDecrement(t *testing.T) {
	counter := NewCounter(context.Background(), 0)
	counter.Decrement()
	require.Equal(t, 0, counter.Count())
	counter.Increment()
	require.Equal(t, 1, counter.Count())
	require.Equal(t, Subscribed, counter.Status())
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "subscribed", Subscribed.String())
	require.Equal(t, "unsubscribed", Unsubscribed.String())
}
