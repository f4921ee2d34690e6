package activity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIdlingRegistryTracksActiveIntents(t *testing.T) {
	reg := NewIdlingRegistry()
	if !reg.Idle() {
		t.Fatalf("expected new registry to be idle")
	}

	ts := time.Unix(10, 0)
	reg.RecordIntentStart("a", ts)
	reg.RecordIntentStart("b", ts)
	if reg.Idle() {
		t.Fatalf("expected registry to be busy")
	}

	reg.RecordIntentEnd("a", ts.Add(time.Second), nil)
	reg.RecordIntentEnd("b", ts.Add(2*time.Second), errors.New("boom"))
	if !reg.Idle() {
		t.Fatalf("expected registry to be idle again")
	}

	snap := reg.Snapshot()
	if snap.Started != 2 || snap.Completed != 2 || snap.Failed != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if !snap.LastEnd.Equal(ts.Add(2 * time.Second)) {
		t.Fatalf("unexpected last end: %v", snap.LastEnd)
	}
}

func TestIdlingRegistryIgnoresUnknownAndDuplicateIDs(t *testing.T) {
	reg := NewIdlingRegistry()
	reg.RecordIntentEnd("missing", time.Now(), nil)
	reg.RecordIntentStart("", time.Now())
	reg.RecordIntentStart("a", time.Now())
	reg.RecordIntentStart("a", time.Now())
	if snap := reg.Snapshot(); snap.Started != 1 || snap.Active != 1 || snap.Completed != 0 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestIdlingRegistryWaitIdle(t *testing.T) {
	reg := NewIdlingRegistry()
	reg.RecordIntentStart("a", time.Now())

	done := make(chan error, 1)
	go func() { done <- reg.WaitIdle(context.Background()) }()

	select {
	case <-done:
		t.Fatalf("WaitIdle returned while busy")
	case <-time.After(20 * time.Millisecond):
	}
	reg.RecordIntentEnd("a", time.Now(), nil)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitIdle: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("WaitIdle did not return after intents finished")
	}

	reg.RecordIntentStart("b", time.Now())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := reg.WaitIdle(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestNilIdlingRegistryIsIdle(t *testing.T) {
	var reg *IdlingRegistry
	reg.RecordIntentStart("a", time.Now())
	if !reg.Idle() {
		t.Fatalf("nil registry must report idle")
	}
	if err := reg.WaitIdle(context.Background()); err != nil {
		t.Fatalf("WaitIdle on nil registry: %v", err)
	}
}
