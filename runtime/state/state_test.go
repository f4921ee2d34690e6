package state

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"
)

type testState struct {
	ID   int
	Name string
}

func deepEqual(a, b testState) bool { return reflect.DeepEqual(a, b) }

func receive[S any](t *testing.T, ch <-chan S) S {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("stream closed unexpectedly")
		}
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for value")
	}
	var zero S
	return zero
}

func TestCellGetReturnsLatest(t *testing.T) {
	cell := NewCell(testState{ID: 1}, deepEqual)
	if got := cell.Get(); got.ID != 1 {
		t.Fatalf("expected initial id 1, got %d", got.ID)
	}
	next, changed := cell.Update(func(s testState) testState {
		s.ID = 5
		return s
	})
	if !changed || next.ID != 5 {
		t.Fatalf("expected change to id 5, got %+v (changed=%v)", next, changed)
	}
	if got := cell.Get(); got.ID != 5 {
		t.Fatalf("expected id 5, got %d", got.ID)
	}
	if cell.Updates() != 1 {
		t.Fatalf("expected 1 update, got %d", cell.Updates())
	}
}

func TestCellSuppressesEqualValues(t *testing.T) {
	cell := NewCell(testState{ID: 1}, deepEqual)
	var seen []testState
	stop := cell.Listen(func(s testState) { seen = append(seen, s) })
	defer stop()

	cell.Set(testState{ID: 1})
	cell.Set(testState{ID: 2})
	cell.Set(testState{ID: 2})
	cell.Set(testState{ID: 1})

	want := []testState{{ID: 1}, {ID: 2}, {ID: 1}}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("unexpected emissions: %+v", seen)
	}
}

func TestCellWithoutEqualityEmitsEveryUpdate(t *testing.T) {
	cell := NewCell(1, nil)
	count := 0
	stop := cell.Listen(func(int) { count++ })
	defer stop()
	cell.Set(1)
	cell.Set(1)
	if count != 3 {
		t.Fatalf("expected 3 emissions, got %d", count)
	}
}

func TestCellPanickingReducerLeavesValue(t *testing.T) {
	cell := NewCell(testState{ID: 3}, deepEqual)
	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		cell.Update(func(testState) testState { panic("boom") })
	}()
	if got := cell.Get(); got.ID != 3 {
		t.Fatalf("expected unchanged value, got %+v", got)
	}
	// the write lock must have been released
	cell.Set(testState{ID: 4})
}

func TestCellSubscribeDeliversInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cell := NewCell(0, func(a, b int) bool { return a == b })
	stream := cell.Subscribe(ctx)
	if got := receive(t, stream); got != 0 {
		t.Fatalf("expected initial 0, got %d", got)
	}
	for i := 1; i <= 50; i++ {
		cell.Set(i)
	}
	for i := 1; i <= 50; i++ {
		if got := receive(t, stream); got != i {
			t.Fatalf("expected %d, got %d", i, got)
		}
	}
}

func TestCellSubscribeClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cell := NewCell(0, nil)
	stream := cell.Subscribe(ctx)
	receive(t, stream)
	cancel()
	select {
	case _, ok := <-stream:
		if ok {
			// a value may race with cancellation; the next read must observe close
			if _, ok := <-stream; ok {
				t.Fatalf("expected stream to close")
			}
		}
	case <-time.After(time.Second):
		t.Fatalf("stream not closed after cancel")
	}
}

func TestCellConcurrentUpdatesAreLinearized(t *testing.T) {
	cell := NewCell(0, nil)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cell.Update(func(v int) int { return v + 1 })
			}
		}()
	}
	wg.Wait()
	if got := cell.Get(); got != 10000 {
		t.Fatalf("expected 10000, got %d", got)
	}
}
