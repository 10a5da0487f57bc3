package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAcquireAdmitsWithinCapacity(t *testing.T) {
	store := NewMemoryStore()
	l := New("test", store, Window{Capacity: 3, Period: time.Minute, Retry: time.Millisecond, Key: "t:short"})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}

	n, _ := store.Len("t:short")
	if n != 3 {
		t.Errorf("log length = %d, want 3", n)
	}
}

func TestAcquireBlocksUntilWindowSlides(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	clock := now
	var mu sync.Mutex

	l := New("test", store, Window{Capacity: 1, Period: 100 * time.Millisecond, Retry: 5 * time.Millisecond, Key: "t:slide"})
	l.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Advance the clock past the period from another goroutine while the
	// second Acquire is in its retry loop.
	go func() {
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		clock = now.Add(200 * time.Millisecond)
		mu.Unlock()
	}()

	start := time.Now()
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("second acquire returned after %v, expected at least one retry interval", elapsed)
	}
}

// Two concurrent callers against capacity 1: the loser must observably
// delay by at least one retry interval before admission.
func TestConcurrentAcquireSecondCallerDelays(t *testing.T) {
	store := NewMemoryStore()
	l := New("test", store, Window{Capacity: 1, Period: 150 * time.Millisecond, Retry: 25 * time.Millisecond, Key: "t:conc"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	done := make(chan time.Duration, 2)
	for i := 0; i < 2; i++ {
		go func() {
			if err := l.Acquire(ctx); err != nil {
				t.Errorf("acquire: %v", err)
			}
			done <- time.Since(start)
		}()
	}

	first := <-done
	second := <-done
	if second < first {
		first, second = second, first
	}
	if second-first < 25*time.Millisecond {
		t.Errorf("admissions %v apart, want at least one retry interval", second-first)
	}
}

func TestAcquireRequiresAllWindowsOpen(t *testing.T) {
	store := NewMemoryStore()
	l := New("test", store,
		Window{Capacity: 100, Period: time.Second, Retry: 5 * time.Millisecond, Key: "t:burst"},
		Window{Capacity: 1, Period: time.Hour, Retry: 5 * time.Millisecond, Key: "t:quota"},
	)

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Quota window is now full; a second acquire must not consume burst
	// capacity while blocked.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx); err == nil {
		t.Fatal("expected context deadline while quota window is full")
	}

	burst, _ := store.Len("t:burst")
	if burst != 1 {
		t.Errorf("burst log = %d entries, want 1: blocked caller must not push partially", burst)
	}
}

func TestWindowsCheckedShortestPeriodFirst(t *testing.T) {
	l := New("test", NewMemoryStore(),
		Window{Capacity: 1, Period: time.Hour, Retry: time.Second, Key: "t:long"},
		Window{Capacity: 1, Period: time.Second, Retry: time.Second, Key: "t:short"},
	)
	if l.windows[0].Key != "t:short" {
		t.Errorf("first window = %s, want t:short", l.windows[0].Key)
	}
}

func TestStatusReportsWithoutBlocking(t *testing.T) {
	store := NewMemoryStore()
	l := New("test", store, Window{Capacity: 2, Period: time.Minute, Retry: time.Second, Key: "t:status"})

	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	statuses, err := l.Status()
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 1 {
		t.Fatalf("got %d statuses, want 1", len(statuses))
	}
	if statuses[0].Open {
		t.Error("window should report closed at capacity")
	}
	if statuses[0].InUse != 2 {
		t.Errorf("in use = %d, want 2", statuses[0].InUse)
	}
}

func TestTrimDropsOnlyAgedEntries(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()

	w := Window{Capacity: 10, Period: time.Minute, Retry: time.Second, Key: "t:trim"}
	l := New("test", store, w)
	l.now = func() time.Time { return now }

	store.Push(w.Key, now.Add(-2*time.Minute))
	store.Push(w.Key, now.Add(-90*time.Second))
	store.Push(w.Key, now.Add(-30*time.Second))

	if err := l.trim(w); err != nil {
		t.Fatal(err)
	}
	n, _ := store.Len(w.Key)
	if n != 1 {
		t.Errorf("log length after trim = %d, want 1", n)
	}
	oldest, ok, _ := store.Oldest(w.Key)
	if !ok || !oldest.Equal(now.Add(-30*time.Second)) {
		t.Errorf("surviving entry = %v, want the in-period one", oldest)
	}
}
