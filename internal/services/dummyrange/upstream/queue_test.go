package upstream

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestQueueRunsInOrderWithCooldown(t *testing.T) {
	const cooldown = 40 * time.Millisecond
	q := NewQueue(cooldown)

	var mu sync.Mutex
	var order []int
	var starts []time.Time

	var wg sync.WaitGroup
	for i := range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Do(context.Background(), func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				starts = append(starts, time.Now())
				mu.Unlock()
				return nil
			})
		}()
		// Stagger submission so FIFO order is observable.
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("order = %v, want [0 1 2]", order)
		}
	}
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap < cooldown-2*time.Millisecond {
			t.Fatalf("gap %d = %v, want >= %v", i, gap, cooldown)
		}
	}
}

func TestQueueFailureDoesNotBlock(t *testing.T) {
	q := NewQueue(0)
	boom := errors.New("boom")

	if err := q.Do(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Do() error = %v, want boom", err)
	}
	ran := false
	if err := q.Do(context.Background(), func(context.Context) error { ran = true; return nil }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !ran {
		t.Fatal("second task did not run")
	}
}

func TestQueueSkipsCancelledPendingTask(t *testing.T) {
	q := NewQueue(0)
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = q.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	ran := make(chan struct{}, 1)
	go func() {
		errCh <- q.Do(ctx, func(context.Context) error {
			ran <- struct{}{}
			return nil
		})
	}()

	waitFor(t, func() bool { return q.Len() == 1 })
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	close(release)

	if err := q.Do(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	select {
	case <-ran:
		t.Fatal("cancelled task ran")
	default:
	}
	if q.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", q.Len())
	}
}

func TestQueueSurvivesPanickingTask(t *testing.T) {
	q := NewQueue(0)

	err := q.Do(context.Background(), func(context.Context) error { panic("kaboom") })
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("Do() error = %v, want panic error", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- q.Do(context.Background(), func(context.Context) error { return nil })
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Do() after panic error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queue stalled after a panicking task")
	}
}

func TestQueueHeadExpiresDuringCooldown(t *testing.T) {
	const cooldown = 100 * time.Millisecond
	q := NewQueue(cooldown)

	var firstStart time.Time
	if err := q.Do(context.Background(), func(context.Context) error {
		firstStart = time.Now()
		return nil
	}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	shortCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	expired := make(chan error, 1)
	expiredRan := make(chan struct{}, 1)
	go func() {
		expired <- q.Do(shortCtx, func(context.Context) error {
			expiredRan <- struct{}{}
			return nil
		})
	}()
	waitFor(t, func() bool { return q.Len() == 1 })

	var lastStart time.Time
	last := make(chan error, 1)
	go func() {
		last <- q.Do(context.Background(), func(context.Context) error {
			lastStart = time.Now()
			return nil
		})
	}()

	if err := <-expired; !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expired Do() error = %v, want deadline exceeded", err)
	}
	if err := <-last; err != nil {
		t.Fatalf("last Do() error = %v", err)
	}
	select {
	case <-expiredRan:
		t.Fatal("expired task ran")
	default:
	}
	if gap := lastStart.Sub(firstStart); gap < cooldown-2*time.Millisecond {
		t.Fatalf("gap = %v, want >= %v", gap, cooldown)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}
