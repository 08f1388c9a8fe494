package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSchedulerSweepsImmediatelyAndSequentially(t *testing.T) {
	var mu sync.Mutex
	var order []string

	sweep := func(_ context.Context, customerID string) error {
		mu.Lock()
		order = append(order, customerID)
		mu.Unlock()
		return nil
	}

	s := NewScheduler([]string{"a", "b", "c"}, time.Hour, sweep, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := s.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("expected one immediate sequential pass, got %v", order)
	}
}

func TestSchedulerReportsErrorsAndContinues(t *testing.T) {
	var mu sync.Mutex
	var failed []string
	swept := 0

	sweep := func(_ context.Context, customerID string) error {
		mu.Lock()
		swept++
		mu.Unlock()
		if customerID == "b" {
			return errors.New("boom")
		}
		return nil
	}
	onError := func(customerID string, err error) {
		mu.Lock()
		failed = append(failed, customerID)
		mu.Unlock()
	}

	s := NewScheduler([]string{"a", "b", "c"}, time.Hour, sweep, onError)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	if swept != 3 {
		t.Errorf("one customer's failure must not stop the others, swept %d", swept)
	}
	if len(failed) != 1 || failed[0] != "b" {
		t.Errorf("expected error callback for b, got %v", failed)
	}
}

func TestSchedulerRequiresCustomers(t *testing.T) {
	s := NewScheduler(nil, time.Hour, func(context.Context, string) error { return nil }, nil)
	if err := s.Run(context.Background()); err == nil {
		t.Fatal("expected error with no customers")
	}
}

func TestSchedulerTicks(t *testing.T) {
	var mu sync.Mutex
	passes := 0
	sweep := func(context.Context, string) error {
		mu.Lock()
		passes++
		mu.Unlock()
		return nil
	}

	s := NewScheduler([]string{"a"}, 50*time.Millisecond, sweep, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 180*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	// Immediate pass plus at least two ticks.
	if passes < 3 {
		t.Errorf("expected at least 3 passes, got %d", passes)
	}
}
