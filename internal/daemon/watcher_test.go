package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcherFiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(path, []byte("automation_mode: suggest\n"), 0600); err != nil {
		t.Fatal(err)
	}

	var fired int32
	w := NewPolicyWatcher(path, func() { atomic.AddInt32(&fired, 1) })
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("automation_mode: autopilot\n"), 0600); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for atomic.LoadInt32(&fired) == 0 {
		select {
		case <-deadline:
			t.Fatal("watcher never fired after file write")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watcher run: %v", err)
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	os.WriteFile(path, []byte("x: 1\n"), 0600)

	var fired int32
	w := NewPolicyWatcher(path, func() { atomic.AddInt32(&fired, 1) })
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("y: 2\n"), 0600)
	time.Sleep(200 * time.Millisecond)

	if atomic.LoadInt32(&fired) != 0 {
		t.Error("sibling file writes must not trigger a reload")
	}
}

func TestWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	os.WriteFile(path, []byte("x: 1\n"), 0600)

	var fired int32
	w := NewPolicyWatcher(path, func() { atomic.AddInt32(&fired, 1) })
	w.debounce = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 5; i++ {
		os.WriteFile(path, []byte("x: 2\n"), 0600)
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(300 * time.Millisecond)

	if got := atomic.LoadInt32(&fired); got != 1 {
		t.Errorf("a write burst should coalesce into one reload, got %d", got)
	}
}
