package config

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := writeConfig(t, "admission:\n  failure_policy: open\n")

	var reloads atomic.Int32
	w, err := NewWatcher(WatcherConfig{
		Path:             path,
		DebounceInterval: 20 * time.Millisecond,
		Reload: func() error {
			reloads.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// Give the watcher time to register.
	time.Sleep(50 * time.Millisecond)

	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte("admission:\n  failure_policy: closed\n"), 0o644); err != nil {
			t.Fatalf("Failed to write config: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for reloads.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if reloads.Load() == 0 {
		t.Fatal("Expected at least one reload")
	}
	if reloads.Load() > 2 {
		t.Errorf("Expected burst to be debounced, got %d reloads", reloads.Load())
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Error("Watch did not return after Stop")
	}
}

func TestDebouncer_Stop(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)

	var fired atomic.Bool
	d.Trigger(func() { fired.Store(true) })
	d.Stop()
	d.Trigger(func() { fired.Store(true) })

	time.Sleep(60 * time.Millisecond)
	if fired.Load() {
		t.Error("Expected no callback after Stop")
	}
}

func TestNewWatcher_EmptyPath(t *testing.T) {
	if _, err := NewWatcher(WatcherConfig{}); err == nil {
		t.Error("Expected error for empty path")
	}
}
