package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteBackend_Drivers(t *testing.T) {
	for _, driver := range []string{DriverModernc, DriverMattn} {
		t.Run(driver, func(t *testing.T) {
			backend := newTestSQLiteBackend(t, driver)
			ctx := context.Background()
			now := time.Unix(1700000000, 0)

			if err := backend.Update(ctx, "user-1", appendAt(now)); err != nil {
				t.Fatalf("Update failed: %v", err)
			}
			n, err := backend.Len(ctx)
			if err != nil {
				t.Fatalf("Len failed: %v", err)
			}
			if n != 1 {
				t.Errorf("Expected 1 row, got %d", n)
			}
		})
	}
}

func TestSQLiteBackend_UnknownDriver(t *testing.T) {
	_, err := NewSQLiteBackendWithConfig(SQLiteBackendConfig{
		DBPath: filepath.Join(t.TempDir(), "x.db"),
		Driver: "postgres",
	})
	if err == nil {
		t.Fatal("Expected error for unsupported driver")
	}
}

func TestSQLiteBackend_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteBackend(""); err == nil {
		t.Fatal("Expected error for empty db path")
	}
}

// TestSQLiteBackend_Persistence tests that windows survive a reopen.
func TestSQLiteBackend_Persistence(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "persist.db")
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	first, err := NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	if err := first.Update(ctx, "user-1", appendAt(now)); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	second, err := NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatalf("Failed to reopen backend: %v", err)
	}
	defer second.Close()

	var got []time.Time
	_ = second.Update(ctx, "user-1", func(e *Entry) error {
		got = e.Timestamps
		return nil
	})
	if len(got) != 1 || !got[0].Equal(now) {
		t.Errorf("Expected [%v] after reopen, got %v", now, got)
	}
}

func TestSQLiteBackend_ClosedIsUnavailable(t *testing.T) {
	backend, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "closed.db"))
	if err != nil {
		t.Fatalf("Failed to create backend: %v", err)
	}
	backend.Close()
	backend.Close() // idempotent

	err = backend.Update(context.Background(), "k", appendAt(time.Now()))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable after close, got %v", err)
	}
}
