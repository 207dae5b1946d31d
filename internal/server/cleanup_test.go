package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRunJanitorSweep(t *testing.T) {
	s, store, blob := newTestServer(t)

	past := time.Now().UTC().Add(-time.Hour)
	future := time.Now().UTC().Add(time.Hour)

	expiredID := uuid.New().String()
	keepID := uuid.New().String()
	noExpiryID := uuid.New().String()
	expiredRec := seedFile(t, s, store, expiredID, "old.txt", "text/plain", []byte("old"), &past)
	seedFile(t, s, store, keepID, "new.txt", "text/plain", []byte("new"), &future)
	seedFile(t, s, store, noExpiryID, "forever.txt", "text/plain", []byte("keep"), nil)

	cfg := JanitorConfig{Enabled: true, BatchSize: 100, Store: store, Blob: blob}
	runJanitorSweep(context.Background(), cfg)

	// Expired pair is gone, blob and row.
	if _, err := store.FileByPublicID(context.Background(), expiredID); !errors.Is(err, ErrRecordNotFound) {
		t.Error("expired record should have been deleted")
	}
	if _, err := blob.Open(context.Background(), expiredRec.StorageName); !errors.Is(err, ErrBlobNotFound) {
		t.Error("expired blob should have been deleted")
	}

	// Future expiry and no expiry both survive.
	if _, err := store.FileByPublicID(context.Background(), keepID); err != nil {
		t.Errorf("unexpired record should survive: %v", err)
	}
	if _, err := store.FileByPublicID(context.Background(), noExpiryID); err != nil {
		t.Errorf("record without expiry should survive: %v", err)
	}
}

func TestRunJanitorSweep_BatchLimit(t *testing.T) {
	s, store, blob := newTestServer(t)

	past := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		seedFile(t, s, store, uuid.New().String(), "old.txt", "text/plain", []byte("x"), &past)
	}

	cfg := JanitorConfig{Enabled: true, BatchSize: 2, Store: store, Blob: blob}
	runJanitorSweep(context.Background(), cfg)

	remaining, err := store.ListFiles(context.Background())
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(remaining) != 3 {
		t.Errorf("batch of 2 should leave 3 records, got %d", len(remaining))
	}
}

func TestRunJanitorSweep_MissingBlobStillDeletesRow(t *testing.T) {
	s, store, blob := newTestServer(t)

	past := time.Now().UTC().Add(-time.Hour)
	id := uuid.New().String()
	rec := seedFile(t, s, store, id, "gone.txt", "text/plain", []byte("x"), &past)

	// Blob disappears out of band; disk Remove is idempotent so the row
	// still gets reclaimed.
	if err := blob.Remove(context.Background(), rec.StorageName); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	cfg := JanitorConfig{Enabled: true, BatchSize: 10, Store: store, Blob: blob}
	runJanitorSweep(context.Background(), cfg)

	if _, err := store.FileByPublicID(context.Background(), id); !errors.Is(err, ErrRecordNotFound) {
		t.Error("row should be deleted even when the blob was already gone")
	}
}

func TestStartJanitor_Disabled(t *testing.T) {
	// Must return immediately without touching the store.
	done := make(chan struct{})
	go func() {
		StartJanitor(context.Background(), JanitorConfig{Enabled: false})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled janitor should return immediately")
	}
}

func TestStartJanitor_StopsOnCancel(t *testing.T) {
	_, store, blob := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		StartJanitor(ctx, JanitorConfig{
			Enabled:   true,
			Interval:  10 * time.Millisecond,
			BatchSize: 10,
			Store:     store,
			Blob:      blob,
		})
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor should stop when the context is cancelled")
	}
}

func TestJanitorConfigFromEnv(t *testing.T) {
	t.Setenv("FD_JANITOR_ENABLED", "true")
	t.Setenv("FD_JANITOR_INTERVAL", "15m")
	t.Setenv("FD_JANITOR_BATCH", "250")

	cfg := JanitorConfigFromEnv(nil, nil)

	if !cfg.Enabled {
		t.Error("Enabled should be true")
	}
	if cfg.Interval != 15*time.Minute {
		t.Errorf("Interval = %v, want 15m", cfg.Interval)
	}
	if cfg.BatchSize != 250 {
		t.Errorf("BatchSize = %d, want 250", cfg.BatchSize)
	}
}

func TestJanitorConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("FD_JANITOR_ENABLED", "")
	t.Setenv("FD_JANITOR_INTERVAL", "")
	t.Setenv("FD_JANITOR_BATCH", "")

	cfg := JanitorConfigFromEnv(nil, nil)

	if cfg.Enabled {
		t.Error("Enabled should default to false")
	}
	if cfg.Interval != time.Hour {
		t.Errorf("Interval = %v, want 1h", cfg.Interval)
	}
	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.BatchSize)
	}
}
