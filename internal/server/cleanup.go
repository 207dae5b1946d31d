// cleanup.go - Optional janitor reclaiming disk from expired files.
//
// Correctness never depends on this job: expiry is enforced lazily at read
// time. The janitor only turns "inaccessible" into "gone".
package server

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"
)

// JanitorConfig holds configuration for the expired-file sweep.
type JanitorConfig struct {
	Enabled  bool
	Interval time.Duration
	// BatchSize caps rows handled per run so one sweep cannot monopolize
	// the database.
	BatchSize int
	Store     metadataStore
	Blob      BlobStore
}

// StartJanitor runs the sweep loop until ctx is cancelled.
func StartJanitor(ctx context.Context, cfg JanitorConfig) {
	if !cfg.Enabled {
		log.Printf("service=janitor msg=%q", "disabled")
		return
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}

	log.Printf("service=janitor msg=%q interval=%s batch=%d", "starting", cfg.Interval, cfg.BatchSize)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	// Run immediately on start.
	runJanitorSweep(ctx, cfg)

	for {
		select {
		case <-ctx.Done():
			log.Printf("service=janitor msg=%q", "shutting_down")
			return
		case <-ticker.C:
			runJanitorSweep(ctx, cfg)
		}
	}
}

// runJanitorSweep deletes one batch of expired files, blob before row, the
// same ordering the admin delete uses.
func runJanitorSweep(ctx context.Context, cfg JanitorConfig) {
	start := time.Now()

	expired, err := cfg.Store.ExpiredFiles(ctx, start.UTC(), cfg.BatchSize)
	if err != nil {
		log.Printf("service=janitor msg=%q err=%v", "query_failed", err)
		return
	}

	deleted := 0
	for _, rec := range expired {
		if err := cfg.Blob.Remove(ctx, rec.StorageName); err != nil {
			log.Printf("service=janitor msg=%q public_id=%s err=%v", "blob_delete_failed", rec.PublicID, err)
			// The row stays so the next run retries the pair.
			continue
		}
		if err := cfg.Store.DeleteFile(ctx, rec.PublicID); err != nil {
			log.Printf("service=janitor msg=%q public_id=%s err=%v", "row_delete_failed", rec.PublicID, err)
			continue
		}
		deleted++
	}

	if len(expired) > 0 || deleted > 0 {
		log.Printf("service=janitor msg=%q expired=%d deleted=%d duration_ms=%d",
			"sweep_complete", len(expired), deleted, time.Since(start).Milliseconds())
	}
}

// JanitorConfigFromEnv reads FD_JANITOR_* environment variables.
func JanitorConfigFromEnv(store metadataStore, blob BlobStore) JanitorConfig {
	cfg := JanitorConfig{
		Enabled:   os.Getenv("FD_JANITOR_ENABLED") == "true",
		Interval:  time.Hour,
		BatchSize: 100,
		Store:     store,
		Blob:      blob,
	}
	if v := os.Getenv("FD_JANITOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Interval = d
		}
	}
	if v := os.Getenv("FD_JANITOR_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BatchSize = n
		}
	}
	return cfg
}
