package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"file-drop/internal/db"
	"file-drop/internal/server"
)

func main() {
	// Fail fast on broken configuration before touching any dependency.
	if v := server.ValidateEnv(); v.HasErrors() {
		log.Printf("service=backend msg=%q\n%s", "invalid_configuration", v.ErrorString())
		os.Exit(1)
	}

	addr := getenvDefault("FD_ADDR", ":8080")

	build := server.BuildInfo{
		Version: getenvDefault("FD_VERSION", "dev"),
		Commit:  getenvDefault("FD_COMMIT", "unknown"),
	}

	auth := server.AuthConfig{
		AdminUser:     getenvDefault("FD_ADMIN_USER", "admin"),
		AdminPass:     os.Getenv("FD_ADMIN_PASS"),
		AdminPassHash: os.Getenv("FD_ADMIN_PASS_HASH"),
		Realm:         "Admin Area",
	}

	// Database
	dbConn, err := server.OpenDB(os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Printf("service=backend msg=%q err=%v", "db_connect_failed", err)
		os.Exit(1)
	}
	defer func() { _ = dbConn.Close() }()

	// Run migrations
	log.Printf("service=backend msg=%q", "running_migrations")
	if err := db.RunMigrations(dbConn); err != nil {
		log.Printf("service=backend msg=%q err=%v", "migration_failed", err)
		os.Exit(1)
	}
	log.Printf("service=backend msg=%q", "migrations_complete")

	// Blob storage backend: local disk by default, S3-compatible when asked.
	var blob server.BlobStore
	switch backend := getenvDefault("FD_BLOB_BACKEND", "disk"); backend {
	case "s3":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		blob, err = server.NewMinioStoreFromEnv(ctx)
		cancel()
		if err != nil {
			log.Printf("service=backend msg=%q err=%v", "blob_s3_init_failed", err)
			os.Exit(1)
		}
		log.Printf("service=backend msg=%q backend=s3", "blob_store_ready")
	default:
		dir := getenvDefault("FD_UPLOAD_DIR", "./uploads")
		blob, err = server.NewDiskStore(dir)
		if err != nil {
			log.Printf("service=backend msg=%q dir=%s err=%v", "blob_disk_init_failed", dir, err)
			os.Exit(1)
		}
		log.Printf("service=backend msg=%q backend=disk dir=%s", "blob_store_ready", dir)
	}

	rateLimit, err := strconv.Atoi(getenvDefault("FD_RATE_LIMIT", "120"))
	if err != nil || rateLimit < 0 {
		rateLimit = 120
	}

	srv := server.New(server.Config{
		Addr:      addr,
		Build:     build,
		Auth:      auth,
		DB:        dbConn,
		Blob:      blob,
		RateLimit: rateLimit,
	})

	// Background sweep of expired files. Stopped via context on shutdown.
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go srv.RunJanitor(janitorCtx)

	// Start the HTTP server in a background goroutine.
	// This allows us to listen for OS signals while the server runs.
	errCh := make(chan error, 1)
	go func() {
		log.Printf("service=backend msg=%q addr=%s version=%s commit=%s",
			"starting", addr, build.Version, build.Commit)
		errCh <- srv.Start()
	}()

	// Set up signal handling for graceful shutdown on SIGINT (Ctrl+C) or SIGTERM (container stop).
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Block until either a shutdown signal is received or the server encounters an error.
	select {
	case sig := <-sigCh:
		// Signal received: initiate graceful shutdown.
		log.Printf("service=backend msg=%q signal=%s", "shutting_down", sig.String())
		stopJanitor()
		// Give the server 5 seconds to finish in-flight requests and cleanup.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("service=backend msg=%q err=%v", "shutdown_error", err)
			os.Exit(1)
		}
		log.Printf("service=backend msg=%q", "shutdown_complete")
	case err := <-errCh:
		// Server error: exit immediately.
		if err != nil {
			log.Printf("service=backend msg=%q err=%v", "server_error", err)
			os.Exit(1)
		}
	}
}

// getenvDefault reads an environment variable and returns a default value if not set.
// This helper avoids importing extra packages and keeps main.go self-contained.
func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
