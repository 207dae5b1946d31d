package server

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"time"
)

// BuildInfo identifies the running binary in logs and health output.
type BuildInfo struct {
	Version string
	Commit  string
}

// Config carries everything New needs to assemble the HTTP server.
type Config struct {
	Addr  string // e.g. ":8080"
	Build BuildInfo
	Auth  AuthConfig
	DB    *sql.DB
	Blob  BlobStore

	// RateLimit is requests per minute per client IP; 0 disables the
	// limiter. This is a policy knob, not part of pipeline correctness.
	RateLimit int
}

// Server wires the metadata store, blob store, and HTTP surface together.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	store      metadataStore
	blob       BlobStore
	metrics    *Metrics
	build      BuildInfo
}

// New assembles the routes and middleware chain. Outer to inner:
// request-id -> logging -> security headers -> rate limit -> gzip -> mux.
func New(cfg Config) *Server {
	s := &Server{
		db:      cfg.DB,
		store:   newFileStore(cfg.DB),
		blob:    cfg.Blob,
		metrics: NewMetrics(),
		build:   cfg.Build,
	}

	mux := http.NewServeMux()

	// Public surface
	mux.HandleFunc("/upload", s.uploadHandler)
	mux.HandleFunc("/files/", s.downloadHandler)
	mux.HandleFunc("/config", s.configHandler)
	mux.HandleFunc("/healthz", s.healthHandler)
	mux.HandleFunc("/metrics", s.metrics.Handler(cfg.Build.Version))

	// Admin surface, gated by Basic auth
	mux.Handle("/admin/files", cfg.Auth.requireAdmin(http.HandlerFunc(s.adminListFilesHandler)))
	mux.Handle("/admin/files/", cfg.Auth.requireAdmin(http.HandlerFunc(s.adminFileItemHandler)))
	mux.Handle("/admin/settings", cfg.Auth.requireAdmin(http.HandlerFunc(s.adminSettingsHandler)))
	mux.Handle("/admin/stats", cfg.Auth.requireAdmin(http.HandlerFunc(s.adminStatsHandler)))

	var handler http.Handler = mux
	handler = compressionMiddleware(handler)
	if cfg.RateLimit > 0 {
		handler = newRateLimiter(cfg.RateLimit, time.Minute).middleware(handler)
	}
	handler = securityHeadersMiddleware(handler)
	handler = loggingMiddleware(s.metrics)(handler)
	handler = requestIDMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Handler exposes the full middleware-wrapped handler for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// RunJanitor starts the expired-file sweep configured from the
// environment. Blocks until ctx is cancelled; callers run it in a
// goroutine.
func (s *Server) RunJanitor(ctx context.Context) {
	StartJanitor(ctx, JanitorConfigFromEnv(s.store, s.blob))
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
