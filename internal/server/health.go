// health.go - Readiness endpoint probing the two stores.
package server

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus represents the overall health of the system
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth reports one dependency's probe result.
type ComponentHealth struct {
	Status    string  `json:"status"`
	Message   string  `json:"message,omitempty"`
	LatencyMs float64 `json:"latency_ms"`
}

// Health is the complete health check response.
type Health struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

// healthHandler answers GET /healthz: 200 when the metadata store and the
// blob store both respond, 503 otherwise.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	h := Health{
		Status:     HealthStatusHealthy,
		Timestamp:  time.Now().UTC(),
		Version:    s.build.Version,
		Components: make(map[string]ComponentHealth, 2),
	}

	probe := func(name string, fn func(context.Context) error) {
		start := time.Now()
		err := fn(ctx)
		c := ComponentHealth{Status: "up", LatencyMs: float64(time.Since(start).Microseconds()) / 1000}
		if err != nil {
			c.Status = "down"
			c.Message = err.Error()
			h.Status = HealthStatusUnhealthy
		}
		h.Components[name] = c
	}

	probe("database", s.db.PingContext)
	probe("blob_store", s.blob.Ping)

	status := http.StatusOK
	if h.Status != HealthStatusHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}
