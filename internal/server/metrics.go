// metrics.go - In-memory counters with a text exposition endpoint.
package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Metrics holds application counters. One instance per Server so tests can
// construct and inspect their own.
type Metrics struct {
	mu sync.RWMutex

	uploadsTotal        int64
	uploadBytesTotal    int64
	uploadRejectedTotal int64

	downloadsTotal     int64
	downloadBytesTotal int64
	expiredHitsTotal   int64

	deletesTotal int64

	requestsTotal    int64
	requestErrors4xx int64
	requestErrors5xx int64
}

// MetricsSnapshot is a consistent copy of all counters.
type MetricsSnapshot struct {
	UploadsTotal        int64
	UploadBytesTotal    int64
	UploadRejectedTotal int64
	DownloadsTotal      int64
	DownloadBytesTotal  int64
	ExpiredHitsTotal    int64
	DeletesTotal        int64
	RequestsTotal       int64
	RequestErrors4xx    int64
	RequestErrors5xx    int64
}

func NewMetrics() *Metrics { return &Metrics{} }

func (m *Metrics) RecordRequest(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestsTotal++
	switch {
	case status >= 500:
		m.requestErrors5xx++
	case status >= 400:
		m.requestErrors4xx++
	}
}

func (m *Metrics) RecordUpload(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadsTotal++
	m.uploadBytesTotal += bytes
}

func (m *Metrics) RecordUploadRejected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadRejectedTotal++
}

func (m *Metrics) RecordDownload(bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloadsTotal++
	m.downloadBytesTotal += bytes
}

func (m *Metrics) RecordExpiredHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiredHitsTotal++
}

func (m *Metrics) RecordDelete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletesTotal++
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return MetricsSnapshot{
		UploadsTotal:        m.uploadsTotal,
		UploadBytesTotal:    m.uploadBytesTotal,
		UploadRejectedTotal: m.uploadRejectedTotal,
		DownloadsTotal:      m.downloadsTotal,
		DownloadBytesTotal:  m.downloadBytesTotal,
		ExpiredHitsTotal:    m.expiredHitsTotal,
		DeletesTotal:        m.deletesTotal,
		RequestsTotal:       m.requestsTotal,
		RequestErrors4xx:    m.requestErrors4xx,
		RequestErrors5xx:    m.requestErrors5xx,
	}
}

// Handler exposes the counters in Prometheus text format on GET /metrics.
func (m *Metrics) Handler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		s := m.Snapshot()
		var out strings.Builder

		writeCounter := func(name, help string, v int64) {
			fmt.Fprintf(&out, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
		}

		fmt.Fprintf(&out, "# HELP fd_info Application version info\n# TYPE fd_info gauge\nfd_info{version=%q} 1\n\n", version)

		writeCounter("fd_requests_total", "Total number of HTTP requests", s.RequestsTotal)
		writeCounter("fd_request_errors_4xx_total", "HTTP responses with a 4xx status", s.RequestErrors4xx)
		writeCounter("fd_request_errors_5xx_total", "HTTP responses with a 5xx status", s.RequestErrors5xx)
		writeCounter("fd_uploads_total", "Accepted file uploads", s.UploadsTotal)
		writeCounter("fd_upload_bytes_total", "Bytes accepted through upload", s.UploadBytesTotal)
		writeCounter("fd_uploads_rejected_total", "Uploads rejected by validation or policy", s.UploadRejectedTotal)
		writeCounter("fd_downloads_total", "Completed file downloads", s.DownloadsTotal)
		writeCounter("fd_download_bytes_total", "Bytes served through download", s.DownloadBytesTotal)
		writeCounter("fd_expired_hits_total", "Retrievals refused because the file expired", s.ExpiredHitsTotal)
		writeCounter("fd_deletes_total", "Admin file deletions", s.DeletesTotal)

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(out.String()))
	}
}
