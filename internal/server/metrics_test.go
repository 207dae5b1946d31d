package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.RecordUpload(100)
	m.RecordUpload(50)
	m.RecordUploadRejected()
	m.RecordDownload(75)
	m.RecordExpiredHit()
	m.RecordDelete()
	m.RecordRequest(200)
	m.RecordRequest(404)
	m.RecordRequest(500)

	s := m.Snapshot()

	if s.UploadsTotal != 2 || s.UploadBytesTotal != 150 {
		t.Errorf("uploads = %d/%d bytes, want 2/150", s.UploadsTotal, s.UploadBytesTotal)
	}
	if s.UploadRejectedTotal != 1 {
		t.Errorf("rejected = %d, want 1", s.UploadRejectedTotal)
	}
	if s.DownloadsTotal != 1 || s.DownloadBytesTotal != 75 {
		t.Errorf("downloads = %d/%d bytes, want 1/75", s.DownloadsTotal, s.DownloadBytesTotal)
	}
	if s.ExpiredHitsTotal != 1 || s.DeletesTotal != 1 {
		t.Errorf("expiredHits = %d, deletes = %d, want 1/1", s.ExpiredHitsTotal, s.DeletesTotal)
	}
	if s.RequestsTotal != 3 || s.RequestErrors4xx != 1 || s.RequestErrors5xx != 1 {
		t.Errorf("requests = %d (4xx=%d 5xx=%d), want 3 (1/1)", s.RequestsTotal, s.RequestErrors4xx, s.RequestErrors5xx)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.RecordUpload(1000)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	m.Handler("1.2.3")(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	body := rr.Body.String()

	for _, want := range []string{
		`fd_info{version="1.2.3"} 1`,
		"fd_uploads_total 1",
		"fd_upload_bytes_total 1000",
		"# TYPE fd_requests_total counter",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetrics_HandlerMethodNotAllowed(t *testing.T) {
	m := NewMetrics()

	req := httptest.NewRequest(http.MethodPost, "/metrics", nil)
	rr := httptest.NewRecorder()
	m.Handler("dev")(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rr.Code)
	}
}
