// download.go - Retrieval gate: publicId -> bytes, with lazy expiration.
package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// downloadHandler handles GET /files/{publicId}.
//
// Expiration is enforced here, at read time: an expired record answers 410
// without touching the blob, and stays listable by the admin until deleted.
// A record whose blob is missing on disk is an integrity fault; the caller
// sees 404 but the log line is distinct from a plain unknown id.
func (s *Server) downloadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	publicID := strings.TrimPrefix(r.URL.Path, "/files/")
	if publicID == "" || strings.Contains(publicID, "/") {
		jsonError(w, "File not found.", http.StatusNotFound)
		return
	}
	if _, err := uuid.Parse(publicID); err != nil {
		jsonError(w, "File not found.", http.StatusNotFound)
		return
	}

	ctx := r.Context()

	rec, err := s.store.FileByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			jsonError(w, "File not found.", http.StatusNotFound)
			return
		}
		log.Printf("rid=%s msg=%q err=%v", RequestIDFromContext(ctx), "file_lookup_failed", err)
		jsonError(w, "Error retrieving file information.", http.StatusInternalServerError)
		return
	}

	if rec.Expired(time.Now().UTC()) {
		s.metrics.RecordExpiredHit()
		jsonError(w, "File has expired and is no longer available.", http.StatusGone)
		return
	}

	blob, err := s.blob.Open(ctx, rec.StorageName)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			// Metadata row without a blob: desync, not a valid state.
			DefaultLogger.Error("storage integrity fault: blob missing for record",
				map[string]any{"public_id": rec.PublicID, "storage_name": rec.StorageName}, err)
			jsonError(w, "File not found on server storage.", http.StatusNotFound)
			return
		}
		log.Printf("rid=%s msg=%q public_id=%s err=%v", RequestIDFromContext(ctx), "blob_open_failed", rec.PublicID, err)
		jsonError(w, "Error retrieving file.", http.StatusInternalServerError)
		return
	}
	defer func() { _ = blob.Close() }()

	w.Header().Set("Content-Type", rec.MimeType)
	if rec.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(rec.SizeBytes, 10))
	}
	// The save dialog shows the human-meaningful name, never the storage name.
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, rec.OriginalName))
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, blob)
	if err != nil {
		// Headers are committed; nothing to do for the client but log it.
		log.Printf("rid=%s msg=%q public_id=%s sent=%d err=%v",
			RequestIDFromContext(ctx), "download_stream_error", rec.PublicID, n, err)
		return
	}

	s.metrics.RecordDownload(n)
}
