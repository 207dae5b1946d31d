// admin.go - Administration surface: list, delete, expire, settings, stats.
//
// Every handler here sits behind the Basic-auth gate wired in server.go.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// adminFileInfo is the projection returned by the admin list. The storage
// name deliberately never appears in a response.
type adminFileInfo struct {
	PublicID     string     `json:"publicId"`
	OriginalName string     `json:"originalName"`
	MimeType     string     `json:"mimeType"`
	SizeBytes    int64      `json:"sizeBytes"`
	UploadedAt   time.Time  `json:"uploadedAt"`
	ExpiresAt    *time.Time `json:"expiresAt"`
}

// adminListFilesHandler handles GET /admin/files: all records, newest first.
func (s *Server) adminListFilesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	recs, err := s.store.ListFiles(r.Context())
	if err != nil {
		log.Printf("rid=%s msg=%q err=%v", RequestIDFromContext(r.Context()), "admin_list_failed", err)
		jsonError(w, "Failed to retrieve files.", http.StatusInternalServerError)
		return
	}

	out := make([]adminFileInfo, 0, len(recs))
	for _, rec := range recs {
		out = append(out, adminFileInfo{
			PublicID:     rec.PublicID,
			OriginalName: rec.OriginalName,
			MimeType:     rec.MimeType,
			SizeBytes:    rec.SizeBytes,
			UploadedAt:   rec.UploadedAt,
			ExpiresAt:    rec.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// adminFileItemHandler routes /admin/files/{publicId} and
// /admin/files/{publicId}/expire by method and suffix.
func (s *Server) adminFileItemHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/admin/files/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && parts[0] != "" && r.Method == http.MethodDelete:
		s.adminDeleteFile(w, r, parts[0])
	case len(parts) == 2 && parts[0] != "" && parts[1] == "expire" && r.Method == http.MethodPut:
		s.adminExpireFile(w, r, parts[0])
	case len(parts) == 1 || (len(parts) == 2 && parts[1] == "expire"):
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		jsonError(w, "Resource not found.", http.StatusNotFound)
	}
}

// adminDeleteFile removes the blob first, then the row. A blob that is
// already gone counts as deleted; a row that is already gone is 404 no
// matter what happened to the blob, which makes double deletes idempotent.
func (s *Server) adminDeleteFile(w http.ResponseWriter, r *http.Request, publicID string) {
	ctx := r.Context()

	rec, err := s.store.FileByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			jsonError(w, "File not found.", http.StatusNotFound)
			return
		}
		log.Printf("rid=%s msg=%q err=%v", RequestIDFromContext(ctx), "admin_delete_lookup_failed", err)
		jsonError(w, "Error finding file for deletion.", http.StatusInternalServerError)
		return
	}

	if err := s.blob.Remove(ctx, rec.StorageName); err != nil {
		log.Printf("rid=%s msg=%q storage_name=%s err=%v",
			RequestIDFromContext(ctx), "admin_delete_blob_failed", rec.StorageName, err)
		jsonError(w, "Failed to delete file from storage.", http.StatusInternalServerError)
		return
	}

	if err := s.store.DeleteFile(ctx, publicID); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			// Raced another delete; the row is gone either way.
			jsonError(w, "File not found.", http.StatusNotFound)
			return
		}
		log.Printf("rid=%s msg=%q err=%v", RequestIDFromContext(ctx), "admin_delete_row_failed", err)
		jsonError(w, "Failed to delete file record.", http.StatusInternalServerError)
		return
	}

	s.metrics.RecordDelete()
	log.Printf("rid=%s msg=%q public_id=%s", RequestIDFromContext(ctx), "admin_deleted_file", publicID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "File deleted successfully."})
}

// adminExpireFile handles PUT /admin/files/{publicId}/expire with body
// {"expiresInDays": n}, n a positive whole number.
func (s *Server) adminExpireFile(w http.ResponseWriter, r *http.Request, publicID string) {
	var body struct {
		ExpiresInDays int `json:"expiresInDays"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ExpiresInDays <= 0 {
		jsonError(w, "Invalid input: expiresInDays must be a positive number.", http.StatusBadRequest)
		return
	}

	expiresAt := time.Now().UTC().Add(time.Duration(body.ExpiresInDays) * 24 * time.Hour)

	if err := s.store.SetFileExpiry(r.Context(), publicID, expiresAt); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			jsonError(w, "File not found for updating expiration.", http.StatusNotFound)
			return
		}
		log.Printf("rid=%s msg=%q err=%v", RequestIDFromContext(r.Context()), "admin_expire_failed", err)
		jsonError(w, "Failed to update file expiration.", http.StatusInternalServerError)
		return
	}

	log.Printf("rid=%s msg=%q public_id=%s expires_at=%s",
		RequestIDFromContext(r.Context()), "admin_set_expiry", publicID, expiresAt.Format(time.RFC3339))
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("File expiration set to %s.", expiresAt.Format(time.RFC3339)),
	})
}

// adminSettingsHandler handles GET and PUT /admin/settings for the global
// upload limit.
func (s *Server) adminSettingsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		mb, err := s.store.MaxFileSizeMB(r.Context())
		if err != nil {
			log.Printf("rid=%s msg=%q err=%v", RequestIDFromContext(r.Context()), "settings_read_failed", err)
		}
		writeJSON(w, http.StatusOK, map[string]int{"maxFileSizeMB": mb})

	case http.MethodPut:
		var body struct {
			MaxFileSizeMB int `json:"maxFileSizeMB"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			jsonError(w, "Invalid request body.", http.StatusBadRequest)
			return
		}
		if body.MaxFileSizeMB < minFileSizeMB || body.MaxFileSizeMB > maxFileSizeMB {
			jsonError(w, fmt.Sprintf("maxFileSizeMB must be between %d and %d.", minFileSizeMB, maxFileSizeMB), http.StatusBadRequest)
			return
		}
		if err := s.store.SetMaxFileSizeMB(r.Context(), body.MaxFileSizeMB); err != nil {
			log.Printf("rid=%s msg=%q err=%v", RequestIDFromContext(r.Context()), "settings_write_failed", err)
			jsonError(w, "Failed to update settings.", http.StatusInternalServerError)
			return
		}
		log.Printf("rid=%s msg=%q max_file_size_mb=%d",
			RequestIDFromContext(r.Context()), "admin_updated_limit", body.MaxFileSizeMB)
		writeJSON(w, http.StatusOK, map[string]any{
			"message":       fmt.Sprintf("Maximum upload size set to %dMB.", body.MaxFileSizeMB),
			"maxFileSizeMB": body.MaxFileSizeMB,
		})

	default:
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// adminStatsHandler handles GET /admin/stats: zero-filled size aggregates.
func (s *Server) adminStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := s.store.FileStats(r.Context())
	if err != nil {
		log.Printf("rid=%s msg=%q err=%v", RequestIDFromContext(r.Context()), "stats_failed", err)
		jsonError(w, "Failed to compute statistics.", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// configHandler handles the public GET /config: the active upload limit,
// read by the upload form before it starts streaming.
func (s *Server) configHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	mb, err := s.store.MaxFileSizeMB(r.Context())
	if err != nil {
		log.Printf("rid=%s msg=%q err=%v", RequestIDFromContext(r.Context()), "settings_read_failed", err)
	}
	writeJSON(w, http.StatusOK, map[string]int{"maxFileSizeMB": mb})
}
