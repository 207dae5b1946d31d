// upload.go - Ingestion pipeline: validate, sanitize, stream, record.
//
// Order of operations is load-bearing: the blob write must complete before
// the metadata insert is attempted, so an aborted or failed upload can
// never leave a row pointing at a truncated blob.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// uploadResp is the JSON response for a successful upload. fileId carries
// the store-assigned numeric id; all URLs use publicId only.
type uploadResp struct {
	Message  string `json:"message"`
	FileID   int64  `json:"fileId"`
	PublicID string `json:"publicId"`
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl"`
}

// errPayloadTooLarge trips when the file part exceeds the active limit.
var errPayloadTooLarge = errors.New("payload too large")

// capReader yields errPayloadTooLarge once more than n bytes have been
// consumed, so a too-large upload aborts the blob write mid-stream instead
// of being detected after the fact.
type capReader struct {
	r io.Reader
	n int64 // bytes still allowed
}

func (cr *capReader) Read(p []byte) (int, error) {
	if cr.n <= 0 {
		return 0, errPayloadTooLarge
	}
	if int64(len(p)) > cr.n {
		p = p[:cr.n]
	}
	n, err := cr.r.Read(p)
	cr.n -= int64(n)
	return n, err
}

// multipartOverhead is headroom on the whole-body guard for multipart
// framing around the file bytes.
const multipartOverhead = 1 << 20

// uploadHandler handles POST /upload: a single multipart form field "file".
//
// Pipeline: resolve the active MB limit from settings, validate the
// sanitized filename against the extension deny-list and the declared MIME
// type against the allow-list, stream the part into the blob store under a
// generated storage name, then insert the metadata row. 201 with the
// shareable /files/{publicId} URL on success.
func (s *Server) uploadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	limitMB, err := s.store.MaxFileSizeMB(ctx)
	if err != nil {
		// limitMB already carries the default; the request proceeds.
		log.Printf("rid=%s msg=%q err=%v", RequestIDFromContext(ctx), "max_size_setting_unreadable", err)
	}
	limitBytes := int64(limitMB) << 20

	r.Body = http.MaxBytesReader(w, r.Body, limitBytes+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		s.metrics.RecordUploadRejected()
		jsonError(w, "No file uploaded.", http.StatusBadRequest)
		return
	}

	var (
		origName    string
		storageName string
		mimeType    string
		sizeBytes   int64
		seenFile    bool
	)

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.discardBlob(ctx, storageName)
			s.rejectUpload(w, r, limitMB, err)
			return
		}
		if part.FormName() != "file" {
			continue
		}

		if seenFile {
			_ = part.Close()
			s.discardBlob(ctx, storageName)
			s.metrics.RecordUploadRejected()
			jsonError(w, "Only one file may be uploaded per request.", http.StatusBadRequest)
			return
		}
		seenFile = true

		storageName, origName, mimeType, sizeBytes, err = s.ingestPart(ctx, part, limitBytes)
		_ = part.Close()
		if err != nil {
			s.rejectUpload(w, r, limitMB, err)
			return
		}
	}

	if !seenFile {
		s.metrics.RecordUploadRejected()
		jsonError(w, "No file uploaded.", http.StatusBadRequest)
		return
	}

	rec := &FileRecord{
		PublicID:     uuid.New().String(),
		OriginalName: origName,
		StorageName:  storageName,
		MimeType:     mimeType,
		SizeBytes:    sizeBytes,
	}

	if err := s.store.InsertFile(ctx, rec); err != nil {
		log.Printf("rid=%s msg=%q err=%v", RequestIDFromContext(ctx), "metadata_insert_failed", err)
		// Best-effort compensation: the blob is orphaned without its row.
		s.discardBlob(ctx, storageName)
		jsonError(w, "Failed to save file information.", http.StatusInternalServerError)
		return
	}

	s.metrics.RecordUpload(sizeBytes)

	writeJSON(w, http.StatusCreated, uploadResp{
		Message:  "File uploaded successfully!",
		FileID:   rec.ID,
		PublicID: rec.PublicID,
		FileName: rec.OriginalName,
		FileURL:  "/files/" + rec.PublicID,
	})
}

// uploadPolicyError is a rejection with a client-facing reason.
type uploadPolicyError struct{ reason string }

func (e *uploadPolicyError) Error() string { return e.reason }

// ingestPart validates one multipart file part and streams it into the
// blob store. On success the blob is committed under the returned storage
// name; on any error nothing remains on disk.
func (s *Server) ingestPart(ctx context.Context, part *multipart.Part, limitBytes int64) (storageName, origName, mimeType string, size int64, err error) {
	if part.FileName() == "" {
		return "", "", "", 0, &uploadPolicyError{"No file uploaded."}
	}

	origName = sanitizeFilename(part.FileName())

	if extensionDenied(origName) {
		return "", "", "", 0, &uploadPolicyError{"File type not allowed for upload."}
	}

	declared := part.Header.Get("Content-Type")
	if declared == "" {
		declared = "application/octet-stream"
	}
	mimeType = normalizeMimeType(declared)
	if !mimeTypeAllowed(mimeType) {
		return "", "", "", 0, &uploadPolicyError{fmt.Sprintf("MIME type not allowed: %s", mimeType)}
	}

	storageName = makeStorageName(origName, time.Now().UTC())

	size, err = s.blob.Put(ctx, storageName, &capReader{r: part, n: limitBytes + 1})
	if err != nil {
		return "", "", "", 0, err
	}
	if size > limitBytes {
		s.discardBlob(ctx, storageName)
		return "", "", "", 0, errPayloadTooLarge
	}
	return storageName, origName, mimeType, size, nil
}

// rejectUpload maps an ingestion error to a response and counts it.
func (s *Server) rejectUpload(w http.ResponseWriter, r *http.Request, limitMB int, err error) {
	s.metrics.RecordUploadRejected()

	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, errPayloadTooLarge) || errors.As(err, &maxBytesErr):
		jsonError(w, fmt.Sprintf("File too large. Max size is %dMB.", limitMB), http.StatusBadRequest)
	default:
		var policy *uploadPolicyError
		if errors.As(err, &policy) {
			jsonError(w, policy.reason, http.StatusBadRequest)
			return
		}
		log.Printf("rid=%s msg=%q err=%v", RequestIDFromContext(r.Context()), "upload_failed", err)
		jsonError(w, "Upload failed.", http.StatusInternalServerError)
	}
}

// discardBlob removes a committed blob that will not get a metadata row.
// Cleanup failure is logged loudly but never changes the response.
func (s *Server) discardBlob(ctx context.Context, storageName string) {
	if storageName == "" {
		return
	}
	if err := s.blob.Remove(ctx, storageName); err != nil {
		DefaultLogger.Error("orphan blob cleanup failed",
			map[string]any{"storage_name": storageName}, err)
	}
}
