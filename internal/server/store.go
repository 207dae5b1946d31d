// store.go - Metadata store over Postgres.
//
// All row<->struct conversion happens here, once, at the store boundary.
// Handlers only ever see FileRecord and the metadataStore interface.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	// settingMaxFileSizeMB is the settings-table key for the global upload
	// limit in megabytes.
	settingMaxFileSizeMB = "maxFileSizeMB"

	// defaultMaxFileSizeMB applies when the setting is missing or unreadable.
	defaultMaxFileSizeMB = 20

	minFileSizeMB = 1
	maxFileSizeMB = 1000
)

// ErrRecordNotFound is returned by lookups that matched no row.
var ErrRecordNotFound = errors.New("file record not found")

// FileRecord is one row of the files table. PublicID is the only identifier
// exposed in URLs; StorageName maps to exactly one physical blob.
type FileRecord struct {
	ID           int64
	PublicID     string
	OriginalName string
	StorageName  string
	MimeType     string
	SizeBytes    int64
	UploadedAt   time.Time
	ExpiresAt    *time.Time
}

// Expired reports whether the record's expiry, if set, is in the past.
func (r *FileRecord) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && r.ExpiresAt.Before(now)
}

// StoreStats aggregates size_bytes across all records. All fields are
// zero-filled when the table is empty.
type StoreStats struct {
	Count        int64   `json:"count"`
	TotalBytes   int64   `json:"totalBytes"`
	AverageBytes float64 `json:"averageBytes"`
	MaxBytes     int64   `json:"maxBytes"`
	MinBytes     int64   `json:"minBytes"`
}

// metadataStore is what handlers program against; fileStore is the Postgres
// implementation and tests substitute an in-memory fake.
type metadataStore interface {
	InsertFile(ctx context.Context, rec *FileRecord) error
	FileByPublicID(ctx context.Context, publicID string) (*FileRecord, error)
	ListFiles(ctx context.Context) ([]FileRecord, error)
	DeleteFile(ctx context.Context, publicID string) error
	SetFileExpiry(ctx context.Context, publicID string, expiresAt time.Time) error
	ExpiredFiles(ctx context.Context, now time.Time, limit int) ([]FileRecord, error)
	FileStats(ctx context.Context) (StoreStats, error)
	MaxFileSizeMB(ctx context.Context) (int, error)
	SetMaxFileSizeMB(ctx context.Context, mb int) error
}

type fileStore struct {
	db *sql.DB
}

func newFileStore(db *sql.DB) *fileStore {
	return &fileStore{db: db}
}

// InsertFile creates the row and fills in the store-assigned ID and
// UploadedAt. Called only after the blob write has committed.
func (s *fileStore) InsertFile(ctx context.Context, rec *FileRecord) error {
	var expires any
	if rec.ExpiresAt != nil {
		expires = *rec.ExpiresAt
	}
	return s.db.QueryRowContext(ctx, `
		INSERT INTO files (public_id, orig_name, storage_name, mime_type, size_bytes, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, uploaded_at
	`, rec.PublicID, rec.OriginalName, rec.StorageName, rec.MimeType, rec.SizeBytes, expires).
		Scan(&rec.ID, &rec.UploadedAt)
}

func (s *fileStore) FileByPublicID(ctx context.Context, publicID string) (*FileRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, public_id, orig_name, storage_name, mime_type, size_bytes, uploaded_at, expires_at
		FROM files
		WHERE public_id = $1
	`, publicID)
	return scanFileRecord(row)
}

func (s *fileStore) ListFiles(ctx context.Context) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, public_id, orig_name, storage_name, mime_type, size_bytes, uploaded_at, expires_at
		FROM files
		ORDER BY uploaded_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []FileRecord
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// DeleteFile removes the row. Callers delete the blob first so a crash
// mid-operation leaves at worst a dangling row, never an unreferenced blob.
// ErrRecordNotFound when no row matched.
func (s *fileStore) DeleteFile(ctx context.Context, publicID string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM files WHERE public_id = $1
	`, publicID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (s *fileStore) SetFileExpiry(ctx context.Context, publicID string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE files SET expires_at = $1 WHERE public_id = $2
	`, expiresAt, publicID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ExpiredFiles returns up to limit records whose expiry has passed, oldest
// first. Used by the janitor only; lazy expiry at read time never needs it.
func (s *fileStore) ExpiredFiles(ctx context.Context, now time.Time, limit int) ([]FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, public_id, orig_name, storage_name, mime_type, size_bytes, uploaded_at, expires_at
		FROM files
		WHERE expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []FileRecord
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

func (s *fileStore) FileStats(ctx context.Context) (StoreStats, error) {
	var st StoreStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(size_bytes), 0),
		       COALESCE(AVG(size_bytes), 0),
		       COALESCE(MAX(size_bytes), 0),
		       COALESCE(MIN(size_bytes), 0)
		FROM files
	`).Scan(&st.Count, &st.TotalBytes, &st.AverageBytes, &st.MaxBytes, &st.MinBytes)
	return st, err
}

// MaxFileSizeMB reads the global upload limit. A missing or malformed
// setting falls back to the default rather than failing the request.
func (s *fileStore) MaxFileSizeMB(ctx context.Context) (int, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = $1`, settingMaxFileSizeMB,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return defaultMaxFileSizeMB, nil
		}
		return defaultMaxFileSizeMB, err
	}
	mb, err := strconv.Atoi(raw)
	if err != nil || mb < minFileSizeMB || mb > maxFileSizeMB {
		return defaultMaxFileSizeMB, fmt.Errorf("invalid %s setting %q", settingMaxFileSizeMB, raw)
	}
	return mb, nil
}

func (s *fileStore) SetMaxFileSizeMB(ctx context.Context, mb int) error {
	if mb < minFileSizeMB || mb > maxFileSizeMB {
		return fmt.Errorf("maxFileSizeMB out of range: %d", mb)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`, settingMaxFileSizeMB, strconv.Itoa(mb))
	return err
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileRecord(row rowScanner) (*FileRecord, error) {
	var (
		rec     FileRecord
		expires sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.PublicID, &rec.OriginalName, &rec.StorageName,
		&rec.MimeType, &rec.SizeBytes, &rec.UploadedAt, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	if expires.Valid {
		t := expires.Time
		rec.ExpiresAt = &t
	}
	return &rec, nil
}
