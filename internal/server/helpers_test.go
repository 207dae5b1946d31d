package server

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"testing"
	"time"
)

// fakeStore is an in-memory metadataStore so handler tests run without a
// database.
type fakeStore struct {
	mu      sync.Mutex
	files   map[string]*FileRecord
	nextID  int64
	limitMB int

	insertErr error
	limitErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		files:   make(map[string]*FileRecord),
		limitMB: defaultMaxFileSizeMB,
	}
}

func (f *fakeStore) InsertFile(_ context.Context, rec *FileRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.nextID++
	rec.ID = f.nextID
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now().UTC()
	}
	cp := *rec
	f.files[rec.PublicID] = &cp
	return nil
}

func (f *fakeStore) FileByPublicID(_ context.Context, publicID string) (*FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.files[publicID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) ListFiles(_ context.Context) ([]FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FileRecord, 0, len(f.files))
	for _, rec := range f.files {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out, nil
}

func (f *fakeStore) DeleteFile(_ context.Context, publicID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[publicID]; !ok {
		return ErrRecordNotFound
	}
	delete(f.files, publicID)
	return nil
}

func (f *fakeStore) SetFileExpiry(_ context.Context, publicID string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.files[publicID]
	if !ok {
		return ErrRecordNotFound
	}
	t := expiresAt
	rec.ExpiresAt = &t
	return nil
}

func (f *fakeStore) ExpiredFiles(_ context.Context, now time.Time, limit int) ([]FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []FileRecord
	for _, rec := range f.files {
		if rec.ExpiresAt != nil && rec.ExpiresAt.Before(now) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) FileStats(_ context.Context) (StoreStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var st StoreStats
	for _, rec := range f.files {
		st.Count++
		st.TotalBytes += rec.SizeBytes
		if st.MaxBytes < rec.SizeBytes {
			st.MaxBytes = rec.SizeBytes
		}
		if st.MinBytes == 0 || rec.SizeBytes < st.MinBytes {
			st.MinBytes = rec.SizeBytes
		}
	}
	if st.Count > 0 {
		st.AverageBytes = float64(st.TotalBytes) / float64(st.Count)
	}
	return st, nil
}

func (f *fakeStore) MaxFileSizeMB(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.limitErr != nil {
		return defaultMaxFileSizeMB, f.limitErr
	}
	return f.limitMB, nil
}

func (f *fakeStore) SetMaxFileSizeMB(_ context.Context, mb int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limitMB = mb
	return nil
}

// newTestServer assembles a Server around the fake store and a disk blob
// store rooted in a temp dir. Handlers are exercised directly without the
// middleware chain.
func newTestServer(t *testing.T) (*Server, *fakeStore, *DiskStore) {
	t.Helper()
	blob, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	store := newFakeStore()
	s := &Server{
		store:   store,
		blob:    blob,
		metrics: NewMetrics(),
	}
	return s, store, blob
}

// seedFile inserts a record and its blob, returning the record.
func seedFile(t *testing.T, s *Server, store *fakeStore, publicID, origName, mime string, content []byte, expiresAt *time.Time) *FileRecord {
	t.Helper()
	storageName := makeStorageName(sanitizeFilename(origName), time.Now().UTC())
	if _, err := s.blob.Put(context.Background(), storageName, bytes.NewReader(content)); err != nil {
		t.Fatalf("blob.Put: %v", err)
	}
	rec := &FileRecord{
		PublicID:     publicID,
		OriginalName: origName,
		StorageName:  storageName,
		MimeType:     mime,
		SizeBytes:    int64(len(content)),
		ExpiresAt:    expiresAt,
	}
	if err := store.InsertFile(context.Background(), rec); err != nil {
		t.Fatalf("InsertFile: %v", err)
	}
	return rec
}
