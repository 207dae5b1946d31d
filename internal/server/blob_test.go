package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDiskStore_PutOpenRemove(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	ctx := context.Background()
	content := []byte("hello blob")

	n, err := store.Put(ctx, "greeting.txt", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n != int64(len(content)) {
		t.Errorf("Put returned %d bytes, want %d", n, len(content))
	}

	rc, err := store.Open(ctx, "greeting.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("read %q, want %q", got, content)
	}

	if err := store.Remove(ctx, "greeting.txt"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := store.Open(ctx, "greeting.txt"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("Open after Remove: got %v, want ErrBlobNotFound", err)
	}
}

func TestDiskStore_OpenMissing(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	if _, err := store.Open(context.Background(), "nope.bin"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("Open missing: got %v, want ErrBlobNotFound", err)
	}
}

func TestDiskStore_RemoveIdempotent(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	if err := store.Remove(context.Background(), "never-existed"); err != nil {
		t.Errorf("Remove of missing blob should be nil, got %v", err)
	}
}

func TestDiskStore_RejectsPathTraversal(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	ctx := context.Background()

	names := []string{"../escape", "a/b", "..", "sub/../x"}
	for _, name := range names {
		if _, err := store.Put(ctx, name, strings.NewReader("x")); err == nil {
			t.Errorf("Put(%q) should be rejected", name)
		}
		if _, err := store.Open(ctx, name); err == nil {
			t.Errorf("Open(%q) should be rejected", name)
		}
	}
}

// failingReader errors partway through to simulate an aborted upload.
type failingReader struct {
	data []byte
	read bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.read {
		f.read = true
		n := copy(p, f.data)
		return n, nil
	}
	return 0, errors.New("stream broke")
}

func TestDiskStore_FailedPutLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	_, err = store.Put(context.Background(), "broken.bin", &failingReader{data: []byte("partial")})
	if err == nil {
		t.Fatal("Put with failing reader should error")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		t.Errorf("unexpected leftover file %q", filepath.Join(dir, e.Name()))
	}
}

func TestDiskStore_Ping(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDiskStore(dir)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}

	os.RemoveAll(dir)
	if err := store.Ping(context.Background()); err == nil {
		t.Error("Ping after dir removal should error")
	}
}
