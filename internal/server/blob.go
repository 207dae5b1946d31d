// blob.go - Blob storage abstraction and the local-disk backend.
//
// Bytes live under generated storage names, never under the user-supplied
// filename. The disk backend stages writes in a temp file and renames on
// success, so an aborted upload never leaves a final-named partial blob.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrBlobNotFound is returned by Open when no blob exists under the name.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore stores raw uploaded bytes keyed by storage name.
// Remove of an absent blob is success: deletes must be idempotent.
type BlobStore interface {
	Put(ctx context.Context, name string, r io.Reader) (int64, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Remove(ctx context.Context, name string) error
	Ping(ctx context.Context) error
}

// DiskStore is the default BlobStore: a flat directory of uploaded files.
type DiskStore struct {
	dir string
}

// NewDiskStore creates the upload directory if needed and returns a store
// rooted there.
func NewDiskStore(dir string) (*DiskStore, error) {
	if dir == "" {
		return nil, errors.New("upload directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Dir returns the directory the store writes into.
func (d *DiskStore) Dir() string { return d.dir }

// path resolves a storage name inside the store directory. Names are
// generated internally, but separators and dot-dot are still rejected.
func (d *DiskStore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("invalid storage name %q", name)
	}
	return filepath.Join(d.dir, name), nil
}

// Put streams r into a temp file and renames it to the final name once the
// copy completes. Any copy error (including a client abort or a size-limit
// trip surfaced through r) removes the temp file.
func (d *DiskStore) Put(ctx context.Context, name string, r io.Reader) (int64, error) {
	dst, err := d.path(name)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(d.dir, ".part-*")
	if err != nil {
		return 0, fmt.Errorf("create temp blob: %w", err)
	}

	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return n, err
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return n, fmt.Errorf("commit blob: %w", err)
	}
	return n, nil
}

func (d *DiskStore) Open(_ context.Context, name string) (io.ReadCloser, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	return f, nil
}

func (d *DiskStore) Remove(_ context.Context, name string) error {
	p, err := d.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Ping verifies the upload directory is still present and a directory.
func (d *DiskStore) Ping(_ context.Context) error {
	info, err := os.Stat(d.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", d.dir)
	}
	return nil
}
