// Package store holds the two persistence collaborators: a filesystem
// blob store for rendered rasters and an embedded document store for
// study records.
package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// StorageError reports a failed artifact write. It is fatal for the
// request that triggered it; the caller may retry the whole upload.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store artifact %s: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// BlobStore writes rendered artifacts under a single media root.
// Blob names are relative paths like "images/<id>.png".
type BlobStore struct {
	root string
}

// NewBlobStore creates the media root and its images/ and thumbnails/
// subdirectories.
func NewBlobStore(root string) (*BlobStore, error) {
	for _, dir := range []string{root, filepath.Join(root, "images"), filepath.Join(root, "thumbnails")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create media directory %s: %w", dir, err)
		}
	}
	return &BlobStore{root: root}, nil
}

// Root returns the media root directory.
func (s *BlobStore) Root() string { return s.root }

// Store durably writes one blob. The file is created exclusively so a
// colliding name can never overwrite an earlier artifact, and it is
// synced before success is reported.
func (s *BlobStore) Store(rel string, data []byte) error {
	path := filepath.Join(s.root, filepath.FromSlash(rel))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return &StorageError{Path: rel, Err: err}
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return &StorageError{Path: rel, Err: err}
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return &StorageError{Path: rel, Err: err}
	}
	if err := f.Close(); err != nil {
		return &StorageError{Path: rel, Err: err}
	}
	return nil
}

// Remove deletes a blob. Used to roll back artifacts when the study
// record cannot be persisted.
func (s *BlobStore) Remove(rel string) error {
	return os.Remove(filepath.Join(s.root, filepath.FromSlash(rel)))
}
