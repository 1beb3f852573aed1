// Package fs implements the blobstore interface over a local directory.
//
// Keys are treated as relative paths under BaseDir. This backend exists for
// the local development gateway and for tests; it is not meant for shared
// deployments.
package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dataviz-jp/cartosync/pkg/blobstore"
)

// Config configures a filesystem blob store.
type Config struct {
	// BaseDir is the directory holding all blobs (required).
	BaseDir string
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseDir) == "" {
		return fmt.Errorf("fs config: base dir is required")
	}
	return nil
}

// Store implements blobstore.Store on the local filesystem.
type Store struct {
	baseDir string
}

var _ blobstore.Store = (*Store)(nil)

// New creates a filesystem blob store rooted at cfg.BaseDir, creating the
// directory if needed.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := filepath.Clean(cfg.BaseDir)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create base dir: %w", err)
	}
	return &Store{baseDir: base}, nil
}

// Upload writes data to key, overwriting any existing file.
func (s *Store) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_ = ctx
	_ = contentType // the filesystem records no MIME type

	full, err := s.fullPath(key)
	if err != nil {
		return s.wrapError("Upload", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return s.wrapError("Upload", key, err)
	}

	// Write-then-rename keeps concurrent readers from seeing partial blobs.
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return s.wrapError("Upload", key, err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return s.wrapError("Upload", key, err)
	}
	return nil
}

// Download returns the blob at key.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	_ = ctx
	full, err := s.fullPath(key)
	if err != nil {
		return nil, s.wrapError("Download", key, err)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, s.wrapError("Download", key, blobstore.ErrNotFound)
		}
		return nil, s.wrapError("Download", key, err)
	}
	return data, nil
}

// Delete removes the blob at key.
func (s *Store) Delete(ctx context.Context, key string) error {
	_ = ctx
	full, err := s.fullPath(key)
	if err != nil {
		return s.wrapError("Delete", key, err)
	}

	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return s.wrapError("Delete", key, blobstore.ErrNotFound)
		}
		return s.wrapError("Delete", key, err)
	}
	return nil
}

// Close releases resources (none held).
func (s *Store) Close() error { return nil }

// fullPath resolves key under baseDir, rejecting traversal outside it.
func (s *Store) fullPath(key string) (string, error) {
	clean := filepath.Clean("/" + strings.TrimPrefix(key, "/"))
	full := filepath.Join(s.baseDir, clean)
	if full != s.baseDir && !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("key escapes base dir")
	}
	return full, nil
}

func (s *Store) wrapError(op, key string, err error) error {
	return &blobstore.BlobError{
		Op:      op,
		Backend: blobstore.BackendFS,
		Key:     key,
		Err:     err,
	}
}
