// Package blobstore defines the abstraction for opaque byte-payload storage.
//
// A blob store holds project documents and thumbnail images addressed by a
// path of the form {owner}/{id}.{ext}. Implementations cover the hosted
// storage HTTP API, S3-compatible object stores, and the local filesystem;
// all support upsert (overwrite-if-exists) writes.
package blobstore

import "context"

// Store abstracts blob upload, download, and deletion.
//
// Implementations should be safe for concurrent use. Writes are single
// attempt: callers own retries and cancellation via ctx.
type Store interface {
	// Upload writes data to key with upsert semantics (overwrite if present).
	// contentType is the MIME type recorded with the blob.
	Upload(ctx context.Context, key string, data []byte, contentType string) error

	// Download returns the blob at key.
	// Returns ErrNotFound if no blob exists at that key.
	Download(ctx context.Context, key string) ([]byte, error)

	// Delete removes the blob at key.
	// Returns ErrNotFound if no blob exists at that key.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}

// BackendType identifies a blob store implementation.
type BackendType string

const (
	// BackendSupabase is the hosted storage HTTP API.
	BackendSupabase BackendType = "supabase"

	// BackendS3 is AWS S3 or S3-compatible object storage.
	BackendS3 BackendType = "s3"

	// BackendFS is the local filesystem (development gateway backing).
	BackendFS BackendType = "fs"
)

// String returns the string representation of the backend type.
func (b BackendType) String() string {
	return string(b)
}
