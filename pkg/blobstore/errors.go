package blobstore

import (
	"errors"
	"fmt"
)

// Sentinel errors for blob operations.
var (
	// ErrNotFound indicates no blob exists at the requested key.
	ErrNotFound = errors.New("blob not found")

	// ErrAccessDenied indicates insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrBucketNotFound indicates the bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrUnavailable indicates the storage service is unavailable.
	ErrUnavailable = errors.New("storage unavailable")
)

// BlobError wraps backend-specific errors with operation context.
type BlobError struct {
	// Op is the operation that failed (e.g., "Upload", "Download").
	Op string

	// Backend is the backend type (e.g., "supabase").
	Backend BackendType

	// Bucket is the bucket name, if applicable.
	Bucket string

	// Key is the blob key.
	Key string

	// Status is the HTTP status code, when the backend reported one.
	Status int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *BlobError) Error() string {
	if e.Bucket != "" {
		return fmt.Sprintf("%s %s: %s/%s: %v", e.Backend, e.Op, e.Bucket, e.Key, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Backend, e.Op, e.Key, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *BlobError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates a missing blob.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied returns true if the error indicates insufficient permissions.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}
