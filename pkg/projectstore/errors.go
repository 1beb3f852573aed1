package projectstore

import (
	"errors"
	"fmt"
)

// Sentinel errors for store operations.
var (
	// ErrAuthRequired indicates no valid session; checked before any I/O.
	ErrAuthRequired = errors.New("authentication required")

	// ErrConfigMissing indicates the backend context cannot be resolved.
	ErrConfigMissing = errors.New("backend configuration missing")

	// ErrNotFound indicates no project exists under the requested id.
	ErrNotFound = errors.New("project not found")

	// ErrBlobMissing indicates a metadata row references a payload blob
	// that cannot be fetched: a storage-consistency fault, distinct from
	// ErrNotFound.
	ErrBlobMissing = errors.New("project blob missing")

	// ErrInvalidProject indicates malformed caller input or a response body
	// that is not the expected document shape.
	ErrInvalidProject = errors.New("invalid project")
)

// Save step names recorded in StoreError.Step for multi-step direct saves.
const (
	StepPayload   = "payload"
	StepThumbnail = "thumbnail"
	StepMetadata  = "metadata"
)

// StoreError wraps backend failures with operation context.
type StoreError struct {
	// Op is the operation that failed (e.g., "Save", "Load").
	Op string

	// Backend is the strategy in use ("gateway" or "direct").
	Backend BackendType

	// ProjectID is the project id, if known at failure time.
	ProjectID string

	// Step identifies which ordered save step failed, for direct saves.
	Step string

	// Status is the HTTP status the backend reported, when one exists.
	Status int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Backend, e.Op)
	if e.ProjectID != "" {
		msg += ": " + e.ProjectID
	}
	if e.Step != "" {
		msg += ": step " + e.Step
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsAuthRequired returns true if the error indicates a missing session.
func IsAuthRequired(err error) bool {
	return errors.Is(err, ErrAuthRequired)
}

// IsNotFound returns true if the error indicates a missing project.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsBlobMissing returns true if the error indicates a row whose blob is gone.
func IsBlobMissing(err error) bool {
	return errors.Is(err, ErrBlobMissing)
}

// IsInvalidProject returns true if the error indicates rejected input or an
// unparseable document.
func IsInvalidProject(err error) bool {
	return errors.Is(err, ErrInvalidProject)
}
