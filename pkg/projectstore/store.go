// Package projectstore defines the persistence contract for cartogram
// projects.
//
// One Store interface fronts two interchangeable backend strategies: the
// gateway strategy, where a single application API mediates all storage, and
// the direct strategy, where the client itself splits a project across a
// blob store and a metadata store. Which strategy runs is a configuration
// choice; callers see the same operations, invariants, and error taxonomy
// either way.
//
// All operations are session gated: each one resolves the caller's session
// first and aborts with ErrAuthRequired before any network I/O when no
// authenticated identity is available. Operations are single-attempt, with
// no retries or backoff, and concurrent saves of the same project id follow
// last-writer-wins at the metadata layer.
package projectstore

import (
	"context"

	"github.com/dataviz-jp/cartosync/pkg/project"
)

// Store persists projects to an account-scoped backend.
//
// Implementations must be safe for concurrent use. Every method re-resolves
// the session context; nothing is cached between calls.
type Store interface {
	// Save persists p under the given name, allocating an id when p has
	// none. An existing id is an upsert, not an insert-duplicate. thumbnail
	// is optional; a failed thumbnail write never fails the save.
	// Returns the stored representation.
	Save(ctx context.Context, p project.Project, name string, thumbnail []byte) (*project.Record, error)

	// Load resolves id to its full payload document.
	// Returns ErrNotFound when no project exists under id, and
	// ErrBlobMissing when the metadata row exists but its payload blob
	// cannot be fetched.
	Load(ctx context.Context, id string) (*project.Project, error)

	// List returns metadata-only summaries for the caller's projects,
	// most recently updated first. No projects yields an empty slice,
	// not an error. List never fetches blob payloads.
	List(ctx context.Context) ([]project.Summary, error)

	// Thumbnail returns the thumbnail image bytes for id, or (nil, nil)
	// when the project has no thumbnail. Other failures are surfaced.
	Thumbnail(ctx context.Context, id string) ([]byte, error)

	// Delete removes the project under id.
	// Returns ErrNotFound when no project exists under id.
	Delete(ctx context.Context, id string) error

	// Close releases any resources held by the store.
	Close() error
}

// BackendType identifies a backend strategy.
type BackendType string

const (
	// BackendGateway routes every operation through the application API.
	BackendGateway BackendType = "gateway"

	// BackendDirect performs the blob/metadata split client-side.
	BackendDirect BackendType = "direct"
)

// String returns the string representation of the backend type.
func (b BackendType) String() string {
	return string(b)
}
