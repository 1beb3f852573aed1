package direct

import (
	"context"
	"time"

	"github.com/dataviz-jp/cartosync/pkg/project"
)

// Row is the metadata row written on save. It is the queryable half of a
// project's durable state and the source of truth for existence.
type Row struct {
	ID       string `json:"id"`
	OwnerID  string `json:"owner_id"`
	Name     string `json:"name"`
	AppScope string `json:"app_name"`

	// StoragePath points at the payload blob uploaded before this row.
	StoragePath string `json:"storage_path"`

	// ThumbnailPath is null when the project has no thumbnail, including
	// when a thumbnail upload failed and the save proceeded without it.
	ThumbnailPath *string `json:"thumbnail_path"`

	// CreatedAt is set only on first insert; updates omit it so the
	// merge-on-conflict keeps the original value.
	CreatedAt *time.Time `json:"created_at,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// MetadataStore is the structured, queryable half of the direct strategy.
//
// Every call carries the session's bearer token; row visibility is enforced
// by the backend's authorization policy, not by this client. Implementations
// must honor merge-on-conflict-by-id upsert semantics.
type MetadataStore interface {
	// Upsert inserts or merges row by id and returns the stored
	// representation.
	Upsert(ctx context.Context, token string, row Row) (*project.Record, error)

	// Find returns the rows matching id. Zero rows means no such project.
	Find(ctx context.Context, token, id string) ([]project.Record, error)

	// List returns summaries for the caller's rows in appScope, ordered
	// most recently updated first.
	List(ctx context.Context, token, appScope string) ([]project.Summary, error)

	// Delete removes the row under id. Returns the number of rows removed.
	Delete(ctx context.Context, token, id string) (int, error)

	// Close releases any resources held by the store.
	Close() error
}
