// Package project defines the cartogram project data model shared by all
// backend strategies.
//
// A project is a named visualization document (arbitrary JSON produced by the
// cartogram UI) owned by one account and partitioned by application scope.
// The durable representation is split between a queryable metadata row and
// one or two blobs (payload document, optional thumbnail); the types here
// model both halves.
package project

import (
	"encoding/json"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MaxNameLength bounds project names at the component boundary.
const MaxNameLength = 200

// DefaultName is used when a save request carries no name.
const DefaultName = "Untitled Project"

var uuidV4Pattern = regexp.MustCompile(
	`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// Project is the in-memory form handed to and returned by a store.
//
// ID is empty until the first save assigns one; after that it is immutable
// and is the sole upsert key. OwnerID is always derived from the
// authenticated session server-side and is never sent by this layer.
type Project struct {
	// ID is the project identifier (lowercase UUID v4), empty for new projects.
	ID string `json:"id,omitempty"`

	// Name is the user-visible project name.
	Name string `json:"name"`

	// AppScope partitions projects of different applications sharing one
	// backend. All list/read operations are implicitly filtered by it.
	AppScope string `json:"app_name,omitempty"`

	// Payload is the visualization document exactly as the UI produced it.
	// It is stored and returned verbatim, never merged with row fields.
	Payload json.RawMessage `json:"data"`
}

// Validate rejects malformed projects before any network call.
func (p Project) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.ID, validation.When(p.ID != "",
			validation.Match(uuidV4Pattern).Error("must be a lowercase UUID v4"))),
		validation.Field(&p.Payload, validation.Required.Error("payload document is required"),
			validation.By(validJSONDocument)),
	)
}

func validJSONDocument(value interface{}) error {
	raw, _ := value.(json.RawMessage)
	if len(raw) == 0 {
		return nil // Required already covers the empty case.
	}
	if !json.Valid(raw) {
		return validation.NewError("validation_invalid_json", "payload must be well-formed JSON")
	}
	return nil
}

// ValidateName checks a save-time project name.
func ValidateName(name string) error {
	return validation.Validate(name,
		validation.Required.Error("project name is required"),
		validation.RuneLength(1, MaxNameLength),
	)
}

// ValidateID checks an identifier supplied to load/thumbnail/delete.
func ValidateID(id string) error {
	return validation.Validate(id,
		validation.Required.Error("project id is required"),
		validation.Match(uuidV4Pattern).Error("must be a lowercase UUID v4"),
	)
}

// Record is the stored representation of a project as the metadata layer
// returns it after a save. Pointer fields reference blobs; ThumbnailPath is
// nil when the project has no thumbnail.
type Record struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id,omitempty"`
	Name          string    `json:"name"`
	AppScope      string    `json:"app_name"`
	StoragePath   string    `json:"storage_path,omitempty"`
	ThumbnailPath *string   `json:"thumbnail_path,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Summary is the metadata-only list view. It never carries blob payloads.
type Summary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ThumbnailPath *string   `json:"thumbnail_path,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
