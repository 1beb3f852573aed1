// Package direct implements the direct-store strategy: the client itself
// splits a project across a blob store (payload document, thumbnail image)
// and a metadata store (queryable rows), instead of delegating the split to
// a mediating gateway.
//
// A save is three ordered steps (payload blob, optional thumbnail blob,
// metadata row) that are not atomic across steps. Payload failure aborts
// the save; thumbnail failure is logged and tolerated (the row then omits
// the thumbnail pointer); metadata failure aborts and leaves the payload
// blob orphaned, an accepted inconsistency that is logged with enough
// context for later reconciliation.
package direct

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dataviz-jp/cartosync/pkg/blobstore"
	"github.com/dataviz-jp/cartosync/pkg/idgen"
	"github.com/dataviz-jp/cartosync/pkg/project"
	"github.com/dataviz-jp/cartosync/pkg/projectstore"
	"github.com/dataviz-jp/cartosync/pkg/session"
)

// Config configures a direct store.
type Config struct {
	// AppScope partitions this application's projects on the shared
	// backend (required).
	AppScope string

	// Logger receives partial-failure and orphaned-blob records.
	// Nil uses a no-op logger.
	Logger *zap.Logger
}

// Store implements projectstore.Store by orchestrating a blob store and a
// metadata store directly.
type Store struct {
	appScope string
	blobs    blobstore.Store
	meta     MetadataStore
	sessions session.Provider
	logger   *zap.Logger

	// now and newID are swappable for tests.
	now   func() time.Time
	newID func() string
}

var _ projectstore.Store = (*Store)(nil)

// New creates a direct store over the given blob and metadata stores.
func New(cfg Config, blobs blobstore.Store, meta MetadataStore, sessions session.Provider) (*Store, error) {
	if cfg.AppScope == "" {
		return nil, fmt.Errorf("%w: app scope is required", projectstore.ErrConfigMissing)
	}
	if blobs == nil || meta == nil {
		return nil, fmt.Errorf("%w: blob and metadata stores are required", projectstore.ErrConfigMissing)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		appScope: cfg.AppScope,
		blobs:    blobs,
		meta:     meta,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
		newID:    idgen.NewID,
	}, nil
}

// Save persists p as payload blob, optional thumbnail blob, and metadata
// row, strictly in that order.
func (s *Store) Save(ctx context.Context, p project.Project, name string, thumbnail []byte) (*project.Record, error) {
	rctx, err := projectstore.ResolveContext(ctx, s.sessions)
	if err != nil {
		return nil, s.wrapError("Save", p.ID, "", 0, err)
	}

	if name == "" {
		name = project.DefaultName
	}
	if err := project.ValidateName(name); err != nil {
		return nil, s.wrapError("Save", p.ID, "", 0, fmt.Errorf("%w: %v", projectstore.ErrInvalidProject, err))
	}
	if err := p.Validate(); err != nil {
		return nil, s.wrapError("Save", p.ID, "", 0, fmt.Errorf("%w: %v", projectstore.ErrInvalidProject, err))
	}

	id := p.ID
	isNew := id == ""
	if isNew {
		id = s.newID()
	}

	blobs := blobstore.Bind(s.blobs, rctx.AccessToken)
	payloadKey := payloadPath(rctx.OwnerID, id)

	// Step 1: payload blob. Failure aborts the save.
	if err := blobs.Upload(ctx, payloadKey, p.Payload, "application/json"); err != nil {
		return nil, s.wrapError("Save", id, projectstore.StepPayload, statusOf(err), err)
	}

	// Step 2: thumbnail blob, when supplied. Failure is tolerated: the row
	// below must then omit the pointer rather than reference a blob that
	// does not exist.
	var thumbnailPath *string
	if len(thumbnail) > 0 {
		key := thumbnailKeyPath(rctx.OwnerID, id)
		if err := blobs.Upload(ctx, key, thumbnail, "image/png"); err != nil {
			s.logger.Warn("thumbnail upload failed, saving without thumbnail",
				zap.String("project_id", id),
				zap.String("thumbnail_path", key),
				zap.Error(err))
		} else {
			thumbnailPath = &key
		}
	}

	// Step 3: metadata row. Failure aborts; the payload blob from step 1 is
	// now orphaned until a later save or manual reconciliation.
	now := s.now().UTC()
	row := Row{
		ID:            id,
		OwnerID:       rctx.OwnerID,
		Name:          name,
		AppScope:      s.appScope,
		StoragePath:   payloadKey,
		ThumbnailPath: thumbnailPath,
		UpdatedAt:     now,
	}
	if isNew {
		row.CreatedAt = &now
	}

	rec, err := s.meta.Upsert(ctx, rctx.AccessToken, row)
	if err != nil {
		s.logger.Error("metadata upsert failed, payload blob orphaned",
			zap.String("project_id", id),
			zap.String("storage_path", payloadKey),
			zap.Error(err))
		return nil, s.wrapError("Save", id, projectstore.StepMetadata, statusOf(err), err)
	}
	return rec, nil
}

// Load resolves id through the metadata row, then fetches the payload blob.
func (s *Store) Load(ctx context.Context, id string) (*project.Project, error) {
	rctx, err := projectstore.ResolveContext(ctx, s.sessions)
	if err != nil {
		return nil, s.wrapError("Load", id, "", 0, err)
	}
	if err := project.ValidateID(id); err != nil {
		return nil, s.wrapError("Load", id, "", 0, fmt.Errorf("%w: %v", projectstore.ErrInvalidProject, err))
	}

	rows, err := s.meta.Find(ctx, rctx.AccessToken, id)
	if err != nil {
		return nil, s.wrapError("Load", id, "", statusOf(err), err)
	}
	if len(rows) == 0 {
		return nil, s.wrapError("Load", id, "", 0, projectstore.ErrNotFound)
	}
	if len(rows) > 1 {
		// The id column is the row key; more than one match means a
		// corrupted replica. Refuse to pick one.
		s.logger.Error("metadata returned multiple rows for one id",
			zap.String("project_id", id),
			zap.Int("rows", len(rows)))
		return nil, s.wrapError("Load", id, "", 0, projectstore.ErrNotFound)
	}
	rec := rows[0]

	blobs := blobstore.Bind(s.blobs, rctx.AccessToken)
	data, err := blobs.Download(ctx, rec.StoragePath)
	if err != nil {
		if blobstore.IsNotFound(err) {
			// Row exists but its blob is gone: a storage-consistency
			// fault, not a missing project.
			return nil, s.wrapError("Load", id, "", statusOf(err), projectstore.ErrBlobMissing)
		}
		return nil, s.wrapError("Load", id, "", statusOf(err), err)
	}

	if !json.Valid(data) {
		return nil, s.wrapError("Load", id, "", 0,
			fmt.Errorf("%w: payload blob is not well-formed JSON", projectstore.ErrInvalidProject))
	}

	return &project.Project{
		ID:       rec.ID,
		Name:     rec.Name,
		AppScope: rec.AppScope,
		Payload:  data,
	}, nil
}

// List returns the caller's metadata summaries, newest update first.
func (s *Store) List(ctx context.Context) ([]project.Summary, error) {
	rctx, err := projectstore.ResolveContext(ctx, s.sessions)
	if err != nil {
		return nil, s.wrapError("List", "", "", 0, err)
	}

	summaries, err := s.meta.List(ctx, rctx.AccessToken, s.appScope)
	if err != nil {
		return nil, s.wrapError("List", "", "", statusOf(err), err)
	}
	if summaries == nil {
		summaries = []project.Summary{}
	}
	return summaries, nil
}

// Thumbnail fetches the thumbnail blob for id. Absence is not an error.
func (s *Store) Thumbnail(ctx context.Context, id string) ([]byte, error) {
	rctx, err := projectstore.ResolveContext(ctx, s.sessions)
	if err != nil {
		return nil, s.wrapError("Thumbnail", id, "", 0, err)
	}
	if err := project.ValidateID(id); err != nil {
		return nil, s.wrapError("Thumbnail", id, "", 0, fmt.Errorf("%w: %v", projectstore.ErrInvalidProject, err))
	}

	blobs := blobstore.Bind(s.blobs, rctx.AccessToken)
	data, err := blobs.Download(ctx, thumbnailKeyPath(rctx.OwnerID, id))
	if err != nil {
		if blobstore.IsNotFound(err) {
			return nil, nil
		}
		return nil, s.wrapError("Thumbnail", id, "", statusOf(err), err)
	}
	return data, nil
}

// Delete removes the metadata row first, then cleans up both blobs
// best-effort. A blob left behind after row removal is unreachable and
// logged for reconciliation, mirroring the save-time inconsistency window.
func (s *Store) Delete(ctx context.Context, id string) error {
	rctx, err := projectstore.ResolveContext(ctx, s.sessions)
	if err != nil {
		return s.wrapError("Delete", id, "", 0, err)
	}
	if err := project.ValidateID(id); err != nil {
		return s.wrapError("Delete", id, "", 0, fmt.Errorf("%w: %v", projectstore.ErrInvalidProject, err))
	}

	removed, err := s.meta.Delete(ctx, rctx.AccessToken, id)
	if err != nil {
		return s.wrapError("Delete", id, "", statusOf(err), err)
	}
	if removed == 0 {
		return s.wrapError("Delete", id, "", 0, projectstore.ErrNotFound)
	}

	blobs := blobstore.Bind(s.blobs, rctx.AccessToken)
	for _, key := range []string{payloadPath(rctx.OwnerID, id), thumbnailKeyPath(rctx.OwnerID, id)} {
		if err := blobs.Delete(ctx, key); err != nil && !blobstore.IsNotFound(err) {
			s.logger.Warn("blob cleanup failed after row delete, blob orphaned",
				zap.String("project_id", id),
				zap.String("path", key),
				zap.Error(err))
		}
	}
	return nil
}

// Close closes the underlying stores.
func (s *Store) Close() error {
	blobErr := s.blobs.Close()
	metaErr := s.meta.Close()
	if blobErr != nil {
		return blobErr
	}
	return metaErr
}

func (s *Store) wrapError(op, id, step string, status int, err error) error {
	return &projectstore.StoreError{
		Op:        op,
		Backend:   projectstore.BackendDirect,
		ProjectID: id,
		Step:      step,
		Status:    status,
		Err:       err,
	}
}

// payloadPath is the blob key of a project's JSON document.
func payloadPath(ownerID, id string) string {
	return fmt.Sprintf("%s/%s.json", ownerID, id)
}

// thumbnailKeyPath is the blob key of a project's thumbnail image.
func thumbnailKeyPath(ownerID, id string) string {
	return fmt.Sprintf("%s/%s.png", ownerID, id)
}

// statusOf extracts an HTTP status from backend error types, when present.
func statusOf(err error) int {
	var metaErr *metadataError
	if errors.As(err, &metaErr) {
		return metaErr.Status
	}
	var blobErr *blobstore.BlobError
	if errors.As(err, &blobErr) {
		return blobErr.Status
	}
	return 0
}
