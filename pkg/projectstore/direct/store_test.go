package direct

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dataviz-jp/cartosync/pkg/blobstore"
	"github.com/dataviz-jp/cartosync/pkg/project"
	"github.com/dataviz-jp/cartosync/pkg/projectstore"
	"github.com/dataviz-jp/cartosync/pkg/session"
)

var uuidShape = regexp.MustCompile(
	`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// callLog records backend calls across the blob and metadata doubles so
// tests can assert intra-save ordering.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// fakeBlobs is an in-memory blob store double with injectable per-key failures.
type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	log     *callLog
	// failSuffix -> error returned by Upload for keys with that suffix.
	uploadFail map[string]error
}

func newFakeBlobs(log *callLog) *fakeBlobs {
	return &fakeBlobs{
		objects:    make(map[string][]byte),
		log:        log,
		uploadFail: make(map[string]error),
	}
}

func (f *fakeBlobs) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	f.log.add("blob.upload " + key)
	for suffix, err := range f.uploadFail {
		if strings.HasSuffix(key, suffix) {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = append([]byte(nil), data...)
	return nil
}

func (f *fakeBlobs) Download(ctx context.Context, key string) ([]byte, error) {
	f.log.add("blob.download " + key)
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, &blobstore.BlobError{Op: "Download", Backend: blobstore.BackendFS, Key: key, Status: 404, Err: blobstore.ErrNotFound}
	}
	return data, nil
}

func (f *fakeBlobs) Delete(ctx context.Context, key string) error {
	f.log.add("blob.delete " + key)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[key]; !ok {
		return &blobstore.BlobError{Op: "Delete", Backend: blobstore.BackendFS, Key: key, Status: 404, Err: blobstore.ErrNotFound}
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeBlobs) Close() error { return nil }

func (f *fakeBlobs) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

// recordingMeta decorates a MetadataStore with call logging and an
// injectable upsert failure.
type recordingMeta struct {
	MetadataStore
	log        *callLog
	upsertFail error
}

func (r *recordingMeta) Upsert(ctx context.Context, token string, row Row) (*project.Record, error) {
	r.log.add("metadata.upsert " + row.ID)
	if r.upsertFail != nil {
		return nil, r.upsertFail
	}
	return r.MetadataStore.Upsert(ctx, token, row)
}

func (r *recordingMeta) Find(ctx context.Context, token, id string) ([]project.Record, error) {
	r.log.add("metadata.find " + id)
	return r.MetadataStore.Find(ctx, token, id)
}

func testToken(t *testing.T, owner string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256,
		jwt.MapClaims{"sub": owner}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

type harness struct {
	store *Store
	blobs *fakeBlobs
	meta  *recordingMeta
	log   *callLog
	owner string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := &callLog{}
	blobs := newFakeBlobs(log)
	meta := &recordingMeta{MetadataStore: NewMemoryStore(), log: log}
	owner := "owner-1"

	store, err := New(Config{AppScope: "cartogram-japan", Logger: zap.NewNop()},
		blobs, meta, session.NewStaticProvider(testToken(t, owner)))
	require.NoError(t, err)

	return &harness{store: store, blobs: blobs, meta: meta, log: log, owner: owner}
}

func TestSave_NewProject(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	payload := json.RawMessage(`{"都道府県":"東京都","pop":1000}`)
	rec, err := h.store.Save(ctx, project.Project{Payload: payload}, "Tokyo Density", nil)
	require.NoError(t, err)

	assert.Regexp(t, uuidShape, rec.ID)
	assert.Equal(t, "Tokyo Density", rec.Name)
	assert.Equal(t, "cartogram-japan", rec.AppScope)
	assert.Equal(t, rec.CreatedAt, rec.UpdatedAt)
	assert.Nil(t, rec.ThumbnailPath)

	// No thumbnail blob may exist for a thumbnail-less save.
	assert.False(t, h.blobs.has(fmt.Sprintf("%s/%s.png", h.owner, rec.ID)))

	loaded, err := h.store.Load(ctx, rec.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(loaded.Payload))
	assert.Equal(t, rec.ID, loaded.ID)
}

func TestSave_UpsertIsIdempotentByID(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	first, err := h.store.Save(ctx, project.Project{Payload: json.RawMessage(`{"v":1}`)}, "v1", nil)
	require.NoError(t, err)

	second, err := h.store.Save(ctx, project.Project{
		ID:      first.ID,
		Payload: json.RawMessage(`{"v":2}`),
	}, "v2", nil)
	require.NoError(t, err)

	// Same id, latest values, original creation time preserved.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "v2", second.Name)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))

	summaries, err := h.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "v2", summaries[0].Name)

	loaded, err := h.store.Load(ctx, first.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(loaded.Payload))
}

func TestSave_WithThumbnail(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	rec, err := h.store.Save(ctx, project.Project{Payload: json.RawMessage(`{}`)}, "thumbed",
		[]byte("png-bytes"))
	require.NoError(t, err)

	require.NotNil(t, rec.ThumbnailPath)
	assert.Equal(t, fmt.Sprintf("%s/%s.png", h.owner, rec.ID), *rec.ThumbnailPath)

	img, err := h.store.Thumbnail(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), img)
}

func TestSave_StepOrdering(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	rec, err := h.store.Save(ctx, project.Project{Payload: json.RawMessage(`{}`)}, "ordered",
		[]byte("png"))
	require.NoError(t, err)

	calls := h.log.snapshot()
	require.Len(t, calls, 3)
	assert.Equal(t, "blob.upload "+fmt.Sprintf("%s/%s.json", h.owner, rec.ID), calls[0])
	assert.Equal(t, "blob.upload "+fmt.Sprintf("%s/%s.png", h.owner, rec.ID), calls[1])
	assert.Equal(t, "metadata.upsert "+rec.ID, calls[2])
}

func TestSave_PayloadFailureAborts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.blobs.uploadFail[".json"] = &blobstore.BlobError{
		Op: "Upload", Backend: blobstore.BackendSupabase, Key: "x", Status: 503,
		Err: blobstore.ErrUnavailable,
	}

	_, err := h.store.Save(ctx, project.Project{Payload: json.RawMessage(`{}`)}, "doomed",
		[]byte("png"))
	require.Error(t, err)

	var storeErr *projectstore.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, projectstore.StepPayload, storeErr.Step)
	assert.Equal(t, 503, storeErr.Status)

	// A failed payload upload must never be followed by a metadata upsert
	// (or a thumbnail upload).
	for _, call := range h.log.snapshot() {
		assert.NotContains(t, call, "metadata.upsert")
		assert.NotContains(t, call, ".png")
	}
}

func TestSave_ThumbnailFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.blobs.uploadFail[".png"] = &blobstore.BlobError{
		Op: "Upload", Backend: blobstore.BackendSupabase, Key: "x", Status: 500,
		Err: blobstore.ErrUnavailable,
	}

	rec, err := h.store.Save(ctx, project.Project{Payload: json.RawMessage(`{"ok":true}`)}, "resilient",
		[]byte("png"))
	require.NoError(t, err)

	// The row must omit the pointer rather than reference a blob that does
	// not exist.
	assert.Nil(t, rec.ThumbnailPath)

	loaded, err := h.store.Load(ctx, rec.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(loaded.Payload))
}

func TestSave_MetadataFailureAborts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.meta.upsertFail = &metadataError{Status: 409, Message: "constraint violation"}

	_, err := h.store.Save(ctx, project.Project{Payload: json.RawMessage(`{}`)}, "doomed", nil)
	require.Error(t, err)

	var storeErr *projectstore.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, projectstore.StepMetadata, storeErr.Step)
	assert.Equal(t, 409, storeErr.Status)
	assert.Contains(t, err.Error(), "constraint violation")
}

func TestSave_RejectsInvalidInputBeforeIO(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.store.Save(ctx, project.Project{Payload: json.RawMessage(`{"bad":`)}, "broken", nil)
	assert.True(t, projectstore.IsInvalidProject(err))
	assert.Empty(t, h.log.snapshot())
}

func TestSave_AuthRequiredShortCircuits(t *testing.T) {
	ctx := context.Background()
	log := &callLog{}
	blobs := newFakeBlobs(log)
	meta := &recordingMeta{MetadataStore: NewMemoryStore(), log: log}

	store, err := New(Config{AppScope: "cartogram-japan"}, blobs, meta,
		session.NewStaticProvider(""))
	require.NoError(t, err)

	_, err = store.Save(ctx, project.Project{Payload: json.RawMessage(`{}`)}, "nope", nil)
	assert.True(t, projectstore.IsAuthRequired(err))
	assert.Empty(t, log.snapshot(), "no I/O may happen before the session gate")
}

func TestLoad_NotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.store.Load(context.Background(), "7a9f1c2e-0d4b-4f6a-9c3e-1b2d3f4a5c6e")
	assert.True(t, projectstore.IsNotFound(err))
	assert.False(t, projectstore.IsBlobMissing(err))
}

func TestLoad_BlobMissingIsDistinctFromNotFound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	rec, err := h.store.Save(ctx, project.Project{Payload: json.RawMessage(`{}`)}, "fragile", nil)
	require.NoError(t, err)

	// Remove the blob behind the row's back.
	require.NoError(t, h.blobs.Delete(ctx, fmt.Sprintf("%s/%s.json", h.owner, rec.ID)))

	_, err = h.store.Load(ctx, rec.ID)
	assert.True(t, projectstore.IsBlobMissing(err))
	assert.False(t, projectstore.IsNotFound(err))
}

func TestList_EmptyIsNotAnError(t *testing.T) {
	h := newHarness(t)

	summaries, err := h.store.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, summaries)
	assert.Empty(t, summaries)
}

func TestList_OrderedByUpdateDesc(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	h.store.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	older, err := h.store.Save(ctx, project.Project{Payload: json.RawMessage(`{}`)}, "older", nil)
	require.NoError(t, err)
	newer, err := h.store.Save(ctx, project.Project{Payload: json.RawMessage(`{}`)}, "newer", nil)
	require.NoError(t, err)

	summaries, err := h.store.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, newer.ID, summaries[0].ID)
	assert.Equal(t, older.ID, summaries[1].ID)
}

func TestThumbnail_MissingIsNil(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	rec, err := h.store.Save(ctx, project.Project{Payload: json.RawMessage(`{}`)}, "bare", nil)
	require.NoError(t, err)

	img, err := h.store.Thumbnail(ctx, rec.ID)
	require.NoError(t, err)
	assert.Nil(t, img)
}

func TestSave_LastWriterWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	first, err := h.store.Save(ctx, project.Project{Payload: json.RawMessage(`{"n":1}`)}, "first", nil)
	require.NoError(t, err)

	// Two racing saves of the same id, serialized here so the winner is
	// deterministic: whichever metadata upsert lands last wins.
	_, err = h.store.Save(ctx, project.Project{ID: first.ID, Payload: json.RawMessage(`{"n":2}`)}, "racer-a", nil)
	require.NoError(t, err)
	_, err = h.store.Save(ctx, project.Project{ID: first.ID, Payload: json.RawMessage(`{"n":3}`)}, "racer-b", nil)
	require.NoError(t, err)

	loaded, err := h.store.Load(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "racer-b", loaded.Name)
	assert.JSONEq(t, `{"n":3}`, string(loaded.Payload))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	rec, err := h.store.Save(ctx, project.Project{Payload: json.RawMessage(`{}`)}, "ephemeral",
		[]byte("png"))
	require.NoError(t, err)

	require.NoError(t, h.store.Delete(ctx, rec.ID))

	_, err = h.store.Load(ctx, rec.ID)
	assert.True(t, projectstore.IsNotFound(err))
	assert.False(t, h.blobs.has(fmt.Sprintf("%s/%s.json", h.owner, rec.ID)))
	assert.False(t, h.blobs.has(fmt.Sprintf("%s/%s.png", h.owner, rec.ID)))
}

func TestDelete_NotFound(t *testing.T) {
	h := newHarness(t)
	err := h.store.Delete(context.Background(), "7a9f1c2e-0d4b-4f6a-9c3e-1b2d3f4a5c6e")
	assert.True(t, projectstore.IsNotFound(err))
}

func TestSave_DefaultName(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	rec, err := h.store.Save(ctx, project.Project{Payload: json.RawMessage(`{}`)}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, project.DefaultName, rec.Name)
}
