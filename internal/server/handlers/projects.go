// Package handlers implements the dev gateway's HTTP surface. The gateway
// owns the blob/metadata split that direct-strategy clients perform
// themselves, so gateway clients see one call per operation.
package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dataviz-jp/cartosync/internal/server/middleware"
	"github.com/dataviz-jp/cartosync/pkg/blobstore"
	"github.com/dataviz-jp/cartosync/pkg/idgen"
	"github.com/dataviz-jp/cartosync/pkg/project"
	"github.com/dataviz-jp/cartosync/pkg/projectstore/direct"
)

const thumbnailPrefix = "data:image/png;base64,"

// Projects serves the /api/projects routes over a blob store and a metadata
// store.
type Projects struct {
	Blobs  blobstore.Store
	Meta   direct.MetadataStore
	Logger *zap.Logger

	// NewID is swappable for tests; defaults to idgen.NewID.
	NewID func() string
}

// Routes mounts the project endpoints on r. The caller wires auth in front.
func (h *Projects) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.save)
	r.Get("/{id}", h.load)
	r.Delete("/{id}", h.delete)
	r.Get("/{id}/thumbnail", h.thumbnail)
}

type saveRequest struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	AppScope  string          `json:"app_name"`
	Payload   json.RawMessage `json:"data"`
	Thumbnail *string         `json:"thumbnail"`
}

func (h *Projects) save(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwnerID(r.Context())
	token := middleware.GetAccessToken(r.Context())

	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body")
		return
	}

	if req.Name == "" {
		req.Name = project.DefaultName
	}
	p := project.Project{
		ID:       req.ID,
		Name:     req.Name,
		AppScope: req.AppScope,
		Payload:  req.Payload,
	}
	if err := p.Validate(); err != nil {
		middleware.WriteError(w, r, http.StatusBadRequest, "INVALID_PROJECT", err.Error())
		return
	}
	if err := project.ValidateName(req.Name); err != nil {
		middleware.WriteError(w, r, http.StatusBadRequest, "INVALID_PROJECT", err.Error())
		return
	}

	isNew := p.ID == ""
	if isNew {
		p.ID = h.newID()
	}

	payloadKey := fmt.Sprintf("%s/%s.json", owner, p.ID)
	if err := h.Blobs.Upload(r.Context(), payloadKey, p.Payload, "application/json"); err != nil {
		h.Logger.Error("payload upload failed", zap.String("key", payloadKey), zap.Error(err))
		middleware.WriteError(w, r, http.StatusBadGateway, "STORAGE_FAILED", "payload write failed")
		return
	}

	var thumbPath *string
	if req.Thumbnail != nil && *req.Thumbnail != "" {
		img, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(*req.Thumbnail, thumbnailPrefix))
		if err != nil {
			middleware.WriteError(w, r, http.StatusBadRequest, "BAD_REQUEST", "thumbnail is not valid base64")
			return
		}
		thumbKey := fmt.Sprintf("%s/%s.png", owner, p.ID)
		if err := h.Blobs.Upload(r.Context(), thumbKey, img, "image/png"); err != nil {
			// Thumbnails are cosmetic; the save continues without one.
			h.Logger.Warn("thumbnail upload failed", zap.String("key", thumbKey), zap.Error(err))
		} else {
			thumbPath = &thumbKey
		}
	}

	now := time.Now().UTC()
	row := direct.Row{
		ID:            p.ID,
		OwnerID:       owner,
		Name:          req.Name,
		AppScope:      p.AppScope,
		StoragePath:   payloadKey,
		ThumbnailPath: thumbPath,
		UpdatedAt:     now,
	}
	if isNew {
		row.CreatedAt = &now
	}

	rec, err := h.Meta.Upsert(r.Context(), token, row)
	if err != nil {
		h.Logger.Error("metadata upsert failed, payload blob orphaned",
			zap.String("key", payloadKey), zap.Error(err))
		middleware.WriteError(w, r, http.StatusBadGateway, "STORAGE_FAILED", "metadata write failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"project": rec})
}

func (h *Projects) load(w http.ResponseWriter, r *http.Request) {
	token := middleware.GetAccessToken(r.Context())
	id := chi.URLParam(r, "id")

	rows, err := h.Meta.Find(r.Context(), token, id)
	if err != nil {
		middleware.WriteError(w, r, http.StatusBadGateway, "STORAGE_FAILED", "metadata lookup failed")
		return
	}
	if len(rows) != 1 {
		middleware.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "project not found")
		return
	}
	rec := rows[0]

	payload, err := h.Blobs.Download(r.Context(), rec.StoragePath)
	if err != nil {
		if blobstore.IsNotFound(err) {
			middleware.WriteError(w, r, http.StatusGone, "BLOB_MISSING", "project payload is missing")
			return
		}
		middleware.WriteError(w, r, http.StatusBadGateway, "STORAGE_FAILED", "payload read failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"project": project.Project{
		ID:       rec.ID,
		Name:     rec.Name,
		AppScope: rec.AppScope,
		Payload:  payload,
	}})
}

func (h *Projects) list(w http.ResponseWriter, r *http.Request) {
	token := middleware.GetAccessToken(r.Context())
	appScope := r.URL.Query().Get("app")
	if appScope == "" {
		middleware.WriteError(w, r, http.StatusBadRequest, "BAD_REQUEST", "app query parameter is required")
		return
	}

	summaries, err := h.Meta.List(r.Context(), token, appScope)
	if err != nil {
		middleware.WriteError(w, r, http.StatusBadGateway, "STORAGE_FAILED", "metadata list failed")
		return
	}
	if summaries == nil {
		summaries = []project.Summary{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"projects": summaries})
}

func (h *Projects) thumbnail(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwnerID(r.Context())
	id := chi.URLParam(r, "id")

	img, err := h.Blobs.Download(r.Context(), fmt.Sprintf("%s/%s.png", owner, id))
	if err != nil {
		if blobstore.IsNotFound(err) {
			middleware.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "no thumbnail")
			return
		}
		middleware.WriteError(w, r, http.StatusBadGateway, "STORAGE_FAILED", "thumbnail read failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img)
}

func (h *Projects) delete(w http.ResponseWriter, r *http.Request) {
	owner := middleware.GetOwnerID(r.Context())
	token := middleware.GetAccessToken(r.Context())
	id := chi.URLParam(r, "id")

	removed, err := h.Meta.Delete(r.Context(), token, id)
	if err != nil {
		middleware.WriteError(w, r, http.StatusBadGateway, "STORAGE_FAILED", "metadata delete failed")
		return
	}
	if removed == 0 {
		middleware.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "project not found")
		return
	}

	for _, ext := range []string{".json", ".png"} {
		key := fmt.Sprintf("%s/%s%s", owner, id, ext)
		if err := h.Blobs.Delete(r.Context(), key); err != nil && !blobstore.IsNotFound(err) {
			h.Logger.Warn("blob cleanup failed", zap.String("key", key), zap.Error(err))
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Projects) newID() string {
	if h.NewID != nil {
		return h.NewID()
	}
	return idgen.NewID()
}

func (h *Projects) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && !errors.Is(err, http.ErrBodyNotAllowed) {
		h.Logger.Warn("response encode failed", zap.Error(err))
	}
}
