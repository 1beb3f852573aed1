// Package gateway implements the gateway backend strategy: every project
// operation is a single round trip to the application API, which owns the
// blob/metadata split server-side. The client never talks to storage
// directly and never sees storage paths.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/dataviz-jp/cartosync/pkg/idgen"
	"github.com/dataviz-jp/cartosync/pkg/project"
	"github.com/dataviz-jp/cartosync/pkg/projectstore"
	"github.com/dataviz-jp/cartosync/pkg/session"
)

// thumbnailPrefix is the data-URI framing for inlined thumbnails.
const thumbnailPrefix = "data:image/png;base64,"

// Config carries the settings for the gateway client.
type Config struct {
	// BaseURL is the API origin, e.g. "https://app.example.com".
	BaseURL string

	// AppScope partitions projects per application under one account.
	AppScope string

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client

	// Logger receives operational warnings. Optional.
	Logger *zap.Logger
}

// Validate reports whether the config is complete enough to build a client.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: gateway base URL", projectstore.ErrConfigMissing)
	}
	if c.AppScope == "" {
		return fmt.Errorf("%w: app scope", projectstore.ErrConfigMissing)
	}
	return nil
}

// Client is the gateway-strategy Store.
type Client struct {
	baseURL  string
	appScope string
	http     *http.Client
	sessions session.Provider
	logger   *zap.Logger

	newID func() string
}

var _ projectstore.Store = (*Client)(nil)

// New builds a gateway client from cfg, authenticating through sessions.
func New(cfg Config, sessions session.Provider) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		appScope: cfg.AppScope,
		http:     httpClient,
		sessions: sessions,
		logger:   logger,
		newID:    idgen.NewID,
	}, nil
}

// saveRequest is the single-call save body. The server performs the
// blob/metadata split on its side.
type saveRequest struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	AppScope  string          `json:"app_name"`
	Payload   json.RawMessage `json:"data"`
	Thumbnail *string         `json:"thumbnail"`
}

// Responses may wrap the payload in an envelope or return it bare;
// tolerate both.
type projectEnvelope struct {
	Project json.RawMessage `json:"project"`
}

type listEnvelope struct {
	Projects json.RawMessage `json:"projects"`
}

// Save persists p in a single API call. The thumbnail travels inline as a
// base64 data URI; nil means "no thumbnail".
func (c *Client) Save(ctx context.Context, p project.Project, name string, thumbnail []byte) (*project.Record, error) {
	sctx, err := projectstore.ResolveContext(ctx, c.sessions)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = project.DefaultName
	}
	if err := project.ValidateName(name); err != nil {
		return nil, c.wrapErr("Save", p.ID, 0, fmt.Errorf("%w: %w", projectstore.ErrInvalidProject, err))
	}
	p.Name = name
	p.AppScope = c.appScope
	if p.ID == "" {
		p.ID = c.newID()
	}
	if err := p.Validate(); err != nil {
		return nil, c.wrapErr("Save", p.ID, 0, fmt.Errorf("%w: %w", projectstore.ErrInvalidProject, err))
	}

	req := saveRequest{
		ID:       p.ID,
		Name:     name,
		AppScope: c.appScope,
		Payload:  p.Payload,
	}
	if len(thumbnail) > 0 {
		uri := thumbnailPrefix + base64.StdEncoding.EncodeToString(thumbnail)
		req.Thumbnail = &uri
	}

	body, status, err := c.do(ctx, sctx.AccessToken, http.MethodPost, "/api/projects", req)
	if err != nil {
		return nil, c.wrapErr("Save", p.ID, status, err)
	}

	var rec project.Record
	if err := json.Unmarshal(unwrapProject(body), &rec); err != nil {
		return nil, c.wrapErr("Save", p.ID, status, fmt.Errorf("decode save response: %w", err))
	}
	return &rec, nil
}

// Load fetches the full payload document for id.
func (c *Client) Load(ctx context.Context, id string) (*project.Project, error) {
	sctx, err := projectstore.ResolveContext(ctx, c.sessions)
	if err != nil {
		return nil, err
	}
	if err := project.ValidateID(id); err != nil {
		return nil, c.wrapErr("Load", id, 0, fmt.Errorf("%w: %w", projectstore.ErrInvalidProject, err))
	}

	body, status, err := c.do(ctx, sctx.AccessToken, http.MethodGet, "/api/projects/"+url.PathEscape(id), nil)
	if err != nil {
		if status == http.StatusNotFound {
			return nil, c.wrapErr("Load", id, status, projectstore.ErrNotFound)
		}
		return nil, c.wrapErr("Load", id, status, err)
	}

	doc := unwrapProject(body)
	if !json.Valid(doc) {
		return nil, c.wrapErr("Load", id, status, fmt.Errorf("%w: response is not valid JSON", projectstore.ErrInvalidProject))
	}

	var p project.Project
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, c.wrapErr("Load", id, status, fmt.Errorf("decode project: %w", err))
	}
	if p.ID == "" {
		p.ID = id
	}
	if len(p.Payload) == 0 {
		// Some deployments return the document itself rather than the
		// {id, name, data} shape. Treat the whole body as the payload.
		p.Payload = json.RawMessage(doc)
	}
	return &p, nil
}

// List returns the caller's project summaries, newest update first. The
// ordering is the server's responsibility; it is preserved as received.
func (c *Client) List(ctx context.Context) ([]project.Summary, error) {
	sctx, err := projectstore.ResolveContext(ctx, c.sessions)
	if err != nil {
		return nil, err
	}

	path := "/api/projects?app=" + url.QueryEscape(c.appScope)
	body, status, err := c.do(ctx, sctx.AccessToken, http.MethodGet, path, nil)
	if err != nil {
		return nil, c.wrapErr("List", "", status, err)
	}

	raw := body
	var env listEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Projects != nil {
		raw = env.Projects
	}

	summaries := []project.Summary{}
	if err := json.Unmarshal(raw, &summaries); err != nil {
		return nil, c.wrapErr("List", "", status, fmt.Errorf("decode project list: %w", err))
	}
	return summaries, nil
}

// Thumbnail fetches the thumbnail image for id. A missing thumbnail is
// (nil, nil), not an error.
func (c *Client) Thumbnail(ctx context.Context, id string) ([]byte, error) {
	sctx, err := projectstore.ResolveContext(ctx, c.sessions)
	if err != nil {
		return nil, err
	}
	if err := project.ValidateID(id); err != nil {
		return nil, c.wrapErr("Thumbnail", id, 0, fmt.Errorf("%w: %w", projectstore.ErrInvalidProject, err))
	}

	path := "/api/projects/" + url.PathEscape(id) + "/thumbnail"
	body, status, err := c.do(ctx, sctx.AccessToken, http.MethodGet, path, nil)
	if err != nil {
		if status == http.StatusNotFound {
			return nil, nil
		}
		return nil, c.wrapErr("Thumbnail", id, status, err)
	}
	return decodeThumbnail(body)
}

// Delete removes the project under id.
func (c *Client) Delete(ctx context.Context, id string) error {
	sctx, err := projectstore.ResolveContext(ctx, c.sessions)
	if err != nil {
		return err
	}
	if err := project.ValidateID(id); err != nil {
		return c.wrapErr("Delete", id, 0, fmt.Errorf("%w: %w", projectstore.ErrInvalidProject, err))
	}

	_, status, err := c.do(ctx, sctx.AccessToken, http.MethodDelete, "/api/projects/"+url.PathEscape(id), nil)
	if err != nil {
		if status == http.StatusNotFound {
			return c.wrapErr("Delete", id, status, projectstore.ErrNotFound)
		}
		return c.wrapErr("Delete", id, status, err)
	}
	return nil
}

// Close releases resources (none held).
func (c *Client) Close() error { return nil }

// do performs one request and returns the body for 2xx responses. Non-2xx
// responses come back as apiError values carrying the status and any server
// message; the caller decides which statuses are domain outcomes.
func (c *Client) do(ctx context.Context, token, method, path string, payload interface{}) ([]byte, int, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, &apiError{
			Status:  resp.StatusCode,
			Message: serverMessage(data, resp.Status),
		}
	}
	return data, resp.StatusCode, nil
}

func (c *Client) wrapErr(op, id string, status int, err error) error {
	return &projectstore.StoreError{
		Op:        op,
		Backend:   projectstore.BackendGateway,
		ProjectID: id,
		Status:    status,
		Err:       err,
	}
}

// unwrapProject strips the {"project": ...} envelope when present.
func unwrapProject(body []byte) json.RawMessage {
	var env projectEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Project != nil {
		return env.Project
	}
	return body
}

// decodeThumbnail accepts either raw PNG bytes or a JSON-quoted base64 data
// URI and returns the image bytes.
func decodeThumbnail(body []byte) ([]byte, error) {
	if len(body) == 0 {
		return nil, nil
	}

	var s string
	if err := json.Unmarshal(body, &s); err != nil {
		// Not a JSON string; the body is the image itself.
		return body, nil
	}
	if s == "" {
		return nil, nil
	}
	encoded := strings.TrimPrefix(s, thumbnailPrefix)
	img, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode thumbnail: %w", err)
	}
	return img, nil
}

// apiError is a non-2xx gateway response.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("gateway responded %d: %s", e.Status, e.Message)
}

// serverMessage extracts a human-readable message from an error body.
func serverMessage(body []byte, fallback string) string {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Error.Message != "" {
			return envelope.Error.Message
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	if len(body) > 0 && len(body) <= 256 {
		return string(bytes.TrimSpace(body))
	}
	return fallback
}
