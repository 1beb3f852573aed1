// Package supabase implements the blobstore interface over the hosted
// storage HTTP API.
//
// Blobs live under a single bucket; every request carries the project's
// static API key as a query parameter and, when bound, the session's bearer
// token. Uploads use the x-upsert header for overwrite-if-exists semantics.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dataviz-jp/cartosync/pkg/blobstore"
)

// DefaultBucket is the bucket holding user project blobs.
const DefaultBucket = "user_projects"

// DefaultTimeout bounds a single storage round trip.
const DefaultTimeout = 30 * time.Second

// Config configures a storage API client.
type Config struct {
	// BaseURL is the project base URL, e.g. https://xyz.supabase.co.
	BaseURL string

	// APIKey is the static (anon) API key sent as a query parameter on
	// every request. Distinct from the per-user bearer token.
	APIKey string

	// Bucket is the storage bucket. Empty uses DefaultBucket.
	Bucket string

	// HTTPClient overrides the default client (useful for tests).
	HTTPClient *http.Client
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("supabase config: BaseURL is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("supabase config: APIKey is required")
	}
	return nil
}

// Client implements blobstore.Store against the storage HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	bucket     string
	token      string
	httpClient *http.Client
}

var (
	_ blobstore.Store       = (*Client)(nil)
	_ blobstore.TokenBinder = (*Client)(nil)
)

// New creates a storage client from the given configuration.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		bucket:     bucket,
		httpClient: httpClient,
	}, nil
}

// BindToken returns a copy of the client whose requests carry the given
// bearer token. The receiver is not modified.
func (c *Client) BindToken(token string) blobstore.Store {
	bound := *c
	bound.token = token
	return &bound
}

// Upload writes data to key, overwriting any existing blob.
func (c *Client) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	req, err := c.newRequest(ctx, http.MethodPost, key, bytes.NewReader(data))
	if err != nil {
		return c.wrapError("Upload", key, 0, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.wrapError("Upload", key, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError("Upload", key, resp)
	}
	return nil
}

// Download returns the blob at key.
func (c *Client) Download(ctx context.Context, key string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, c.wrapError("Download", key, 0, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.wrapError("Download", key, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.statusError("Download", key, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.wrapError("Download", key, resp.StatusCode, err)
	}
	return data, nil
}

// Delete removes the blob at key.
func (c *Client) Delete(ctx context.Context, key string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, key, nil)
	if err != nil {
		return c.wrapError("Delete", key, 0, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.wrapError("Delete", key, 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError("Delete", key, resp)
	}
	return nil
}

// Close releases client resources. The HTTP client holds no state requiring
// cleanup, but this satisfies the interface.
func (c *Client) Close() error {
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, key string, body io.Reader) (*http.Request, error) {
	u := fmt.Sprintf("%s/storage/v1/object/%s/%s?apikey=%s",
		c.baseURL, c.bucket, key, url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// statusError maps a non-2xx response to a BlobError with the appropriate
// sentinel and any server-provided message.
func (c *Client) statusError(op, key string, resp *http.Response) error {
	msg := readServerMessage(resp.Body)

	var underlying error
	switch {
	case resp.StatusCode == http.StatusNotFound:
		underlying = blobstore.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		underlying = blobstore.ErrAccessDenied
	case resp.StatusCode >= 500:
		underlying = blobstore.ErrUnavailable
	default:
		underlying = fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if msg != "" {
		underlying = fmt.Errorf("%w: %s", underlying, msg)
	}

	return c.wrapError(op, key, resp.StatusCode, underlying)
}

func (c *Client) wrapError(op, key string, status int, err error) error {
	return &blobstore.BlobError{
		Op:      op,
		Backend: blobstore.BackendSupabase,
		Bucket:  c.bucket,
		Key:     key,
		Status:  status,
		Err:     err,
	}
}

// readServerMessage extracts a human-readable message from an error body.
// Storage errors arrive as {"message": "..."} or {"error": "..."}.
func readServerMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}
