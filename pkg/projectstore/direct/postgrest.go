package direct

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

	"github.com/dataviz-jp/cartosync/pkg/project"
	"github.com/dataviz-jp/cartosync/pkg/projectstore"
)

// DefaultTable is the metadata table holding project rows.
const DefaultTable = "projects"

// metadataTimeout bounds a single metadata round trip.
const metadataTimeout = 30 * time.Second

// summaryColumns is the projection used by List; payload pointers only,
// never blob contents.
const summaryColumns = "id,name,thumbnail_path,created_at,updated_at"

// PostgRESTConfig configures a PostgREST metadata client.
type PostgRESTConfig struct {
	// BaseURL is the project base URL, e.g. https://xyz.supabase.co.
	BaseURL string

	// APIKey is the static API key sent as a query parameter, distinct
	// from the per-user bearer token.
	APIKey string

	// Table overrides the metadata table name. Empty uses DefaultTable.
	Table string

	// HTTPClient overrides the default client (useful for tests).
	HTTPClient *http.Client
}

// Validate checks that required configuration is present.
func (c *PostgRESTConfig) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("%w: metadata BaseURL is required", projectstore.ErrConfigMissing)
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: metadata APIKey is required", projectstore.ErrConfigMissing)
	}
	return nil
}

// PostgRESTStore implements MetadataStore against a PostgREST-style row API.
//
// Filters ride the query string (id=eq.<uuid>, app_name=eq.<scope>), upserts
// use the merge-duplicates Prefer header, and row visibility is enforced
// server-side from the bearer token.
type PostgRESTStore struct {
	baseURL    string
	apiKey     string
	table      string
	httpClient *http.Client
}

var _ MetadataStore = (*PostgRESTStore)(nil)

// NewPostgRESTStore creates a metadata client from the given configuration.
func NewPostgRESTStore(cfg PostgRESTConfig) (*PostgRESTStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: metadataTimeout}
	}

	return &PostgRESTStore{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		table:      table,
		httpClient: httpClient,
	}, nil
}

// Upsert inserts or merges row by id, returning the stored representation.
func (s *PostgRESTStore) Upsert(ctx context.Context, token string, row Row) (*project.Record, error) {
	body, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}

	q := url.Values{}
	q.Set("apikey", s.apiKey)
	q.Set("on_conflict", "id")

	req, err := s.newRequest(ctx, http.MethodPost, token, q, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates,return=representation")

	var stored []project.Record
	if err := s.do(req, &stored); err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, fmt.Errorf("upsert returned no representation")
	}
	return &stored[0], nil
}

// Find returns the rows matching id, scoped to the caller by the backend.
func (s *PostgRESTStore) Find(ctx context.Context, token, id string) ([]project.Record, error) {
	q := url.Values{}
	q.Set("apikey", s.apiKey)
	q.Set("id", "eq."+id)
	q.Set("select", "*")

	req, err := s.newRequest(ctx, http.MethodGet, token, q, nil)
	if err != nil {
		return nil, err
	}

	var rows []project.Record
	if err := s.do(req, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// List returns summaries for the caller's rows in appScope, newest update first.
func (s *PostgRESTStore) List(ctx context.Context, token, appScope string) ([]project.Summary, error) {
	q := url.Values{}
	q.Set("apikey", s.apiKey)
	q.Set("app_name", "eq."+appScope)
	q.Set("select", summaryColumns)
	q.Set("order", "updated_at.desc")

	req, err := s.newRequest(ctx, http.MethodGet, token, q, nil)
	if err != nil {
		return nil, err
	}

	var rows []project.Summary
	if err := s.do(req, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Delete removes the row under id and reports how many rows went away.
func (s *PostgRESTStore) Delete(ctx context.Context, token, id string) (int, error) {
	q := url.Values{}
	q.Set("apikey", s.apiKey)
	q.Set("id", "eq."+id)

	req, err := s.newRequest(ctx, http.MethodDelete, token, q, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Prefer", "return=representation")

	var removed []project.Record
	if err := s.do(req, &removed); err != nil {
		return 0, err
	}
	return len(removed), nil
}

// Close releases client resources (none held).
func (s *PostgRESTStore) Close() error { return nil }

func (s *PostgRESTStore) newRequest(ctx context.Context, method, token string, q url.Values, body io.Reader) (*http.Request, error) {
	u := fmt.Sprintf("%s/rest/v1/%s?%s", s.baseURL, s.table, q.Encode())
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do executes req and decodes a 2xx JSON body into out. Non-2xx responses
// become metadataError values carrying the status and any server message.
func (s *PostgRESTStore) do(req *http.Request, out interface{}) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("metadata request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &metadataError{
			Status:  resp.StatusCode,
			Message: readServerMessage(resp.Body),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read metadata response: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: metadata response is not the expected shape: %v",
			projectstore.ErrInvalidProject, err)
	}
	return nil
}

// metadataError is a non-2xx metadata response.
type metadataError struct {
	Status  int
	Message string
}

func (e *metadataError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("metadata status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("metadata status %d", e.Status)
}

// readServerMessage extracts a human-readable message from an error body.
// PostgREST errors arrive as {"message": "...", "details": ..., "code": ...}.
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
