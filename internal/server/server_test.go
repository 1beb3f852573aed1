package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataviz-jp/cartosync/internal/server/middleware"
	"github.com/dataviz-jp/cartosync/pkg/blobstore/fs"
	"github.com/dataviz-jp/cartosync/pkg/project"
	"github.com/dataviz-jp/cartosync/pkg/projectstore/direct"
	"github.com/dataviz-jp/cartosync/pkg/projectstore/gateway"
	"github.com/dataviz-jp/cartosync/pkg/session"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	blobs, err := fs.New(fs.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	return New("127.0.0.1", 0, Options{
		Blobs: blobs,
		Meta:  direct.NewMemoryStore(),
	})
}

func bearerToken(t *testing.T, owner string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   owner,
		"email": owner + "@example.com",
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, srv *Server, method, path, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_UnknownRoute(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/does-not-exist", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/version", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "METHOD_NOT_ALLOWED", body.Error.Code)
}

func TestServer_HealthAndVersion(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusOK, doJSON(t, srv, http.MethodGet, "/version", "", "").Code)
}

func TestServer_ProjectsRequireAuth(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/projects?app=cartogram-japan", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "UNAUTHORIZED", body.Error.Code)
}

func TestServer_SaveLoadListDelete(t *testing.T) {
	srv := newTestServer(t)
	token := bearerToken(t, "owner-1")

	rec := doJSON(t, srv, http.MethodPost, "/api/projects", token,
		`{"name":"Tokyo","app_name":"cartogram-japan","data":{"prefectures":{"13":{"value":14.0}}},"thumbnail":null}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var saved struct {
		Project project.Record `json:"project"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&saved))
	require.NotEmpty(t, saved.Project.ID)
	assert.Equal(t, "Tokyo", saved.Project.Name)

	id := saved.Project.ID

	rec = doJSON(t, srv, http.MethodGet, "/api/projects/"+id, token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var loaded struct {
		Project project.Project `json:"project"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&loaded))
	assert.JSONEq(t, `{"prefectures":{"13":{"value":14.0}}}`, string(loaded.Project.Payload))

	rec = doJSON(t, srv, http.MethodGet, "/api/projects?app=cartogram-japan", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var listed struct {
		Projects []project.Summary `json:"projects"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	require.Len(t, listed.Projects, 1)
	assert.Equal(t, id, listed.Projects[0].ID)

	rec = doJSON(t, srv, http.MethodDelete, "/api/projects/"+id, token, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/projects/"+id, token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_OwnersAreIsolated(t *testing.T) {
	srv := newTestServer(t)
	alice := bearerToken(t, "alice")
	bob := bearerToken(t, "bob")

	rec := doJSON(t, srv, http.MethodPost, "/api/projects", alice,
		`{"name":"private","app_name":"cartogram-japan","data":{},"thumbnail":null}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var saved struct {
		Project project.Record `json:"project"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&saved))

	rec = doJSON(t, srv, http.MethodGet, "/api/projects/"+saved.Project.ID, bob, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/projects?app=cartogram-japan", bob, "")
	var listed struct {
		Projects []project.Summary `json:"projects"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	assert.Empty(t, listed.Projects)
}

func TestServer_RejectsInvalidPayload(t *testing.T) {
	srv := newTestServer(t)
	token := bearerToken(t, "owner-1")

	rec := doJSON(t, srv, http.MethodPost, "/api/projects", token,
		`{"name":"bad","app_name":"cartogram-japan","thumbnail":null}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "INVALID_PROJECT", body.Error.Code)
}

func TestServer_RateLimit(t *testing.T) {
	blobs, err := fs.New(fs.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	srv := New("127.0.0.1", 0, Options{
		Blobs:     blobs,
		Meta:      direct.NewMemoryStore(),
		RateLimit: 1,
		Burst:     1,
	})

	first := doJSON(t, srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, first.Code)

	second := doJSON(t, srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

// The gateway-strategy client and the dev gateway speak the same wire
// format; run the client end to end against the server.
func TestServer_GatewayClientRoundTrip(t *testing.T) {
	inner := newTestServer(t)
	httpSrv := httptest.NewServer(inner.Handler())
	t.Cleanup(httpSrv.Close)

	client, err := gateway.New(gateway.Config{
		BaseURL:    httpSrv.URL,
		AppScope:   "cartogram-japan",
		HTTPClient: httpSrv.Client(),
	}, session.NewStaticProvider(bearerToken(t, "owner-1")))
	require.NoError(t, err)

	ctx := context.Background()
	thumb := []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}

	rec, err := client.Save(ctx, project.Project{
		Payload: json.RawMessage(`{"prefectures":{"13":{"value":14.0}},"title":"人口"}`),
	}, "Tokyo", thumb)
	require.NoError(t, err)

	p, err := client.Load(ctx, rec.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"prefectures":{"13":{"value":14.0}},"title":"人口"}`, string(p.Payload))

	img, err := client.Thumbnail(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, thumb, img)

	summaries, err := client.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, rec.ID, summaries[0].ID)

	require.NoError(t, client.Delete(ctx, rec.ID))
	_, err = client.Load(ctx, rec.ID)
	assert.Error(t, err)
}
