package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/config"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/errors"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/health"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/logging"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/metrics"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/models"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/store"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/tools"
)

type fakeDispatcher struct {
	frontend string
	name     string
	args     map[string]any
	ctx      context.Context
	result   any
	err      error
}

func (f *fakeDispatcher) Call(ctx context.Context, frontend, name string, args map[string]any) (any, error) {
	f.ctx, f.frontend, f.name, f.args = ctx, frontend, name, args
	return f.result, f.err
}

func (f *fakeDispatcher) Names() []string {
	return []string{tools.ListFolders, tools.SearchAssets}
}

func setupTestServer(d Dispatcher, apiCfg config.APIConfig, opts ...Option) *Server {
	gin.SetMode(gin.TestMode)
	cfg := config.ServerConfig{Host: "localhost", HTTPPort: 8080}
	opts = append([]Option{
		WithLogger(logging.NewLogger(logging.WithOutput(&bytes.Buffer{}))),
		WithMetrics(metrics.NewMetrics("api_test")),
	}, opts...)
	return NewServer(cfg, apiCfg, d, opts...)
}

func do(s *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(&fakeDispatcher{}, config.APIConfig{})

	w := do(server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"aem-assets-mcp-server"}`, w.Body.String())
}

func TestHandleInfo(t *testing.T) {
	server := setupTestServer(&fakeDispatcher{}, config.APIConfig{})

	for _, path := range []string{"/", "/api/mcp"} {
		w := do(server, http.MethodGet, path, "")
		require.Equal(t, http.StatusOK, w.Code, path)

		var info models.ServerInfo
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
		assert.Equal(t, models.ServiceName, info.Name)
		assert.Equal(t, models.ServiceVersion, info.Version)
		assert.Equal(t, []string{"list_folders", "search_assets"}, info.Tools)
	}
}

func TestHandleToolCallSuccess(t *testing.T) {
	d := &fakeDispatcher{result: []models.Folder{{ID: "f1", Path: "/content/dam/a", Name: "a"}}}
	server := setupTestServer(d, config.APIConfig{})

	w := do(server, http.MethodPost, "/api/mcp",
		`{"tool":"list_folders","arguments":{"path":"/content/dam"}}`,
		logging.CorrelationIDHeader, "corr-42")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tools.FrontendHTTP, d.frontend)
	assert.Equal(t, "list_folders", d.name)
	assert.Equal(t, map[string]any{"path": "/content/dam"}, d.args)
	assert.Equal(t, "corr-42", logging.GetCorrelationID(d.ctx))
	assert.Equal(t, "corr-42", w.Header().Get(logging.CorrelationIDHeader))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	result, ok := body["result"].([]any)
	require.True(t, ok)
	require.Len(t, result, 1)
	assert.Equal(t, "f1", result[0].(map[string]any)["id"])
	_, hasError := body["error"]
	assert.False(t, hasError)
}

func TestHandleToolCallClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantMsg string
	}{
		{"unknown tool", &errors.ErrUnknownTool{Name: "nope"}, "Unknown tool: nope"},
		{"missing argument", &errors.ErrMissingArgument{Field: "query"}, "query parameter is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := setupTestServer(&fakeDispatcher{err: tt.err}, config.APIConfig{})
			w := do(server, http.MethodPost, "/api/mcp", `{"tool":"x","arguments":{}}`)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "bad_request", resp.Error)
			assert.Equal(t, tt.wantMsg, resp.Message)
			assert.Equal(t, http.StatusBadRequest, resp.Code)
		})
	}
}

func TestHandleToolCallMalformedBody(t *testing.T) {
	d := &fakeDispatcher{}
	server := setupTestServer(d, config.APIConfig{})

	w := do(server, http.MethodPost, "/api/mcp", `{"tool":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "bad_request", resp.Error)
	assert.Contains(t, resp.Message, "invalid JSON body")
	assert.Empty(t, d.name, "dispatcher must not be called")
}

func TestHandleToolCallOperationFailure(t *testing.T) {
	err := &errors.ErrUpstream{Status: 500, Body: "boom"}
	server := setupTestServer(&fakeDispatcher{err: err}, config.APIConfig{})

	w := do(server, http.MethodPost, "/api/mcp", `{"tool":"get_asset_details","arguments":{"assetId":"a"}}`)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Nil(t, body["result"])
	assert.Equal(t, err.Error(), body["error"])
}

func TestHandleToolCallInvalidJSON(t *testing.T) {
	d := &fakeDispatcher{}
	server := setupTestServer(d, config.APIConfig{})

	w := do(server, http.MethodPost, "/api/mcp", `{"tool":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, d.name)
}

func TestAPIKeyProtectsToolRoutes(t *testing.T) {
	apiCfg := config.APIConfig{Auth: config.AuthConfig{APIKeys: []string{"secret-key"}}}
	server := setupTestServer(&fakeDispatcher{result: "ok"}, apiCfg)

	w := do(server, http.MethodPost, "/api/mcp", `{"tool":"list_folders"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(server, http.MethodPost, "/api/mcp", `{"tool":"list_folders"}`, DefaultAPIKeyHeader, "secret-key")
	assert.Equal(t, http.StatusOK, w.Code)

	// Info and health stay public
	assert.Equal(t, http.StatusOK, do(server, http.MethodGet, "/api/mcp", "").Code)
	assert.Equal(t, http.StatusOK, do(server, http.MethodGet, "/health", "").Code)
}

func TestMCPHandlerMounted(t *testing.T) {
	var hits int
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusAccepted)
	})
	apiCfg := config.APIConfig{Auth: config.AuthConfig{APIKeys: []string{"k"}}}
	server := setupTestServer(&fakeDispatcher{}, apiCfg, WithMCPHandler("/mcp", h))

	assert.Equal(t, http.StatusUnauthorized, do(server, http.MethodPost, "/mcp", `{}`).Code)
	assert.Equal(t, http.StatusAccepted, do(server, http.MethodPost, "/mcp", `{}`, DefaultAPIKeyHeader, "k").Code)
	assert.Equal(t, 1, hits)
}

func TestHandleAuditEvents(t *testing.T) {
	audit := store.NewMemoryAuditStore(10)
	require.NoError(t, audit.SaveEvent(logging.NewAuditEvent(logging.ToolCall, "list_folders", logging.StatusSuccess)))
	require.NoError(t, audit.SaveEvent(logging.NewAuditEvent(logging.MetadataUpdate, "update_asset_metadata", logging.StatusSuccess).
		WithResource("/content/dam/a.jpg")))

	server := setupTestServer(&fakeDispatcher{}, config.APIConfig{}, WithAuditStore(audit))

	w := do(server, http.MethodGet, "/api/audit?type=METADATA_UPDATE", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Events []logging.AuditEvent `json:"events"`
		Count  int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "/content/dam/a.jpg", body.Events[0].Resource)

	assert.Equal(t, http.StatusBadRequest, do(server, http.MethodGet, "/api/audit?limit=-1", "").Code)
}

func TestHandleAuditEventsDisabled(t *testing.T) {
	server := setupTestServer(&fakeDispatcher{}, config.APIConfig{})
	assert.Equal(t, http.StatusNotFound, do(server, http.MethodGet, "/api/audit", "").Code)
}

func TestHandleStatus(t *testing.T) {
	tracker := health.NewTracker(0)
	tracker.ObserveUpstream("ims", 200, 0, nil)
	tracker.ObserveUpstream("modern", 503, 0, nil)
	server := setupTestServer(&fakeDispatcher{}, config.APIConfig{}, WithHealthTracker(tracker))

	w := do(server, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var report health.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, models.HealthDegraded, report.Status)
	require.Len(t, report.Surfaces, 2)
	assert.Equal(t, "modern", report.Surfaces[1].Surface)
	assert.Equal(t, 503, report.Surfaces[1].LastStatus)

	disabled := setupTestServer(&fakeDispatcher{}, config.APIConfig{})
	assert.Equal(t, http.StatusNotFound, do(disabled, http.MethodGet, "/api/status", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	server := setupTestServer(&fakeDispatcher{}, config.APIConfig{})
	do(server, http.MethodGet, "/health", "")

	w := do(server, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}
