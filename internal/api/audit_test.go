package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/config"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/logging"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/store"
)

func TestAccessAuditRecordsRejections(t *testing.T) {
	audit := store.NewMemoryAuditStore(10)
	apiCfg := config.APIConfig{Auth: config.AuthConfig{APIKeys: []string{"secret-key"}}}
	server := setupTestServer(&fakeDispatcher{result: "ok"}, apiCfg, WithAuditStore(audit))

	w := do(server, http.MethodPost, "/api/mcp", `{"tool":"list_folders"}`, logging.CorrelationIDHeader, "corr-1")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	events, err := audit.QueryEvents(context.Background(), logging.AuditQueryFilters{EventType: string(logging.AccessDenied)})
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, "POST /api/mcp", e.Action)
	assert.Equal(t, "/api/mcp", e.Resource)
	assert.Equal(t, logging.StatusFailure, e.Status)
	assert.Equal(t, logging.SeverityWarning, e.Severity)
	assert.Equal(t, "invalid or missing API key", e.ErrorMessage)
	assert.Equal(t, "corr-1", e.CorrelationID)
	assert.EqualValues(t, http.StatusUnauthorized, e.Details["status"])
}

func TestAccessAuditIgnoresAcceptedRequests(t *testing.T) {
	audit := store.NewMemoryAuditStore(10)
	server := setupTestServer(&fakeDispatcher{result: "ok"}, config.APIConfig{}, WithAuditStore(audit))

	assert.Equal(t, http.StatusOK, do(server, http.MethodPost, "/api/mcp", `{"tool":"list_folders"}`).Code)
	assert.Equal(t, http.StatusOK, do(server, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(server, http.MethodPost, "/api/mcp", `{"tool":`).Code)

	assert.Equal(t, 0, audit.Len())
}
