package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordingAndHandler(t *testing.T) {
	m := NewMetrics("test")

	m.RecordRequestLatency("/api/mcp", "POST", "200", 0.01)
	m.RecordHTTPRequest("/api/mcp", "POST", "200")
	m.IncHTTPRequestsInFlight()
	m.DecHTTPRequestsInFlight()
	m.RecordUpstreamRequest("classic", "GET", "403", 0.2)
	m.RecordTokenRefresh("oauth", true)
	m.RecordTokenRefresh("service_account", false)
	m.RecordToolCall("list_folders", "http", true)
	m.RecordBulkItem("failed")
	m.RecordFolderFallback()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)
	require.Equal(t, 200, w.Code)

	body := w.Body.String()
	for _, name := range []string{
		"test_request_latency_seconds",
		"test_upstream_requests_total",
		"test_token_refreshes_total",
		"test_tool_calls_total",
		"test_bulk_update_items_total",
		"test_folder_listing_fallbacks_total",
	} {
		assert.True(t, strings.Contains(body, name), "missing %s", name)
	}

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.True(t, metricHasLabel(families, "test_token_refreshes_total", "outcome", "failure"))
	assert.True(t, metricHasLabel(families, "test_upstream_requests_total", "status", "403"))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequestLatency("/", "GET", "200", 0)
		m.RecordHTTPRequest("/", "GET", "200")
		m.IncHTTPRequestsInFlight()
		m.DecHTTPRequestsInFlight()
		m.RecordUpstreamRequest("modern", "GET", "200", 0)
		m.RecordTokenRefresh("oauth", true)
		m.RecordToolCall("x", "mcp", false)
		m.RecordBulkItem("success")
		m.RecordFolderFallback()
	})
}
