package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application. Record methods
// are safe to call on a nil *Metrics so components can run unobserved in
// tests and in the CLI.
type Metrics struct {
	// RequestLatency tracks inbound HTTP request latency by endpoint and method
	RequestLatency *prometheus.HistogramVec
	// HTTPRequestsTotal total inbound HTTP requests
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestsInFlight current inbound HTTP requests being processed
	HTTPRequestsInFlight prometheus.Gauge
	// UpstreamRequests counts outbound IMS/AEM calls by surface, method and status
	UpstreamRequests *prometheus.CounterVec
	// UpstreamLatency tracks outbound call latency by surface
	UpstreamLatency *prometheus.HistogramVec
	// TokenRefreshes counts token grants and exchanges by provider and outcome
	TokenRefreshes *prometheus.CounterVec
	// ToolCalls counts tool invocations by tool, front end and outcome
	ToolCalls *prometheus.CounterVec
	// BulkItems counts per-asset outcomes of bulk metadata updates
	BulkItems *prometheus.CounterVec
	// FolderFallbacks counts classic listings answered by the folders API after a 403
	FolderFallbacks prometheus.Counter
	// registry is the custom registry for this metrics instance
	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Total number of outbound IMS and AEM requests",
			},
			[]string{"surface", "method", "status"},
		),
		UpstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_latency_seconds",
				Help:      "Outbound request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"surface"},
		),
		TokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refreshes_total",
				Help:      "Total number of access token grants and exchanges",
			},
			[]string{"provider", "outcome"},
		),
		ToolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Total number of tool invocations",
			},
			[]string{"tool", "frontend", "outcome"},
		),
		BulkItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bulk_update_items_total",
				Help:      "Per-asset outcomes of bulk metadata updates",
			},
			[]string{"status"},
		),
		FolderFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "folder_listing_fallbacks_total",
				Help:      "Folder listings served by the folders API after a classic 403",
			},
		),
	}

	// Register metrics with custom registry
	registry.MustRegister(
		m.RequestLatency,
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
		m.UpstreamRequests,
		m.UpstreamLatency,
		m.TokenRefreshes,
		m.ToolCalls,
		m.BulkItems,
		m.FolderFallbacks,
	)

	return m
}

// Handler returns a Prometheus handler for these metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequestLatency records the latency of an HTTP request
func (m *Metrics) RecordRequestLatency(endpoint, method, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RequestLatency.WithLabelValues(endpoint, method, status).Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint, method, status string) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

func (m *Metrics) IncHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Inc()
}

func (m *Metrics) DecHTTPRequestsInFlight() {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.Dec()
}

// RecordUpstreamRequest records one outbound call. status is the HTTP status
// code or "error" when no response arrived.
func (m *Metrics) RecordUpstreamRequest(surface, method, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(surface, method, status).Inc()
	m.UpstreamLatency.WithLabelValues(surface).Observe(durationSeconds)
}

// RecordTokenRefresh records a grant or exchange attempt
func (m *Metrics) RecordTokenRefresh(provider string, success bool) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(provider, outcome(success)).Inc()
}

// RecordToolCall records one tool invocation
func (m *Metrics) RecordToolCall(tool, frontend string, success bool) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, frontend, outcome(success)).Inc()
}

// RecordBulkItem records the outcome of one asset in a bulk update
func (m *Metrics) RecordBulkItem(status string) {
	if m == nil {
		return
	}
	m.BulkItems.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordFolderFallback() {
	if m == nil {
		return
	}
	m.FolderFallbacks.Inc()
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
