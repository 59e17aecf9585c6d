package transport

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

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/errors"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/logging"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/metrics"
)

const (
	// DefaultTimeout bounds every outbound call. Nothing is retried.
	DefaultTimeout = 30 * time.Second

	// MaxResponseBodySize caps how much of an upstream body is read (16MB).
	MaxResponseBodySize = 16 << 20

	defaultUserAgent = "aem-assets-mcp-server/1.0.0"
)

// Surfaces label outbound calls in logs and metrics.
const (
	SurfaceIMS     = "ims"
	SurfaceModern  = "modern"
	SurfaceClassic = "classic"
)

// Request describes one outbound call. Body is JSON-encoded when set; Form
// is sent url-encoded when set. Token, when present, becomes a bearer
// Authorization header.
type Request struct {
	Method  string
	URL     string
	Query   url.Values
	Token   string
	Headers map[string]string
	Body    any
	Form    url.Values
	Surface string
}

// Client performs authenticated JSON calls against IMS and AEM over one
// persistent http.Client.
type Client struct {
	httpClient *http.Client
	logger     *logging.Logger
	metrics    *metrics.Metrics
	observer   Observer
	userAgent  string
}

// Observer is told about every outbound call. status is zero when no
// response arrived.
type Observer interface {
	ObserveUpstream(surface string, status int, latency time.Duration, err error)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout overrides the request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithObserver registers an Observer, typically a health tracker.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient creates a Client with a 30 second timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger:    logging.NewLogger(),
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends req and decodes the JSON response. An empty 2xx body yields nil.
// Non-2xx responses return *errors.ErrUpstream and network failures return
// *errors.ErrTransport.
func (c *Client) Do(ctx context.Context, req Request) (any, error) {
	data, err := c.DoRaw(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s response from %s: %w", req.Surface, req.URL, err)
	}
	return out, nil
}

// DoRaw sends req and returns the raw response body of a 2xx response.
func (c *Client) DoRaw(ctx context.Context, req Request) ([]byte, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := req.URL
	if len(req.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + req.Query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.Form != nil:
		body = strings.NewReader(req.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case req.Body != nil:
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if id := logging.GetCorrelationID(ctx); id != "" {
		httpReq.Header.Set(logging.CorrelationIDHeader, id)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.RecordUpstreamRequest(req.Surface, method, "error", elapsed.Seconds())
		c.observe(req.Surface, 0, elapsed, err)
		c.logger.WarnWithContext(ctx, "upstream request failed",
			"surface", req.Surface,
			"method", method,
			"url", req.URL,
			"error", err.Error(),
		)
		return nil, &errors.ErrTransport{Method: method, URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBodySize))
	if err != nil {
		c.metrics.RecordUpstreamRequest(req.Surface, method, "error", elapsed.Seconds())
		c.observe(req.Surface, 0, elapsed, err)
		return nil, &errors.ErrTransport{Method: method, URL: req.URL, Err: fmt.Errorf("read body: %w", err)}
	}

	status := fmt.Sprintf("%d", resp.StatusCode)
	c.metrics.RecordUpstreamRequest(req.Surface, method, status, elapsed.Seconds())
	c.observe(req.Surface, resp.StatusCode, elapsed, nil)
	c.logger.DebugWithContext(ctx, "upstream request completed",
		"surface", req.Surface,
		"method", method,
		"url", req.URL,
		"status", resp.StatusCode,
		"duration_seconds", elapsed.Seconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &errors.ErrUpstream{Status: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

func (c *Client) observe(surface string, status int, latency time.Duration, err error) {
	if c.observer != nil {
		c.observer.ObserveUpstream(surface, status, latency, err)
	}
}
