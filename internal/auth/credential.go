// Package auth obtains and caches Adobe IMS access tokens for the modern
// (OAuth client credentials) and classic (JWT service account) AEM APIs.
package auth

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/logging"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/metrics"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/transport"
)

// RefreshMargin is subtracted from every server-declared lifetime so tokens
// are replaced before IMS would reject them.
const RefreshMargin = 300 * time.Second

// Provider names used in logs, metrics and audit events.
const (
	ProviderOAuth          = "oauth"
	ProviderServiceAccount = "service_account"
)

// Clock returns the current time. Tests inject a controllable one.
type Clock func() time.Time

// credentialState is replaced as a whole, never field by field.
type credentialState struct {
	accessToken string
	expiresAt   time.Time
}

func (s credentialState) validAt(now time.Time) bool {
	return s.accessToken != "" && now.Before(s.expiresAt)
}

// tokenCache guards one credentialState. The lock is never held across a
// network call, so two callers that both see an expired token may both
// refresh; the later store wins. gen advances on every clear, and storeAt
// refuses a token fetched under an older generation.
type tokenCache struct {
	mu    sync.Mutex
	state credentialState
	gen   uint64
}

func (c *tokenCache) get(now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.validAt(now) {
		return c.state.accessToken, true
	}
	return "", false
}

func (c *tokenCache) store(token string, issuedAt time.Time, lifetime time.Duration) time.Time {
	expiresAt := issuedAt.Add(lifetime - RefreshMargin)
	c.mu.Lock()
	c.state = credentialState{accessToken: token, expiresAt: expiresAt}
	c.mu.Unlock()
	return expiresAt
}

// storeAt stores token only if no clear happened since gen was read.
func (c *tokenCache) storeAt(gen uint64, token string, issuedAt time.Time, lifetime time.Duration) bool {
	expiresAt := issuedAt.Add(lifetime - RefreshMargin)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.state = credentialState{accessToken: token, expiresAt: expiresAt}
	return true
}

func (c *tokenCache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *tokenCache) clear() {
	c.mu.Lock()
	c.state = credentialState{}
	c.gen++
	c.mu.Unlock()
}

func (c *tokenCache) expiresAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.expiresAt
}

// common carries the collaborators shared by both providers.
type common struct {
	client  *transport.Client
	clock   Clock
	logger  *logging.Logger
	metrics *metrics.Metrics
	audit   logging.AuditStore
}

// Option configures a provider.
type Option func(*common)

// WithClock injects the time source used for expiry decisions.
func WithClock(clock Clock) Option {
	return func(c *common) {
		c.clock = clock
	}
}

func WithLogger(logger *logging.Logger) Option {
	return func(c *common) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *common) {
		c.metrics = m
	}
}

// WithAuditStore records every grant or exchange attempt.
func WithAuditStore(store logging.AuditStore) Option {
	return func(c *common) {
		c.audit = store
	}
}

func newCommon(client *transport.Client, opts []Option) common {
	c := common{
		client: client,
		clock:  time.Now,
		logger: logging.NewLogger(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c *common) recordRefresh(ctx context.Context, provider string, err error) {
	c.metrics.RecordTokenRefresh(provider, err == nil)
	if err != nil {
		c.logger.ErrorWithContext(ctx, "token refresh failed", "provider", provider, "error", err.Error())
	} else {
		c.logger.InfoWithContext(ctx, "token refreshed", "provider", provider)
	}
	if c.audit == nil {
		return
	}
	event := logging.NewAuditEvent(logging.TokenRefresh, "refresh", logging.StatusSuccess).
		WithResource(provider).
		WithContext(ctx)
	if err != nil {
		event.EventType = logging.TokenFailure
		event.WithError(err.Error())
	}
	c.audit.SaveEventAsync(event)
}

// expiresIn reads a lifetime in seconds that IMS may send as a number or a
// numeric string.
func expiresIn(v any, fallback time.Duration) time.Duration {
	switch n := v.(type) {
	case float64:
		if n > 0 {
			return time.Duration(n) * time.Second
		}
	case string:
		if secs, err := strconv.ParseInt(n, 10, 64); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}
