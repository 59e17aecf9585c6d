package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/errors"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/transport"
)

const (
	// assertionLifetime is how long a signed assertion is valid for.
	assertionLifetime = time.Hour

	defaultServiceAccountLifetime = 24 * time.Hour
	jwtExchangePath               = "/ims/exchange/jwt/"
)

// ServiceAccountProvider signs an RS256 assertion with the technical
// account's private key and exchanges it for an access token accepted by
// the classic /api/assets API.
type ServiceAccountProvider struct {
	common
	cache tokenCache

	mu sync.RWMutex
	sa *ServiceAccount
	// loadErr explains a nil sa; it is reported by classic calls.
	loadErr error
}

// NewServiceAccountProvider creates a provider for the given descriptor. The
// private key is parsed lazily on each exchange so a bad key only fails the
// calls that need it.
func NewServiceAccountProvider(client *transport.Client, sa *ServiceAccount, opts ...Option) *ServiceAccountProvider {
	return &ServiceAccountProvider{
		common: newCommon(client, opts),
		sa:     sa,
	}
}

// Reload swaps the descriptor and drops the cached token. An exchange already
// in flight for the old descriptor still answers its caller but is not cached.
func (p *ServiceAccountProvider) Reload(sa *ServiceAccount) {
	p.mu.Lock()
	p.sa = sa
	p.loadErr = nil
	p.mu.Unlock()
	p.cache.clear()
}

// SetLoadError records why the descriptor could not be loaded. While no
// descriptor is installed, token requests fail with it.
func (p *ServiceAccountProvider) SetLoadError(err error) {
	p.mu.Lock()
	p.loadErr = err
	p.mu.Unlock()
}

// notConfigured is the error for a provider without a descriptor.
func (p *ServiceAccountProvider) notConfigured() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &errors.ErrConfig{Message: "service account not configured", Err: p.loadErr}
}

// Account returns the descriptor currently in use.
func (p *ServiceAccountProvider) Account() *ServiceAccount {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sa
}

// Token returns the cached token or performs a fresh exchange.
func (p *ServiceAccountProvider) Token(ctx context.Context) (string, error) {
	if token, ok := p.cache.get(p.clock()); ok {
		return token, nil
	}

	token, err := p.exchange(ctx)
	p.recordRefresh(ctx, ProviderServiceAccount, err)
	if err != nil {
		return "", err
	}
	return token, nil
}

func (p *ServiceAccountProvider) ExpiresAt() time.Time {
	return p.cache.expiresAt()
}

// SignAssertion builds the signed JWT for the current descriptor.
func (p *ServiceAccountProvider) SignAssertion(now time.Time) (string, error) {
	sa := p.Account()
	if sa == nil {
		return "", p.notConfigured()
	}
	return signAssertion(sa, now)
}

func signAssertion(sa *ServiceAccount, now time.Time) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return "", &errors.ErrConfig{Message: "invalid service account private key", Err: err}
	}

	claims := jwt.MapClaims{
		"exp": now.Add(assertionLifetime).Unix(),
		"iss": sa.OrgID,
		"sub": sa.TechnicalAccountID,
		"aud": fmt.Sprintf("%s/c/%s", sa.IMSEndpoint, sa.ClientID),
	}
	for _, scope := range sa.MetascopeURLs() {
		claims[scope] = true
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign service account assertion: %w", err)
	}
	return signed, nil
}

func (p *ServiceAccountProvider) exchange(ctx context.Context) (string, error) {
	// Read before the descriptor: Reload swaps the descriptor, then clears.
	gen := p.cache.generation()
	sa := p.Account()
	if sa == nil {
		return "", p.notConfigured()
	}

	issuedAt := p.clock()
	assertion, err := signAssertion(sa, issuedAt)
	if err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("client_id", sa.ClientID)
	form.Set("client_secret", sa.ClientSecret)
	form.Set("jwt_token", assertion)

	resp, err := p.client.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     sa.IMSEndpoint + jwtExchangePath,
		Form:    form,
		Surface: transport.SurfaceIMS,
	})
	if err != nil {
		return "", &errors.ErrAuthentication{Issuer: "Adobe IMS (service account)", Err: err}
	}

	body, ok := resp.(map[string]any)
	if !ok {
		return "", &errors.ErrAuthentication{Issuer: "Adobe IMS (service account)", Err: fmt.Errorf("unexpected exchange response")}
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		return "", &errors.ErrAuthentication{Issuer: "Adobe IMS (service account)", Err: fmt.Errorf("no access_token in exchange response")}
	}

	if !p.cache.storeAt(gen, token, issuedAt, expiresIn(body["expires_in"], defaultServiceAccountLifetime)) {
		p.logger.WarnWithContext(ctx, "service account reloaded during exchange, token not cached",
			"technical_account", sa.TechnicalAccountID)
	}
	return token, nil
}
