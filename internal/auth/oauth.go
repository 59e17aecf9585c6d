package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/errors"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/transport"
)

const (
	DefaultTokenURL = "https://ims-na1.adobelogin.com/ims/token/v3"
	DefaultScope    = "openid,AdobeID,aem.assets.author,aem.folders"

	defaultOAuthLifetime = 3600 * time.Second
)

// OAuthCredentials identify the server-to-server integration used for the
// modern /adobe/* APIs.
type OAuthCredentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scope        string
}

// OAuthProvider performs the IMS client-credentials grant and caches the
// resulting token until shortly before it expires.
type OAuthProvider struct {
	common
	creds OAuthCredentials
	cache tokenCache
}

// NewOAuthProvider creates a provider. Empty TokenURL and Scope fall back to
// the Adobe defaults.
func NewOAuthProvider(client *transport.Client, creds OAuthCredentials, opts ...Option) *OAuthProvider {
	if creds.TokenURL == "" {
		creds.TokenURL = DefaultTokenURL
	}
	if creds.Scope == "" {
		creds.Scope = DefaultScope
	}
	return &OAuthProvider{
		common: newCommon(client, opts),
		creds:  creds,
	}
}

// ClientID is sent as the x-api-key header on modern API calls.
func (p *OAuthProvider) ClientID() string {
	return p.creds.ClientID
}

// Token returns the cached access token or performs a fresh grant.
func (p *OAuthProvider) Token(ctx context.Context) (string, error) {
	if token, ok := p.cache.get(p.clock()); ok {
		return token, nil
	}

	token, err := p.grant(ctx)
	p.recordRefresh(ctx, ProviderOAuth, err)
	if err != nil {
		return "", err
	}
	return token, nil
}

// ExpiresAt reports when the cached token stops being used.
func (p *OAuthProvider) ExpiresAt() time.Time {
	return p.cache.expiresAt()
}

func (p *OAuthProvider) grant(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.creds.ClientID)
	form.Set("client_secret", p.creds.ClientSecret)
	form.Set("scope", p.creds.Scope)

	issuedAt := p.clock()
	resp, err := p.client.Do(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     p.creds.TokenURL,
		Form:    form,
		Surface: transport.SurfaceIMS,
	})
	if err != nil {
		return "", &errors.ErrAuthentication{Err: err}
	}

	body, ok := resp.(map[string]any)
	if !ok {
		return "", &errors.ErrAuthentication{Err: fmt.Errorf("unexpected token response")}
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		return "", &errors.ErrAuthentication{Err: fmt.Errorf("no access_token in token response")}
	}

	p.cache.store(token, issuedAt, expiresIn(body["expires_in"], defaultOAuthLifetime))
	return token, nil
}
