package auth

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/errors"
	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/logging"
)

func TestLoadServiceAccountInline(t *testing.T) {
	sa, err := LoadServiceAccount(descriptorJSON(t, "", "KEY", "ent_aem_cloud_api, ent_cloudmgr_sdk"))
	require.NoError(t, err)

	assert.Equal(t, "https://ims-na1.adobelogin.com", sa.IMSEndpoint)
	assert.Equal(t, "ims-na1.adobelogin.com", sa.IMSHost())
	assert.Equal(t, "sa-client", sa.ClientID)
	assert.Equal(t, "sa-secret", sa.ClientSecret)
	assert.Equal(t, "ORG@AdobeOrg", sa.OrgID)
	assert.Equal(t, "TECH@techacct.adobe.com", sa.TechnicalAccountID)
	assert.Equal(t, "-----BEGIN CERTIFICATE-----", sa.Certificate)
	assert.Empty(t, sa.Source)
	assert.Equal(t, []string{
		"https://ims-na1.adobelogin.com/s/ent_aem_cloud_api",
		"https://ims-na1.adobelogin.com/s/ent_cloudmgr_sdk",
	}, sa.MetascopeURLs())
}

func TestLoadServiceAccountFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "service-account.json")
	require.NoError(t, os.WriteFile(path, []byte(descriptorJSON(t, "https://ims-eu1.adobelogin.com/", "KEY",
		[]string{"https://ims-eu1.adobelogin.com/s/custom"})), 0o600))

	sa, err := LoadServiceAccount(path)
	require.NoError(t, err)
	assert.Equal(t, path, sa.Source)
	assert.Equal(t, "https://ims-eu1.adobelogin.com", sa.IMSEndpoint)
	assert.Equal(t, []string{"https://ims-eu1.adobelogin.com/s/custom"}, sa.MetascopeURLs())
}

func TestLoadServiceAccountErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{name: "empty", input: "  ", wantMsg: "not configured"},
		{name: "missing file", input: "/nonexistent/sa.json", wantMsg: "not found"},
		{name: "no integration", input: `{"foo":1}`, wantMsg: "missing 'integration'"},
		{name: "no technical account", input: `{"integration":{"privateKey":"k"}}`, wantMsg: "technicalAccount"},
		{name: "no client id", input: `{"integration":{"privateKey":"k","technicalAccount":{}}}`, wantMsg: "clientId"},
		{name: "no private key", input: `{"integration":{"technicalAccount":{"clientId":"c"}}}`, wantMsg: "privateKey"},
		{name: "malformed inline", input: `{"integration":`, wantMsg: "invalid service account JSON"},
		{name: "bad metascopes", input: `{"integration":{"privateKey":"k","metascopes":5,"technicalAccount":{"clientId":"c"}}}`, wantMsg: "metascopes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadServiceAccount(tt.input)
			require.Error(t, err)

			var cfgErr *errors.ErrConfig
			require.True(t, stderrors.As(err, &cfgErr))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadServiceAccountInvalidFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := LoadServiceAccount(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid service account JSON")
}

func TestDescriptorWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sa.json")
	require.NoError(t, os.WriteFile(path, []byte(descriptorJSON(t, "", "KEY", nil)), 0o600))

	sa, err := LoadServiceAccount(path)
	require.NoError(t, err)

	provider := NewServiceAccountProvider(testClient(), sa, WithLogger(quietLogger()))
	audit := &recordingAudit{}
	watcher := NewDescriptorWatcher(path, provider, quietLogger(), audit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, watcher.Watch(ctx))

	updated := `{"integration":{"privateKey":"KEY2","technicalAccount":{"clientId":"new-client"}}}`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	// A truncating write can surface a partial file first, so failed reloads
	// may precede the successful one.
	require.Eventually(t, func() bool {
		events, _ := audit.QueryEvents(context.Background(), logging.AuditQueryFilters{})
		for _, e := range events {
			if e.Status == logging.StatusSuccess {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "new-client", provider.Account().ClientID)
	events, err := audit.QueryEvents(context.Background(), logging.AuditQueryFilters{})
	require.NoError(t, err)
	for _, e := range events {
		assert.Equal(t, logging.ConfigChange, e.EventType)
		assert.Equal(t, path, e.Resource)
	}
}

func TestDescriptorWatcherOnReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte(descriptorJSON(t, "", "KEY", nil)), 0o600))

	provider := NewServiceAccountProvider(testClient(), nil, WithLogger(quietLogger()))
	watcher := NewDescriptorWatcher(path, provider, quietLogger(), nil)

	var got *ServiceAccount
	watcher.OnReload(func(sa *ServiceAccount, err error) {
		require.NoError(t, err)
		got = sa
	})
	require.NoError(t, watcher.Reload())
	require.NotNil(t, got)
	assert.Equal(t, got, provider.Account())
}

func TestDescriptorWatcherKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sa.json")
	require.NoError(t, os.WriteFile(path, []byte(descriptorJSON(t, "", "KEY", nil)), 0o600))

	sa, err := LoadServiceAccount(path)
	require.NoError(t, err)
	provider := NewServiceAccountProvider(testClient(), sa, WithLogger(quietLogger()))
	audit := &recordingAudit{}
	watcher := NewDescriptorWatcher(path, provider, quietLogger(), audit)

	require.NoError(t, os.WriteFile(path, []byte(`{"integration":{}}`), 0o600))
	require.Error(t, watcher.Reload())

	assert.Equal(t, "sa-client", provider.Account().ClientID)
	events, _ := audit.QueryEvents(context.Background(), logging.AuditQueryFilters{})
	require.Len(t, events, 1)
	assert.Equal(t, logging.StatusFailure, events[0].Status)
}
