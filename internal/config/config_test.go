package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAEM() AEMConfig {
	return AEMConfig{
		BaseURL:      "https://author-p1-e1.adobeaemcloud.com/",
		ClientID:     "client",
		ClientSecret: "secret",
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			config: Config{AEM: validAEM()},
		},
		{
			name:    "missing base url",
			config:  Config{AEM: AEMConfig{ClientID: "c", ClientSecret: "s"}},
			wantErr: true,
			errMsg:  "base_url is required",
		},
		{
			name:    "relative base url",
			config:  Config{AEM: AEMConfig{BaseURL: "author.local", ClientID: "c", ClientSecret: "s"}},
			wantErr: true,
			errMsg:  "absolute URL",
		},
		{
			name:    "missing client secret",
			config:  Config{AEM: AEMConfig{BaseURL: "https://aem", ClientID: "c"}},
			wantErr: true,
			errMsg:  "client_secret is required",
		},
		{
			name:    "port out of range",
			config:  Config{Server: ServerConfig{HTTPPort: 70000}, AEM: validAEM()},
			wantErr: true,
			errMsg:  "http_port",
		},
		{
			name:    "negative retention",
			config:  Config{AEM: validAEM(), Audit: AuditConfig{RetentionDays: -1}},
			wantErr: true,
			errMsg:  "retention_days",
		},
		{
			name:    "relative mcp path",
			config:  Config{AEM: validAEM(), MCP: MCPConfig{Path: "mcp"}},
			wantErr: true,
			errMsg:  "mcp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfig_ValidateAppliesDefaults(t *testing.T) {
	cfg := Config{AEM: validAEM()}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultHTTPPort, cfg.Server.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "https://author-p1-e1.adobeaemcloud.com", cfg.AEM.BaseURL)
	assert.Equal(t, DefaultIMSTokenURL, cfg.AEM.IMSTokenURL)
	assert.Equal(t, DefaultScope, cfg.AEM.Scope)
	assert.Equal(t, DefaultTimeout, cfg.AEM.Timeout)
	assert.Equal(t, DefaultAuditDBPath, cfg.Audit.DBPath)
	assert.Equal(t, DefaultMCPPath, cfg.MCP.Path)
	assert.False(t, cfg.AEM.HasServiceAccount())
}

func TestParse(t *testing.T) {
	data := []byte(`
server:
  host: 127.0.0.1
  http_port: 9090
aem:
  base_url: https://aem.example.com
  client_id: id
  client_secret: secret
  service_account: /etc/aem/sa.json
audit:
  enabled: true
  retention_days: 7
`)
	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, "/etc/aem/sa.json", cfg.AEM.ServiceAccount)
	assert.True(t, cfg.AEM.HasServiceAccount())
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, 7, cfg.Audit.RetentionDays)
	assert.True(t, cfg.MCP.Enabled)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("aem: [unclosed"))
	var parseErr *errors.ErrConfigParse
	require.True(t, stderrors.As(err, &parseErr))

	_, err = Parse([]byte("server:\n  http_port: 80\n"))
	var validationErr *errors.ErrConfigValidation
	require.True(t, stderrors.As(err, &validationErr))
}

func TestParseWithEnvOverrides(t *testing.T) {
	env := map[string]string{
		EnvBaseURL:        "https://env.example.com",
		EnvClientID:       "env-id",
		EnvClientSecret:   "env-secret",
		EnvServiceAccount: `{"integration":{}}`,
		EnvPort:           "8181",
		EnvAPIKeys:        "k1, k2,,",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg, err := ParseWithEnv([]byte("aem:\n  base_url: https://file.example.com\n"), lookup)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.AEM.BaseURL)
	assert.Equal(t, "env-id", cfg.AEM.ClientID)
	assert.Equal(t, 8181, cfg.Server.HTTPPort)
	assert.Equal(t, []string{"k1", "k2"}, cfg.API.Auth.APIKeys)
	assert.True(t, cfg.AEM.HasServiceAccount())

	env[EnvPort] = "eighty"
	_, err = ParseWithEnv(nil, lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
}

func TestLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "aem:\n  base_url: ${TEST_AEM_URL}\n  client_id: id\n  client_secret: secret\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	lookup := func(k string) (string, bool) {
		if k == "TEST_AEM_URL" {
			return "https://substituted.example.com", true
		}
		return "", false
	}

	loader := NewLoader(path).WithLookup(lookup)
	var notified *Config
	loader.SetOnChange(func(c *Config) { notified = c })

	cfg, err := loader.Reload()
	require.NoError(t, err)
	assert.Equal(t, "https://substituted.example.com", cfg.AEM.BaseURL)
	assert.Same(t, cfg, loader.Get())
	assert.Same(t, cfg, notified)
	assert.Equal(t, path, loader.Path())
}

func TestLoaderMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	empty := func(string) (string, bool) { return "", false }

	_, err := NewLoader(missing).WithLookup(empty).Load()
	var notFound *errors.ErrConfigNotFound
	require.True(t, stderrors.As(err, &notFound))

	env := map[string]string{
		EnvBaseURL:      "https://aem.example.com",
		EnvClientID:     "id",
		EnvClientSecret: "secret",
	}
	cfg, err := NewOptionalLoader(missing).WithLookup(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}).Load()
	require.NoError(t, err)
	assert.Equal(t, "https://aem.example.com", cfg.AEM.BaseURL)
}
