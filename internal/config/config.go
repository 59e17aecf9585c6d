package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultHTTPPort     = 8080
	DefaultIMSTokenURL  = "https://ims-na1.adobelogin.com/ims/token/v3"
	DefaultScope        = "openid,AdobeID,aem.assets.author,aem.folders"
	DefaultTimeout      = 30 * time.Second
	DefaultAuditDBPath  = "./data/aem-assets.db"
	DefaultMCPPath      = "/mcp"
	DefaultAuditRetains = 90
)

// Config represents the complete application configuration.
type Config struct {
	Version string       `yaml:"version"`
	Server  ServerConfig `yaml:"server"`
	API     APIConfig    `yaml:"api"`
	AEM     AEMConfig    `yaml:"aem"`
	Audit   AuditConfig  `yaml:"audit"`
	MCP     MCPConfig    `yaml:"mcp"`
}

// ServerConfig contains server-related configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
}

// APIConfig contains API-related configuration.
type APIConfig struct {
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig sets the per-client token bucket. Zero values fall back to
// the server defaults.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// AuthConfig holds the optional API keys guarding the tool endpoints. An
// empty key list leaves them open.
type AuthConfig struct {
	APIKeys    []string `yaml:"api_keys"`
	HeaderName string   `yaml:"header_name"`
}

// AEMConfig describes the AEM author instance and its Adobe IMS credentials.
type AEMConfig struct {
	BaseURL      string        `yaml:"base_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	IMSTokenURL  string        `yaml:"ims_token_url"`
	Scope        string        `yaml:"scope"`
	Timeout      time.Duration `yaml:"timeout"`
	// ServiceAccount is either inline JSON or a path to the descriptor file.
	ServiceAccount      string `yaml:"service_account"`
	WatchServiceAccount bool   `yaml:"watch_service_account"`
}

// AuditConfig controls the sqlite audit ledger.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// MCPConfig controls the streamable MCP endpoint mounted on the HTTP server.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Version == "" {
		c.Version = "1"
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	if err := c.AEM.Validate(); err != nil {
		return fmt.Errorf("aem: %w", err)
	}

	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	if c.MCP.Path == "" {
		c.MCP.Path = DefaultMCPPath
	}
	if !strings.HasPrefix(c.MCP.Path, "/") {
		return fmt.Errorf("mcp: path must start with /")
	}

	return nil
}

// Validate validates server configuration.
func (s *ServerConfig) Validate() error {
	if s.HTTPPort == 0 {
		s.HTTPPort = DefaultHTTPPort
	}
	if s.HTTPPort < 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535")
	}
	if s.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = 30 * time.Second
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
	return nil
}

// Validate checks the AEM connection settings and applies defaults. The
// service account stays optional: without it only the classic API is
// unavailable.
func (a *AEMConfig) Validate() error {
	if a.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	u, err := url.Parse(a.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute URL, got %q", a.BaseURL)
	}
	a.BaseURL = strings.TrimRight(a.BaseURL, "/")

	if a.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if a.ClientSecret == "" {
		return fmt.Errorf("client_secret is required")
	}
	if a.IMSTokenURL == "" {
		a.IMSTokenURL = DefaultIMSTokenURL
	}
	if a.Scope == "" {
		a.Scope = DefaultScope
	}
	if a.Timeout < 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if a.Timeout == 0 {
		a.Timeout = DefaultTimeout
	}
	return nil
}

// HasServiceAccount reports whether a JWT service account was configured.
func (a *AEMConfig) HasServiceAccount() bool {
	return strings.TrimSpace(a.ServiceAccount) != ""
}

// Validate applies audit defaults.
func (a *AuditConfig) Validate() error {
	if a.DBPath == "" {
		a.DBPath = DefaultAuditDBPath
	}
	if a.RetentionDays < 0 {
		return fmt.Errorf("retention_days must not be negative")
	}
	if a.RetentionDays == 0 {
		a.RetentionDays = DefaultAuditRetains
	}
	return nil
}
