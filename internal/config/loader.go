package config

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/SatoshiInoue/aem-assets-mcp-server/internal/errors"
	"gopkg.in/yaml.v3"
)

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Environment variables understood by ApplyEnv. They take precedence over
// values from the YAML file.
const (
	EnvConfigPath     = "AEM_CONFIG_PATH"
	EnvBaseURL        = "AEM_BASE_URL"
	EnvClientID       = "AEM_CLIENT_ID"
	EnvClientSecret   = "AEM_CLIENT_SECRET"
	EnvServiceAccount = "AEM_SERVICE_ACCOUNT_JSON"
	EnvIMSTokenURL    = "AEM_IMS_TOKEN_URL"
	EnvAPIKeys        = "AEM_API_KEYS"
	EnvAuditDBPath    = "AEM_AUDIT_DB"
	EnvHost           = "HOST"
	EnvPort           = "PORT"
	EnvLogLevel       = "LOG_LEVEL"
)

// Loader handles configuration loading and reloading
type Loader struct {
	path     string
	optional bool
	lookup   LookupFunc
	mu       sync.RWMutex
	config   *Config
	onChange func(*Config)
}

// NewLoader creates a loader for path. The file must exist.
func NewLoader(path string) *Loader {
	return &Loader{path: path, lookup: os.LookupEnv}
}

// NewOptionalLoader creates a loader that falls back to environment-only
// configuration when path does not exist.
func NewOptionalLoader(path string) *Loader {
	return &Loader{path: path, optional: true, lookup: os.LookupEnv}
}

// WithLookup replaces the environment lookup, mainly for tests.
func (l *Loader) WithLookup(lookup LookupFunc) *Loader {
	l.lookup = lookup
	return l
}

// Load reads the configuration from the file
func (l *Loader) Load() (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var content []byte
	if l.path != "" {
		data, err := os.ReadFile(l.path)
		switch {
		case err == nil:
			content = substituteEnvVars(data, l.lookup)
		case os.IsNotExist(err) && l.optional:
			content = nil
		case os.IsNotExist(err):
			return nil, &errors.ErrConfigNotFound{Path: l.path}
		default:
			return nil, &errors.ErrFileRead{Path: l.path, Err: err}
		}
	}

	config, err := ParseWithEnv(content, l.lookup)
	if err != nil {
		return nil, err
	}

	l.config = config
	return config, nil
}

// Reload re-reads the file and notifies the change callback.
func (l *Loader) Reload() (*Config, error) {
	config, err := l.Load()
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	onChange := l.onChange
	l.mu.RUnlock()

	if onChange != nil {
		onChange(config)
	}

	return config, nil
}

// Get returns the current configuration
func (l *Loader) Get() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}

// SetOnChange sets a callback to be called when configuration changes
func (l *Loader) SetOnChange(fn func(*Config)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// Path returns the file the loader reads.
func (l *Loader) Path() string {
	return l.path
}

// LoadFromEnv loads configuration from AEM_CONFIG_PATH, or from an optional
// config.yaml next to the binary when the variable is unset.
func LoadFromEnv() (*Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return NewLoader(path).Load()
	}
	return NewOptionalLoader("config.yaml").Load()
}

// Parse parses configuration from a byte slice without consulting the
// environment.
func Parse(data []byte) (*Config, error) {
	return ParseWithEnv(data, nil)
}

// ParseWithEnv parses YAML, overlays environment overrides from lookup and
// validates the result.
func ParseWithEnv(data []byte, lookup LookupFunc) (*Config, error) {
	var config Config

	// Apply defaults before parsing
	config.Server.HTTPPort = DefaultHTTPPort
	config.Server.LogLevel = "info"
	config.AEM.IMSTokenURL = DefaultIMSTokenURL
	config.AEM.Scope = DefaultScope
	config.AEM.Timeout = DefaultTimeout
	config.MCP.Enabled = true

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, &errors.ErrConfigParse{Err: err}
		}
	}

	if lookup != nil {
		if err := ApplyEnv(&config, lookup); err != nil {
			return nil, &errors.ErrConfigValidation{Err: err}
		}
	}

	if err := config.Validate(); err != nil {
		return nil, &errors.ErrConfigValidation{Err: err}
	}

	return &config, nil
}

// ApplyEnv overlays non-empty environment variables onto cfg.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get(EnvBaseURL); ok {
		cfg.AEM.BaseURL = v
	}
	if v, ok := get(EnvClientID); ok {
		cfg.AEM.ClientID = v
	}
	if v, ok := get(EnvClientSecret); ok {
		cfg.AEM.ClientSecret = v
	}
	if v, ok := get(EnvServiceAccount); ok {
		cfg.AEM.ServiceAccount = v
	}
	if v, ok := get(EnvIMSTokenURL); ok {
		cfg.AEM.IMSTokenURL = v
	}
	if v, ok := get(EnvAPIKeys); ok {
		cfg.API.Auth.APIKeys = splitList(v)
	}
	if v, ok := get(EnvAuditDBPath); ok {
		cfg.Audit.Enabled = true
		cfg.Audit.DBPath = v
	}
	if v, ok := get(EnvHost); ok {
		cfg.Server.Host = v
	}
	if v, ok := get(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return &invalidEnvError{key: EnvPort, value: v}
		}
		cfg.Server.HTTPPort = port
	}
	if v, ok := get(EnvLogLevel); ok {
		cfg.Server.LogLevel = v
	}
	return nil
}

type invalidEnvError struct {
	key   string
	value string
}

func (e *invalidEnvError) Error() string {
	return "invalid value for " + e.key + ": " + strconv.Quote(e.value)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func substituteEnvVars(content []byte, lookup LookupFunc) []byte {
	if lookup == nil {
		return content
	}
	return []byte(os.Expand(string(content), func(key string) string {
		v, _ := lookup(key)
		return v
	}))
}
