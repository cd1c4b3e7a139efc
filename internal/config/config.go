// ABOUTME: Configuration loading and parsing for the finbot client and dev server
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by the loader.
const (
	EnvConfigPath = "FINBOT_CONFIG"
	EnvAPIURL     = "FINBOT_API_URL"
)

// DefaultBaseURL is the backend used when nothing is configured.
const DefaultBaseURL = "http://localhost:8000/api/v1"

// Config represents the complete finbot configuration
type Config struct {
	API       APIConfig       `yaml:"api" toml:"api"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Storage   StorageConfig   `yaml:"storage" toml:"storage"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Notify    NotifyConfig    `yaml:"notify" toml:"notify"`
	DevServer DevServerConfig `yaml:"devserver" toml:"devserver"`
}

// APIConfig locates the backend
type APIConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
}

// AuthConfig holds session timing
type AuthConfig struct {
	LoginTimeout  time.Duration `yaml:"-" toml:"-"`
	LogoutTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	LoginTimeoutRaw  string `yaml:"login_timeout" toml:"login_timeout"`
	LogoutTimeoutRaw string `yaml:"logout_timeout" toml:"logout_timeout"`
}

// StorageConfig selects where the token pair is persisted
type StorageConfig struct {
	Backend string `yaml:"backend" toml:"backend"` // file, sqlite, memory
	Path    string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// NotifyConfig tunes terminal toasts
type NotifyConfig struct {
	DedupeWindow    time.Duration `yaml:"-" toml:"-"`
	DedupeWindowRaw string        `yaml:"dedupe_window" toml:"dedupe_window"`
}

// DevServerConfig configures the local development backend
type DevServerConfig struct {
	Addr         string `yaml:"addr" toml:"addr"`
	DatabasePath string `yaml:"database_path" toml:"database_path"`
	JWTSecret    string `yaml:"jwt_secret" toml:"jwt_secret"`

	AccessTTL  time.Duration `yaml:"-" toml:"-"`
	RefreshTTL time.Duration `yaml:"-" toml:"-"`

	AccessTTLRaw  string `yaml:"access_ttl" toml:"access_ttl"`
	RefreshTTLRaw string `yaml:"refresh_ttl" toml:"refresh_ttl"`
}

// MinJWTSecretLength is the shortest accepted dev server signing secret.
const MinJWTSecretLength = 32

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		API: APIConfig{BaseURL: DefaultBaseURL},
		Auth: AuthConfig{
			LoginTimeout:     10 * time.Second,
			LogoutTimeout:    5 * time.Second,
			LoginTimeoutRaw:  "10s",
			LogoutTimeoutRaw: "5s",
		},
		Storage: StorageConfig{Backend: "file"},
		Logging: LoggingConfig{Level: "warn", Format: "text"},
		Notify: NotifyConfig{
			DedupeWindow:    3 * time.Second,
			DedupeWindowRaw: "3s",
		},
		DevServer: DevServerConfig{
			Addr:          "127.0.0.1:8000",
			DatabasePath:  "finbot-dev.db",
			AccessTTL:     5 * time.Minute,
			RefreshTTL:    24 * time.Hour,
			AccessTTLRaw:  "5m",
			RefreshTTLRaw: "24h",
		},
	}
}

// DefaultPath returns the config file location.
// Priority: $FINBOT_CONFIG > $XDG_CONFIG_HOME/finbot/config.yaml > ~/.config/finbot/config.yaml
func DefaultPath() string {
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "finbot", "config.yaml")
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML. Keys
// missing from the file keep their Default values. Environment variables in
// the format ${VAR_NAME} are expanded and $FINBOT_API_URL overrides api.base_url.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path (DefaultPath when empty) and falls back to
// Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		cfg.applyEnv()
		return cfg, cfg.Validate()
	}
	return cfg, err
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.API.BaseURL = v
	}
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks the client configuration.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil {
		return fmt.Errorf("api.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api.base_url must use http or https scheme")
	}

	switch c.Storage.Backend {
	case "", "file", "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("storage.backend must be file, sqlite, or memory (got %q)", c.Storage.Backend)
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json (got %q)", c.Logging.Format)
	}

	if c.Auth.LoginTimeout < 0 || c.Auth.LogoutTimeout < 0 {
		return fmt.Errorf("auth timeouts must not be negative")
	}

	return nil
}

// ValidateDevServer checks the settings the development server needs.
func (c *Config) ValidateDevServer() error {
	if c.DevServer.Addr == "" {
		return fmt.Errorf("devserver.addr is required")
	}
	if c.DevServer.DatabasePath == "" {
		return fmt.Errorf("devserver.database_path is required")
	}
	if len(c.DevServer.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("devserver.jwt_secret must be at least %d bytes", MinJWTSecretLength)
	}
	if c.DevServer.AccessTTL <= 0 || c.DevServer.RefreshTTL <= 0 {
		return fmt.Errorf("devserver token TTLs must be positive")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"auth.login_timeout", cfg.Auth.LoginTimeoutRaw, &cfg.Auth.LoginTimeout},
		{"auth.logout_timeout", cfg.Auth.LogoutTimeoutRaw, &cfg.Auth.LogoutTimeout},
		{"notify.dedupe_window", cfg.Notify.DedupeWindowRaw, &cfg.Notify.DedupeWindow},
		{"devserver.access_ttl", cfg.DevServer.AccessTTLRaw, &cfg.DevServer.AccessTTL},
		{"devserver.refresh_ttl", cfg.DevServer.RefreshTTLRaw, &cfg.DevServer.RefreshTTL},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
