// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, defaults, env var expansion, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv("TEST_FINBOT_SECRET", "0123456789abcdef0123456789abcdef")
	path := writeConfig(t, "config.yaml", `
api:
  base_url: "https://finbot.example.com/api/v1"

auth:
  login_timeout: "15s"

storage:
  backend: "sqlite"
  path: "/tmp/finbot.db"

logging:
  level: "debug"
  format: "json"

devserver:
  jwt_secret: "${TEST_FINBOT_SECRET}"
  access_ttl: "1m"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.API.BaseURL != "https://finbot.example.com/api/v1" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Auth.LoginTimeout != 15*time.Second {
		t.Errorf("Auth.LoginTimeout = %v, want 15s", cfg.Auth.LoginTimeout)
	}
	// Unset keys keep their defaults.
	if cfg.Auth.LogoutTimeout != 5*time.Second {
		t.Errorf("Auth.LogoutTimeout = %v, want 5s", cfg.Auth.LogoutTimeout)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.Path != "/tmp/finbot.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.DevServer.JWTSecret != "0123456789abcdef0123456789abcdef" {
		t.Errorf("DevServer.JWTSecret = %q, want expanded env var", cfg.DevServer.JWTSecret)
	}
	if cfg.DevServer.AccessTTL != time.Minute {
		t.Errorf("DevServer.AccessTTL = %v, want 1m", cfg.DevServer.AccessTTL)
	}
	if err := cfg.ValidateDevServer(); err != nil {
		t.Errorf("ValidateDevServer() error = %v", err)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[api]
base_url = "http://10.0.0.5:8000/api/v1"

[notify]
dedupe_window = "750ms"

[storage]
backend = "memory"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.BaseURL != "http://10.0.0.5:8000/api/v1" {
		t.Errorf("API.BaseURL = %q", cfg.API.BaseURL)
	}
	if cfg.Notify.DedupeWindow != 750*time.Millisecond {
		t.Errorf("Notify.DedupeWindow = %v", cfg.Notify.DedupeWindow)
	}
	if cfg.Storage.Backend != "memory" {
		t.Errorf("Storage.Backend = %q", cfg.Storage.Backend)
	}
}

func TestLoad_EnvOverridesBaseURL(t *testing.T) {
	t.Setenv(EnvAPIURL, "http://override:9000/api/v1")
	path := writeConfig(t, "config.yaml", "api:\n  base_url: \"http://file:8000/api/v1\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.BaseURL != "http://override:9000/api/v1" {
		t.Errorf("API.BaseURL = %q, want env override", cfg.API.BaseURL)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad duration", "auth:\n  login_timeout: \"soon\"\n", "auth.login_timeout"},
		{"bad scheme", "api:\n  base_url: \"ftp://x\"\n", "http or https"},
		{"bad backend", "storage:\n  backend: \"redis\"\n", "storage.backend"},
		{"sqlite without path", "storage:\n  backend: \"sqlite\"\n", "storage.path"},
		{"bad level", "logging:\n  level: \"loud\"\n", "logging.level"},
		{"bad yaml", "api: [\n", "parsing config file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "config.yaml", tt.content)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Load() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	t.Setenv(EnvAPIURL, "")
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.API.BaseURL != DefaultBaseURL {
		t.Errorf("API.BaseURL = %q, want default", cfg.API.BaseURL)
	}
	if cfg.Auth.LoginTimeout != 10*time.Second {
		t.Errorf("Auth.LoginTimeout = %v, want 10s", cfg.Auth.LoginTimeout)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultPath(); got != filepath.Join("/xdg", "finbot", "config.yaml") {
		t.Errorf("DefaultPath() = %q", got)
	}

	t.Setenv(EnvConfigPath, "/etc/finbot.toml")
	if got := DefaultPath(); got != "/etc/finbot.toml" {
		t.Errorf("DefaultPath() = %q, want env path", got)
	}
}

func TestValidateDevServer_ShortSecret(t *testing.T) {
	cfg := Default()
	cfg.DevServer.JWTSecret = "short"
	if err := cfg.ValidateDevServer(); err == nil {
		t.Error("ValidateDevServer() expected error for short secret")
	}
}
