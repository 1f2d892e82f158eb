package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
app:
  name: agent-1
api:
  rest_url: https://tutorlink.example.com/api
  token: abc
socket:
  url: https://tutorlink.example.com
  reconnect:
    max_attempts: 7
poller:
  notifications_always_on: true
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.App.Name != "agent-1" {
		t.Errorf("App.Name = %q, want %q", cfg.App.Name, "agent-1")
	}
	if cfg.API.RestURL != "https://tutorlink.example.com/api" {
		t.Errorf("API.RestURL = %q", cfg.API.RestURL)
	}
	if cfg.Socket.Reconnect.MaxAttempts != 7 {
		t.Errorf("Socket.Reconnect.MaxAttempts = %d, want 7", cfg.Socket.Reconnect.MaxAttempts)
	}
	if !cfg.Poller.NotificationsAlwaysOn {
		t.Error("Poller.NotificationsAlwaysOn = false, want true")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_REALTIME_TOKEN", "secret123")

	yaml := `
api:
  token: ${TEST_REALTIME_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.Token != "secret123" {
		t.Errorf("API.Token = %q, want %q", cfg.API.Token, "secret123")
	}
}

func TestLoadWithDotEnv(t *testing.T) {
	path := writeTempFile(t, "socket:\n  url: ${TEST_REALTIME_SOCKET_URL}\n")
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := os.WriteFile(envPath, []byte("TEST_REALTIME_SOCKET_URL=wss://from-dotenv.example.com\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("TEST_REALTIME_SOCKET_URL") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Socket.URL != "wss://from-dotenv.example.com" {
		t.Errorf("Socket.URL = %q", cfg.Socket.URL)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeTempFile(t, "api: [not, a, map")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config yaml") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, "api:\n  rate_limit: 5\n")

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.API.Timeout != DefaultAPITimeout {
		t.Errorf("API.Timeout = %v, want default %v", cfg.API.Timeout, DefaultAPITimeout)
	}
	if cfg.API.RateBurst != 1 {
		t.Errorf("API.RateBurst = %d, want 1", cfg.API.RateBurst)
	}
	if cfg.Socket.Path != DefaultSocketPath {
		t.Errorf("Socket.Path = %q, want default %q", cfg.Socket.Path, DefaultSocketPath)
	}
	r := cfg.Socket.Reconnect
	if r.BaseDelay != time.Second || r.MaxDelay != 10*time.Second || r.MaxAttempts != 5 {
		t.Errorf("Socket.Reconnect = %+v, want 1s/10s/5", r)
	}
	if cfg.Poller.NotificationInterval != 10*time.Second || cfg.Poller.UnreadInterval != 30*time.Second {
		t.Errorf("Poller intervals = %v/%v, want 10s/30s", cfg.Poller.NotificationInterval, cfg.Poller.UnreadInterval)
	}
	if cfg.Journal.Database.Port != DefaultDBPort {
		t.Errorf("Journal.Database.Port = %d, want default %d", cfg.Journal.Database.Port, DefaultDBPort)
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want info/json", cfg.Logging)
	}
}

func TestLoadAndValidate(t *testing.T) {
	path := writeTempFile(t, "api:\n  token: abc\n")
	_, err := LoadAndValidate(path)
	if err == nil || !strings.Contains(err.Error(), "validate config: api.rest_url is required") {
		t.Errorf("expected validation error, got %v", err)
	}
}

func validConfig() Config {
	cfg := Config{
		API:    APIConfig{RestURL: "https://tutorlink.example.com/api", Token: "abc"},
		Socket: SocketConfig{URL: "https://tutorlink.example.com"},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "missing rest url",
			mutate:  func(c *Config) { c.API.RestURL = "" },
			wantErr: "api.rest_url is required",
		},
		{
			name:    "relative rest url",
			mutate:  func(c *Config) { c.API.RestURL = "/api" },
			wantErr: `api.rest_url must be an absolute [http https] URL, got "/api"`,
		},
		{
			name:    "no identity",
			mutate:  func(c *Config) { c.API.Token = "" },
			wantErr: "api.token or app.user_id is required",
		},
		{
			name: "user id without token",
			mutate: func(c *Config) {
				c.API.Token = ""
				c.App.UserID = "u1"
			},
			wantErr: "",
		},
		{
			name:    "missing socket url",
			mutate:  func(c *Config) { c.Socket.URL = "" },
			wantErr: "socket.url is required",
		},
		{
			name:    "ws socket url",
			mutate:  func(c *Config) { c.Socket.URL = "wss://tutorlink.example.com" },
			wantErr: "",
		},
		{
			name:    "max delay below base",
			mutate:  func(c *Config) { c.Socket.Reconnect.MaxDelay = 500 * time.Millisecond },
			wantErr: "socket.reconnect.max_delay (500ms) cannot be less than base_delay (1s)",
		},
		{
			name:    "no attempts",
			mutate:  func(c *Config) { c.Socket.Reconnect.MaxAttempts = -1 },
			wantErr: "socket.reconnect.max_attempts must be >= 1",
		},
		{
			name:    "journal without host",
			mutate:  func(c *Config) { c.Journal.Enabled = true },
			wantErr: "journal.database.host is required",
		},
		{
			name: "journal min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Journal.Enabled = true
				c.Journal.Database = DBConfig{Host: "localhost", Name: "db", User: "user", MaxConns: 2, MinConns: 5}
			},
			wantErr: "journal.database.min_conns (5) cannot exceed max_conns (2)",
		},
		{
			name:    "disabled journal is not checked",
			mutate:  func(c *Config) { c.Journal.Database = DBConfig{} },
			wantErr: "",
		},
		{
			name:    "bad metrics port",
			mutate:  func(c *Config) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: `logging.level must be one of debug, info, warn, error, got "verbose"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadAndValidate_ExampleConfig(t *testing.T) {
	t.Setenv("TUTORLINK_API_URL", "https://tutorlink.example.com/api")
	t.Setenv("TUTORLINK_SOCKET_URL", "https://tutorlink.example.com")
	t.Setenv("TUTORLINK_TOKEN", "tok")
	t.Setenv("JOURNAL_DB_PASSWORD", "secret")

	cfg, err := LoadAndValidate(filepath.Join("..", "..", "configs", "agent.example.yaml"))
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.API.RateLimit != 2 || cfg.API.RateBurst != 4 {
		t.Errorf("rate limit = %v/%d, want 2/4", cfg.API.RateLimit, cfg.API.RateBurst)
	}
	if cfg.Journal.Enabled {
		t.Error("journal should be disabled in the example")
	}
	if cfg.Journal.Database.Password != "secret" {
		t.Errorf("journal password = %q, want expanded value", cfg.Journal.Database.Password)
	}
}
