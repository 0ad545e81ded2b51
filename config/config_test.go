package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coderhack/adapters/sqlx"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "/coderhack/api/v1", cfg.Server.PathPrefix)
	assert.Equal(t, AdapterMemory, cfg.Storage.Adapter)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, DispatchAsync, cfg.Events.Dispatch)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CODERHACK_ENV", "staging")
	t.Setenv("CODERHACK_SERVER_ADDR", ":7070")
	t.Setenv("CODERHACK_SERVER_READ_TIMEOUT", "3s")
	t.Setenv("CODERHACK_STORAGE_ADAPTER", "redis")
	t.Setenv("CODERHACK_REDIS_ADDR", "cache:6379")
	t.Setenv("CODERHACK_SECURITY_API_KEYS", "k1,k2")
	t.Setenv("CODERHACK_EVENTS_WEBHOOKS", "https://example.com/hook")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvStaging, cfg.Environment)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "cache:6379", cfg.Storage.Redis.Addr)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Security.APIKeys)
	assert.Equal(t, []string{"https://example.com/hook"}, cfg.Events.Webhooks)
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	t.Setenv("CODERHACK_LOG_LEVEL", "loud")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging config")
}

func TestLoadFromFileFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"json", "cfg.json", `{
			"environment": "testing",
			"server": {"address": ":9090", "read_timeout": "2s"},
			"storage": {"adapter": "sql", "sql": {"driver": "sqlite", "dsn": "file.db"}}
		}`},
		{"yaml", "cfg.yaml", `
environment: testing
server:
  address: ":9090"
  read_timeout: 2s
storage:
  adapter: sql
  sql:
    driver: sqlite
    dsn: file.db
`},
		{"toml", "cfg.toml", `
environment = "testing"

[server]
address = ":9090"
read_timeout = "2s"

[storage]
adapter = "sql"

[storage.sql]
driver = "sqlite"
dsn = "file.db"
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFromFile(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)
			assert.Equal(t, EnvTesting, cfg.Environment)
			assert.Equal(t, ":9090", cfg.Server.Address)
			assert.Equal(t, 2*time.Second, cfg.Server.ReadTimeout)
			// untouched fields keep their defaults
			assert.Equal(t, 10*time.Second, cfg.Server.WriteTimeout)
			assert.Equal(t, AdapterSQL, cfg.Storage.Adapter)
			assert.Equal(t, sqlx.DriverSQLite, cfg.Storage.SQL.Driver)
			assert.Equal(t, "file.db", cfg.Storage.SQL.DSN)
		})
	}
}

func TestLoadFromFileNumericDuration(t *testing.T) {
	cfg, err := LoadFromFile(writeFile(t, "cfg.json", `{"server": {"idle_timeout": 1000000000}}`))
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.Server.IdleTimeout)
}

func TestLoadFromFileBadDuration(t *testing.T) {
	_, err := LoadFromFile(writeFile(t, "cfg.yaml", "server:\n  read_timeout: soon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read_timeout")
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "cfg.json", `{"server": {"address": ":9090"}}`)
	t.Setenv("CODERHACK_SERVER_ADDR", ":6060")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.Server.Address)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty environment", func(c *Config) { c.Environment = "" }, "environment"},
		{"zero read timeout", func(c *Config) { c.Server.ReadTimeout = 0 }, "read_timeout"},
		{"relative prefix", func(c *Config) { c.Server.PathPrefix = "api" }, "path_prefix"},
		{"unknown adapter", func(c *Config) { c.Storage.Adapter = "mongo" }, "adapter must be one of"},
		{"file without path", func(c *Config) {
			c.Storage.Adapter = AdapterFile
			c.Storage.File.Path = ""
		}, "path cannot be empty"},
		{"sql without dsn", func(c *Config) {
			c.Storage.Adapter = AdapterSQL
			c.Storage.SQL.DSN = ""
		}, "sql config"},
		{"redis without addr", func(c *Config) {
			c.Storage.Adapter = AdapterRedis
			c.Storage.Redis.Addr = ""
		}, "addr"},
		{"rate limit without rpm", func(c *Config) {
			c.Security.EnableRateLimit = true
			c.Security.RateLimit.RequestsPerMinute = 0
		}, "requests_per_minute"},
		{"blank api key", func(c *Config) { c.Security.APIKeys = []string{" "} }, "api_keys[0]"},
		{"bad dispatch", func(c *Config) { c.Events.Dispatch = "maybe" }, "dispatch"},
		{"bad webhook", func(c *Config) { c.Events.Webhooks = []string{"ftp://x"} }, "webhooks[0]"},
		{"unknown event type", func(c *Config) { c.Events.WebhookEventTypes = []string{"user_exploded"} }, "user_exploded"},
		{"metrics path", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Path = "metrics"
		}, "path must start with /"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestStringRedactsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.SQL.DSN = "postgres://user:hunter2@db/coderhack"
	cfg.Storage.Redis.Password = "hunter3"
	cfg.Security.APIKeys = []string{"topsecret"}

	out := cfg.String()
	for _, secret := range []string{"hunter2", "hunter3", "topsecret"} {
		assert.False(t, strings.Contains(out, secret), "leaked %s", secret)
	}
	assert.Contains(t, out, redacted)
	assert.Equal(t, []string{"topsecret"}, cfg.Security.APIKeys, "String must not mutate the receiver")
}

func TestValidateConfigPath(t *testing.T) {
	dir := t.TempDir()
	ok := filepath.Join(dir, "c.yml")
	require.NoError(t, os.WriteFile(ok, []byte("{}"), 0o600))
	txt := filepath.Join(dir, "c.txt")
	require.NoError(t, os.WriteFile(txt, []byte("{}"), 0o600))

	assert.NoError(t, validateConfigPath(ok))
	assert.Error(t, validateConfigPath(""))
	assert.Error(t, validateConfigPath(txt))
	assert.Error(t, validateConfigPath(filepath.Join(dir, "missing.json")))
}
