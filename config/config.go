package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"coderhack/adapters/redis"
	"coderhack/adapters/sqlx"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration
type Config struct {
	Environment Environment `json:"environment" env:"CODERHACK_ENV"`

	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Logging  LoggingConfig  `json:"logging"`
	Metrics  MetricsConfig  `json:"metrics"`
	Security SecurityConfig `json:"security"`
	Events   EventsConfig   `json:"events"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" env:"CODERHACK_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" env:"CODERHACK_SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" env:"CODERHACK_SERVER_CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"CODERHACK_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"CODERHACK_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"CODERHACK_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"CODERHACK_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"CODERHACK_SERVER_SHUTDOWN_TIMEOUT"`
}

// Storage adapter names.
const (
	AdapterMemory = "memory"
	AdapterRedis  = "redis"
	AdapterSQL    = "sql"
	AdapterFile   = "file"
)

// StorageConfig holds storage adapter configuration
type StorageConfig struct {
	Adapter string       `json:"adapter" env:"CODERHACK_STORAGE_ADAPTER"`
	Redis   redis.Config `json:"redis,omitempty"`
	SQL     sqlx.Config  `json:"sql,omitempty"`
	File    FileConfig   `json:"file,omitempty"`
}

// FileConfig holds JSON file storage configuration
type FileConfig struct {
	Path string `json:"path" env:"CODERHACK_STORAGE_FILE_PATH"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" env:"CODERHACK_LOG_LEVEL"`
	Format     string            `json:"format" env:"CODERHACK_LOG_FORMAT"`
	Output     string            `json:"output" env:"CODERHACK_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// MetricsConfig holds metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" env:"CODERHACK_METRICS_ENABLED"`
	Address string `json:"address" env:"CODERHACK_METRICS_ADDR"`
	Path    string `json:"path" env:"CODERHACK_METRICS_PATH"`
	// CollectSystem adds the Go runtime and process collectors.
	CollectSystem bool `json:"collect_system" env:"CODERHACK_METRICS_COLLECT_SYSTEM"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableRateLimit bool            `json:"enable_rate_limit" env:"CODERHACK_SECURITY_RATE_LIMIT_ENABLED"`
	RateLimit       RateLimitConfig `json:"rate_limit,omitempty"`
	APIKeys         []string        `json:"api_keys,omitempty" env:"CODERHACK_SECURITY_API_KEYS"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" env:"CODERHACK_SECURITY_RATE_LIMIT_RPM"`
	BurstSize         int `json:"burst_size" env:"CODERHACK_SECURITY_RATE_LIMIT_BURST"`
}

// Event dispatch modes.
const (
	DispatchSync  = "sync"
	DispatchAsync = "async"
)

// EventsConfig controls how domain events leave the service.
type EventsConfig struct {
	Dispatch  string `json:"dispatch" env:"CODERHACK_EVENTS_DISPATCH"`
	Workers   int    `json:"workers" env:"CODERHACK_EVENTS_WORKERS"`
	QueueSize int    `json:"queue_size" env:"CODERHACK_EVENTS_QUEUE_SIZE"`
	// Webhooks receive every event as JSON unless WebhookEventTypes narrows it.
	Webhooks          []string      `json:"webhooks,omitempty" env:"CODERHACK_EVENTS_WEBHOOKS"`
	WebhookEventTypes []string      `json:"webhook_event_types,omitempty" env:"CODERHACK_EVENTS_WEBHOOK_TYPES"`
	WebhookTimeout    time.Duration `json:"webhook_timeout" env:"CODERHACK_EVENTS_WEBHOOK_TIMEOUT"`
}

// Load builds configuration from defaults and environment variables and validates it
func Load() (*Config, error) {
	cfg := DefaultConfig()
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFromFile reads a .json, .yaml/.yml or .toml file over the defaults.
// Environment variables override file values.
func LoadFromFile(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}
	cfg := DefaultConfig()
	if err := decodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/coderhack/api/v1",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: AdapterMemory,
			Redis:   redis.DefaultConfig(),
			SQL:     sqlx.DefaultConfig(sqlx.DriverPostgres),
			File: FileConfig{
				Path: "./data/coderhack.json",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled:       false,
			Address:       ":9090",
			Path:          "/metrics",
			CollectSystem: true,
		},
		Security: SecurityConfig{
			EnableRateLimit: false,
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 60,
				BurstSize:         10,
			},
			APIKeys: []string{},
		},
		Events: EventsConfig{
			Dispatch:       DispatchAsync,
			Workers:        4,
			QueueSize:      2048,
			WebhookTimeout: 2 * time.Second,
		},
	}
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}
	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}
	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("metrics config: %v", err))
	}
	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}
	if err := c.Events.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("events config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

const redacted = "[REDACTED]"

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	cfg := *c
	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = redacted
	}
	if cfg.Storage.Redis.Password != "" {
		cfg.Storage.Redis.Password = redacted
	}
	if len(cfg.Security.APIKeys) > 0 {
		keys := make([]string, len(cfg.Security.APIKeys))
		for i := range keys {
			keys[i] = redacted
		}
		cfg.Security.APIKeys = keys
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
