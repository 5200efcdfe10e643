// Package config provides configuration management for nlukit.
// It loads settings from environment variables with the NLUKIT_ prefix and
// provides sensible defaults for all configuration options. An optional YAML
// file can be layered on top of the environment for deployments that prefer
// checked-in configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the nlukit service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Provider ProviderConfig `yaml:"provider"`
	NLU      NLUConfig      `yaml:"nlu"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`             // Server host (default: 127.0.0.1)
	Port            int           `yaml:"port"`             // Server port (default: 6464)
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // Request read deadline (default: 15s)
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // Response write deadline (default: 30s)
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // Graceful shutdown grace period (default: 10s)
}

// Addr renders the host:port listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	Engine      string `yaml:"engine"`       // Storage engine: sqlite, postgres (default: sqlite)
	SQLitePath  string `yaml:"sqlite_path"`  // SQLite database file (default: ./data/nlukit.db)
	PostgresDSN string `yaml:"postgres_dsn"` // Postgres connection string
}

// ProviderConfig contains external NLU provider configuration.
type ProviderConfig struct {
	Name              string        `yaml:"name"`                // Provider name (default: http)
	BaseURL           string        `yaml:"base_url"`            // Provider API root
	Token             string        `yaml:"token"`               // Bearer token for the provider API
	Timeout           time.Duration `yaml:"timeout"`             // Per-request timeout (default: 30s)
	MaxFailures       int           `yaml:"max_failures"`        // Circuit breaker trip threshold (default: 3)
	OpenTimeout       time.Duration `yaml:"open_timeout"`        // Circuit open duration (default: 30s)
	RequestsPerSecond float64       `yaml:"requests_per_second"` // Outbound rate limit (default: 10)
}

// NLUConfig contains inference and dataset settings.
type NLUConfig struct {
	GuessThreshold  float64 `yaml:"guess_threshold"`  // Minimum score for a best guess (default: 0.3)
	DefaultLanguage string  `yaml:"default_language"` // Language code seeded on first run (default: en)
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // zerolog level: trace..panic (default: info)
	Pretty bool   `yaml:"pretty"` // Human-readable console output (default: false)
}

// Load builds the configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            getEnv("NLUKIT_HOST", "127.0.0.1"),
			Port:            getEnvInt("NLUKIT_PORT", 6464),
			ReadTimeout:     getEnvDuration("NLUKIT_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("NLUKIT_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("NLUKIT_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Storage: StorageConfig{
			Engine:      getEnv("NLUKIT_STORAGE_ENGINE", "sqlite"),
			SQLitePath:  getEnv("NLUKIT_SQLITE_PATH", "./data/nlukit.db"),
			PostgresDSN: getEnv("NLUKIT_POSTGRES_DSN", ""),
		},
		Provider: ProviderConfig{
			Name:              getEnv("NLUKIT_PROVIDER_NAME", "http"),
			BaseURL:           getEnv("NLUKIT_PROVIDER_URL", ""),
			Token:             getEnv("NLUKIT_PROVIDER_TOKEN", ""),
			Timeout:           getEnvDuration("NLUKIT_PROVIDER_TIMEOUT", 30*time.Second),
			MaxFailures:       getEnvInt("NLUKIT_PROVIDER_MAX_FAILURES", 3),
			OpenTimeout:       getEnvDuration("NLUKIT_PROVIDER_OPEN_TIMEOUT", 30*time.Second),
			RequestsPerSecond: getEnvFloat("NLUKIT_PROVIDER_RPS", 10),
		},
		NLU: NLUConfig{
			GuessThreshold:  getEnvFloat("NLUKIT_GUESS_THRESHOLD", 0.3),
			DefaultLanguage: getEnv("NLUKIT_DEFAULT_LANGUAGE", "en"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("NLUKIT_LOG_LEVEL", "info"),
			Pretty: getEnvBool("NLUKIT_LOG_PRETTY", false),
		},
	}
}

// LoadFile loads the configuration from the environment, then overlays the
// YAML file at path on top of it. YAML values win over environment values.
func LoadFile(path string) (*Config, error) {
	cfg := Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func (c *Config) Validate() error {
	switch c.Storage.Engine {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("config: sqlite_path is required for the sqlite engine")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("config: postgres_dsn is required for the postgres engine")
		}
	default:
		return fmt.Errorf("config: unknown storage engine %q", c.Storage.Engine)
	}

	if c.NLU.GuessThreshold < 0 || c.NLU.GuessThreshold > 1 {
		return fmt.Errorf("config: guess_threshold must be within [0, 1]")
	}
	return nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. It recognizes "true", "1", "yes" and "false", "0", "no".
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "30s") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
