// Package config loads the artic configuration from a YAML file, a .env file
// and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when no path is given.
const DefaultPath = "artic.yaml"

// Environment variables that override file values.
const (
	EnvConfigPath = "ARTIC_CONFIG"
	EnvBaseURL    = "ARTIC_BASE_URL"
	EnvUserAgent  = "ARTIC_USER_AGENT"
	EnvPageSize   = "ARTIC_PAGE_SIZE"
	EnvListenAddr = "ARTIC_LISTEN_ADDR"
	EnvRedisURL   = "REDIS_URL"
	EnvLogLevel   = "LOG_LEVEL"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete application configuration.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Selection SelectionConfig `yaml:"selection"`
	Redis     RedisConfig     `yaml:"redis"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// APIConfig configures the catalog client.
type APIConfig struct {
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	PageSize  int           `yaml:"page_size"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	RateBurst int           `yaml:"rate_burst"`
	Retry     RetryConfig   `yaml:"retry"`
}

// RetryConfig configures retries of a single request.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// SelectionConfig configures select-first-N runs.
type SelectionConfig struct {
	PageTimeout time.Duration `yaml:"page_timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// RedisConfig enables the page cache and the shared selection store.
// An empty URL keeps everything in memory.
type RedisConfig struct {
	URL            string        `yaml:"url"`
	Session        string        `yaml:"session"`
	SelectionTTL   time.Duration `yaml:"selection_ttl"`
	StaleRetention time.Duration `yaml:"stale_retention"`
}

// Enabled reports whether a Redis URL is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
	// File receives logs while the terminal UI runs.
	File string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:   "https://api.artic.edu/api/v1",
			UserAgent: "artic-client (artic-client@example.com)",
			PageSize:  12,
			Timeout:   15 * time.Second,
			RateLimit: 1,
			RateBurst: 5,
			Retry: RetryConfig{
				MaxAttempts:    3,
				InitialBackoff: time.Second,
				MaxBackoff:     30 * time.Second,
			},
		},
		Selection: SelectionConfig{
			PageTimeout: 30 * time.Second,
			MaxAttempts: 2,
			Backoff:     2 * time.Second,
		},
		Redis: RedisConfig{
			Session:        "default",
			SelectionTTL:   24 * time.Hour,
			StaleRetention: time.Hour,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "artic.log",
		},
	}
}

// Load builds the configuration.
//
// path names a YAML file; when empty, $ARTIC_CONFIG is used, then
// artic.yaml if it exists. A .env file in the working directory is loaded
// into the environment first, without overriding variables already set.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if path == "" {
		path = DefaultPath
	}

	if err := cfg.mergeFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeFile decodes the YAML file at path onto cfg. Keys absent from the
// file keep their current values; unknown keys are rejected.
func (c *Config) mergeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		// Empty file.
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv(EnvUserAgent); v != "" {
		c.API.UserAgent = v
	}
	if v := os.Getenv(EnvPageSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalid, EnvPageSize, v)
		}
		c.API.PageSize = n
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.API.UserAgent) == "" {
		errs = append(errs, fmt.Errorf("%w: api.user_agent is required", ErrInvalid))
	}
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		errs = append(errs, fmt.Errorf("%w: api.base_url must be an http(s) URL, got %q", ErrInvalid, c.API.BaseURL))
	}
	if c.API.PageSize < 1 || c.API.PageSize > 100 {
		errs = append(errs, fmt.Errorf("%w: api.page_size must be between 1 and 100, got %d", ErrInvalid, c.API.PageSize))
	}
	if c.API.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("%w: api.rate_limit must not be negative", ErrInvalid))
	}
	if c.API.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("%w: api.retry.max_attempts must be at least 1", ErrInvalid))
	}
	if c.Selection.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("%w: selection.max_attempts must be at least 1", ErrInvalid))
	}
	if c.Selection.PageTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: selection.page_timeout must not be negative", ErrInvalid))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error", "disabled", "off":
	default:
		errs = append(errs, fmt.Errorf("%w: unknown logging.level %q", ErrInvalid, c.Logging.Level))
	}

	return errors.Join(errs...)
}
