// Package config manages application configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DIARYSYNC_"

// Config holds all client configuration.
type Config struct {
	// BaseURL is the backend API root, e.g. https://api.example.com/api/v1.
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// DataDir holds the credential record, the cache and the upload journal.
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`

	// HTTP settings
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	UserAgent      string        `yaml:"user_agent" env:"USER_AGENT"`
	PageSize       int           `yaml:"page_size" env:"PAGE_SIZE"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	// Circuit breaker settings
	CircuitFailureThreshold int           `yaml:"circuit_failure_threshold" env:"CIRCUIT_FAILURE_THRESHOLD"`
	CircuitRecoveryTimeout  time.Duration `yaml:"circuit_recovery_timeout" env:"CIRCUIT_RECOVERY_TIMEOUT"`

	// Upload settings
	UploadChunkSize      int           `yaml:"upload_chunk_size" env:"UPLOAD_CHUNK_SIZE"`
	UploadMaxAttempts    int           `yaml:"upload_max_attempts" env:"UPLOAD_MAX_ATTEMPTS"`
	UploadInitialBackoff time.Duration `yaml:"upload_initial_backoff" env:"UPLOAD_INITIAL_BACKOFF"`
	UploadMaxBackoff     time.Duration `yaml:"upload_max_backoff" env:"UPLOAD_MAX_BACKOFF"`
	UploadAttemptTimeout time.Duration `yaml:"upload_attempt_timeout" env:"UPLOAD_ATTEMPT_TIMEOUT"`

	// PollInterval is the wait between status fetches.
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`

	// Presigned download URL cache
	URLCacheSize int           `yaml:"url_cache_size" env:"URL_CACHE_SIZE"`
	URLCacheTTL  time.Duration `yaml:"url_cache_ttl" env:"URL_CACHE_TTL"`

	// Logging
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:                 "http://localhost:8080/api/v1",
		DataDir:                 defaultDataDir(),
		RequestTimeout:          30 * time.Second,
		UserAgent:               "diarysync/1.0",
		PageSize:                20,
		RateLimitRPS:            10,
		RateLimitBurst:          5,
		CircuitFailureThreshold: 5,
		CircuitRecoveryTimeout:  30 * time.Second,
		UploadChunkSize:         8 * 1024,
		UploadMaxAttempts:       3,
		UploadInitialBackoff:    1 * time.Second,
		UploadMaxBackoff:        30 * time.Second,
		PollInterval:            3 * time.Second,
		URLCacheSize:            64,
		URLCacheTTL:             10 * time.Minute,
		LogLevel:                "info",
		LogFormat:               "console",
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "diarysync")
	}
	return ".diarysync"
}

// Load builds the configuration.
// Priority: env vars (.env included) > config file > defaults
//
// path names the config file; when empty, diarysync.yaml, diarysync.yml and
// diarysync.json are searched in the working directory and then in the user
// config directory. The file is optional unless path is given.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(path); err != nil {
		if path != "" || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile decodes the first config file found. JSON files are read by the
// YAML decoder too, so durations are written as strings ("30s") in both.
func (c *Config) loadFromFile(path string) error {
	paths := []string{path}
	if path == "" {
		paths = nil
		dirs := []string{"."}
		if dir, err := os.UserConfigDir(); err == nil {
			dirs = append(dirs, filepath.Join(dir, "diarysync"))
		}
		for _, dir := range dirs {
			for _, name := range []string{"diarysync.yaml", "diarysync.yml", "diarysync.json"} {
				paths = append(paths, filepath.Join(dir, name))
			}
		}
	}

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && path == "" {
				continue
			}
			return err
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		return nil
	}
	return os.ErrNotExist
}

// Validate checks that configuration values are valid and consistent.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url must be an absolute http(s) URL, got %q", c.BaseURL)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("rate_limit_rps must be non-negative")
	}
	if c.CircuitFailureThreshold <= 0 {
		return fmt.Errorf("circuit_failure_threshold must be positive")
	}
	if c.UploadChunkSize <= 0 {
		return fmt.Errorf("upload_chunk_size must be positive")
	}
	if c.UploadMaxAttempts <= 0 {
		return fmt.Errorf("upload_max_attempts must be positive")
	}
	if c.UploadInitialBackoff <= 0 {
		return fmt.Errorf("upload_initial_backoff must be positive")
	}
	if c.UploadMaxBackoff < c.UploadInitialBackoff {
		return fmt.Errorf("upload_max_backoff must be >= upload_initial_backoff")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.URLCacheSize <= 0 {
		return fmt.Errorf("url_cache_size must be positive")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json, got %q", c.LogFormat)
	}
	return nil
}
