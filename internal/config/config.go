// Package config provides configuration loading and defaults for the nobreak-mcp server.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultPollIntervalMS matches the update cadence of the device's own dashboard.
	DefaultPollIntervalMS = 2000
	// DefaultTimeoutMS bounds a single status fetch.
	DefaultTimeoutMS = 2000
	// DefaultRedisChannel is the pub/sub channel snapshots are published on.
	DefaultRedisChannel = "nobreak/status"
)

// NobreakConfig holds the device endpoint and polling settings.
type NobreakConfig struct {
	Endpoint          string `yaml:"endpoint"`
	SkipSSLValidation bool   `yaml:"skip_ssl_validation"`
	PollIntervalMS    int    `yaml:"poll_interval_ms"`
	TimeoutMS         int    `yaml:"timeout_ms"`
}

// PollInterval returns the poll cadence, falling back to the default when unset.
func (c NobreakConfig) PollInterval() time.Duration {
	if c.PollIntervalMS <= 0 {
		return DefaultPollIntervalMS * time.Millisecond
	}
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// Timeout returns the per-fetch bound, falling back to the default when unset.
func (c NobreakConfig) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return DefaultTimeoutMS * time.Millisecond
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// EntityFilter holds allowlist and denylist glob patterns matched against
// entity unique IDs (e.g. "nobreak_temperatureC").
type EntityFilter struct {
	Allowlist []string `yaml:"allowlist"`
	Denylist  []string `yaml:"denylist"`
}

// AuditConfig controls audit logging behaviour.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	LogPath string `yaml:"log_path"`
}

// ServerConfig holds network and authentication settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// RedisConfig controls the optional snapshot publisher.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// Config is the top-level configuration structure for the nobreak-mcp server.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Nobreak  NobreakConfig `yaml:"nobreak"`
	Entities EntityFilter  `yaml:"entities"`
	Audit    AuditConfig   `yaml:"audit"`
	Redis    RedisConfig   `yaml:"redis"`
}

// LoadConfig reads and parses a YAML configuration file from the given path.
// Fields absent from the file keep their DefaultConfig values.
// On error, nil is returned for the config pointer.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a new Config populated with sensible default values.
// The device endpoint has no default. Each call returns a distinct instance.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Nobreak: NobreakConfig{
			PollIntervalMS: DefaultPollIntervalMS,
			TimeoutMS:      DefaultTimeoutMS,
		},
		Audit: AuditConfig{
			Enabled: true,
			LogPath: "/config/audit.log",
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Channel: DefaultRedisChannel,
		},
	}
}

// ApplyEnvOverrides updates cfg in place with values from environment variables.
// Recognized variables:
//   - NOBREAK_MCP_AUTH_TOKEN overrides cfg.Server.AuthToken
//   - NOBREAK_ENDPOINT overrides cfg.Nobreak.Endpoint
//   - NOBREAK_SKIP_SSL_VALIDATION overrides cfg.Nobreak.SkipSSLValidation (any strconv.ParseBool form)
//   - NOBREAK_REDIS_ADDR overrides cfg.Redis.Addr and enables the publisher
func ApplyEnvOverrides(cfg *Config) {
	if token := os.Getenv("NOBREAK_MCP_AUTH_TOKEN"); token != "" {
		cfg.Server.AuthToken = token
	}
	if endpoint := os.Getenv("NOBREAK_ENDPOINT"); endpoint != "" {
		cfg.Nobreak.Endpoint = endpoint
	}
	if raw := os.Getenv("NOBREAK_SKIP_SSL_VALIDATION"); raw != "" {
		if skip, err := strconv.ParseBool(raw); err == nil {
			cfg.Nobreak.SkipSSLValidation = skip
		}
	}
	if addr := os.Getenv("NOBREAK_REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
}

// Validate reports the first problem that would prevent the integration from
// being set up. Only the endpoint is mandatory.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Nobreak.Endpoint == "" {
		return errors.New("nobreak.endpoint is required")
	}
	u, err := url.Parse(cfg.Nobreak.Endpoint)
	if err != nil {
		return fmt.Errorf("nobreak.endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("nobreak.endpoint: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("nobreak.endpoint: host is required")
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		return errors.New("redis.addr is required when redis is enabled")
	}
	return nil
}

// EnsureAuthToken generates a random auth token and sets it on cfg if
// cfg.Server.AuthToken is empty. It returns the token (existing or generated)
// and any error encountered during generation.
func EnsureAuthToken(cfg *Config) (string, error) {
	if cfg.Server.AuthToken != "" {
		return cfg.Server.AuthToken, nil
	}
	token, err := GenerateRandomToken()
	if err != nil {
		return "", fmt.Errorf("generate auth token: %w", err)
	}
	cfg.Server.AuthToken = token
	return token, nil
}

// GenerateRandomToken returns a 32-character hex-encoded cryptographically
// random token string.
func GenerateRandomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand.Read: %w", err)
	}
	return hex.EncodeToString(b), nil
}
