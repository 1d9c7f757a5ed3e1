package config

import (
	"encoding/hex"
	"os"
	"sync"
	"testing"
)

// ---------------------------------------------------------------------------
// ApplyEnvOverrides
// ---------------------------------------------------------------------------

func Test_ApplyEnvOverrides_Cases(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		initial  Config
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "token env set on empty config",
			env:     map[string]string{"NOBREAK_MCP_AUTH_TOKEN": "my-token"},
			initial: Config{},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Server.AuthToken != "my-token" {
					t.Errorf("AuthToken = %q, want %q", cfg.Server.AuthToken, "my-token")
				}
			},
		},
		{
			name:    "empty env does not override existing token",
			env:     map[string]string{"NOBREAK_MCP_AUTH_TOKEN": ""},
			initial: Config{Server: ServerConfig{AuthToken: "existing"}},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Server.AuthToken != "existing" {
					t.Errorf("AuthToken = %q, want %q", cfg.Server.AuthToken, "existing")
				}
			},
		},
		{
			name:    "endpoint env overrides file value",
			env:     map[string]string{"NOBREAK_ENDPOINT": "http://10.0.0.9:5000"},
			initial: Config{Nobreak: NobreakConfig{Endpoint: "http://old"}},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Nobreak.Endpoint != "http://10.0.0.9:5000" {
					t.Errorf("Endpoint = %q", cfg.Nobreak.Endpoint)
				}
			},
		},
		{
			name:    "skip ssl env accepts ParseBool forms",
			env:     map[string]string{"NOBREAK_SKIP_SSL_VALIDATION": "1"},
			initial: Config{},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if !cfg.Nobreak.SkipSSLValidation {
					t.Error("SkipSSLValidation = false, want true")
				}
			},
		},
		{
			name:    "unparseable skip ssl env is ignored",
			env:     map[string]string{"NOBREAK_SKIP_SSL_VALIDATION": "maybe"},
			initial: Config{Nobreak: NobreakConfig{SkipSSLValidation: true}},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if !cfg.Nobreak.SkipSSLValidation {
					t.Error("SkipSSLValidation changed by an invalid value")
				}
			},
		},
		{
			name:    "redis addr env enables publisher",
			env:     map[string]string{"NOBREAK_REDIS_ADDR": "redis:6379"},
			initial: Config{},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if !cfg.Redis.Enabled || cfg.Redis.Addr != "redis:6379" {
					t.Errorf("Redis = %+v", cfg.Redis)
				}
			},
		},
		{
			name:    "other fields unchanged",
			env:     map[string]string{"NOBREAK_MCP_AUTH_TOKEN": "token"},
			initial: Config{Server: ServerConfig{Port: 9090}, Nobreak: NobreakConfig{TimeoutMS: 700}},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Server.Port != 9090 || cfg.Nobreak.TimeoutMS != 700 {
					t.Errorf("unrelated fields changed: %+v", cfg)
				}
			},
		},
	}

	vars := []string{"NOBREAK_MCP_AUTH_TOKEN", "NOBREAK_ENDPOINT", "NOBREAK_SKIP_SSL_VALIDATION", "NOBREAK_REDIS_ADDR"}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, v := range vars {
				// Register cleanup via t.Setenv, then remove the variable.
				t.Setenv(v, "")
				os.Unsetenv(v)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			ApplyEnvOverrides(&cfg)
			tt.validate(t, &cfg)
		})
	}
}

// ---------------------------------------------------------------------------
// Auth token
// ---------------------------------------------------------------------------

func Test_EnsureAuthToken_Cases(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		wantKeep bool
	}{
		{name: "configured token is kept", existing: "from-yaml", wantKeep: true},
		{name: "missing token is generated", existing: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Server.AuthToken = tt.existing

			got, err := EnsureAuthToken(cfg)
			if err != nil {
				t.Fatalf("EnsureAuthToken() error = %v", err)
			}
			if cfg.Server.AuthToken != got {
				t.Errorf("cfg token = %q, returned %q", cfg.Server.AuthToken, got)
			}
			if tt.wantKeep {
				if got != tt.existing {
					t.Errorf("token = %q, want %q", got, tt.existing)
				}
				return
			}
			if b, err := hex.DecodeString(got); err != nil || len(b) != 16 {
				t.Errorf("generated token %q is not 16 hex-encoded bytes", got)
			}
		})
	}
}

func Test_GenerateRandomToken_Unique(t *testing.T) {
	const n = 64

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool, n)
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			tok, err := GenerateRandomToken()
			if err != nil {
				t.Errorf("GenerateRandomToken() error = %v", err)
				return
			}
			mu.Lock()
			seen[tok] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("got %d distinct tokens from %d calls", len(seen), n)
	}
}
