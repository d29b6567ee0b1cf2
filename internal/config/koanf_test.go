// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig verifies that defaultConfig() returns the historical security defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Security.SessionLifetime != 2*time.Hour {
		t.Errorf("SessionLifetime = %v, want 2h", cfg.Security.SessionLifetime)
	}
	if cfg.Security.CSRFTokenTTL != time.Hour {
		t.Errorf("CSRFTokenTTL = %v, want 1h", cfg.Security.CSRFTokenTTL)
	}
	if cfg.Security.LoginRateLimit != 5 || cfg.Security.LoginRateWindow != 15*time.Minute {
		t.Errorf("login rate = %d/%v, want 5/15m", cfg.Security.LoginRateLimit, cfg.Security.LoginRateWindow)
	}
	if cfg.Security.MaxLoginAttempts != 5 || cfg.Security.LockoutDuration != 30*time.Minute {
		t.Errorf("lockout = %d/%v, want 5/30m", cfg.Security.MaxLoginAttempts, cfg.Security.LockoutDuration)
	}
	if cfg.Security.Argon2.MemoryKiB != 65536 || cfg.Security.Argon2.Iterations != 4 || cfg.Security.Argon2.Parallelism != 3 {
		t.Errorf("argon2 = %+v, want 65536/4/3", cfg.Security.Argon2)
	}
	if cfg.Audit.MaxSize != 10*1024*1024 || cfg.Audit.Retention != 5 {
		t.Errorf("audit = %d/%d, want 10MB/5", cfg.Audit.MaxSize, cfg.Audit.Retention)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SESSION_LIFETIME", "45m")
	t.Setenv("CSRF_TOKEN_EXPIRY", "10m")
	t.Setenv("LOGIN_RATE_LIMIT", "3")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.0.0/16")
	t.Setenv("ARGON2_PARALLELISM", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Security.SessionLifetime != 45*time.Minute {
		t.Errorf("SessionLifetime = %v, want 45m", cfg.Security.SessionLifetime)
	}
	if cfg.Security.CSRFTokenTTL != 10*time.Minute {
		t.Errorf("CSRFTokenTTL = %v, want 10m", cfg.Security.CSRFTokenTTL)
	}
	if cfg.Security.LoginRateLimit != 3 {
		t.Errorf("LoginRateLimit = %d, want 3", cfg.Security.LoginRateLimit)
	}
	if len(cfg.Security.TrustedProxies) != 2 || cfg.Security.TrustedProxies[1] != "192.168.0.0/16" {
		t.Errorf("TrustedProxies = %v", cfg.Security.TrustedProxies)
	}
	if cfg.Security.Argon2.Parallelism != 2 {
		t.Errorf("Argon2.Parallelism = %d, want 2", cfg.Security.Argon2.Parallelism)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
security:
  session_lifetime: 1h
  session_store: badger
  session_store_path: /tmp/sessions
audit:
  retention: 9
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("SECURITY_LOG_RETENTION", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Security.SessionLifetime != time.Hour {
		t.Errorf("SessionLifetime = %v, want 1h", cfg.Security.SessionLifetime)
	}
	if cfg.Security.SessionStore != "badger" {
		t.Errorf("SessionStore = %q, want badger", cfg.Security.SessionStore)
	}
	if cfg.Audit.Retention != 7 {
		t.Errorf("env should override file: Retention = %d, want 7", cfg.Audit.Retention)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad session store", func(c *Config) { c.Security.SessionStore = "files" }, "SessionStore"},
		{"badger without path", func(c *Config) {
			c.Security.SessionStore = "badger"
			c.Security.SessionStorePath = ""
		}, "SESSION_STORE_PATH"},
		{"redis without addr", func(c *Config) {
			c.Security.RateLimitStore = "redis"
			c.Redis.Addr = ""
		}, "REDIS_ADDR"},
		{"production insecure cookie", func(c *Config) {
			c.Server.Environment = "production"
		}, "COOKIE_SECURE"},
		{"production wildcard cors", func(c *Config) {
			c.Server.Environment = "production"
			c.Security.CookieSecure = true
			c.Server.CORSOrigins = []string{"*"}
		}, "CORS_ORIGINS"},
		{"sub-second lock", func(c *Config) { c.Security.LockoutDuration = 900 }, "LOGIN_LOCKOUT_TIME"},
		{"bad proxy cidr", func(c *Config) { c.Security.TrustedProxies = []string{"not-a-cidr"} }, "TrustedProxies"},
		{"zero rate limit", func(c *Config) { c.Security.LoginRateLimit = 0 }, "LoginRateLimit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	if got := envTransformFunc("SESSION_LIFETIME"); got != "security.session_lifetime" {
		t.Errorf("SESSION_LIFETIME -> %q", got)
	}
	if got := envTransformFunc("HOME"); got != "" {
		t.Errorf("unmapped HOME -> %q, want empty", got)
	}
}
