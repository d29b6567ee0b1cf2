// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/storeguard/config.yaml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// Security defaults follow the storefront's historical settings:
// two-hour sessions, one-hour CSRF tokens, five login attempts per
// fifteen minutes and a thirty-minute lock after five failures.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			Host:              "0.0.0.0",
			Timeout:           30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			Environment:       "development",
			CORSOrigins:       []string{},
			RequestsPerMinute: 300,
		},
		Security: SecurityConfig{
			SessionLifetime:  7200 * time.Second,
			SessionStore:     "memory",
			SessionStorePath: "data/sessions",
			CookieSecure:     false,
			CSRFTokenTTL:     3600 * time.Second,
			CSRFRotateOnUse:  false,
			LoginRateLimit:   5,
			LoginRateWindow:  900 * time.Second,
			RateLimitStore:   "memory",
			MaxLoginAttempts: 5,
			LockoutDuration:  30 * time.Minute,
			SweepInterval:    5 * time.Minute,
			StorageTimeout:   3 * time.Second,
			TrustedProxies:   []string{},
			Argon2: Argon2Config{
				MemoryKiB:   65536,
				Iterations:  4,
				Parallelism: 3,
			},
		},
		Audit: AuditConfig{
			Path:      "logs/security.log",
			MaxSize:   10 * 1024 * 1024,
			Retention: 5,
			QueueSize: 256,
		},
		Database: DatabaseConfig{
			Driver:             "sqlite",
			DSN:                "file:data/storeguard.db?_pragma=busy_timeout(5000)",
			MaxOpenConns:       10,
			MigrateOnStart:     true,
			BreakerMaxFailures: 5,
			BreakerOpenTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from defaults, an optional YAML file and
// environment variables, in that order of precedence (ENV > File > Defaults).
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file found, or "" when none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when set from env.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"security.trusted_proxies",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	// Server
	"http_port":           "server.port",
	"http_host":           "server.host",
	"http_timeout":        "server.timeout",
	"shutdown_timeout":    "server.shutdown_timeout",
	"environment":         "server.environment",
	"cors_origins":        "server.cors_origins",
	"requests_per_minute": "server.requests_per_minute",

	// Sessions and CSRF
	"session_lifetime":   "security.session_lifetime",
	"session_store":      "security.session_store",
	"session_store_path": "security.session_store_path",
	"cookie_secure":      "security.cookie_secure",
	"cookie_domain":      "security.cookie_domain",
	"csrf_token_expiry":  "security.csrf_token_ttl",
	"csrf_rotate_on_use": "security.csrf_rotate_on_use",

	// Throttling and lockout
	"login_rate_limit":   "security.login_rate_limit",
	"login_rate_window":  "security.login_rate_window",
	"rate_limit_store":   "security.rate_limit_store",
	"max_login_attempts": "security.max_login_attempts",
	"login_lockout_time": "security.lockout_duration",
	"sweep_interval":     "security.sweep_interval",
	"storage_timeout":    "security.storage_timeout",
	"trusted_proxies":    "security.trusted_proxies",
	"authz_policy_path":  "security.policy_path",

	// Password hashing
	"argon2_memory_kib":  "security.argon2.memory_kib",
	"argon2_iterations":  "security.argon2.iterations",
	"argon2_parallelism": "security.argon2.parallelism",

	// Audit log
	"security_log_path":      "audit.path",
	"security_log_max_size":  "audit.max_size",
	"security_log_retention": "audit.retention",
	"security_log_queue":     "audit.queue_size",

	// Credential store
	"db_driver":               "database.driver",
	"db_dsn":                  "database.dsn",
	"db_max_open_conns":       "database.max_open_conns",
	"db_migrate_on_start":     "database.migrate_on_start",
	"db_breaker_max_failures": "database.breaker_max_failures",
	"db_breaker_open_timeout": "database.breaker_open_timeout",

	// Redis
	"redis_addr":     "redis.addr",
	"redis_password": "redis.password",
	"redis_db":       "redis.db",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - SESSION_LIFETIME -> security.session_lifetime
//   - CSRF_TOKEN_EXPIRY -> security.csrf_token_ttl
//   - DB_DSN -> database.dsn
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
