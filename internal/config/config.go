// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

// Package config loads Storeguard configuration.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in values from defaultConfig()
//  2. Config File: optional YAML file (CONFIG_PATH, then config.yaml)
//  3. Environment Variables: explicit mapping table in envTransformFunc
//
// Durations are Go duration strings in both YAML and environment variables
// (SESSION_LIFETIME=2h, LOGIN_RATE_WINDOW=15m).
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Audit    AuditConfig    `koanf:"audit"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	Environment     string        `koanf:"environment" validate:"oneof=development staging production"`

	// CORSOrigins lists origins allowed to call the API from a browser.
	CORSOrigins []string `koanf:"cors_origins"`

	// RequestsPerMinute caps total requests per client IP at the edge.
	// 0 disables the cap. Login throttling is separate (Security.LoginRateLimit).
	RequestsPerMinute int `koanf:"requests_per_minute" validate:"gte=0"`
}

// IsProduction reports whether the server runs in production mode.
func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

// SecurityConfig holds session, CSRF, throttling and lockout settings.
type SecurityConfig struct {
	// SessionLifetime is the fixed lifetime of an authenticated session,
	// measured from issue time.
	SessionLifetime time.Duration `koanf:"session_lifetime" validate:"gt=0"`

	// SessionStore selects the session backend: memory or badger.
	SessionStore     string `koanf:"session_store" validate:"oneof=memory badger"`
	SessionStorePath string `koanf:"session_store_path"`

	CookieSecure bool   `koanf:"cookie_secure"`
	CookieDomain string `koanf:"cookie_domain"`

	CSRFTokenTTL    time.Duration `koanf:"csrf_token_ttl" validate:"gt=0"`
	CSRFRotateOnUse bool          `koanf:"csrf_rotate_on_use"`

	LoginRateLimit  int           `koanf:"login_rate_limit" validate:"min=1"`
	LoginRateWindow time.Duration `koanf:"login_rate_window" validate:"gt=0"`

	// RateLimitStore selects the attempt-window backend: memory or redis.
	RateLimitStore string `koanf:"rate_limit_store" validate:"oneof=memory redis"`

	MaxLoginAttempts int           `koanf:"max_login_attempts" validate:"min=1"`
	LockoutDuration  time.Duration `koanf:"lockout_duration" validate:"gt=0"`

	// SweepInterval is how often expired sessions and stale rate-limit
	// windows are purged.
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"gt=0"`

	// StorageTimeout bounds every credential and session store call.
	StorageTimeout time.Duration `koanf:"storage_timeout" validate:"gt=0"`

	// TrustedProxies lists CIDRs whose X-Forwarded-For / X-Real-IP headers
	// are honored when resolving the client IP.
	TrustedProxies []string `koanf:"trusted_proxies" validate:"dive,cidr"`

	Argon2 Argon2Config `koanf:"argon2"`

	// PolicyPath optionally overrides the embedded admin route policy.
	PolicyPath string `koanf:"policy_path"`
}

// Argon2Config holds Argon2id cost parameters.
type Argon2Config struct {
	MemoryKiB   uint32 `koanf:"memory_kib" validate:"min=8192"`
	Iterations  uint32 `koanf:"iterations" validate:"min=1"`
	Parallelism uint8  `koanf:"parallelism" validate:"min=1"`
}

// AuditConfig holds security audit log settings.
type AuditConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxSize   int64  `koanf:"max_size" validate:"min=1024"`
	Retention int    `koanf:"retention" validate:"min=1"`
	QueueSize int    `koanf:"queue_size" validate:"min=1"`
}

// DatabaseConfig holds credential store settings.
type DatabaseConfig struct {
	// Driver is pgx (PostgreSQL) or sqlite.
	Driver         string `koanf:"driver" validate:"oneof=pgx sqlite"`
	DSN            string `koanf:"dsn" validate:"required"`
	MaxOpenConns   int    `koanf:"max_open_conns" validate:"min=1"`
	MigrateOnStart bool   `koanf:"migrate_on_start"`

	BreakerMaxFailures uint32        `koanf:"breaker_max_failures" validate:"min=1"`
	BreakerOpenTimeout time.Duration `koanf:"breaker_open_timeout" validate:"gt=0"`
}

// RedisConfig holds Redis connection settings for the rate limiter.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"gte=0"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}
