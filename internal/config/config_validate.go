// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package config

import (
	"fmt"

	"github.com/tomtom215/storeguard/internal/validation"
)

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	validators := []func() error{
		c.validateSessionStore,
		c.validateRateLimitStore,
		c.validateProduction,
		c.validateLockout,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateSessionStore() error {
	if c.Security.SessionStore == "badger" && c.Security.SessionStorePath == "" {
		return fmt.Errorf("SESSION_STORE_PATH is required when SESSION_STORE=badger")
	}
	return nil
}

func (c *Config) validateRateLimitStore() error {
	if c.Security.RateLimitStore == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required when RATE_LIMIT_STORE=redis")
	}
	return nil
}

// validateProduction rejects settings that are only acceptable in development.
func (c *Config) validateProduction() error {
	if !c.Server.IsProduction() {
		return nil
	}
	if !c.Security.CookieSecure {
		return fmt.Errorf("COOKIE_SECURE must be true when ENVIRONMENT=production")
	}
	for _, origin := range c.Server.CORSOrigins {
		if origin == "*" {
			return fmt.Errorf("CORS_ORIGINS must not contain * when ENVIRONMENT=production")
		}
	}
	return nil
}

func (c *Config) validateLockout() error {
	// Sub-second locks are always a unit mistake (LOGIN_LOCKOUT_TIME=900 instead of 900s).
	if c.Security.LockoutDuration.Seconds() < 1 {
		return fmt.Errorf("LOGIN_LOCKOUT_TIME must be at least 1s, got %s", c.Security.LockoutDuration)
	}
	return nil
}
