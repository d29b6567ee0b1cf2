// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

/*
Package main is the entry point for the Storeguard server.

Storeguard is the authentication and session-security core of the
storefront and its admin backend. It verifies credentials, issues and
validates server-side sessions, throttles and locks out password guessing,
guards state-changing requests with CSRF tokens and keeps a security audit
trail.

# Application Architecture

	RootSupervisor ("storeguard")
	├── MaintenanceSupervisor ("maintenance-layer")
	│   ├── session-sweeper
	│   ├── ratelimit-sweeper (RATE_LIMIT_STORE=memory)
	│   └── session-gc (SESSION_STORE=badger)
	└── APISupervisor ("api-layer")
	    └── http-server

Initialization order:

 1. Configuration: Koanf v2 (defaults, config.yaml, environment)
 2. Logging: zerolog, JSON or console
 3. Credential store: sqlx over pgx or SQLite, migrations, circuit breaker
 4. Session store: memory or BadgerDB
 5. Rate-limit store: memory or Redis
 6. Audit log: JSON lines with size rotation
 7. Auth service, CSRF tokens, casbin route policy
 8. Chi router and supervisor tree

# Configuration

Common environment variables:

	DB_DRIVER=pgx DB_DSN=postgres://...     credential store
	SESSION_STORE=badger                    durable sessions
	RATE_LIMIT_STORE=redis REDIS_ADDR=...   shared login throttling
	TRUSTED_PROXIES=10.0.0.0/8              honor X-Forwarded-For from these peers
	COOKIE_SECURE=true                      required when ENVIRONMENT=production

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP server drains within
SHUTDOWN_TIMEOUT, the audit queue is flushed and stores are closed.
*/
package main
