// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

/*
Package middleware provides HTTP middleware shared by the API router.

Key Components:

  - RequestID: UUID-based request tracking, mirrored into the logging context
  - ClientIP: resolves the client address, honouring forwarding headers only
    from trusted proxy networks
  - SecurityHeaders: nosniff, frame denial, no-store and HSTS over TLS
  - PrometheusMetrics: request count, latency and in-flight instrumentation
    labelled by chi route pattern

Middleware Stack:

The router installs these in this order:

	r.Use(middleware.RequestID)
	r.Use(middleware.ClientIP(proxies))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.PrometheusMetrics)

ClientIP must run before anything that binds or audits by address. Session
validation compares against the value it stores with
logging.ContextWithClientIP, so a spoofed X-Forwarded-For from an untrusted
peer can never move a session to a different address.
*/
package middleware
