// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

// Package logging provides centralized zerolog-based structured logging for Storeguard.
//
// The package provides:
//   - A process-wide zerolog logger configured once via Init
//   - JSON output for production and console output for development
//   - Request ID propagation through context.Context
//   - An slog adapter for Suture v4 event hooks
//   - Sanitizers that keep session tokens and identifiers out of log lines
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("addr", addr).Msg("Server starting")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Login rejected")
//
// The security audit trail is not written through this package; see
// internal/audit for the append-only JSON-lines log.
package logging
