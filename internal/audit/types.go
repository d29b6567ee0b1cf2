// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

// Package audit provides the append-only security audit trail.
//
// Every event is one JSON object per line:
//
//	{"timestamp":"2026-03-01T10:15:00Z","event":"admin_login_failed","ip":"203.0.113.7","user_agent":"...","data":{...}}
//
// The live file is rotated into timestamp-suffixed archives once it grows
// past a size threshold, and only the newest archives are retained.
// Individual records are never rewritten or removed.
//
// # Delivery
//
// Critical events (lockouts, CSRF failures, session hijack signals,
// storage outages, throttling) are written before Record returns.
// Informational events go through a FIFO queue drained by a single
// worker, so the on-disk order always matches call order.
package audit

import "time"

// EventKind names an audit event.
type EventKind string

const (
	// Authentication
	EventCustomerLoginSuccess EventKind = "customer_login_success"
	EventCustomerLoginFailed  EventKind = "customer_login_failed"
	EventAdminLoginSuccess    EventKind = "admin_login_success"
	EventAdminLoginFailed     EventKind = "admin_login_failed"
	EventLoginRateLimited     EventKind = "login_rate_limited"
	EventAccountLocked        EventKind = "account_locked"
	EventAccountUnlocked      EventKind = "account_unlocked"
	EventLogout               EventKind = "logout"
	EventAuthAttempt          EventKind = "auth_attempt"

	// Sessions
	EventSessionExpired    EventKind = "session_expired"
	EventSessionIPMismatch EventKind = "session_ip_mismatch"
	EventSessionNotFound   EventKind = "session_not_found"

	// Request integrity and authorization
	EventCSRFFailed   EventKind = "csrf_validation_failed"
	EventAccessDenied EventKind = "access_denied"

	// Infrastructure
	EventStorageUnavailable EventKind = "storage_unavailable"

	// Administrative and free-form
	EventAdminAction        EventKind = "admin_action"
	EventSuspiciousActivity EventKind = "suspicious_activity"
)

// criticalKinds are written synchronously.
var criticalKinds = map[EventKind]bool{
	EventLoginRateLimited:   true,
	EventAccountLocked:      true,
	EventSessionIPMismatch:  true,
	EventCSRFFailed:         true,
	EventAccessDenied:       true,
	EventStorageUnavailable: true,
	EventSuspiciousActivity: true,
}

// IsCritical reports whether events of this kind bypass the async queue.
func (k EventKind) IsCritical() bool {
	return criticalKinds[k]
}

// Event is one audit record. Fields are immutable once written.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	Event     EventKind              `json:"event"`
	IP        string                 `json:"ip"`
	UserAgent string                 `json:"user_agent"`
	Data      map[string]interface{} `json:"data"`
}

// Meta carries the request attributes attached to every event.
type Meta struct {
	IP        string
	UserAgent string
}

const unknown = "unknown"

func (m Meta) ip() string {
	if m.IP == "" {
		return unknown
	}
	return m.IP
}

func (m Meta) userAgent() string {
	if m.UserAgent == "" {
		return unknown
	}
	// User agents are attacker controlled; cap what lands on disk.
	if len(m.UserAgent) > maxUserAgent {
		return m.UserAgent[:maxUserAgent]
	}
	return m.UserAgent
}

const maxUserAgent = 512
