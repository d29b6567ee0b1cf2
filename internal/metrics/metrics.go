// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		},
	)

	// Credential Store Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "account_store_query_duration_seconds",
			Help:    "Duration of credential store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_store_query_errors_total",
			Help: "Total number of failed credential store queries",
		},
		[]string{"operation"},
	)

	// Authentication Metrics
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Total number of login attempts by outcome",
		},
		[]string{"kind", "result"}, // result: success, invalid, locked, rate_limited, error
	)

	AccountLockouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_account_lockouts_total",
			Help: "Total number of accounts newly locked after repeated failures",
		},
		[]string{"kind"},
	)

	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_rate_limit_decisions_total",
			Help: "Total number of rate limiter decisions",
		},
		[]string{"action", "decision"}, // decision: admit, deny
	)

	// Session Metrics
	SessionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_created_total",
			Help: "Total number of sessions issued",
		},
		[]string{"kind"},
	)

	SessionValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_validations_total",
			Help: "Total number of session validations by outcome",
		},
		[]string{"kind", "result"},
	)

	SessionsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_swept_total",
			Help: "Total number of expired session records removed by the janitor",
		},
	)

	CSRFValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "csrf_validations_total",
			Help: "Total number of CSRF token checks",
		},
		[]string{"result"},
	)

	// Audit Metrics
	AuditEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_total",
			Help: "Total number of security audit events recorded",
		},
		[]string{"event"},
	)

	AuditWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_write_errors_total",
			Help: "Total number of audit events that failed to persist",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Application Info
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version information",
		},
		[]string{"version", "go_version"},
	)
)

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordDBQuery records a credential store query metric
func RecordDBQuery(operation string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation).Inc()
	}
}

// RecordLoginAttempt records the outcome of one login attempt
func RecordLoginAttempt(kind, result string) {
	LoginAttempts.WithLabelValues(kind, result).Inc()
}

// RecordLockout records an account crossing the failure threshold
func RecordLockout(kind string) {
	AccountLockouts.WithLabelValues(kind).Inc()
}

// RecordRateLimitDecision records whether the limiter admitted an attempt
func RecordRateLimitDecision(action string, admitted bool) {
	decision := "deny"
	if admitted {
		decision = "admit"
	}
	RateLimitDecisions.WithLabelValues(action, decision).Inc()
}

// RecordSessionValidation records a session validation outcome
func RecordSessionValidation(kind, result string) {
	SessionValidations.WithLabelValues(kind, result).Inc()
}

// RecordCSRFValidation records a CSRF check
func RecordCSRFValidation(valid bool) {
	if valid {
		CSRFValidations.WithLabelValues("valid").Inc()
		return
	}
	CSRFValidations.WithLabelValues("invalid").Inc()
}

// RecordAuditEvent records one audit event and whether it was persisted
func RecordAuditEvent(event string, err error) {
	AuditEvents.WithLabelValues(event).Inc()
	if err != nil {
		AuditWriteErrors.Inc()
	}
}
