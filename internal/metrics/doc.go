// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

/*
Package metrics provides Prometheus metrics collection and export for observability.

All collectors are registered with the default registry through promauto and
exposed by the API server at /metrics:

	curl http://localhost:8080/metrics

# Available Metrics

HTTP Metrics:
  - http_requests_total: Total HTTP requests (counter)
    Labels: method, endpoint, status
  - http_request_duration_seconds: Request latency (histogram)
    Labels: method, endpoint
  - http_requests_in_flight: Active requests (gauge)

Credential Store Metrics:
  - account_store_query_duration_seconds: Query time (histogram)
    Labels: operation
  - account_store_query_errors_total: Failed queries (counter)
    Labels: operation

Authentication Metrics:
  - auth_login_attempts_total: Login outcomes (counter)
    Labels: kind (customer, admin), result (success, invalid, locked, rate_limited, error)
  - auth_account_lockouts_total: Accounts newly locked (counter)
    Labels: kind
  - auth_rate_limit_decisions_total: Limiter decisions (counter)
    Labels: action, decision (admit, deny)

Session Metrics:
  - session_created_total: Sessions issued (counter)
    Labels: kind (guest, customer, admin)
  - session_validations_total: Validation outcomes (counter)
    Labels: kind, result (valid, not_found, expired, ip_mismatch, error)
  - session_swept_total: Expired records removed by the janitor (counter)
  - csrf_validations_total: CSRF checks (counter)
    Labels: result (valid, invalid)

Audit Metrics:
  - audit_events_total: Events recorded (counter)
    Labels: event
  - audit_write_errors_total: Failed appends (counter)

Circuit Breaker Metrics:
  - circuit_breaker_state: 0=closed, 1=half-open, 2=open (gauge)
  - circuit_breaker_requests_total: Labels: name, result
  - circuit_breaker_consecutive_failures: (gauge)
  - circuit_breaker_state_transitions_total: Labels: name, from_state, to_state

# Example Alerts

	groups:
	  - name: storeguard
	    rules:
	      - alert: CredentialStoreBreakerOpen
	        expr: circuit_breaker_state{name="account-store"} == 2
	        for: 1m
	      - alert: LockoutSpike
	        expr: rate(auth_account_lockouts_total[5m]) > 1
	        for: 5m
*/
package metrics
