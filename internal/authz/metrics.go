// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package authz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthzDecisionsTotal counts route authorization decisions.
	AuthzDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Total number of admin route authorization decisions",
		},
		[]string{"role", "method", "decision"},
	)

	// AuthzDeniedTotal tracks denied requests for alerting.
	AuthzDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_denied_total",
			Help: "Total number of denied admin route requests",
		},
		[]string{"role"},
	)
)

// RecordDecision records one authorization decision.
func RecordDecision(role, method string, allowed bool) {
	decision := "allow"
	if !allowed {
		decision = "deny"
		AuthzDeniedTotal.WithLabelValues(role).Inc()
	}
	AuthzDecisionsTotal.WithLabelValues(role, method, decision).Inc()
}
