// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/storeguard/internal/middleware"
)

// RouterConfig configures the edge of the HTTP stack.
type RouterConfig struct {
	CORSOrigins       []string
	RequestsPerMinute int
	TrustedProxies    middleware.ProxySet
}

// Router sets up HTTP routes using Chi router.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	proxies       middleware.ProxySet
}

// NewRouter creates a Router for handler.
func NewRouter(handler *Handler, cfg RouterConfig) *Router {
	mwConfig := DefaultChiMiddlewareConfig()
	mwConfig.CORSAllowedOrigins = cfg.CORSOrigins
	mwConfig.RateLimitRequests = cfg.RequestsPerMinute
	if cfg.RequestsPerMinute == 0 {
		mwConfig.RateLimitDisabled = true
	}

	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddleware(mwConfig),
		proxies:       cfg.TrustedProxies,
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	h := router.handler
	guard := h.CSRFGuard()
	rateLimit := router.chiMiddleware.RateLimit()

	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(middleware.RequestID)
	r.Use(middleware.ClientIP(router.proxies))
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // CORS must be global to handle OPTIONS preflight
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).NotFound("not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		NewResponseWriter(w, r).Error(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	// ========================
	// Probes
	// ========================
	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Get("/healthz", h.HealthLive)
		r.Get("/readyz", h.HealthReady)
		r.Handle("/metrics", promhttp.Handler())
	})

	// ========================
	// Storefront
	// ========================
	r.Group(func(r chi.Router) {
		r.Use(rateLimit)
		r.Use(chimiddleware.RequestSize(maxBodyBytes))
		r.Use(middleware.SecurityHeaders)
		r.Use(guard.Protect)

		r.Get("/csrf", h.CSRFToken)
		r.Post("/login", h.CustomerLogin)
		r.Post("/logout", h.CustomerLogout)
		r.Get("/me", h.CustomerMe)
	})

	// ========================
	// Back office
	// ========================
	r.Route("/admin", func(r chi.Router) {
		r.Use(rateLimit)
		r.Use(chimiddleware.RequestSize(maxBodyBytes))
		r.Use(middleware.SecurityHeaders)
		r.Use(guard.Protect)

		r.Post("/login", h.AdminLogin)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAdmin)
			r.Post("/logout", h.AdminLogout)
			r.Get("/me", h.AdminMe)
			r.Get("/accounts/locked", h.LockedAccounts)
			r.Post("/accounts/{id}/unlock", h.UnlockAccount)
			r.Get("/security/events", h.SecurityEvents)
		})
	})

	return r
}
