// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/tomtom215/storeguard/internal/audit"
	"github.com/tomtom215/storeguard/internal/auth"
	"github.com/tomtom215/storeguard/internal/authz"
	"github.com/tomtom215/storeguard/internal/csrf"
	"github.com/tomtom215/storeguard/internal/logging"
	"github.com/tomtom215/storeguard/internal/session"
)

// EventReader returns recent audit events, newest first. *audit.Logger
// implements it.
type EventReader interface {
	Recent(ctx context.Context, n int) ([]audit.Event, error)
}

// HealthCheck probes one backend.
type HealthCheck func(ctx context.Context) error

// Dependencies are the collaborators of a Handler. Checks may be empty.
type Dependencies struct {
	Auth     *auth.Service
	Sessions *session.Manager
	CSRF     *csrf.Manager
	Cookies  *session.Cookies
	Authz    *authz.Authorizer
	Audit    audit.Trail
	Events   EventReader
	Checks   map[string]HealthCheck
}

// Handler serves the HTTP routes.
type Handler struct {
	auth      *auth.Service
	sessions  *session.Manager
	csrf      *csrf.Manager
	cookies   *session.Cookies
	authz     *authz.Authorizer
	audit     audit.Trail
	events    EventReader
	checks    map[string]HealthCheck
	startTime time.Time
}

// NewHandler creates a Handler.
func NewHandler(deps Dependencies) (*Handler, error) {
	switch {
	case deps.Auth == nil:
		return nil, errors.New("api: auth service is required")
	case deps.Sessions == nil:
		return nil, errors.New("api: session manager is required")
	case deps.CSRF == nil:
		return nil, errors.New("api: csrf manager is required")
	case deps.Cookies == nil:
		return nil, errors.New("api: cookie codec is required")
	case deps.Authz == nil:
		return nil, errors.New("api: authorizer is required")
	case deps.Audit == nil:
		return nil, errors.New("api: audit recorder is required")
	case deps.Events == nil:
		return nil, errors.New("api: event reader is required")
	}

	return &Handler{
		auth:      deps.Auth,
		sessions:  deps.Sessions,
		csrf:      deps.CSRF,
		cookies:   deps.Cookies,
		authz:     deps.Authz,
		audit:     deps.Audit,
		events:    deps.Events,
		checks:    deps.Checks,
		startTime: time.Now(),
	}, nil
}

// CSRFGuard returns the anti-forgery middleware bound to the guest
// transport session.
func (h *Handler) CSRFGuard() *csrf.Guard {
	return csrf.NewGuard(h.csrf, h.transportRecord, h.audit).
		OnReject(func(w http.ResponseWriter, r *http.Request) {
			NewResponseWriter(w, r).CSRFInvalid()
		})
}

// transportRecord resolves the guest record presented by r.
func (h *Handler) transportRecord(r *http.Request) (*session.Record, error) {
	return h.transport(r.Context(), h.cookies.Read(r), clientIP(r))
}

// transport validates the guest slot of client. A missing or stale record
// yields nil and clears the slot; only storage failures are errors.
func (h *Handler) transport(ctx context.Context, client *session.Client, ip string) (*session.Record, error) {
	rec, err := h.sessions.Validate(ctx, client.Transport, session.KindGuest, ip)
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, session.ErrUnavailable):
		return nil, err
	default:
		client.Transport = ""
		return nil, nil
	}
}

type principalKey struct{}

func contextWithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the admin principal set by RequireAdmin.
func PrincipalFromContext(ctx context.Context) *auth.Principal {
	p, _ := ctx.Value(principalKey{}).(*auth.Principal)
	return p
}

// clientIP returns the address resolved by middleware.ClientIP, falling
// back to the TCP peer.
func clientIP(r *http.Request) string {
	if ip := logging.ClientIPFromContext(r.Context()); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func requestMeta(r *http.Request) audit.Meta {
	return audit.Meta{IP: clientIP(r), UserAgent: r.UserAgent()}
}
