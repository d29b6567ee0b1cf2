// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/storeguard/internal/audit"
	"github.com/tomtom215/storeguard/internal/auth"
	"github.com/tomtom215/storeguard/internal/authz"
	"github.com/tomtom215/storeguard/internal/logging"
	"github.com/tomtom215/storeguard/internal/validation"
)

// RequireAdmin authorizes back-office routes. The minimum role comes from
// the route policy; routes without a rule are denied.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := NewResponseWriter(w, r)
		ctx := r.Context()

		minRole, err := h.authz.MinimumRole(r.URL.Path, r.Method)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("path", r.URL.Path).Msg("Route authorization failed")
			rw.InternalError("authorization failed")
			return
		}
		if minRole == auth.RoleNone {
			logging.Ctx(ctx).Warn().Str("path", r.URL.Path).Str("method", r.Method).Msg("No policy rule for admin route")
			authz.RecordDecision(auth.RoleNone.String(), r.Method, false)
			rw.Forbidden(msgForbidden)
			return
		}

		client := h.cookies.Read(r)
		p, err := h.auth.RequireRole(ctx, client, clientIP(r), minRole)
		if err != nil {
			if p != nil {
				// Records the denied decision for the resolved role.
				_, _ = h.authz.Allowed(p, r.URL.Path, r.Method)
			}
			h.cookies.Write(w, r, client)
			writeAuthError(rw, err)
			return
		}

		allowed, err := h.authz.Allowed(p, r.URL.Path, r.Method)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("path", r.URL.Path).Msg("Route authorization failed")
			rw.InternalError("authorization failed")
			return
		}
		if !allowed {
			rw.Forbidden(msgForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithPrincipal(ctx, p)))
	})
}

// EventsResponse is the body of GET /admin/security/events.
type EventsResponse struct {
	Events []audit.Event `json:"events"`
	Count  int           `json:"count"`
}

// SecurityEvents handles GET /admin/security/events?limit=n.
func (h *Handler) SecurityEvents(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	req := EventsRequest{Limit: defaultEventsLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			rw.BadRequest("limit must be an integer")
			return
		}
		req.Limit = n
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		rw.ValidationError("invalid query", verr.Fields)
		return
	}

	events, err := h.events.Recent(r.Context(), req.Limit)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to read audit log")
		rw.ServiceUnavailable(msgUnavailable)
		return
	}
	rw.Success(EventsResponse{Events: events, Count: len(events)})
}

// LockedAccount is one entry of GET /admin/accounts/locked.
type LockedAccount struct {
	ID             int64     `json:"id"`
	Kind           string    `json:"kind"`
	Identifier     string    `json:"identifier"`
	FailedAttempts int       `json:"failed_attempts"`
	LockedUntil    time.Time `json:"locked_until"`
}

// LockedAccounts handles GET /admin/accounts/locked.
func (h *Handler) LockedAccounts(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	accounts, err := h.auth.LockedAccounts(r.Context())
	if err != nil {
		writeAuthError(rw, err)
		return
	}

	out := make([]LockedAccount, 0, len(accounts))
	for _, a := range accounts {
		entry := LockedAccount{
			ID:             a.ID,
			Kind:           string(a.Kind),
			Identifier:     a.Identifier,
			FailedAttempts: a.FailedAttempts,
		}
		if a.LockedUntil != nil {
			entry.LockedUntil = a.LockedUntil.UTC()
		}
		out = append(out, entry)
	}
	rw.Success(out)
}

// UnlockAccount handles POST /admin/accounts/{id}/unlock.
func (h *Handler) UnlockAccount(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		rw.BadRequest("invalid account id")
		return
	}

	actor := PrincipalFromContext(r.Context())
	if actor == nil {
		rw.NotAuthenticated()
		return
	}

	if err := h.auth.UnlockAccount(r.Context(), actor, id, requestMeta(r)); err != nil {
		writeAuthError(rw, err)
		return
	}
	rw.Success(map[string]interface{}{"account_id": id, "unlocked": true})
}
