// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package api

import (
	"context"
	"net/http"

	"github.com/tomtom215/storeguard/internal/auth"
	"github.com/tomtom215/storeguard/internal/logging"
	"github.com/tomtom215/storeguard/internal/session"
	"github.com/tomtom215/storeguard/internal/validation"
)

// CSRFTokenResponse is the body of GET /csrf.
type CSRFTokenResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// LoginResponse is the body of a successful login. The transport session
// is replaced on login, so a new CSRF token comes back with it.
type LoginResponse struct {
	Principal *auth.Principal `json:"principal"`
	CSRFToken string          `json:"csrf_token"`
}

// CSRFToken handles GET /csrf. It starts a guest session when the client
// has none and returns the token bound to it.
func (h *Handler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	ctx := r.Context()
	client := h.cookies.Read(r)

	token, err := h.currentToken(ctx, client, clientIP(r), r.UserAgent())
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to issue CSRF token")
		rw.ServiceUnavailable(msgUnavailable)
		return
	}

	h.cookies.Write(w, r, client)
	rw.Success(CSRFTokenResponse{CSRFToken: token})
}

// currentToken returns the token of the client's transport session,
// beginning a new session when the presented one is missing or stale.
func (h *Handler) currentToken(ctx context.Context, client *session.Client, ip, userAgent string) (string, error) {
	rec, err := h.transport(ctx, client, ip)
	if err != nil {
		return "", err
	}
	if rec == nil {
		if rec, err = h.sessions.Begin(ctx, ip, userAgent); err != nil {
			return "", err
		}
		client.Transport = rec.ID
	}
	return h.csrf.Current(ctx, rec)
}

// CustomerLogin handles POST /login.
func (h *Handler) CustomerLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, session.KindCustomer, &CustomerLoginRequest{}, h.auth.CustomerLogin)
}

// AdminLogin handles POST /admin/login.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, session.KindAdmin, &AdminLoginRequest{}, h.auth.AdminLogin)
}

type loginFunc func(ctx context.Context, a auth.Attempt) (*session.Record, error)

func (h *Handler) login(w http.ResponseWriter, r *http.Request, kind session.Kind, req loginRequest, signIn loginFunc) {
	rw := NewResponseWriter(w, r)
	ctx := r.Context()

	if err := decodeLogin(r, req); err != nil {
		rw.BadRequest("invalid request body")
		return
	}
	if verr := validation.ValidateStruct(req); verr != nil {
		rw.ValidationError("invalid login request", verr.Fields)
		return
	}

	ip := clientIP(r)
	client := h.cookies.Read(r)
	identifier, secret := req.credentials()

	_, err := signIn(ctx, auth.Attempt{
		Identifier: identifier,
		Secret:     secret,
		IP:         ip,
		UserAgent:  r.UserAgent(),
		Client:     client,
	})
	if err != nil {
		writeAuthError(rw, err)
		return
	}

	principal, err := h.auth.CurrentPrincipal(ctx, client, kind, ip)
	if err != nil {
		h.cookies.Write(w, r, client)
		writeAuthError(rw, err)
		return
	}

	token, err := h.currentToken(ctx, client, ip, r.UserAgent())
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to issue CSRF token after login")
		h.cookies.Write(w, r, client)
		rw.ServiceUnavailable(msgUnavailable)
		return
	}

	h.cookies.Write(w, r, client)
	rw.Success(LoginResponse{Principal: principal, CSRFToken: token})
}

// CustomerLogout handles POST /logout.
func (h *Handler) CustomerLogout(w http.ResponseWriter, r *http.Request) {
	h.logout(w, r, session.KindCustomer)
}

// AdminLogout handles POST /admin/logout.
func (h *Handler) AdminLogout(w http.ResponseWriter, r *http.Request) {
	h.logout(w, r, session.KindAdmin)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request, kind session.Kind) {
	rw := NewResponseWriter(w, r)
	client := h.cookies.Read(r)

	ctx := r.Context()

	if err := h.auth.Logout(ctx, client, kind); err != nil {
		writeAuthError(rw, err)
		return
	}

	// The transport outlives the slot when the other slot is still signed
	// in. Its token was used by the ended session, so it is retired.
	if client.Transport != "" {
		rec, err := h.transport(ctx, client, clientIP(r))
		if err == nil && rec != nil {
			err = h.csrf.Clear(ctx, rec)
		}
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to retire CSRF token on logout")
		}
	}

	h.cookies.Write(w, r, client)
	rw.Success(map[string]bool{"logged_out": true})
}

// CustomerMe handles GET /me.
func (h *Handler) CustomerMe(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	client := h.cookies.Read(r)

	p, err := h.auth.CurrentPrincipal(r.Context(), client, session.KindCustomer, clientIP(r))
	if err != nil {
		h.cookies.Write(w, r, client)
		writeAuthError(rw, err)
		return
	}
	rw.Success(p)
}

// AdminMe handles GET /admin/me. RequireAdmin has already resolved the
// principal.
func (h *Handler) AdminMe(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	p := PrincipalFromContext(r.Context())
	if p == nil {
		rw.NotAuthenticated()
		return
	}
	rw.Success(p)
}
