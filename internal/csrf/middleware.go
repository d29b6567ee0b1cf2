// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package csrf

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/storeguard/internal/audit"
	"github.com/tomtom215/storeguard/internal/logging"
	"github.com/tomtom215/storeguard/internal/session"
)

const (
	// HeaderName carries the token on XHR requests.
	HeaderName = "X-CSRF-Token"

	// FormField carries the token on form posts.
	FormField = "csrf_token"
)

// RecordFunc resolves the session record that holds the request's token.
// A nil record with a nil error means the request has no session.
type RecordFunc func(r *http.Request) (*session.Record, error)

// RejectFunc writes the response for a request that failed the check.
type RejectFunc func(w http.ResponseWriter, r *http.Request)

// Guard is HTTP middleware enforcing token checks on unsafe methods.
type Guard struct {
	tokens   *Manager
	resolve  RecordFunc
	audit    audit.Trail
	onReject RejectFunc
}

// NewGuard creates the middleware.
func NewGuard(tokens *Manager, resolve RecordFunc, rec audit.Trail) *Guard {
	return &Guard{tokens: tokens, resolve: resolve, audit: rec}
}

// OnReject replaces the default 403 body. The failure is audited either way.
func (g *Guard) OnReject(fn RejectFunc) *Guard {
	g.onReject = fn
	return g
}

// Protect validates the token on every request whose method is not
// GET, HEAD, OPTIONS or TRACE. The header wins over the form field.
func (g *Guard) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		presented := r.Header.Get(HeaderName)
		if presented == "" {
			presented = r.PostFormValue(FormField)
		}

		rec, err := g.resolve(r)
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("CSRF check could not load session")
			rec = nil
		}

		if !g.tokens.Validate(r.Context(), rec, presented) {
			g.reject(w, r, presented != "", rec != nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (g *Guard) reject(w http.ResponseWriter, r *http.Request, hadToken, hadSession bool) {
	ctx := r.Context()
	meta := audit.Meta{IP: logging.ClientIPFromContext(ctx), UserAgent: r.UserAgent()}
	if meta.IP == "" {
		meta.IP = r.RemoteAddr
	}

	err := g.audit.Record(ctx, audit.EventCSRFFailed, meta, map[string]interface{}{
		"method":      r.Method,
		"path":        r.URL.Path,
		"token_sent":  hadToken,
		"has_session": hadSession,
	})
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to audit CSRF failure")
	}

	// A token with no session behind it was not issued to this browser.
	if hadToken && !hadSession {
		err := g.audit.Suspicious(ctx, meta, "csrf_token_without_session", map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Msg("Failed to audit suspicious CSRF token")
		}
	}

	if g.onReject != nil {
		g.onReject(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "error",
		"error":  ErrInvalid.Error(),
	})
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
