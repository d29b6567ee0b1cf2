// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

// Package csrf binds anti-forgery tokens to session records and checks
// them on state-changing requests.
//
// Each session record carries at most one token. A token is valid when it
// is bound, no older than the configured TTL, and equal to the presented
// value under constant-time comparison.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/storeguard/internal/logging"
	"github.com/tomtom215/storeguard/internal/metrics"
	"github.com/tomtom215/storeguard/internal/session"
)

// ErrInvalid is returned by the middleware when validation fails.
var ErrInvalid = errors.New("csrf token invalid")

// tokenBytes is the entropy of a token before hex encoding.
const tokenBytes = 32

// Config holds token settings.
type Config struct {
	// TTL is how long a token stays valid after issue. Default: 1h
	TTL time.Duration

	// RotateOnUse replaces the token after every successful validation.
	RotateOnUse bool
}

// DefaultConfig returns the storefront default of a 3600 second TTL.
func DefaultConfig() Config {
	return Config{TTL: 3600 * time.Second}
}

// Updater changes a stored session record in place, failing with
// session.ErrNotFound once the record is gone. *session.Manager implements it.
type Updater interface {
	Update(ctx context.Context, id string, fn func(*session.Record) error) error
}

// Manager issues and validates tokens.
type Manager struct {
	store  Updater
	ttl    time.Duration
	rotate bool
	now    func() time.Time
}

// NewManager creates a token manager that persists through store.
func NewManager(store Updater, cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	return &Manager{
		store:  store,
		ttl:    cfg.TTL,
		rotate: cfg.RotateOnUse,
		now:    time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue binds a fresh token to rec, replacing any previous one. A record
// destroyed since it was read is not brought back; Issue then fails with
// session.ErrNotFound.
func (m *Manager) Issue(ctx context.Context, rec *session.Record) (string, error) {
	value, err := newToken()
	if err != nil {
		return "", err
	}

	tok := session.Token{Value: value, IssuedAt: m.now()}
	err = m.store.Update(ctx, rec.ID, func(stored *session.Record) error {
		bound := tok
		stored.CSRF = &bound
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("save csrf token: %w", err)
	}
	rec.CSRF = &tok
	return value, nil
}

// Current returns the token bound to rec, issuing one when none is bound
// or the bound one has expired.
func (m *Manager) Current(ctx context.Context, rec *session.Record) (string, error) {
	if rec.CSRF != nil && m.fresh(rec.CSRF) {
		return rec.CSRF.Value, nil
	}
	return m.Issue(ctx, rec)
}

// Validate reports whether presented matches the token bound to rec.
// With RotateOnUse a successful check replaces the token.
func (m *Manager) Validate(ctx context.Context, rec *session.Record, presented string) bool {
	valid := rec != nil && rec.CSRF != nil && presented != "" &&
		m.fresh(rec.CSRF) &&
		subtle.ConstantTimeCompare([]byte(rec.CSRF.Value), []byte(presented)) == 1

	metrics.RecordCSRFValidation(valid)

	if valid && m.rotate {
		if _, err := m.Issue(ctx, rec); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to rotate CSRF token")
		}
	}
	return valid
}

// Clear unbinds the token from rec. A record that no longer exists has no
// token to clear.
func (m *Manager) Clear(ctx context.Context, rec *session.Record) error {
	err := m.store.Update(ctx, rec.ID, func(stored *session.Record) error {
		stored.CSRF = nil
		return nil
	})
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return fmt.Errorf("clear csrf token: %w", err)
	}
	rec.CSRF = nil
	return nil
}

// fresh reports whether tok is within its TTL. The boundary is inclusive.
func (m *Manager) fresh(tok *session.Token) bool {
	return m.now().Sub(tok.IssuedAt) <= m.ttl
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
