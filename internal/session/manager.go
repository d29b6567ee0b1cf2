// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/storeguard/internal/audit"
	"github.com/tomtom215/storeguard/internal/logging"
	"github.com/tomtom215/storeguard/internal/metrics"
)

// Config holds session manager settings.
type Config struct {
	// Lifetime is the fixed lifetime of every record, measured from
	// IssuedAt. Default: 2h
	Lifetime time.Duration
}

// DefaultConfig returns the storefront default lifetime of 7200 seconds.
func DefaultConfig() Config {
	return Config{Lifetime: 7200 * time.Second}
}

// Client is the set of session ids one browser presents, one per cookie.
// Empty strings mean the cookie is absent.
type Client struct {
	Transport string
	Customer  string
	Admin     string
}

// Slot returns the id held for kind.
func (c *Client) Slot(kind Kind) string {
	switch kind {
	case KindCustomer:
		return c.Customer
	case KindAdmin:
		return c.Admin
	default:
		return c.Transport
	}
}

// SetSlot stores id for kind.
func (c *Client) SetSlot(kind Kind, id string) {
	switch kind {
	case KindCustomer:
		c.Customer = id
	case KindAdmin:
		c.Admin = id
	default:
		c.Transport = id
	}
}

// Manager creates, validates and destroys session records.
type Manager struct {
	store    Store
	audit    audit.Recorder
	lifetime time.Duration
	now      func() time.Time
}

// NewManager creates a Manager over store. Validation failures are
// reported to rec.
func NewManager(store Store, rec audit.Recorder, cfg Config) *Manager {
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultConfig().Lifetime
	}
	return &Manager{
		store:    store,
		audit:    rec,
		lifetime: cfg.Lifetime,
		now:      time.Now,
	}
}

// WithClock replaces the manager's time source. Used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Lifetime returns the configured record lifetime.
func (m *Manager) Lifetime() time.Duration {
	return m.lifetime
}

// Begin issues a new guest transport record.
func (m *Manager) Begin(ctx context.Context, ip, userAgent string) (*Record, error) {
	return m.issue(ctx, Principal{Kind: KindGuest}, ip, userAgent, nil)
}

// Create issues an authenticated record for p. Every id in priorIDs is
// destroyed first, and the new id is guaranteed to differ from all of them.
func (m *Manager) Create(ctx context.Context, p Principal, ip, userAgent string, priorIDs ...string) (*Record, error) {
	if !p.Kind.Authenticated() {
		return nil, fmt.Errorf("create session: %q is not an authenticated kind", p.Kind)
	}
	for _, id := range priorIDs {
		if id == "" {
			continue
		}
		if err := m.store.Destroy(ctx, id); err != nil {
			return nil, m.unavailable(err)
		}
	}
	return m.issue(ctx, p, ip, userAgent, priorIDs)
}

func (m *Manager) issue(ctx context.Context, p Principal, ip, userAgent string, avoid []string) (*Record, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	for contains(avoid, id) {
		if id, err = NewID(); err != nil {
			return nil, err
		}
	}

	now := m.now()
	rec := &Record{
		ID:         id,
		Kind:       p.Kind,
		AccountID:  p.AccountID,
		Identifier: p.Identifier,
		Role:       p.Role,
		OriginIP:   ip,
		UserAgent:  userAgent,
		IssuedAt:   now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(m.lifetime),
	}
	if err := m.store.Set(ctx, rec); err != nil {
		return nil, m.unavailable(err)
	}

	metrics.SessionsCreated.WithLabelValues(string(p.Kind)).Inc()
	logging.Ctx(ctx).Debug().
		Str("kind", string(p.Kind)).
		Str("session", logging.SanitizeSessionID(id)).
		Msg("Session issued")
	return rec, nil
}

// Validate returns the record for token if it exists, belongs to kind, is
// within its lifetime and (for authenticated kinds) is presented from its
// bound IP. Checks run in that order. Any failure destroys the record and,
// for authenticated kinds, is written to the audit log with its reason.
// An empty token fails with ErrNotFound and is not audited.
func (m *Manager) Validate(ctx context.Context, token string, kind Kind, ip string) (*Record, error) {
	if token == "" {
		metrics.RecordSessionValidation(string(kind), "not_found")
		return nil, ErrNotFound
	}

	rec, err := m.store.Get(ctx, token)
	if err != nil && !errors.Is(err, ErrNotFound) {
		metrics.RecordSessionValidation(string(kind), "error")
		return nil, m.unavailable(err)
	}
	if err != nil || rec.Kind != kind {
		return nil, m.reject(ctx, token, kind, ip, ErrNotFound, audit.EventSessionNotFound, nil)
	}

	if m.now().Sub(rec.IssuedAt) > m.lifetime {
		return nil, m.reject(ctx, token, kind, ip, ErrExpired, audit.EventSessionExpired, map[string]interface{}{
			"account_id": rec.AccountID,
			"issued_at":  rec.IssuedAt.UTC().Format(time.RFC3339),
		})
	}

	if kind.Authenticated() && rec.OriginIP != ip {
		return nil, m.reject(ctx, token, kind, ip, ErrIPMismatch, audit.EventSessionIPMismatch, map[string]interface{}{
			"account_id": rec.AccountID,
			"bound_ip":   rec.OriginIP,
		})
	}

	metrics.RecordSessionValidation(string(kind), "valid")
	return rec, nil
}

// reject revokes token and records why. Revocation is idempotent.
func (m *Manager) reject(ctx context.Context, token string, kind Kind, ip string, reason error, event audit.EventKind, data map[string]interface{}) error {
	metrics.RecordSessionValidation(string(kind), resultLabel(reason))

	if err := m.store.Destroy(ctx, token); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("session", logging.SanitizeSessionID(token)).Msg("Failed to revoke invalid session")
	}

	if !kind.Authenticated() {
		return reason
	}

	if data == nil {
		data = map[string]interface{}{}
	}
	data["kind"] = string(kind)
	data["session"] = logging.SanitizeSessionID(token)
	if err := m.audit.Record(ctx, event, audit.Meta{IP: ip}, data); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("event", string(event)).Msg("Failed to audit session rejection")
	}
	return reason
}

// Get returns the stored record for id without validating it.
func (m *Manager) Get(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	rec, err := m.store.Get(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, m.unavailable(err)
	}
	return rec, err
}

// Update applies fn to the stored record for id. It returns ErrNotFound
// when the record has been destroyed; a destroyed record is never written
// back.
func (m *Manager) Update(ctx context.Context, id string, fn func(*Record) error) error {
	err := m.store.Update(ctx, id, fn)
	switch {
	case err == nil, errors.Is(err, ErrNotFound):
		return err
	default:
		return m.unavailable(err)
	}
}

// Touch records activity on a record. The lifetime is fixed and is not
// extended.
func (m *Manager) Touch(ctx context.Context, id string) error {
	now := m.now()
	return m.Update(ctx, id, func(rec *Record) error {
		rec.LastSeenAt = now
		return nil
	})
}

// Destroy removes a record. Destroying an absent id is a no-op.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := m.store.Destroy(ctx, id); err != nil {
		return m.unavailable(err)
	}
	return nil
}

// Logout destroys the kind slot of c. When neither authenticated slot
// remains, the transport record is destroyed too. c is updated in place.
func (m *Manager) Logout(ctx context.Context, c *Client, kind Kind) error {
	if !kind.Authenticated() {
		return fmt.Errorf("logout: %q is not an authenticated kind", kind)
	}
	if err := m.Destroy(ctx, c.Slot(kind)); err != nil {
		return err
	}
	c.SetSlot(kind, "")

	if c.Customer == "" && c.Admin == "" {
		if err := m.Destroy(ctx, c.Transport); err != nil {
			return err
		}
		c.Transport = ""
	}
	return nil
}

// Sweep removes expired records from the store.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	n, err := m.store.DeleteExpired(ctx, m.now())
	if err != nil {
		return n, m.unavailable(err)
	}
	metrics.SessionsSwept.Add(float64(n))
	return n, nil
}

func (m *Manager) unavailable(err error) error {
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func resultLabel(reason error) string {
	switch {
	case errors.Is(reason, ErrExpired):
		return "expired"
	case errors.Is(reason, ErrIPMismatch):
		return "ip_mismatch"
	default:
		return "not_found"
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
