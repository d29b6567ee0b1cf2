// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

// Package ratelimit throttles login attempts with a trailing time window.
//
// Each (action, identifier, origin IP) triple owns an ordered list of
// attempt timestamps. Admit prunes entries older than the window and
// allows the attempt while fewer than Limit remain. Admit never records;
// callers Record only attempts that actually ran, so checks that are
// rejected before any credential work do not extend the window.
//
// The limiter is a throttle, not a security boundary. Concurrent callers
// may both be admitted at Limit-1; account lockout covers that gap.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrStoreUnavailable wraps backend failures.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Key identifies one attempt window.
type Key struct {
	Action     string
	Identifier string
	OriginIP   string
}

// ID returns a stable, fixed-length storage key. Identifiers are hashed so
// email addresses never appear in Redis key space.
func (k Key) ID() string {
	h := sha256.New()
	for _, part := range []string{k.Action, k.Identifier, k.OriginIP} {
		_, _ = fmt.Fprintf(h, "%d:%s", len(part), part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Store holds attempt timestamps per key.
type Store interface {
	// Count removes entries at or before cutoff and returns how many remain.
	Count(ctx context.Context, key string, cutoff time.Time) (int, error)

	// Add appends an attempt at the given time. ttl is how long the key
	// must survive without further attempts.
	Add(ctx context.Context, key string, at time.Time, ttl time.Duration) error

	// Clear drops every entry for key.
	Clear(ctx context.Context, key string) error
}

// Config holds limiter settings.
type Config struct {
	// Limit is the number of attempts admitted per window. Default: 5
	Limit int
	// Window is the trailing window length. Default: 15m
	Window time.Duration
}

// DefaultConfig returns the storefront defaults: 5 attempts per 900 seconds.
func DefaultConfig() Config {
	return Config{Limit: 5, Window: 900 * time.Second}
}

// Limiter is a sliding-window attempt counter.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	now    func() time.Time
}

// New creates a Limiter over store.
func New(store Store, cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	return &Limiter{
		store:  store,
		limit:  cfg.Limit,
		window: cfg.Window,
		now:    time.Now,
	}
}

// WithClock replaces the limiter's time source. Used by tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Window returns the configured window, used for Retry-After hints.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Admit reports whether another attempt for key is allowed right now.
func (l *Limiter) Admit(ctx context.Context, key Key) (bool, error) {
	cutoff := l.now().Add(-l.window)
	count, err := l.store.Count(ctx, key.ID(), cutoff)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return count < l.limit, nil
}

// Record notes that an attempt for key took place.
func (l *Limiter) Record(ctx context.Context, key Key) error {
	if err := l.store.Add(ctx, key.ID(), l.now(), l.window); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Clear forgets all attempts for key. Called after a successful login.
func (l *Limiter) Clear(ctx context.Context, key Key) error {
	if err := l.store.Clear(ctx, key.ID()); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}
