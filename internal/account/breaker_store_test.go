// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package account

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// flakyStore fails every call while down is set.
type flakyStore struct {
	*MemoryStore
	down  bool
	calls int
	delay time.Duration
}

var errConnRefused = errors.New("connection refused")

func (f *flakyStore) Lookup(ctx context.Context, kind Kind, identifier string) (*Account, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
		}
	}
	if f.down {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, errConnRefused)
	}
	return f.MemoryStore.Lookup(ctx, kind, identifier)
}

func TestBreakerStore_NotFoundDoesNotTrip(t *testing.T) {
	b := NewBreakerStore(NewMemoryStore(), BreakerConfig{Name: "test-notfound", MaxFailures: 2})

	for i := 0; i < 10; i++ {
		if _, err := b.Lookup(context.Background(), KindCustomer, "nobody"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("Lookup error = %v, want ErrNotFound", err)
		}
	}
	if b.State() != gobreaker.StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreakerStore_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), down: true}
	b := NewBreakerStore(inner, BreakerConfig{Name: "test-open", MaxFailures: 3, OpenTimeout: time.Hour})

	for i := 0; i < 3; i++ {
		_, err := b.Lookup(context.Background(), KindCustomer, "a@example.com")
		if !errors.Is(err, ErrUnavailable) || !errors.Is(err, errConnRefused) {
			t.Fatalf("call %d error = %v", i, err)
		}
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	// Open circuit rejects without reaching the backend.
	inner.down = false
	before := inner.calls
	_, err := b.Lookup(context.Background(), KindCustomer, "a@example.com")
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("open-state error = %v", err)
	}
	if inner.calls != before {
		t.Error("backend called while circuit open")
	}
}

func TestBreakerStore_CallTimeout(t *testing.T) {
	inner := &flakyStore{MemoryStore: NewMemoryStore(), delay: time.Second}
	b := NewBreakerStore(inner, BreakerConfig{Name: "test-timeout", CallTimeout: 20 * time.Millisecond})

	start := time.Now()
	_, err := b.Lookup(context.Background(), KindCustomer, "a@example.com")
	if !errors.Is(err, ErrUnavailable) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want ErrUnavailable wrapping DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("call took %v, want bounded by the call timeout", elapsed)
	}
}
