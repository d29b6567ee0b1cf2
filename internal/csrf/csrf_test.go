// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package csrf

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/storeguard/internal/session"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// memoryUpdater accepts every update against a scratch record.
type memoryUpdater struct {
	saves int
	err   error
}

func (s *memoryUpdater) Update(_ context.Context, id string, fn func(*session.Record) error) error {
	s.saves++
	if s.err != nil {
		return s.err
	}
	return fn(&session.Record{ID: id})
}

func newTestManager(cfg Config) (*Manager, *memoryUpdater, *fakeClock) {
	updater := &memoryUpdater{}
	clock := &fakeClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	return NewManager(updater, cfg).WithClock(clock.Now), updater, clock
}

func TestManager_IssueAndValidate(t *testing.T) {
	m, updater, _ := newTestManager(DefaultConfig())
	ctx := context.Background()
	rec := &session.Record{ID: "s1", Kind: session.KindGuest}

	tok, err := m.Issue(ctx, rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tok) != 64 {
		t.Errorf("token length = %d, want 64", len(tok))
	}
	if updater.saves != 1 {
		t.Errorf("saves = %d, want 1", updater.saves)
	}

	if !m.Validate(ctx, rec, tok) {
		t.Error("issued token should validate")
	}
	if !m.Validate(ctx, rec, tok) {
		t.Error("token should stay valid without RotateOnUse")
	}
	if m.Validate(ctx, rec, tok[:63]+"x") {
		t.Error("altered token validated")
	}
	if m.Validate(ctx, rec, "") {
		t.Error("empty token validated")
	}
}

func TestManager_ValidateWithoutToken(t *testing.T) {
	m, _, _ := newTestManager(DefaultConfig())
	if m.Validate(context.Background(), &session.Record{ID: "s1"}, "anything") {
		t.Error("record without a bound token validated")
	}
	if m.Validate(context.Background(), nil, "anything") {
		t.Error("nil record validated")
	}
}

func TestManager_TTLBoundary(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    bool
	}{
		{"one second before ttl", time.Hour - time.Second, true},
		{"exactly ttl", time.Hour, true},
		{"one second after ttl", time.Hour + time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, clock := newTestManager(DefaultConfig())
			rec := &session.Record{ID: "s1"}
			tok, _ := m.Issue(context.Background(), rec)

			clock.Advance(tt.elapsed)
			if got := m.Validate(context.Background(), rec, tok); got != tt.want {
				t.Errorf("Validate after %v = %v, want %v", tt.elapsed, got, tt.want)
			}
		})
	}
}

func TestManager_CurrentReusesUntilExpired(t *testing.T) {
	m, _, clock := newTestManager(Config{TTL: 10 * time.Minute})
	ctx := context.Background()
	rec := &session.Record{ID: "s1"}

	first, _ := m.Current(ctx, rec)
	clock.Advance(5 * time.Minute)
	second, _ := m.Current(ctx, rec)
	if first != second {
		t.Error("Current should reuse a fresh token")
	}

	clock.Advance(6 * time.Minute)
	third, _ := m.Current(ctx, rec)
	if third == first {
		t.Error("Current should replace an expired token")
	}
}

func TestManager_RotateOnUse(t *testing.T) {
	m, _, _ := newTestManager(Config{TTL: time.Hour, RotateOnUse: true})
	ctx := context.Background()
	rec := &session.Record{ID: "s1"}
	tok, _ := m.Issue(ctx, rec)

	if !m.Validate(ctx, rec, tok) {
		t.Fatal("first use should validate")
	}
	if m.Validate(ctx, rec, tok) {
		t.Error("rotated token validated twice")
	}
	if rec.CSRF == nil || rec.CSRF.Value == tok {
		t.Error("token was not rotated")
	}
}

func TestManager_IssueSaveFailureKeepsPrevious(t *testing.T) {
	m, updater, _ := newTestManager(DefaultConfig())
	ctx := context.Background()
	rec := &session.Record{ID: "s1"}
	tok, _ := m.Issue(ctx, rec)

	updater.err = errors.New("store down")
	if _, err := m.Issue(ctx, rec); err == nil {
		t.Fatal("expected save error")
	}
	if rec.CSRF == nil || rec.CSRF.Value != tok {
		t.Error("failed issue should leave the previous token bound")
	}
}

func TestManager_Clear(t *testing.T) {
	m, _, _ := newTestManager(DefaultConfig())
	ctx := context.Background()
	rec := &session.Record{ID: "s1"}
	tok, _ := m.Issue(ctx, rec)

	if err := m.Clear(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Validate(ctx, rec, tok) {
		t.Error("cleared token validated")
	}
}

func TestManager_IssueDoesNotResurrectDestroyedRecord(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	sessions := session.NewManager(store, nil, session.DefaultConfig())
	m := NewManager(sessions, DefaultConfig())

	rec, err := sessions.Begin(ctx, "203.0.113.10", "ua")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The caller still holds rec after a concurrent login destroyed it.
	if err := sessions.Destroy(ctx, rec.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := m.Issue(ctx, rec); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Issue on destroyed record error = %v, want ErrNotFound", err)
	}
	if _, err := store.Get(ctx, rec.ID); !errors.Is(err, session.ErrNotFound) {
		t.Error("Issue wrote a destroyed record back to the store")
	}
	if err := m.Clear(ctx, rec); err != nil {
		t.Errorf("Clear on destroyed record: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("store holds %d records, want 0", store.Len())
	}
}

func TestManager_IssuePersistsToken(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	sessions := session.NewManager(store, nil, session.DefaultConfig())
	m := NewManager(sessions, DefaultConfig())

	rec, _ := sessions.Begin(ctx, "203.0.113.10", "ua")
	tok, err := m.Issue(ctx, rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.CSRF == nil || stored.CSRF.Value != tok {
		t.Errorf("stored token = %+v, want %s", stored.CSRF, tok)
	}

	if err := m.Clear(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ = store.Get(ctx, rec.ID)
	if stored.CSRF != nil {
		t.Error("Clear left the token in the store")
	}
}
