// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	attempts []time.Time
	expires  time.Time
}

// MemoryStore is an in-process Store. Buckets are created lazily and
// pruned on every Count; Sweep drops buckets idle past their TTL.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]*bucket)}
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context, key string, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		return 0, nil
	}

	kept := b.attempts[:0]
	for _, at := range b.attempts {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	b.attempts = kept
	if len(kept) == 0 {
		delete(s.buckets, key)
	}
	return len(kept), nil
}

// Add implements Store.
func (s *MemoryStore) Add(_ context.Context, key string, at time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{}
		s.buckets[key] = b
	}
	b.attempts = append(b.attempts, at)
	if exp := at.Add(ttl); exp.After(b.expires) {
		b.expires = exp
	}
	return nil
}

// Clear implements Store.
func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

// Sweep removes buckets whose newest attempt has aged out. Returns the
// number of buckets removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, b := range s.buckets {
		if !now.Before(b.expires) {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live buckets.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
