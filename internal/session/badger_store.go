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

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// sessionKeyPrefix namespaces records in a shared BadgerDB.
const sessionKeyPrefix = "session:"

// expiryGrace keeps records readable briefly past ExpiresAt so validation
// reports Expired rather than NotFound. Badger drops them after that.
const expiryGrace = 10 * time.Minute

// updateRetries bounds how often Update retries after a transaction conflict.
const updateRetries = 3

// BadgerStore implements Store using BadgerDB for durable storage.
// Sessions survive restarts; entries carry a TTL so Badger reclaims them
// even if the janitor never runs.
type BadgerStore struct {
	db  *badger.DB
	own bool
	now func() time.Time
}

// OpenBadgerStore opens (or creates) a BadgerDB at path for sessions.
// An empty path opens an in-memory database.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Suppress BadgerDB internal logs
	opts.ValueLogFileSize = 16 << 20
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for sessions: %w", err)
	}
	return &BadgerStore{db: db, own: true, now: time.Now}, nil
}

// NewBadgerStore wraps an existing BadgerDB. Close will not close it.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db, now: time.Now}
}

// Close closes the database if this store opened it.
func (s *BadgerStore) Close() error {
	if s.own {
		return s.db.Close()
	}
	return nil
}

func (s *BadgerStore) Get(_ context.Context, id string) (*Record, error) {
	var rec Record

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return &rec, nil
}

func (s *BadgerStore) Set(_ context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(s.entry(rec.ID, data, rec.ExpiresAt))
	})
	if err != nil {
		return fmt.Errorf("%w: set session: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *BadgerStore) entry(id string, data []byte, expiresAt time.Time) *badger.Entry {
	ttl := expiresAt.Sub(s.now()) + expiryGrace
	if ttl <= 0 {
		ttl = time.Second
	}
	return badger.NewEntry([]byte(sessionKeyPrefix+id), data).WithTTL(ttl)
}

// Update reads and rewrites the record inside one read-write transaction,
// so a concurrent Destroy either happens first (ErrNotFound) or makes the
// commit conflict and the update is retried against the current state.
func (s *BadgerStore) Update(_ context.Context, id string, fn func(*Record) error) error {
	var err, fnErr error
	for attempt := 0; attempt < updateRetries; attempt++ {
		fnErr = nil
		err = s.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(sessionKeyPrefix + id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("get session: %w", err)
			}

			var rec Record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode session: %w", err)
			}
			if fnErr = fn(&rec); fnErr != nil {
				return fnErr
			}
			rec.ID = id

			data, err := json.Marshal(&rec)
			if err != nil {
				return fmt.Errorf("marshal session: %w", err)
			}
			return txn.SetEntry(s.entry(id, data, rec.ExpiresAt))
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	switch {
	case err == nil:
		return nil
	case fnErr != nil, errors.Is(err, ErrNotFound):
		return err
	default:
		return fmt.Errorf("%w: update session: %w", ErrUnavailable, err)
	}
}

func (s *BadgerStore) Destroy(_ context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(sessionKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: delete session: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *BadgerStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	var expired []string

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = []byte(sessionKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				continue
			}
			if rec.ExpiresAt.Before(now) {
				expired = append(expired, rec.ID)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: scan sessions: %w", ErrUnavailable, err)
	}

	count := 0
	for _, id := range expired {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}
		if err := s.Destroy(ctx, id); err != nil {
			continue
		}
		count++
	}
	return count, nil
}

// Count returns the number of stored records.
func (s *BadgerStore) Count() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(sessionKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// gcDiscardRatio is the share of stale data a value log file must hold
// before Badger rewrites it.
const gcDiscardRatio = 0.5

// CollectGarbage reclaims value log space left by destroyed and expired
// sessions. It returns the number of value log files rewritten.
func (s *BadgerStore) CollectGarbage(ctx context.Context) (int, error) {
	rewritten := 0
	for ctx.Err() == nil {
		err := s.db.RunValueLogGC(gcDiscardRatio)
		switch {
		case err == nil:
			rewritten++
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrGCInMemoryMode):
			return rewritten, nil
		default:
			return rewritten, fmt.Errorf("session value log gc: %w", err)
		}
	}
	return rewritten, ctx.Err()
}
