// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/storeguard/internal/logging"
	"github.com/tomtom215/storeguard/internal/metrics"
)

// Ensure BreakerStore implements Store
var _ Store = (*BreakerStore)(nil)

// BreakerConfig configures a BreakerStore.
type BreakerConfig struct {
	// Name labels the breaker in logs and metrics. Default: account-store
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// circuit. Default: 5
	MaxFailures uint32

	// OpenTimeout is how long the circuit stays open before a trial
	// request is let through. Default: 30s
	OpenTimeout time.Duration

	// CallTimeout bounds every store call. Default: 3s
	CallTimeout time.Duration
}

// BreakerStore wraps a Store with a per-call timeout and a circuit breaker.
// A missing account is a successful call; only backend failures trip the
// circuit. While open, calls fail immediately with ErrUnavailable and
// callers fail closed.
type BreakerStore struct {
	next    Store
	cb      *gobreaker.CircuitBreaker[interface{}]
	name    string
	timeout time.Duration
}

// NewBreakerStore wraps next.
func NewBreakerStore(next Store, cfg BreakerConfig) *BreakerStore {
	if cfg.Name == "" {
		cfg.Name = "account-store"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 3 * time.Second
	}

	metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0) // 0 = closed
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(cfg.Name).Set(0)

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			shouldTrip := counts.ConsecutiveFailures >= cfg.MaxFailures
			if shouldTrip {
				logging.Warn().Uint32("consecutive_failures", counts.ConsecutiveFailures).Msg("[CIRCUIT BREAKER] Opening credential store circuit")
			}
			return shouldTrip
		},

		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate)
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},
	})

	return &BreakerStore{
		next:    next,
		cb:      cb,
		name:    cfg.Name,
		timeout: cfg.CallTimeout,
	}
}

// State returns the current breaker state for health reporting.
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

// execute runs fn under the breaker with a bounded context.
func (b *BreakerStore) execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()
		return fn(callCtx)
	})

	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(0)
		return result, nil
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	case errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicate):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
		return nil, err
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
		counts := b.cb.Counts()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(b.name).Set(float64(counts.ConsecutiveFailures))
		if !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return nil, err
	}
}

func (b *BreakerStore) Lookup(ctx context.Context, kind Kind, identifier string) (*Account, error) {
	v, err := b.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return b.next.Lookup(ctx, kind, identifier)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Account), nil
}

func (b *BreakerStore) Get(ctx context.Context, id int64) (*Account, error) {
	v, err := b.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return b.next.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Account), nil
}

func (b *BreakerStore) Create(ctx context.Context, a *Account) (int64, error) {
	v, err := b.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return b.next.Create(ctx, a)
	})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func (b *BreakerStore) RecordFailure(ctx context.Context, id int64, threshold int, lockUntil time.Time) (FailureResult, error) {
	v, err := b.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return b.next.RecordFailure(ctx, id, threshold, lockUntil)
	})
	if err != nil {
		return FailureResult{}, err
	}
	return v.(FailureResult), nil
}

func (b *BreakerStore) Reset(ctx context.Context, id int64) error {
	_, err := b.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, b.next.Reset(ctx, id)
	})
	return err
}

func (b *BreakerStore) TouchLogin(ctx context.Context, id int64, at time.Time) error {
	_, err := b.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, b.next.TouchLogin(ctx, id, at)
	})
	return err
}

func (b *BreakerStore) UpdateHash(ctx context.Context, id int64, hash string) error {
	_, err := b.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, b.next.UpdateHash(ctx, id, hash)
	})
	return err
}

func (b *BreakerStore) Locked(ctx context.Context, now time.Time) ([]Account, error) {
	v, err := b.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return b.next.Locked(ctx, now)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Account), nil
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
