// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package services

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/storeguard/internal/logging"
)

// SweepFunc removes expired state and reports how much it removed.
type SweepFunc func(ctx context.Context) (int, error)

// SweepService runs a SweepFunc on a fixed interval. A failed sweep is
// logged and retried on the next tick; only a panic or ctx ends Serve.
//
// Example usage:
//
//	svc := services.NewSweepService("session-sweeper", 5*time.Minute, sessions.Sweep)
//	tree.AddMaintenanceService(svc)
type SweepService struct {
	name     string
	interval time.Duration
	sweep    SweepFunc
	timeout  time.Duration
}

// NewSweepService creates a periodic janitor. A non-positive interval
// becomes one minute. Each run is bounded by the interval.
func NewSweepService(name string, interval time.Duration, sweep SweepFunc) *SweepService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SweepService{
		name:     name,
		interval: interval,
		sweep:    sweep,
		timeout:  interval,
	}
}

// Serve implements suture.Service.
func (s *SweepService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.run(ctx)
		}
	}
}

func (s *SweepService) run(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := s.sweep(runCtx)
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		logging.Warn().Err(err).Str("service", s.name).Msg("Sweep failed")
	case n > 0:
		logging.Debug().
			Str("service", s.name).
			Int("removed", n).
			Dur("took", time.Since(start)).
			Msg("Sweep completed")
	}
}

// String names the service in supervisor events.
func (s *SweepService) String() string {
	return s.name
}
