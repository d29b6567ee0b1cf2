// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/storeguard/internal/account"
	"github.com/tomtom215/storeguard/internal/api"
	"github.com/tomtom215/storeguard/internal/config"
	"github.com/tomtom215/storeguard/internal/logging"
	"github.com/tomtom215/storeguard/internal/ratelimit"
	"github.com/tomtom215/storeguard/internal/session"
	"github.com/tomtom215/storeguard/internal/supervisor/services"
)

// stores holds the storage backends selected by configuration.
type stores struct {
	accounts account.Store
	sessions session.Store
	attempts ratelimit.Store

	// checks feed /readyz; janitors run in the maintenance layer.
	checks   map[string]api.HealthCheck
	janitors map[string]services.SweepFunc

	closers []func() error
}

// Close releases backends in reverse order of opening.
func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{
		checks:   map[string]api.HealthCheck{},
		janitors: map[string]services.SweepFunc{},
	}
	ok := false
	defer func() {
		if !ok {
			st.Close()
		}
	}()

	if err := st.openAccounts(ctx, cfg); err != nil {
		return nil, err
	}
	if err := st.openSessions(cfg); err != nil {
		return nil, err
	}
	if err := st.openAttempts(ctx, cfg); err != nil {
		return nil, err
	}

	ok = true
	return st, nil
}

func (s *stores) openAccounts(ctx context.Context, cfg *config.Config) error {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := account.Open(connectCtx, account.DBConfig{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return fmt.Errorf("credential store: %w", err)
	}
	s.closers = append(s.closers, db.Close)

	if cfg.Database.MigrateOnStart {
		if err := account.Migrate(db, cfg.Database.DSN); err != nil {
			return fmt.Errorf("credential store migrations: %w", err)
		}
	}

	sqlStore := account.NewSQLStore(db)
	s.accounts = account.NewBreakerStore(sqlStore, account.BreakerConfig{
		MaxFailures: cfg.Database.BreakerMaxFailures,
		OpenTimeout: cfg.Database.BreakerOpenTimeout,
		CallTimeout: cfg.Security.StorageTimeout,
	})
	s.checks["credential_store"] = sqlStore.Ping
	logging.Info().Str("driver", cfg.Database.Driver).Msg("Credential store initialized")
	return nil
}

func (s *stores) openSessions(cfg *config.Config) error {
	switch cfg.Security.SessionStore {
	case "badger":
		bs, err := session.OpenBadgerStore(cfg.Security.SessionStorePath)
		if err != nil {
			return fmt.Errorf("session store: %w", err)
		}
		s.closers = append(s.closers, bs.Close)
		s.sessions = bs
		s.janitors["session-gc"] = bs.CollectGarbage
	default:
		s.sessions = session.NewMemoryStore()
	}
	logging.Info().Str("backend", cfg.Security.SessionStore).Msg("Session store initialized")
	return nil
}

func (s *stores) openAttempts(ctx context.Context, cfg *config.Config) error {
	switch cfg.Security.RateLimitStore {
	case "redis":
		client, err := ratelimit.ConnectRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("rate-limit store: %w", err)
		}
		s.closers = append(s.closers, client.Close)

		ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Security.StorageTimeout)
		defer cancel()
		if err := ping(pingCtx); err != nil {
			// Logins fail closed until Redis answers; the process still starts.
			logging.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis not reachable")
		}
		s.attempts = ratelimit.NewRedisStore(client)
		s.checks["rate_limit_store"] = ping
	default:
		mem := ratelimit.NewMemoryStore()
		s.attempts = mem
		s.janitors["ratelimit-sweeper"] = func(context.Context) (int, error) {
			return mem.Sweep(time.Now()), nil
		}
	}
	logging.Info().Str("backend", cfg.Security.RateLimitStore).Msg("Rate-limit store initialized")
	return nil
}
