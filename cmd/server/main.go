// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/storeguard/internal/api"
	"github.com/tomtom215/storeguard/internal/audit"
	"github.com/tomtom215/storeguard/internal/auth"
	"github.com/tomtom215/storeguard/internal/authz"
	"github.com/tomtom215/storeguard/internal/config"
	"github.com/tomtom215/storeguard/internal/csrf"
	"github.com/tomtom215/storeguard/internal/lockout"
	"github.com/tomtom215/storeguard/internal/logging"
	"github.com/tomtom215/storeguard/internal/middleware"
	"github.com/tomtom215/storeguard/internal/password"
	"github.com/tomtom215/storeguard/internal/ratelimit"
	"github.com/tomtom215/storeguard/internal/session"
	"github.com/tomtom215/storeguard/internal/supervisor"
	"github.com/tomtom215/storeguard/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Storeguard stopped with error")
	}
	logging.Info().Msg("Application stopped gracefully")
}

//nolint:gocyclo // sequential wiring
func run(cfg *config.Config) error {
	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("db_driver", cfg.Database.Driver).
		Str("session_store", cfg.Security.SessionStore).
		Str("rate_limit_store", cfg.Security.RateLimitStore).
		Msg("Starting Storeguard")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	auditStore, err := audit.NewFileStore(audit.FileConfig{
		Path:      cfg.Audit.Path,
		MaxSize:   cfg.Audit.MaxSize,
		Retention: cfg.Audit.Retention,
	})
	if err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	auditLog := audit.NewLogger(auditStore, audit.Config{QueueSize: cfg.Audit.QueueSize})
	defer func() {
		if err := auditLog.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit log")
		}
	}()
	logging.Info().Str("path", cfg.Audit.Path).Msg("Audit log initialized")

	hasher, err := password.New(password.Params{
		MemoryKiB:   cfg.Security.Argon2.MemoryKiB,
		Iterations:  cfg.Security.Argon2.Iterations,
		Parallelism: cfg.Security.Argon2.Parallelism,
	})
	if err != nil {
		return fmt.Errorf("password hasher: %w", err)
	}

	sessions := session.NewManager(st.sessions, auditLog, session.Config{
		Lifetime: cfg.Security.SessionLifetime,
	})

	authService, err := auth.NewService(auth.Deps{
		Accounts: st.accounts,
		Hasher:   hasher,
		Limiter: ratelimit.New(st.attempts, ratelimit.Config{
			Limit:  cfg.Security.LoginRateLimit,
			Window: cfg.Security.LoginRateWindow,
		}),
		Lockout: lockout.New(st.accounts, lockout.Config{
			Threshold: cfg.Security.MaxLoginAttempts,
			Duration:  cfg.Security.LockoutDuration,
		}),
		Sessions: sessions,
		Audit:    auditLog,
	})
	if err != nil {
		return fmt.Errorf("auth service: %w", err)
	}

	authorizer, err := authz.New(authz.Config{PolicyPath: cfg.Security.PolicyPath})
	if err != nil {
		return fmt.Errorf("route policy: %w", err)
	}

	proxies, err := middleware.ParseProxies(cfg.Security.TrustedProxies)
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	handler, err := api.NewHandler(api.Dependencies{
		Auth:     authService,
		Sessions: sessions,
		CSRF: csrf.NewManager(sessions, csrf.Config{
			TTL:         cfg.Security.CSRFTokenTTL,
			RotateOnUse: cfg.Security.CSRFRotateOnUse,
		}),
		Cookies: session.NewCookies(session.CookieConfig{
			Secure:   cfg.Security.CookieSecure,
			Domain:   cfg.Security.CookieDomain,
			Lifetime: cfg.Security.SessionLifetime,
		}),
		Authz:  authorizer,
		Audit:  auditLog,
		Events: auditLog,
		Checks: st.checks,
	})
	if err != nil {
		return fmt.Errorf("api handler: %w", err)
	}

	router := api.NewRouter(handler, api.RouterConfig{
		CORSOrigins:       cfg.Server.CORSOrigins,
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		TrustedProxies:    proxies,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadTimeout:       cfg.Server.Timeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("supervisor tree: %w", err)
	}

	interval := cfg.Security.SweepInterval
	tree.AddMaintenanceService(services.NewSweepService("session-sweeper", interval, sessions.Sweep))
	for name, sweep := range st.janitors {
		tree.AddMaintenanceService(services.NewSweepService(name, interval, sweep))
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	var treeErr error
	for err := range tree.ServeBackground(ctx) {
		if err != nil && !errors.Is(err, context.Canceled) {
			treeErr = err
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer flushCancel()
	if err := auditLog.Flush(flushCtx); err != nil {
		logging.Error().Err(err).Msg("Failed to flush audit log")
	}

	return treeErr
}
