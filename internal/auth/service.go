// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/storeguard/internal/account"
	"github.com/tomtom215/storeguard/internal/audit"
	"github.com/tomtom215/storeguard/internal/lockout"
	"github.com/tomtom215/storeguard/internal/logging"
	"github.com/tomtom215/storeguard/internal/metrics"
	"github.com/tomtom215/storeguard/internal/ratelimit"
	"github.com/tomtom215/storeguard/internal/session"
)

// Hasher verifies and produces credential digests. *password.Hasher
// implements it.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
	NeedsRehash(digest string) bool
	Dummy() string
}

// Deps are the collaborators of a Service. All are required.
type Deps struct {
	Accounts account.Store
	Hasher   Hasher
	Limiter  *ratelimit.Limiter
	Lockout  *lockout.Policy
	Sessions *session.Manager
	Audit    audit.Trail
}

// Principal is the authenticated identity behind a request.
type Principal struct {
	Kind       session.Kind `json:"kind"`
	AccountID  int64        `json:"account_id"`
	Identifier string       `json:"identifier"`
	Role       Role         `json:"-"`
	RoleName   string       `json:"role"`
	SessionID  string       `json:"-"`
}

// Attempt is one login request.
type Attempt struct {
	Identifier string
	Secret     string
	IP         string
	UserAgent  string

	// Client holds the session ids the browser presented. Login rotates
	// them and updates Client in place.
	Client *session.Client
}

func (a Attempt) meta() audit.Meta {
	return audit.Meta{IP: a.IP, UserAgent: a.UserAgent}
}

// Service is the sign-in orchestrator.
type Service struct {
	accounts account.Store
	hasher   Hasher
	limiter  *ratelimit.Limiter
	lockout  *lockout.Policy
	sessions *session.Manager
	audit    audit.Trail
	now      func() time.Time
}

// NewService creates a Service from deps.
func NewService(deps Deps) (*Service, error) {
	switch {
	case deps.Accounts == nil:
		return nil, errors.New("auth: account store is required")
	case deps.Hasher == nil:
		return nil, errors.New("auth: hasher is required")
	case deps.Limiter == nil:
		return nil, errors.New("auth: rate limiter is required")
	case deps.Lockout == nil:
		return nil, errors.New("auth: lockout policy is required")
	case deps.Sessions == nil:
		return nil, errors.New("auth: session manager is required")
	case deps.Audit == nil:
		return nil, errors.New("auth: audit recorder is required")
	}

	return &Service{
		accounts: deps.Accounts,
		hasher:   deps.Hasher,
		limiter:  deps.Limiter,
		lockout:  deps.Lockout,
		sessions: deps.Sessions,
		audit:    deps.Audit,
		now:      time.Now,
	}, nil
}

// WithClock replaces the service's time source. Used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CustomerLogin signs a storefront customer in by email and password.
func (s *Service) CustomerLogin(ctx context.Context, a Attempt) (*session.Record, error) {
	return s.login(ctx, session.KindCustomer, a)
}

// AdminLogin signs a back-office user in by username and password.
func (s *Service) AdminLogin(ctx context.Context, a Attempt) (*session.Record, error) {
	return s.login(ctx, session.KindAdmin, a)
}

func (s *Service) login(ctx context.Context, kind session.Kind, a Attempt) (*session.Record, error) {
	if a.Client == nil {
		a.Client = &session.Client{}
	}
	identifier := strings.TrimSpace(a.Identifier)
	key := ratelimit.Key{Action: string(kind) + "_login", Identifier: identifier, OriginIP: a.IP}
	meta := a.meta()
	log := logging.Ctx(ctx).With().
		Str("kind", string(kind)).
		Str("identifier", logging.SanitizeIdentifier(identifier)).
		Logger()

	admitted, err := s.limiter.Admit(ctx, key)
	if err != nil {
		return nil, s.storageFailure(ctx, kind, meta, "rate_limiter", err)
	}
	metrics.RecordRateLimitDecision(key.Action, admitted)
	if !admitted {
		metrics.RecordLoginAttempt(string(kind), "rate_limited")
		log.Warn().Msg("Login throttled")
		s.record(ctx, audit.EventLoginRateLimited, meta, map[string]interface{}{
			"kind":       string(kind),
			"identifier": identifier,
			"window":     s.limiter.Window().String(),
		})
		return nil, ErrRateLimited
	}

	acct, err := s.accounts.Lookup(ctx, account.Kind(kind), identifier)
	switch {
	case errors.Is(err, account.ErrNotFound):
		s.hasher.Verify(a.Secret, s.hasher.Dummy())
		if err := s.limiter.Record(ctx, key); err != nil {
			return nil, s.storageFailure(ctx, kind, meta, "rate_limiter", err)
		}
		metrics.RecordLoginAttempt(string(kind), "invalid_credentials")
		log.Info().Msg("Login failed")
		s.attempt(ctx, kind, meta, identifier, false, map[string]interface{}{
			"reason": "unknown_identifier",
		})
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, s.storageFailure(ctx, kind, meta, "credential_store", err)
	}

	if state := lockout.State(acct, s.now()); state.Locked {
		s.hasher.Verify(a.Secret, s.hasher.Dummy())
		metrics.RecordLoginAttempt(string(kind), "locked")
		log.Info().Int64("account_id", acct.ID).Msg("Login refused, account locked")
		s.attempt(ctx, kind, meta, identifier, false, map[string]interface{}{
			"account_id":   acct.ID,
			"reason":       "account_locked",
			"locked_until": state.LockedUntil.UTC().Format(time.RFC3339),
		})
		return nil, ErrAccountLocked
	}

	if !s.hasher.Verify(a.Secret, acct.CredentialHash) {
		return nil, s.rejectSecret(ctx, kind, key, meta, acct, identifier)
	}

	return s.complete(ctx, kind, key, a, acct, identifier)
}

// rejectSecret handles a wrong password for an existing account.
func (s *Service) rejectSecret(ctx context.Context, kind session.Kind, key ratelimit.Key, meta audit.Meta, acct *account.Account, identifier string) error {
	state, err := s.lockout.OnFailure(ctx, acct.ID)
	if err != nil {
		return s.storageFailure(ctx, kind, meta, "credential_store", err)
	}
	if err := s.limiter.Record(ctx, key); err != nil {
		return s.storageFailure(ctx, kind, meta, "rate_limiter", err)
	}

	if state.Engaged {
		metrics.RecordLockout(string(kind))
		logging.Ctx(ctx).Warn().
			Int64("account_id", acct.ID).
			Int("failed_attempts", state.FailedAttempts).
			Msg("Account locked")
		s.record(ctx, audit.EventAccountLocked, meta, map[string]interface{}{
			"kind":            string(kind),
			"account_id":      acct.ID,
			"identifier":      identifier,
			"failed_attempts": state.FailedAttempts,
			"locked_until":    state.LockedUntil.UTC().Format(time.RFC3339),
		})
	}

	metrics.RecordLoginAttempt(string(kind), "invalid_credentials")
	s.attempt(ctx, kind, meta, identifier, false, map[string]interface{}{
		"account_id":      acct.ID,
		"reason":          "invalid_password",
		"failed_attempts": state.FailedAttempts,
	})
	return ErrInvalidCredentials
}

// complete finishes a verified login: counters are cleared, every id the
// client held is destroyed, and fresh slot and transport records are issued.
func (s *Service) complete(ctx context.Context, kind session.Kind, key ratelimit.Key, a Attempt, acct *account.Account, identifier string) (*session.Record, error) {
	meta := a.meta()

	if err := s.lockout.OnSuccess(ctx, acct.ID); err != nil {
		return nil, s.storageFailure(ctx, kind, meta, "credential_store", err)
	}
	if err := s.limiter.Clear(ctx, key); err != nil {
		return nil, s.storageFailure(ctx, kind, meta, "rate_limiter", err)
	}

	s.maybeRehash(ctx, acct, a.Secret)
	if err := s.accounts.TouchLogin(ctx, acct.ID, s.now()); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("account_id", acct.ID).Msg("Failed to record last login")
	}

	principal := session.Principal{
		Kind:       kind,
		AccountID:  acct.ID,
		Identifier: acct.Identifier,
		Role:       acct.Role,
	}
	rec, err := s.sessions.Create(ctx, principal, a.IP, a.UserAgent, a.Client.Transport, a.Client.Slot(kind))
	if err != nil {
		return nil, s.storageFailure(ctx, kind, meta, "session_store", err)
	}
	a.Client.SetSlot(kind, rec.ID)

	transport, err := s.sessions.Begin(ctx, a.IP, a.UserAgent)
	if err != nil {
		return nil, s.storageFailure(ctx, kind, meta, "session_store", err)
	}
	a.Client.Transport = transport.ID

	metrics.RecordLoginAttempt(string(kind), "success")
	logging.Ctx(ctx).Info().
		Str("kind", string(kind)).
		Int64("account_id", acct.ID).
		Str("session", logging.SanitizeSessionID(rec.ID)).
		Msg("Login succeeded")
	s.attempt(ctx, kind, meta, identifier, true, map[string]interface{}{
		"account_id": acct.ID,
	})
	return rec, nil
}

// maybeRehash upgrades a legacy or weaker digest. Failures only cost the
// upgrade, never the login.
func (s *Service) maybeRehash(ctx context.Context, acct *account.Account, secret string) {
	if !s.hasher.NeedsRehash(acct.CredentialHash) {
		return
	}
	digest, err := s.hasher.Hash(secret)
	if err == nil {
		err = s.accounts.UpdateHash(ctx, acct.ID, digest)
	}
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Int64("account_id", acct.ID).Msg("Failed to upgrade password digest")
		return
	}
	logging.Ctx(ctx).Info().Int64("account_id", acct.ID).Msg("Password digest upgraded")
}

// Logout ends the kind slot of client. When no authenticated slot remains
// the transport session is destroyed as well.
func (s *Service) Logout(ctx context.Context, client *session.Client, kind session.Kind) error {
	meta := audit.Meta{IP: logging.ClientIPFromContext(ctx)}
	id := client.Slot(kind)

	var owner *session.Record
	if id != "" {
		rec, err := s.sessions.Get(ctx, id)
		switch {
		case err == nil && rec.Kind == kind:
			owner = rec
		case errors.Is(err, session.ErrUnavailable):
			return s.storageFailure(ctx, kind, meta, "session_store", err)
		}
	}

	if err := s.sessions.Logout(ctx, client, kind); err != nil {
		return s.storageFailure(ctx, kind, meta, "session_store", err)
	}
	if id != "" {
		data := map[string]interface{}{
			"kind":    string(kind),
			"session": logging.SanitizeSessionID(id),
		}
		if owner != nil {
			data["account_id"] = owner.AccountID
		}
		s.record(ctx, audit.EventLogout, meta, data)
	}
	return nil
}

// CurrentPrincipal validates the kind slot of client against ip. An
// invalid slot is cleared from client so its cookie can be expired.
func (s *Service) CurrentPrincipal(ctx context.Context, client *session.Client, kind session.Kind, ip string) (*Principal, error) {
	rec, err := s.sessions.Validate(ctx, client.Slot(kind), kind, ip)
	if err != nil {
		if client.Slot(kind) != "" && !errors.Is(err, session.ErrUnavailable) {
			client.SetSlot(kind, "")
		}
		return nil, s.mapSessionError(ctx, kind, ip, err)
	}

	if err := s.sessions.Touch(ctx, rec.ID); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("Failed to touch session")
	}

	role := ParseRole(rec.Role)
	if kind == session.KindCustomer {
		role = RoleCustomer
	}
	return &Principal{
		Kind:       kind,
		AccountID:  rec.AccountID,
		Identifier: rec.Identifier,
		Role:       role,
		RoleName:   role.String(),
		SessionID:  rec.ID,
	}, nil
}

// RequireRole resolves the admin principal of client and checks it against
// minRole. Insufficient privileges are audited and fail with ErrForbidden.
func (s *Service) RequireRole(ctx context.Context, client *session.Client, ip string, minRole Role) (*Principal, error) {
	p, err := s.CurrentPrincipal(ctx, client, session.KindAdmin, ip)
	if err != nil {
		return nil, err
	}
	if !p.Role.AtLeast(minRole) {
		s.record(ctx, audit.EventAccessDenied, audit.Meta{IP: ip}, map[string]interface{}{
			"account_id": p.AccountID,
			"role":       p.Role.String(),
			"required":   minRole.String(),
		})
		return p, ErrForbidden
	}
	return p, nil
}

// UnlockAccount clears the lock and failure counter of an account on
// behalf of actor.
func (s *Service) UnlockAccount(ctx context.Context, actor *Principal, accountID int64, meta audit.Meta) error {
	if _, err := s.accounts.Get(ctx, accountID); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return ErrUnknownAccount
		}
		return s.storageFailure(ctx, session.KindAdmin, meta, "credential_store", err)
	}
	if err := s.lockout.Unlock(ctx, accountID); err != nil {
		return s.storageFailure(ctx, session.KindAdmin, meta, "credential_store", err)
	}

	s.record(ctx, audit.EventAccountUnlocked, meta, map[string]interface{}{
		"account_id": accountID,
		"admin_id":   actor.AccountID,
	})
	err := s.audit.AdminAction(ctx, meta, actor.AccountID, "unlock_account", map[string]interface{}{
		"account_id": accountID,
	})
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("event", string(audit.EventAdminAction)).Msg("Failed to write audit event")
	}
	return nil
}

// LockedAccounts lists accounts whose lock has not elapsed.
func (s *Service) LockedAccounts(ctx context.Context) ([]account.Account, error) {
	accounts, err := s.lockout.Locked(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return accounts, nil
}

func (s *Service) mapSessionError(ctx context.Context, kind session.Kind, ip string, err error) error {
	switch {
	case errors.Is(err, session.ErrExpired):
		return ErrSessionExpired
	case errors.Is(err, session.ErrIPMismatch):
		return ErrSessionIPMismatch
	case errors.Is(err, session.ErrNotFound):
		return ErrSessionNotFound
	default:
		return s.storageFailure(ctx, kind, audit.Meta{IP: ip}, "session_store", err)
	}
}

// storageFailure audits a backend outage and returns ErrStorageUnavailable
// wrapping the cause.
func (s *Service) storageFailure(ctx context.Context, kind session.Kind, meta audit.Meta, component string, cause error) error {
	metrics.RecordLoginAttempt(string(kind), "error")
	logging.Ctx(ctx).Error().Err(cause).Str("component", component).Msg("Security storage unavailable")
	s.record(ctx, audit.EventStorageUnavailable, meta, map[string]interface{}{
		"component": component,
		"kind":      string(kind),
		"error":     cause.Error(),
	})
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, cause)
}

// attempt records the outcome of a login for kind.
func (s *Service) attempt(ctx context.Context, kind session.Kind, meta audit.Meta, identifier string, success bool, details map[string]interface{}) {
	if err := s.audit.AuthAttempt(ctx, meta, string(kind), identifier, success, details); err != nil {
		logging.Ctx(ctx).Error().Err(err).Bool("success", success).Msg("Failed to write login audit event")
	}
}

// record writes an audit event. A failed write is logged and does not
// change the outcome of the operation being audited.
func (s *Service) record(ctx context.Context, kind audit.EventKind, meta audit.Meta, data map[string]interface{}) {
	if err := s.audit.Record(ctx, kind, meta, data); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("event", string(kind)).Msg("Failed to write audit event")
	}
}
