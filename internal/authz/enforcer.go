// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package authz

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/tomtom215/storeguard/internal/auth"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Config holds authorizer settings.
type Config struct {
	// PolicyPath is an optional policy CSV replacing the embedded table.
	PolicyPath string
}

// Authorizer resolves the minimum role for a route.
type Authorizer struct {
	enforcer *casbin.SyncedEnforcer
}

// New creates an Authorizer from the embedded model and either the
// embedded policy or cfg.PolicyPath.
func New(cfg Config) (*Authorizer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if cfg.PolicyPath != "" {
		if _, statErr := os.Stat(cfg.PolicyPath); statErr != nil {
			return nil, fmt.Errorf("policy file: %w", statErr)
		}
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	a := &Authorizer{enforcer: enforcer}
	if err := a.validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// loadEmbeddedPolicy parses the policy CSV line by line.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if parts[0] != "p" || len(parts) != 4 {
			return fmt.Errorf("malformed policy line %q", line)
		}
		if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
			return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
		}
	}
	return nil
}

// validate rejects policies naming roles outside the privilege scale.
func (a *Authorizer) validate() error {
	for _, rule := range a.Policy() {
		if len(rule) != 3 || auth.ParseRole(rule[2]) == auth.RoleNone {
			return fmt.Errorf("invalid policy rule %v", rule)
		}
	}
	return nil
}

// MinimumRole returns the least privileged role allowed to call method on
// path. Unmatched routes return auth.RoleNone.
func (a *Authorizer) MinimumRole(path, method string) (auth.Role, error) {
	matched, rule, err := a.enforcer.EnforceEx(path, method)
	if err != nil {
		return auth.RoleNone, fmt.Errorf("enforcement failed: %w", err)
	}
	if !matched || len(rule) < 3 {
		return auth.RoleNone, nil
	}
	return auth.ParseRole(rule[2]), nil
}

// Allowed reports whether p may call method on path.
func (a *Authorizer) Allowed(p *auth.Principal, path, method string) (bool, error) {
	if p == nil {
		return false, nil
	}
	minRole, err := a.MinimumRole(path, method)
	if err != nil {
		return false, err
	}
	allowed := p.Role.AtLeast(minRole)
	RecordDecision(p.Role.String(), method, allowed)
	return allowed, nil
}

// Policy returns all route rules.
func (a *Authorizer) Policy() [][]string {
	//nolint:errcheck // GetPolicy only fails if enforcer is nil, which is a programming error
	policies, _ := a.enforcer.GetPolicy()
	return policies
}
