// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tenant implements the tenant registry: the immutable, startup-time
// index of API namespaces, their bearer tokens and their admitted worker
// tokens. The registry is read-only after construction and safe for
// concurrent use without locking.
package tenant

import (
	"fmt"

	"github.com/stacklok/toolgate/pkg/bridge"
	"github.com/stacklok/toolgate/pkg/bridge/config"
	"github.com/stacklok/toolgate/pkg/logger"
)

// Registry indexes tenants by bearer token, token hash and admitted worker
// token. Construction validates token uniqueness; a registry that constructs
// successfully never changes.
type Registry struct {
	// ordered preserves configuration order for stable listings.
	ordered []*bridge.Tenant

	byToken     map[string]*bridge.Tenant
	byHash      map[string]*bridge.Tenant
	byWorkerTok map[string][]*bridge.Tenant
}

// NewRegistry builds a registry from validated configuration.
// It fails when no tenants are configured or when tenant tokens (or their
// 16-hex hashes) collide with each other or with the admin token.
func NewRegistry(spaces []config.APISpaceConfig, adminToken string) (*Registry, error) {
	if len(spaces) == 0 {
		return nil, fmt.Errorf("%w: at least one tenant must be configured", bridge.ErrInvalidConfig)
	}

	r := &Registry{
		byToken:     make(map[string]*bridge.Tenant, len(spaces)),
		byHash:      make(map[string]*bridge.Tenant, len(spaces)),
		byWorkerTok: make(map[string][]*bridge.Tenant),
	}

	for _, space := range spaces {
		t := &bridge.Tenant{
			Name:         space.Name,
			Description:  space.Description,
			BearerToken:  space.BearerToken,
			WorkerTokens: append([]string(nil), space.AllowedClientTokens...),
		}

		if t.BearerToken == adminToken {
			return nil, fmt.Errorf("%w: tenant %q bearer token collides with the admin token", bridge.ErrInvalidConfig, t.Name)
		}
		if prev, dup := r.byToken[t.BearerToken]; dup {
			return nil, fmt.Errorf("%w: tenants %q and %q share a bearer token", bridge.ErrInvalidConfig, prev.Name, t.Name)
		}
		hash := bridge.TokenHash(t.BearerToken)
		if prev, dup := r.byHash[hash]; dup {
			return nil, fmt.Errorf("%w: tenants %q and %q collide on token hash %s", bridge.ErrInvalidConfig, prev.Name, t.Name, hash)
		}

		r.ordered = append(r.ordered, t)
		r.byToken[t.BearerToken] = t
		r.byHash[hash] = t
		seen := make(map[string]bool, len(t.WorkerTokens))
		for _, wt := range t.WorkerTokens {
			if seen[wt] {
				continue
			}
			seen[wt] = true
			r.byWorkerTok[wt] = append(r.byWorkerTok[wt], t)
		}
	}

	return r, nil
}

// ByToken resolves a tenant bearer token. Returns nil when unknown.
func (r *Registry) ByToken(token string) *bridge.Tenant {
	return r.byToken[token]
}

// ByHash resolves the first 16 hex characters of SHA-256(tenant token).
// Returns nil when unknown.
func (r *Registry) ByHash(hash string) *bridge.Tenant {
	return r.byHash[hash]
}

// Admitting returns the tenants that admit the given worker token, in
// configuration order. The returned slice must not be mutated.
func (r *Registry) Admitting(workerToken string) []*bridge.Tenant {
	return r.byWorkerTok[workerToken]
}

// Admits reports whether the tenant admits the given worker token.
func (r *Registry) Admits(t *bridge.Tenant, workerToken string) bool {
	return t != nil && t.Admits(workerToken)
}

// KnowsWorkerToken reports whether any tenant admits the given worker token.
func (r *Registry) KnowsWorkerToken(workerToken string) bool {
	return len(r.byWorkerTok[workerToken]) > 0
}

// List returns the tenants in configuration order.
// The returned slice must not be mutated.
func (r *Registry) List() []*bridge.Tenant {
	return r.ordered
}

// TokenHash returns the public-safe hash of the tenant's bearer token, used
// as the URL segment for its description routes.
func (*Registry) TokenHash(t *bridge.Tenant) string {
	return bridge.TokenHash(t.BearerToken)
}

// WarnOrphanedWorkerTokens logs a warning for any configured worker token
// that no tenant admits. Such a worker may connect but will never be
// dispatchable. With worker tokens defined inside apiSpaces this cannot
// happen today; the check guards future config shapes.
func (r *Registry) WarnOrphanedWorkerTokens(workerTokens []string) {
	for _, wt := range workerTokens {
		if !r.KnowsWorkerToken(wt) {
			logger.Warnf("worker token %s… is not admitted by any tenant and will never be dispatchable", bridge.TokenHash(wt)[:8])
		}
	}
}
