// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package auth classifies incoming bearer tokens as tenant, admin or
// unknown, binds the resolved tenant to the request context and resolves
// public tenant hashes for description routes.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/stacklok/toolgate/pkg/bridge"
	"github.com/stacklok/toolgate/pkg/bridge/tenant"
)

// Kind is the classification of a bearer token.
type Kind int

const (
	// KindUnknown is a token matching neither a tenant nor the admin.
	KindUnknown Kind = iota
	// KindTenant is a tenant bearer token.
	KindTenant
	// KindAdmin is the admin token.
	KindAdmin
)

// Identity is the result of classifying a bearer token.
type Identity struct {
	Kind   Kind
	Tenant *bridge.Tenant // set only for KindTenant
}

// Authenticator classifies bearers against the tenant registry and the
// configured admin token. It is read-only after construction.
type Authenticator struct {
	tenants    *tenant.Registry
	adminToken string
}

// NewAuthenticator creates an authenticator over the tenant registry.
func NewAuthenticator(tenants *tenant.Registry, adminToken string) *Authenticator {
	return &Authenticator{tenants: tenants, adminToken: adminToken}
}

// Classify resolves a raw bearer token to an identity.
// The admin comparison is constant-time.
func (a *Authenticator) Classify(token string) Identity {
	if t := a.tenants.ByToken(token); t != nil {
		return Identity{Kind: KindTenant, Tenant: t}
	}
	if a.adminToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(a.adminToken)) == 1 {
		return Identity{Kind: KindAdmin}
	}
	return Identity{Kind: KindUnknown}
}

// TenantFromHash resolves the 16-hex public hash used in description URLs.
func (a *Authenticator) TenantFromHash(hash string) (*bridge.Tenant, error) {
	if t := a.tenants.ByHash(hash); t != nil {
		return t, nil
	}
	return nil, fmt.Errorf("%w: no tenant with hash %s", bridge.ErrTenantUnknown, hash)
}

// AdminToken returns the configured admin token. The admin facet uses it to
// derive and verify the session cookie value.
func (a *Authenticator) AdminToken() string {
	return a.adminToken
}

type contextKey struct{}

// tenantKey carries the resolved tenant through the request context.
var tenantKey = contextKey{}

// WithTenant returns a context carrying the resolved tenant.
func WithTenant(ctx context.Context, t *bridge.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// TenantFromContext returns the tenant bound by RequireTenant, or nil.
func TenantFromContext(ctx context.Context) *bridge.Tenant {
	t, _ := ctx.Value(tenantKey).(*bridge.Tenant)
	return t
}

// BearerFromRequest extracts the bearer token from the Authorization header.
// The second return reports whether the header was present at all, so
// callers can distinguish missing from malformed.
func BearerFromRequest(r *http.Request) (token string, present bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", true
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
