// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// This file contains shared domain types used across multiple bridge subpackages.

// Tenant is an isolated API namespace with its own bearer token and a set of
// admitted worker tokens. Tenants are created from configuration at startup
// and are immutable thereafter.
type Tenant struct {
	// Name uniquely identifies the tenant. Never empty.
	Name string

	// Description is optional free text shown in the tenant's API description.
	Description string

	// BearerToken authenticates callers of this tenant's API namespace.
	BearerToken string

	// WorkerTokens is the set of worker tokens admitted into this tenant.
	WorkerTokens []string
}

// Admits reports whether the given worker token is admitted into the tenant.
func (t *Tenant) Admits(workerToken string) bool {
	for _, wt := range t.WorkerTokens {
		if wt == workerToken {
			return true
		}
	}
	return false
}

// ToolSchema describes one tool offered by a worker. The parameter schema is
// a JSON-Schema subset; $ref, oneOf, allOf and anyOf are not interpreted by
// the description generator and are surfaced as-is.
type ToolSchema struct {
	// Name uniquely identifies the tool within its worker.
	Name string `json:"name"`

	// Description is free text shown in the generated API description.
	Description string `json:"description,omitempty"`

	// Parameters is the input-parameter schema (type, properties, required,
	// items, enum, format, bounds).
	Parameters map[string]any `json:"parameters,omitempty"`

	// Returns optionally describes the tool's result.
	Returns map[string]any `json:"returns,omitempty"`
}

// ConnectionState describes whether a worker currently holds a live session.
type ConnectionState string

const (
	// WorkerConnected indicates the worker holds a live session.
	WorkerConnected ConnectionState = "connected"

	// WorkerDisconnected indicates the worker's last session has closed.
	WorkerDisconnected ConnectionState = "disconnected"
)

// WorkerRecord is the registry's view of one worker. Records are created on
// first successful registration and persist in memory for the process
// lifetime; only connected workers count for dispatch and description.
type WorkerRecord struct {
	// ID is derived deterministically from the worker token; see WorkerID.
	ID string

	// Token is the worker's own bearer token.
	Token string

	// Tools is the worker's current tool list, ordered as announced,
	// unique by name.
	Tools []ToolSchema

	// State is the connection state.
	State ConnectionState

	// SessionID is the id of the active session. Empty while disconnected.
	SessionID string

	// RegisteredAt is the time of the first successful registration.
	// It orders first-come-wins tool ownership.
	RegisteredAt time.Time

	// LastSeen is updated on every registration and disconnect.
	LastSeen time.Time
}

// HasTool reports whether the record's tool list contains the named tool.
func (w *WorkerRecord) HasTool(name string) bool {
	for i := range w.Tools {
		if w.Tools[i].Name == name {
			return true
		}
	}
	return false
}

// Tool returns the named tool schema, or nil if the worker does not offer it.
func (w *WorkerRecord) Tool(name string) *ToolSchema {
	for i := range w.Tools {
		if w.Tools[i].Name == name {
			return &w.Tools[i]
		}
	}
	return nil
}

// WorkerID derives the stable worker id from a worker token:
// the SHA-256 hex digest of the token bytes.
func WorkerID(workerToken string) string {
	sum := sha256.Sum256([]byte(workerToken))
	return hex.EncodeToString(sum[:])
}

// TokenHash returns the first 16 hex characters of the SHA-256 digest of a
// token. It is the public-safe URL segment for description routes and the
// admin session cookie value.
func TokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:16]
}
