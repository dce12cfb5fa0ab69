// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"encoding/json"
	"net/http"

	"github.com/stacklok/toolgate/pkg/logger"
)

// Stable error codes emitted by the authentication middleware.
const (
	CodeMissingAuthHeader = "MISSING_AUTH_HEADER"
	CodeInvalidAuthHeader = "INVALID_AUTH_HEADER"
	CodeInvalidToken      = "INVALID_TOKEN"
)

// RequireTenant is middleware for tenant-authenticated API routes. It
// rejects missing or malformed Authorization headers with 401 and unknown
// or non-tenant tokens with 403. On success the resolved tenant is bound to
// the request context for downstream handlers.
func (a *Authenticator) RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, present := BearerFromRequest(r)
		if !present {
			writeAuthError(w, http.StatusUnauthorized, "missing Authorization header", CodeMissingAuthHeader)
			return
		}
		if token == "" {
			writeAuthError(w, http.StatusUnauthorized, "Authorization header must be a bearer token", CodeInvalidAuthHeader)
			return
		}

		id := a.Classify(token)
		if id.Kind != KindTenant {
			// Admin tokens do not grant tenant API access.
			writeAuthError(w, http.StatusForbidden, "token does not grant access to this API", CodeInvalidToken)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), id.Tenant)))
	})
}

// writeAuthError emits the standard JSON error body. Tokens themselves are
// never echoed back or logged.
func writeAuthError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	}); err != nil {
		logger.Debugf("writing auth error response: %v", err)
	}
}
