// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/toolgate/pkg/bridge"
	"github.com/stacklok/toolgate/pkg/bridge/auth"
	"github.com/stacklok/toolgate/pkg/logger"
)

// maxArgsBody bounds tool invocation request bodies (1 MB).
const maxArgsBody = 1 << 20

// invokeTool handles POST /api/tools/{name}. The body is a JSON object of
// named arguments and may be empty. Query parameters are merged into the
// argument object; body keys win on conflict.
func (s *Server) invokeTool(w http.ResponseWriter, r *http.Request) {
	t := auth.TenantFromContext(r.Context())
	if t == nil {
		// RequireTenant guarantees a tenant; reaching here is a wiring bug.
		writeError(w, http.StatusForbidden, "no tenant bound to request", codeInternal)
		return
	}
	toolName := chi.URLParam(r, "name")

	args, err := parseArgs(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := s.router.Invoke(r.Context(), t, toolName, args)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		Result json.RawMessage `json:"result"`
	}{Result: result}); err != nil {
		logger.Debugf("writing invocation response: %v", err)
	}
}

// parseArgs builds the argument object from body and query string.
func parseArgs(r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxArgsBody))
	if err != nil {
		return nil, fmt.Errorf("%w: reading request body: %v", bridge.ErrInvalidPayload, err)
	}

	args := make(map[string]any)
	if len(body) > 0 {
		if err := json.Unmarshal(body, &args); err != nil {
			return nil, fmt.Errorf("%w: request body must be a JSON object", bridge.ErrInvalidPayload)
		}
	}

	for key, values := range r.URL.Query() {
		if _, exists := args[key]; exists || len(values) == 0 {
			continue
		}
		args[key] = values[0]
	}

	return args, nil
}

// description handles GET /openapi/{tenantHash}/{format}. These routes are
// unauthenticated: the tenant hash is the public-safe URL segment and no
// token material appears in the document.
func (s *Server) description(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hash := chi.URLParam(r, "tenantHash")
		t, err := s.auth.TenantFromHash(hash)
		if err != nil {
			writeDomainError(w, err)
			return
		}

		var data []byte
		var contentType string
		switch format {
		case "yaml":
			data, err = s.generator.YAML(t)
			contentType = "application/yaml"
		default:
			data, err = s.generator.JSON(t)
			contentType = "application/json"
		}
		if err != nil {
			writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(data)
	}
}

// health handles GET /health.
func (*Server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// corsMiddleware applies the permissive CORS policy of the API surface.
// Preflight requests are answered immediately.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverMiddleware converts handler panics into 500 responses so one bad
// request cannot take the process down.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Errorw("handler panic", "path", r.URL.Path, "panic", fmt.Sprint(rec))
				writeError(w, http.StatusInternalServerError, "internal server error", codeInternal)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
