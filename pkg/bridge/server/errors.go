// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/stacklok/toolgate/pkg/bridge"
	"github.com/stacklok/toolgate/pkg/logger"
)

// Stable error codes returned in API error bodies.
const (
	codeToolNotFound       = "TOOL_NOT_FOUND"
	codeToolExecutionError = "TOOL_EXECUTION_ERROR"
	codeTimeout            = "TIMEOUT"
	codeWorkerDisconnected = "WORKER_DISCONNECTED"
	codeWorkerReplaced     = "WORKER_REPLACED"
	codeInvalidPayload     = "INVALID_PAYLOAD"
	codeTenantUnknown      = "TENANT_UNKNOWN"
	codeServerShutdown     = "SERVER_SHUTDOWN"
	codeInternal           = "INTERNAL"
)

// statusCodeNoResponse marks client cancellation: the caller is gone, so no
// body is written (nginx's 499 convention).
const statusCodeNoResponse = 499

// errorStatus maps a domain error to its HTTP status and stable code.
func errorStatus(err error) (status int, code string) {
	switch {
	case errors.Is(err, bridge.ErrToolNotFound):
		return http.StatusNotFound, codeToolNotFound
	case errors.Is(err, bridge.ErrToolExecution):
		return http.StatusInternalServerError, codeToolExecutionError
	case errors.Is(err, bridge.ErrTimeout):
		return http.StatusGatewayTimeout, codeTimeout
	case errors.Is(err, bridge.ErrWorkerReplaced):
		return http.StatusBadGateway, codeWorkerReplaced
	case errors.Is(err, bridge.ErrWorkerDisconnected):
		return http.StatusBadGateway, codeWorkerDisconnected
	case errors.Is(err, bridge.ErrClientCancelled):
		return statusCodeNoResponse, ""
	case errors.Is(err, bridge.ErrInvalidPayload):
		return http.StatusBadRequest, codeInvalidPayload
	case errors.Is(err, bridge.ErrTenantUnknown):
		return http.StatusNotFound, codeTenantUnknown
	case errors.Is(err, bridge.ErrServerShutdown):
		return http.StatusServiceUnavailable, codeServerShutdown
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// writeDomainError maps err and writes the standard JSON error body.
// Client cancellations get no body; the connection is simply abandoned.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	if status == statusCodeNoResponse {
		return
	}
	// Internal details stay in the log; callers get the domain message.
	if code == codeInternal {
		logger.Errorf("internal error serving request: %v", err)
	}
	writeError(w, status, err.Error(), code)
}

// writeError writes the standard JSON error body used by every non-2xx
// response under /api/.
func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	}); err != nil {
		logger.Debugf("writing error response: %v", err)
	}
}
