// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stacklok/toolgate/pkg/bridge"
)

func TestErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{err: bridge.ErrToolNotFound, wantStatus: http.StatusNotFound, wantCode: codeToolNotFound},
		{err: &bridge.ToolExecutionError{Message: "boom"}, wantStatus: http.StatusInternalServerError, wantCode: codeToolExecutionError},
		{err: bridge.ErrTimeout, wantStatus: http.StatusGatewayTimeout, wantCode: codeTimeout},
		{err: bridge.ErrWorkerReplaced, wantStatus: http.StatusBadGateway, wantCode: codeWorkerReplaced},
		{err: bridge.ErrWorkerDisconnected, wantStatus: http.StatusBadGateway, wantCode: codeWorkerDisconnected},
		{err: bridge.ErrClientCancelled, wantStatus: statusCodeNoResponse, wantCode: ""},
		{err: bridge.ErrInvalidPayload, wantStatus: http.StatusBadRequest, wantCode: codeInvalidPayload},
		{err: bridge.ErrTenantUnknown, wantStatus: http.StatusNotFound, wantCode: codeTenantUnknown},
		{err: bridge.ErrServerShutdown, wantStatus: http.StatusServiceUnavailable, wantCode: codeServerShutdown},
		{err: errors.New("surprise"), wantStatus: http.StatusInternalServerError, wantCode: codeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			t.Parallel()

			// Wrapping must not change the mapping.
			status, code := errorStatus(fmt.Errorf("context: %w", tt.err))
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestWriteDomainErrorClientCancelled(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	writeDomainError(w, bridge.ErrClientCancelled)

	// No body is written for a caller that already went away.
	assert.Zero(t, w.Body.Len())
}
