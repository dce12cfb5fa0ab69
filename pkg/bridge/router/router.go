// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package router implements the invocation router: it maps a (tenant, tool
// name) pair to a connected worker, forwards the call over the worker's
// session and awaits the correlated reply with a timeout.
package router

import (
	"context"
	"encoding/json"

	"github.com/stacklok/toolgate/pkg/bridge"
	"github.com/stacklok/toolgate/pkg/bridge/session"
)

// Router dispatches tool invocations to workers.
// Implementations must be safe for concurrent use.
type Router interface {
	// Invoke routes the named tool within the tenant to a connected,
	// admitted worker and blocks until the reply, the context, or the
	// invocation deadline, whichever comes first.
	//
	// Errors are drawn from the bridge taxonomy: ErrToolNotFound,
	// ErrInvalidPayload, ErrTimeout, ErrWorkerDisconnected,
	// ErrWorkerReplaced, ErrClientCancelled, ErrServerShutdown, and
	// ToolExecutionError for worker-reported failures. The router never
	// retries.
	Invoke(ctx context.Context, t *bridge.Tenant, toolName string, args map[string]any) (json.RawMessage, error)
}

// Sender transmits a frame over an identified session. The session manager
// implements it; the router holds session ids, never sessions, so liveness
// decisions stay on the registry side.
type Sender interface {
	Send(sessionID string, f *session.Frame) error
}
