// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import "errors"

// Common domain errors used across bridge subpackages.
// These errors should be checked using errors.Is().

var (
	// ErrInvalidConfig indicates invalid configuration was provided.
	// Wrapping errors should provide specific details about what is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnauthenticated indicates a request without usable credentials.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden indicates credentials that do not grant the requested access.
	ErrForbidden = errors.New("forbidden")

	// ErrTenantUnknown indicates a tenant hash or token that resolves to no tenant.
	ErrTenantUnknown = errors.New("unknown tenant")

	// ErrToolNotFound indicates no connected, admitted worker offers the tool.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolExecution indicates the worker replied with an error frame.
	// The wrapping error carries the worker-supplied message.
	ErrToolExecution = errors.New("tool execution failed")

	// ErrTimeout indicates an invocation exceeded its deadline.
	ErrTimeout = errors.New("invocation timed out")

	// ErrWorkerDisconnected indicates the worker session was lost before a reply.
	ErrWorkerDisconnected = errors.New("worker disconnected")

	// ErrWorkerReplaced indicates the worker session was replaced by a newer
	// session for the same worker id before a reply arrived.
	ErrWorkerReplaced = errors.New("worker replaced")

	// ErrClientCancelled indicates the HTTP caller went away before the reply.
	ErrClientCancelled = errors.New("client cancelled")

	// ErrInvalidPayload indicates malformed JSON or a frame in the wrong state.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrServerShutdown indicates the invocation was aborted by process shutdown.
	ErrServerShutdown = errors.New("server shutting down")
)

// ToolExecutionError carries the worker-supplied error string verbatim so
// the HTTP surface can return it unchanged. errors.Is matches it against
// ErrToolExecution.
type ToolExecutionError struct {
	// Message is the error string from the worker's tool_response frame.
	Message string
}

func (e *ToolExecutionError) Error() string {
	return e.Message
}

// Is reports a match against ErrToolExecution.
func (*ToolExecutionError) Is(target error) bool {
	return target == ErrToolExecution
}
