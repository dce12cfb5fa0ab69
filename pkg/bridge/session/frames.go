// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"
	"fmt"

	"github.com/stacklok/toolgate/pkg/bridge"
)

// FrameType discriminates the closed set of session message variants.
type FrameType string

// Frame types exchanged on a worker session.
const (
	// TypeRegister announces a worker and its tool list (worker → server).
	TypeRegister FrameType = "register"

	// TypeUnregister asks the server to drop the worker (worker → server).
	TypeUnregister FrameType = "unregister"

	// TypeToolRequest dispatches a tool invocation (server → worker).
	TypeToolRequest FrameType = "tool_request"

	// TypeToolResponse carries an invocation result or error (worker → server).
	TypeToolResponse FrameType = "tool_response"

	// TypePing is a keep-alive probe (either direction).
	TypePing FrameType = "ping"

	// TypePong answers a ping (either direction).
	TypePong FrameType = "pong"

	// TypeError reports a protocol-level error (either direction).
	TypeError FrameType = "error"
)

// Frame is one JSON message on a worker session. The Type field selects
// which of the remaining fields are meaningful; everything else is omitted
// from the wire encoding.
type Frame struct {
	Type FrameType `json:"type"`

	// register / unregister
	WorkerID    string              `json:"worker_id,omitempty"`
	WorkerToken string              `json:"worker_token,omitempty"`
	Tools       []bridge.ToolSchema `json:"tools,omitempty"`

	// tool_request / tool_response
	RequestID string          `json:"request_id,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	Args      map[string]any  `json:"args,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`

	// ping / pong
	Timestamp int64 `json:"timestamp,omitempty"`

	// error
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// Validate checks the structural requirements of a frame for its type.
func (f *Frame) Validate() error {
	switch f.Type {
	case TypeRegister:
		if f.WorkerID == "" || f.WorkerToken == "" {
			return fmt.Errorf("%w: register requires worker_id and worker_token", bridge.ErrInvalidPayload)
		}
	case TypeUnregister:
		if f.WorkerID == "" {
			return fmt.Errorf("%w: unregister requires worker_id", bridge.ErrInvalidPayload)
		}
	case TypeToolRequest:
		if f.RequestID == "" || f.ToolName == "" {
			return fmt.Errorf("%w: tool_request requires request_id and tool_name", bridge.ErrInvalidPayload)
		}
	case TypeToolResponse:
		if f.RequestID == "" {
			return fmt.Errorf("%w: tool_response requires request_id", bridge.ErrInvalidPayload)
		}
	case TypePing, TypePong, TypeError:
	default:
		return fmt.Errorf("%w: unknown frame type %q", bridge.ErrInvalidPayload, f.Type)
	}
	return nil
}

// errorFrame builds a protocol error frame, optionally correlated to a
// request id.
func errorFrame(code, message, requestID string) *Frame {
	return &Frame{
		Type:      TypeError,
		Code:      code,
		Message:   message,
		RequestID: requestID,
	}
}
