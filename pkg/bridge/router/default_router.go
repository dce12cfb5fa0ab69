// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/toolgate/pkg/bridge"
	"github.com/stacklok/toolgate/pkg/bridge/config"
	"github.com/stacklok/toolgate/pkg/bridge/session"
	"github.com/stacklok/toolgate/pkg/bridge/tenant"
	"github.com/stacklok/toolgate/pkg/bridge/workers"
	"github.com/stacklok/toolgate/pkg/logger"
	"github.com/stacklok/toolgate/pkg/telemetry"
)

// outcome is the one-shot completion value of a pending invocation.
type outcome struct {
	result json.RawMessage
	err    error
}

// pendingInvocation tracks one dispatched tool_request. It holds a weak
// handle to the session (its id only); the registry side decides liveness.
type pendingInvocation struct {
	requestID string
	workerID  string
	sessionID string
	done      chan outcome // buffered, written exactly once
}

// DefaultRouter is the production Router. It also implements
// session.InvocationSink so the session layer can resolve pending
// invocations on matching tool_response frames and on session loss.
type DefaultRouter struct {
	tenants *tenant.Registry
	workers *workers.Registry
	sender  Sender

	timeout time.Duration

	mu       sync.Mutex
	pending  map[string]*pendingInvocation
	draining bool
}

// Option configures the default router.
type Option func(*DefaultRouter)

// WithTimeout overrides the per-invocation hard deadline.
func WithTimeout(d time.Duration) Option {
	return func(r *DefaultRouter) {
		r.timeout = d
	}
}

// NewDefaultRouter creates the production router over the given registries
// and session sender.
func NewDefaultRouter(tr *tenant.Registry, wr *workers.Registry, sender Sender, opts ...Option) *DefaultRouter {
	r := &DefaultRouter{
		tenants: tr,
		workers: wr,
		sender:  sender,
		timeout: config.DefaultInvokeTimeout,
		pending: make(map[string]*pendingInvocation),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Invoke implements Router.
func (r *DefaultRouter) Invoke(ctx context.Context, t *bridge.Tenant, toolName string, args map[string]any) (json.RawMessage, error) {
	start := time.Now()
	result, err := r.invoke(ctx, t, toolName, args)
	telemetry.InvocationDuration.Observe(time.Since(start).Seconds())
	telemetry.Invocations.WithLabelValues(t.Name, outcomeLabel(err)).Inc()
	return result, err
}

func (r *DefaultRouter) invoke(ctx context.Context, t *bridge.Tenant, toolName string, args map[string]any) (json.RawMessage, error) {
	worker, err := r.selectWorker(t, toolName)
	if err != nil {
		return nil, err
	}

	if schema := worker.Tool(toolName); schema != nil {
		if err := validateArgs(schema, args); err != nil {
			return nil, err
		}
	}

	inv := &pendingInvocation{
		requestID: uuid.NewString(),
		workerID:  worker.ID,
		sessionID: worker.SessionID,
		done:      make(chan outcome, 1),
	}

	r.mu.Lock()
	if r.draining {
		r.mu.Unlock()
		return nil, bridge.ErrServerShutdown
	}
	r.pending[inv.requestID] = inv
	r.mu.Unlock()

	frame := &session.Frame{
		Type:      session.TypeToolRequest,
		RequestID: inv.requestID,
		ToolName:  toolName,
		Args:      args,
	}
	if err := r.sender.Send(worker.SessionID, frame); err != nil {
		r.remove(inv.requestID)
		return nil, fmt.Errorf("%w: sending tool_request: %v", bridge.ErrWorkerDisconnected, err)
	}
	logger.Debugw("dispatched tool request",
		"request_id", inv.requestID, "tool", toolName, "tenant", t.Name, "worker_id", worker.ID[:12])

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case out := <-inv.done:
		return out.result, out.err
	case <-timer.C:
		r.remove(inv.requestID)
		return nil, fmt.Errorf("%w: no reply for %s within %s", bridge.ErrTimeout, toolName, r.timeout)
	case <-ctx.Done():
		r.remove(inv.requestID)
		return nil, fmt.Errorf("%w: %v", bridge.ErrClientCancelled, context.Cause(ctx))
	}
}

// selectWorker picks the worker to dispatch to: connected, admitted by the
// tenant and offering the tool. When several qualify, the worker whose id
// equals the digest of the tenant's own bearer token wins (stable affinity
// for self-tenant calls); otherwise the earliest-registered candidate.
func (r *DefaultRouter) selectWorker(t *bridge.Tenant, toolName string) (*bridge.WorkerRecord, error) {
	snapshot := r.workers.Snapshot()

	var candidates []*bridge.WorkerRecord
	for i := range snapshot {
		w := &snapshot[i]
		if w.State != bridge.WorkerConnected {
			continue
		}
		if !r.tenants.Admits(t, w.Token) {
			continue
		}
		if !w.HasTool(toolName) {
			continue
		}
		candidates = append(candidates, w)
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: tool %s not found in tenant %s", bridge.ErrToolNotFound, toolName, t.Name)
	}

	affinity := bridge.WorkerID(t.BearerToken)
	for _, w := range candidates {
		if w.ID == affinity {
			return w, nil
		}
	}
	// Snapshot order is first-registration order.
	return candidates[0], nil
}

// Complete implements session.InvocationSink. A reply with no pending entry
// is a late arrival after timeout or cancellation; it is logged and dropped.
func (r *DefaultRouter) Complete(requestID string, result json.RawMessage, workerErr string) {
	inv := r.remove(requestID)
	if inv == nil {
		logger.Warnw("dropping late tool_response", "request_id", requestID)
		return
	}

	if workerErr != "" {
		inv.done <- outcome{err: &bridge.ToolExecutionError{Message: workerErr}}
		return
	}
	inv.done <- outcome{result: result}
}

// FailSession implements session.InvocationSink.
func (r *DefaultRouter) FailSession(sessionID string, cause error) {
	r.mu.Lock()
	var failed []*pendingInvocation
	for id, inv := range r.pending {
		if inv.sessionID == sessionID {
			failed = append(failed, inv)
			delete(r.pending, id)
		}
	}
	r.mu.Unlock()

	for _, inv := range failed {
		inv.done <- outcome{err: cause}
	}
	if len(failed) > 0 {
		logger.Infow("failed pending invocations on session loss",
			"session_id", sessionID, "count", len(failed), "cause", cause.Error())
	}
}

// Drain rejects new invocations and fails every pending one with
// ErrServerShutdown. Called once during shutdown.
func (r *DefaultRouter) Drain() {
	r.mu.Lock()
	r.draining = true
	var open []*pendingInvocation
	for id, inv := range r.pending {
		open = append(open, inv)
		delete(r.pending, id)
	}
	r.mu.Unlock()

	for _, inv := range open {
		inv.done <- outcome{err: bridge.ErrServerShutdown}
	}
}

func (r *DefaultRouter) remove(requestID string) *pendingInvocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.pending[requestID]
	if !ok {
		return nil
	}
	delete(r.pending, requestID)
	return inv
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, bridge.ErrToolNotFound):
		return "not_found"
	case errors.Is(err, bridge.ErrToolExecution):
		return "tool_error"
	case errors.Is(err, bridge.ErrTimeout):
		return "timeout"
	case errors.Is(err, bridge.ErrWorkerReplaced):
		return "worker_replaced"
	case errors.Is(err, bridge.ErrWorkerDisconnected):
		return "worker_disconnected"
	case errors.Is(err, bridge.ErrClientCancelled):
		return "cancelled"
	case errors.Is(err, bridge.ErrInvalidPayload):
		return "invalid_args"
	default:
		return "error"
	}
}
