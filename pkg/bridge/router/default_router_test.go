// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package router_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/toolgate/pkg/bridge"
	"github.com/stacklok/toolgate/pkg/bridge/config"
	"github.com/stacklok/toolgate/pkg/bridge/router"
	"github.com/stacklok/toolgate/pkg/bridge/session"
	"github.com/stacklok/toolgate/pkg/bridge/tenant"
	"github.com/stacklok/toolgate/pkg/bridge/workers"
)

var (
	tenantTok = "t-" + strings.Repeat("a", 30)
	workerTok = "w-" + strings.Repeat("b", 30)
	otherTok  = "w-" + strings.Repeat("c", 30)
	adminTok  = "adm-" + strings.Repeat("d", 30)
)

type sentFrame struct {
	sessionID string
	frame     *session.Frame
}

// fakeSender captures dispatched frames without a live session underneath.
type fakeSender struct {
	mu     sync.Mutex
	sent   []sentFrame
	err    error
	notify chan sentFrame
}

func newFakeSender() *fakeSender {
	return &fakeSender{notify: make(chan sentFrame, 16)}
}

func (s *fakeSender) Send(sessionID string, f *session.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentFrame{sessionID: sessionID, frame: f})
	s.notify <- sentFrame{sessionID: sessionID, frame: f}
	return nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func awaitDispatch(t *testing.T, s *fakeSender) sentFrame {
	t.Helper()
	select {
	case sf := <-s.notify:
		return sf
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a dispatched frame")
		return sentFrame{}
	}
}

type fixture struct {
	tenants *tenant.Registry
	workers *workers.Registry
	sender  *fakeSender
	router  *router.DefaultRouter
	tenant  *bridge.Tenant
}

func newFixture(t *testing.T, opts ...router.Option) *fixture {
	t.Helper()

	tr, err := tenant.NewRegistry([]config.APISpaceConfig{
		{
			Name:        "T1",
			BearerToken: tenantTok,
			// The tenant's own bearer doubles as a worker token so the
			// affinity path is reachable.
			AllowedClientTokens: []string{workerTok, tenantTok},
		},
	}, adminTok)
	require.NoError(t, err)

	wr := workers.NewRegistry()
	sender := newFakeSender()
	return &fixture{
		tenants: tr,
		workers: wr,
		sender:  sender,
		router:  router.NewDefaultRouter(tr, wr, sender, opts...),
		tenant:  tr.ByToken(tenantTok),
	}
}

func (f *fixture) addWorker(token, sessionID string, tools ...bridge.ToolSchema) string {
	id := bridge.WorkerID(token)
	f.workers.Upsert(id, token, tools, sessionID)
	return id
}

type invokeResult struct {
	result json.RawMessage
	err    error
}

func invokeAsync(f *fixture, ctx context.Context, toolName string, args map[string]any) <-chan invokeResult {
	ch := make(chan invokeResult, 1)
	go func() {
		result, err := f.router.Invoke(ctx, f.tenant, toolName, args)
		ch <- invokeResult{result: result, err: err}
	}()
	return ch
}

func awaitResult(t *testing.T, ch <-chan invokeResult) invokeResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the invocation to settle")
		return invokeResult{}
	}
}

func TestInvokeToolNotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(*fixture)
	}{
		{
			name:  "no workers at all",
			setup: func(*fixture) {},
		},
		{
			name: "worker is disconnected",
			setup: func(f *fixture) {
				f.addWorker(workerTok, "sess-1", bridge.ToolSchema{Name: "echo"})
				f.workers.MarkDisconnected(bridge.WorkerID(workerTok), "sess-1")
			},
		},
		{
			name: "worker not admitted by the tenant",
			setup: func(f *fixture) {
				f.addWorker(otherTok, "sess-1", bridge.ToolSchema{Name: "echo"})
			},
		},
		{
			name: "worker does not offer the tool",
			setup: func(f *fixture) {
				f.addWorker(workerTok, "sess-1", bridge.ToolSchema{Name: "fetch"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			tt.setup(f)

			_, err := f.router.Invoke(context.Background(), f.tenant, "echo", nil)
			assert.ErrorIs(t, err, bridge.ErrToolNotFound)
			assert.Zero(t, f.sender.count(), "nothing is dispatched for an unroutable tool")
		})
	}
}

func TestInvokeSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addWorker(workerTok, "sess-1", bridge.ToolSchema{Name: "echo"})

	ch := invokeAsync(f, context.Background(), "echo", map[string]any{"text": "hi"})

	sf := awaitDispatch(t, f.sender)
	assert.Equal(t, "sess-1", sf.sessionID)
	assert.Equal(t, session.TypeToolRequest, sf.frame.Type)
	assert.Equal(t, "echo", sf.frame.ToolName)
	assert.Equal(t, "hi", sf.frame.Args["text"])
	require.NotEmpty(t, sf.frame.RequestID)

	f.router.Complete(sf.frame.RequestID, json.RawMessage(`{"echoed":"hi"}`), "")

	out := awaitResult(t, ch)
	require.NoError(t, out.err)
	assert.JSONEq(t, `{"echoed":"hi"}`, string(out.result))
}

func TestInvokeWorkerError(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addWorker(workerTok, "sess-1", bridge.ToolSchema{Name: "echo"})

	ch := invokeAsync(f, context.Background(), "echo", nil)
	sf := awaitDispatch(t, f.sender)
	f.router.Complete(sf.frame.RequestID, nil, "bad input")

	out := awaitResult(t, ch)
	require.Error(t, out.err)
	assert.ErrorIs(t, out.err, bridge.ErrToolExecution)

	// The worker-supplied message survives verbatim.
	var execErr *bridge.ToolExecutionError
	require.ErrorAs(t, out.err, &execErr)
	assert.Equal(t, "bad input", execErr.Message)
}

func TestInvokeTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t, router.WithTimeout(40*time.Millisecond))
	f.addWorker(workerTok, "sess-1", bridge.ToolSchema{Name: "echo"})

	ch := invokeAsync(f, context.Background(), "echo", nil)
	sf := awaitDispatch(t, f.sender)

	out := awaitResult(t, ch)
	assert.ErrorIs(t, out.err, bridge.ErrTimeout)

	// A reply arriving after the deadline is dropped without effect.
	f.router.Complete(sf.frame.RequestID, json.RawMessage(`{}`), "")
}

func TestInvokeClientCancelled(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addWorker(workerTok, "sess-1", bridge.ToolSchema{Name: "echo"})

	ctx, cancel := context.WithCancel(context.Background())
	ch := invokeAsync(f, ctx, "echo", nil)
	awaitDispatch(t, f.sender)
	cancel()

	out := awaitResult(t, ch)
	assert.ErrorIs(t, out.err, bridge.ErrClientCancelled)
}

func TestInvokeSendFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addWorker(workerTok, "sess-1", bridge.ToolSchema{Name: "echo"})
	f.sender.err = errors.New("session gone")

	_, err := f.router.Invoke(context.Background(), f.tenant, "echo", nil)
	assert.ErrorIs(t, err, bridge.ErrWorkerDisconnected)
}

func TestFailSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addWorker(workerTok, "sess-1", bridge.ToolSchema{Name: "echo"})

	ch := invokeAsync(f, context.Background(), "echo", nil)
	awaitDispatch(t, f.sender)

	f.router.FailSession("sess-1", bridge.ErrWorkerReplaced)
	out := awaitResult(t, ch)
	assert.ErrorIs(t, out.err, bridge.ErrWorkerReplaced)

	// Invocations on other sessions are untouched.
	f.router.FailSession("sess-other", bridge.ErrWorkerDisconnected)
}

func TestDrain(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addWorker(workerTok, "sess-1", bridge.ToolSchema{Name: "echo"})

	ch := invokeAsync(f, context.Background(), "echo", nil)
	awaitDispatch(t, f.sender)

	f.router.Drain()
	out := awaitResult(t, ch)
	assert.ErrorIs(t, out.err, bridge.ErrServerShutdown)

	// New invocations are rejected once draining.
	_, err := f.router.Invoke(context.Background(), f.tenant, "echo", nil)
	assert.ErrorIs(t, err, bridge.ErrServerShutdown)
}

func TestSelectWorkerAffinity(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addWorker(workerTok, "sess-1", bridge.ToolSchema{Name: "echo"})
	// Registered second, but its id is the digest of the tenant's own
	// bearer token, so it wins.
	f.addWorker(tenantTok, "sess-2", bridge.ToolSchema{Name: "echo"})

	ch := invokeAsync(f, context.Background(), "echo", nil)
	sf := awaitDispatch(t, f.sender)
	assert.Equal(t, "sess-2", sf.sessionID)

	f.router.Complete(sf.frame.RequestID, json.RawMessage(`{}`), "")
	awaitResult(t, ch)
}

func TestSelectWorkerFirstRegistered(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addWorker(workerTok, "sess-1", bridge.ToolSchema{Name: "echo"})

	second := "w-" + strings.Repeat("e", 30)
	tr, err := tenant.NewRegistry([]config.APISpaceConfig{
		{Name: "T1", BearerToken: tenantTok, AllowedClientTokens: []string{workerTok, second}},
	}, adminTok)
	require.NoError(t, err)
	f.tenants = tr
	f.tenant = tr.ByToken(tenantTok)
	f.router = router.NewDefaultRouter(tr, f.workers, f.sender)
	f.addWorker(second, "sess-2", bridge.ToolSchema{Name: "echo"})

	ch := invokeAsync(f, context.Background(), "echo", nil)
	sf := awaitDispatch(t, f.sender)
	assert.Equal(t, "sess-1", sf.sessionID, "without affinity the earliest-registered worker wins")

	f.router.Complete(sf.frame.RequestID, json.RawMessage(`{}`), "")
	awaitResult(t, ch)
}

func TestArgumentValidation(t *testing.T) {
	t.Parallel()

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{"type": "string"},
		},
		"required": []any{"text"},
	}

	f := newFixture(t, router.WithTimeout(time.Second))
	f.addWorker(workerTok, "sess-1", bridge.ToolSchema{Name: "echo", Parameters: schema})

	// Missing required argument fails before dispatch.
	_, err := f.router.Invoke(context.Background(), f.tenant, "echo", map[string]any{})
	assert.ErrorIs(t, err, bridge.ErrInvalidPayload)
	assert.Contains(t, err.Error(), "text")
	assert.Zero(t, f.sender.count())

	// Wrong type fails too.
	_, err = f.router.Invoke(context.Background(), f.tenant, "echo", map[string]any{"text": 7})
	assert.ErrorIs(t, err, bridge.ErrInvalidPayload)

	// Valid arguments are dispatched.
	ch := invokeAsync(f, context.Background(), "echo", map[string]any{"text": "hi"})
	sf := awaitDispatch(t, f.sender)
	f.router.Complete(sf.frame.RequestID, json.RawMessage(`{}`), "")
	out := awaitResult(t, ch)
	assert.NoError(t, out.err)
}

func TestArgumentValidationSkippedForBadSchema(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.addWorker(workerTok, "sess-1", bridge.ToolSchema{
		Name: "echo",
		// Does not compile as JSON Schema; validation is skipped rather
		// than rejecting the call.
		Parameters: map[string]any{"type": 42},
	})

	ch := invokeAsync(f, context.Background(), "echo", map[string]any{"anything": true})
	sf := awaitDispatch(t, f.sender)
	f.router.Complete(sf.frame.RequestID, json.RawMessage(`{}`), "")
	out := awaitResult(t, ch)
	assert.NoError(t, out.err)
}
