// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/stacklok/toolgate/pkg/bridge"
	"github.com/stacklok/toolgate/pkg/bridge/config"
	"github.com/stacklok/toolgate/pkg/bridge/tenant"
	"github.com/stacklok/toolgate/pkg/bridge/workers"
	"github.com/stacklok/toolgate/pkg/logger"
	"github.com/stacklok/toolgate/pkg/telemetry"
)

// InvocationSink receives invocation outcomes discovered by the session
// layer: matched tool_response frames and session loss. The invocation
// router implements it.
type InvocationSink interface {
	// Complete resolves the pending invocation with the given request id.
	// Exactly one of result or workerErr is meaningful; workerErr carries
	// the worker-supplied error string when non-empty.
	Complete(requestID string, result json.RawMessage, workerErr string)

	// FailSession fails every pending invocation routed through the
	// given session with the given cause.
	FailSession(sessionID string, cause error)
}

// Manager accepts worker session upgrades and owns all live sessions. It
// validates registration, enforces claim-wins replacement, runs keep-alive
// and propagates connection lifecycle to the worker registry and the
// invocation sink.
type Manager struct {
	tenants *tenant.Registry
	workers *workers.Registry

	mu        sync.Mutex
	sessions  map[string]*Session
	accepting bool
	listeners []func()

	sink InvocationSink

	upgrader websocket.Upgrader

	handshakeWindow time.Duration
	pingInterval    time.Duration
	pongTimeout     time.Duration

	wg sync.WaitGroup
}

// Option configures the session manager.
type Option func(*Manager)

// WithTimings overrides the handshake window and keep-alive cadence.
// Used by tests; production keeps the protocol defaults.
func WithTimings(handshake, ping, pong time.Duration) Option {
	return func(m *Manager) {
		m.handshakeWindow = handshake
		m.pingInterval = ping
		m.pongTimeout = pong
	}
}

// NewManager creates a session manager over the given registries.
// SetInvocationSink must be called before the first upgrade is served.
func NewManager(tenants *tenant.Registry, wr *workers.Registry, opts ...Option) *Manager {
	m := &Manager{
		tenants:   tenants,
		workers:   wr,
		sessions:  make(map[string]*Session),
		accepting: true,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Workers authenticate with bearer tokens, not cookies,
			// so cross-origin upgrades are safe to accept.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		handshakeWindow: config.HandshakeWindow,
		pingInterval:    config.KeepAliveInterval,
		pongTimeout:     config.PongTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetInvocationSink wires the invocation router into the session layer.
func (m *Manager) SetInvocationSink(sink InvocationSink) {
	m.sink = sink
}

// OnChange registers a listener invoked after every change to the connected
// worker set (register, re-register, disconnect). The description cache
// subscribes here.
func (m *Manager) OnChange(fn func()) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

func (m *Manager) notifyChange() {
	m.mu.Lock()
	listeners := append([]func(){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// HandleUpgrade is the HTTP handler for the worker session endpoint. The
// upgrade is rejected when no bearer token is presented; full authentication
// happens at register time.
func (m *Manager) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	bearer := bearerToken(r)
	if bearer == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	m.mu.Lock()
	accepting := m.accepting
	m.mu.Unlock()
	if !accepting {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logger.Debugf("session upgrade failed: %v", err)
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.ServeConn(&wsConn{conn: conn}, bearer)
	}()
}

// ServeConn runs one session over an already-established channel and blocks
// until it closes. It backs HandleUpgrade; tests drive it directly over
// in-memory pipes.
func (m *Manager) ServeConn(conn Conn, bearer string) {
	sess := newSession(uuid.NewString(), conn)

	// Re-check accepting while holding the lock: a connection racing
	// Shutdown must not slip into the session set after the open sessions
	// have been snapshotted, or it would never be closed.
	m.mu.Lock()
	if !m.accepting {
		m.mu.Unlock()
		_ = sess.close("server shutting down")
		return
	}
	m.sessions[sess.id] = sess
	m.mu.Unlock()
	telemetry.SessionsOpened.Inc()

	m.runSession(sess, bearer)
}

// Send writes a frame to the identified session. It returns
// ErrWorkerDisconnected when the session is gone.
func (m *Manager) Send(sessionID string, f *Frame) error {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no session %s", bridge.ErrWorkerDisconnected, sessionID)
	}
	return sess.Send(f)
}

// Shutdown stops accepting upgrades and closes every session with a normal
// close reason. Pending invocations fail with the given cause.
func (m *Manager) Shutdown(ctx context.Context, cause error) {
	m.mu.Lock()
	m.accepting = false
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		m.closeSession(s, "server shutdown", cause)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("timed out waiting for session goroutines to exit")
	}
}

// runSession drives one session: handshake, then the read loop and the
// keep-alive pinger.
func (m *Manager) runSession(sess *Session, bearer string) {
	if err := m.handshake(sess, bearer); err != nil {
		logger.Infow("session rejected", "session_id", sess.id, "reason", err.Error())
		_ = sess.Send(errorFrame("REGISTRATION_REJECTED", err.Error(), ""))
		m.closeSession(sess, "registration rejected", bridge.ErrWorkerDisconnected)
		return
	}

	stopPing := make(chan struct{})
	defer close(stopPing)
	go m.keepAlive(sess, stopPing)

	m.readLoop(sess)
	m.closeSession(sess, "read loop ended", bridge.ErrWorkerDisconnected)
}

// handshake enforces that the first frame is a valid register within the
// handshake window, authenticates the worker and commits it to the registry.
func (m *Manager) handshake(sess *Session, bearer string) error {
	_ = sess.conn.SetReadDeadline(time.Now().Add(m.handshakeWindow))

	data, err := sess.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("no register frame within handshake window")
	}
	sess.touch()

	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("malformed first frame")
	}
	if f.Type != TypeRegister {
		return fmt.Errorf("first frame must be register, got %q", f.Type)
	}
	if err := f.Validate(); err != nil {
		return err
	}
	if err := m.register(sess, bearer, &f); err != nil {
		return err
	}

	// The keep-alive pinger is the liveness authority from here on.
	_ = sess.conn.SetReadDeadline(time.Time{})
	return nil
}

// register authenticates a register frame and commits the worker record.
// Workers authenticate with their own token: it must match the bearer
// presented at upgrade and be admitted by at least one configured tenant.
// The claimed worker id must equal the SHA-256 hex of the token.
func (m *Manager) register(sess *Session, bearer string, f *Frame) error {
	if f.WorkerToken != bearer {
		return fmt.Errorf("worker token does not match upgrade bearer")
	}
	if !m.tenants.KnowsWorkerToken(f.WorkerToken) {
		return fmt.Errorf("worker token is not admitted by any tenant")
	}
	if want := bridge.WorkerID(f.WorkerToken); f.WorkerID != want {
		return fmt.Errorf("worker id does not match token digest")
	}

	previous := m.workers.Upsert(f.WorkerID, f.WorkerToken, f.Tools, sess.id)
	sess.setWorkerID(f.WorkerID)

	if previous != "" && previous != sess.id {
		// Claim-wins: the newer session owns the worker id. The
		// session-id guard in MarkDisconnected keeps the record bound
		// to us while the old session tears down.
		m.mu.Lock()
		old, ok := m.sessions[previous]
		m.mu.Unlock()
		if ok {
			logger.Infow("worker session replaced",
				"worker_id", f.WorkerID[:12], "old_session", previous, "new_session", sess.id)
			m.closeSession(old, "replaced", bridge.ErrWorkerReplaced)
		}
	}

	m.notifyChange()
	return nil
}

// readLoop consumes frames until the channel errors. Unknown frame types are
// answered with an error frame and otherwise ignored.
func (m *Manager) readLoop(sess *Session) {
	for {
		data, err := sess.conn.ReadMessage()
		if err != nil {
			select {
			case <-sess.Done():
			default:
				logger.Debugw("session read error", "session_id", sess.id, "error", err.Error())
			}
			return
		}
		sess.touch()

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			_ = sess.Send(errorFrame("MALFORMED_FRAME", "frame is not a JSON object", ""))
			continue
		}

		switch f.Type {
		case TypeToolResponse:
			if f.RequestID == "" {
				_ = sess.Send(errorFrame("MALFORMED_FRAME", "tool_response requires request_id", ""))
				continue
			}
			m.sink.Complete(f.RequestID, f.Result, f.Error)

		case TypePing:
			_ = sess.Send(&Frame{Type: TypePong, Timestamp: f.Timestamp})

		case TypePong:
			// Activity already recorded by touch.

		case TypeRegister:
			// A repeat register on the same session refreshes the
			// tool list.
			if err := f.Validate(); err != nil {
				_ = sess.Send(errorFrame("MALFORMED_FRAME", err.Error(), ""))
				continue
			}
			if f.WorkerID != sess.WorkerID() {
				_ = sess.Send(errorFrame("REGISTRATION_REJECTED", "worker id may not change within a session", ""))
				continue
			}
			m.workers.Upsert(f.WorkerID, f.WorkerToken, f.Tools, sess.id)
			m.notifyChange()

		case TypeUnregister:
			if f.WorkerID != sess.WorkerID() {
				_ = sess.Send(errorFrame("UNKNOWN_WORKER", "unregister for a different worker id", ""))
				continue
			}
			m.closeSession(sess, "unregistered", bridge.ErrWorkerDisconnected)
			return

		case TypeToolRequest, TypeError:
			// tool_request is server→worker only; inbound copies and
			// peer error reports are logged and dropped.
			logger.Debugw("ignoring inbound frame", "session_id", sess.id, "type", string(f.Type))

		default:
			_ = sess.Send(errorFrame("UNKNOWN_TYPE", fmt.Sprintf("unknown frame type %q", f.Type), f.RequestID))
		}
	}
}

// keepAlive pings the session every pingInterval and terminates it when no
// frame arrives within pongTimeout of a ping.
func (m *Manager) keepAlive(sess *Session, stop <-chan struct{}) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-sess.Done():
			return
		case <-ticker.C:
		}

		pingAt := time.Now()
		if err := sess.Send(&Frame{Type: TypePing, Timestamp: pingAt.UnixMilli()}); err != nil {
			return
		}

		select {
		case <-stop:
			return
		case <-sess.Done():
			return
		case <-time.After(m.pongTimeout):
			if sess.lastActivity().Before(pingAt) {
				logger.Warnw("keep-alive timeout", "session_id", sess.id, "worker_id", sess.WorkerID())
				m.closeSession(sess, "keep-alive timeout", bridge.ErrWorkerDisconnected)
				return
			}
		}
	}
}

// closeSession tears a session down: the worker record is marked
// disconnected (subject to the session-id guard), pending invocations
// routed through the session fail with the given cause, and change
// listeners fire.
func (m *Manager) closeSession(sess *Session, reason string, cause error) {
	if !sess.close(reason) {
		return
	}

	m.mu.Lock()
	delete(m.sessions, sess.id)
	m.mu.Unlock()

	if workerID := sess.WorkerID(); workerID != "" {
		if m.workers.MarkDisconnected(workerID, sess.id) {
			m.notifyChange()
		}
	}
	if m.sink != nil {
		m.sink.FailSession(sess.id, cause)
	}
	logger.Infow("session closed", "session_id", sess.id, "reason", reason)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}
