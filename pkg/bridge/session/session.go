// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session implements the worker session layer: WebSocket upgrades,
// the JSON frame protocol, registration and claim semantics, keep-alive and
// connection lifecycle events.
//
// When a worker token reconnects, the new session commits the worker record
// before the displaced session is torn down; a session-id guard on the
// disconnect path keeps the teardown from unbinding the fresh record. The
// worker is therefore never observed as disconnected during a takeover.
package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stacklok/toolgate/pkg/bridge"
)

// Conn is the duplex message channel underneath a session. It is satisfied
// by a thin adapter over *websocket.Conn; tests substitute an in-memory pipe.
type Conn interface {
	// ReadMessage blocks for the next complete message.
	ReadMessage() ([]byte, error)

	// WriteMessage writes one complete message.
	WriteMessage(data []byte) error

	// SetReadDeadline bounds the next ReadMessage call.
	SetReadDeadline(t time.Time) error

	// Close tears down the channel, unblocking any pending read.
	// reason is best-effort and may be sent to the peer.
	Close(reason string) error
}

// wsConn adapts a gorilla WebSocket connection to Conn.
type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	return data, err
}

func (w *wsConn) WriteMessage(data []byte) error {
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) SetReadDeadline(t time.Time) error {
	return w.conn.SetReadDeadline(t)
}

func (w *wsConn) Close(reason string) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	deadline := time.Now().Add(time.Second)
	// Best effort; the peer may already be gone.
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	return w.conn.Close()
}

// Session is one live duplex channel to a worker. The zero value is not
// usable; sessions are created by the Manager on upgrade and destroyed on
// close. Session ids are never reused within a process lifetime.
type Session struct {
	id   string
	conn Conn

	// workerID is set once registration succeeds.
	workerID atomic.Value // string

	// writeMu serializes frames onto the channel.
	writeMu sync.Mutex

	// lastRecv is the unix-nano arrival time of the most recent frame.
	lastRecv atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(id string, conn Conn) *Session {
	s := &Session{
		id:     id,
		conn:   conn,
		closed: make(chan struct{}),
	}
	s.workerID.Store("")
	s.lastRecv.Store(time.Now().UnixNano())
	return s
}

// ID returns the server-local unique session id.
func (s *Session) ID() string {
	return s.id
}

// WorkerID returns the worker id claimed by this session, or "" before
// registration.
func (s *Session) WorkerID() string {
	v, _ := s.workerID.Load().(string)
	return v
}

func (s *Session) setWorkerID(id string) {
	s.workerID.Store(id)
}

// Send serializes the frame and writes it as one message. Writes to a single
// session are serialized; Send never blocks on anything but the transport.
func (s *Session) Send(f *Frame) error {
	select {
	case <-s.closed:
		return fmt.Errorf("%w: session %s is closed", bridge.ErrWorkerDisconnected, s.id)
	default:
	}

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling %s frame: %w", f.Type, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(data)
}

// Done is closed when the session has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

func (s *Session) touch() {
	s.lastRecv.Store(time.Now().UnixNano())
}

func (s *Session) lastActivity() time.Time {
	return time.Unix(0, s.lastRecv.Load())
}

// close tears down the underlying channel exactly once and reports whether
// this call was the one that closed it. Registry and router cleanup is the
// Manager's job; see Manager.closeSession.
func (s *Session) close(reason string) bool {
	closed := false
	s.closeOnce.Do(func() {
		closed = true
		close(s.closed)
		_ = s.conn.Close(reason)
	})
	return closed
}
