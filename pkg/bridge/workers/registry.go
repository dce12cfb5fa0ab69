// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package workers implements the worker registry: the single-writer record
// of every worker that has ever registered in this process, its offered
// tools and its connection state.
//
// Records are never destroyed; a worker that disconnects stays in the
// registry as history, but only connected workers count for dispatch and
// description generation. Readers operate on deep-copied snapshots and need
// no further locking.
package workers

import (
	"sync"
	"time"

	"github.com/stacklok/toolgate/pkg/bridge"
	"github.com/stacklok/toolgate/pkg/logger"
	"github.com/stacklok/toolgate/pkg/telemetry"
)

// Registry owns all worker records. All mutations are serialized behind one
// mutex; Snapshot returns an immutable copy for lock-free reads.
type Registry struct {
	mu sync.Mutex

	// records is keyed by worker id. order preserves first-registration
	// order for first-come-wins tool ownership.
	records map[string]*bridge.WorkerRecord
	order   []string

	clock func() time.Time
}

// NewRegistry creates an empty worker registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*bridge.WorkerRecord),
		clock:   time.Now,
	}
}

// Upsert transitions the worker record to connected, replaces its tool list
// atomically and binds it to the given session id. The record is created on
// first registration.
//
// It returns the session id the record was previously bound to, or "" when
// the worker was not connected. The caller uses it to close a replaced
// session before handing out the new one.
func (r *Registry) Upsert(workerID, workerToken string, tools []bridge.ToolSchema, sessionID string) (previousSession string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	rec, ok := r.records[workerID]
	if !ok {
		rec = &bridge.WorkerRecord{
			ID:           workerID,
			Token:        workerToken,
			RegisteredAt: now,
		}
		r.records[workerID] = rec
		r.order = append(r.order, workerID)
		logger.Infow("worker registered", "worker_id", shortID(workerID), "tools", len(tools))
	} else {
		logger.Debugw("worker re-registered", "worker_id", shortID(workerID), "tools", len(tools))
	}

	if rec.State == bridge.WorkerConnected && rec.SessionID != sessionID {
		previousSession = rec.SessionID
	}
	if rec.State != bridge.WorkerConnected {
		telemetry.ConnectedWorkers.Inc()
	}

	rec.Tools = append([]bridge.ToolSchema(nil), tools...)
	rec.State = bridge.WorkerConnected
	rec.SessionID = sessionID
	rec.LastSeen = now

	return previousSession
}

// MarkDisconnected transitions the record to disconnected, but only when its
// current session id equals the argument. The guard discards stale closes
// arriving after the worker was claimed by a newer session.
func (r *Registry) MarkDisconnected(workerID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[workerID]
	if !ok || rec.SessionID != sessionID || rec.State != bridge.WorkerConnected {
		return false
	}

	rec.State = bridge.WorkerDisconnected
	rec.SessionID = ""
	rec.LastSeen = r.clock()
	telemetry.ConnectedWorkers.Dec()
	logger.Infow("worker disconnected", "worker_id", shortID(workerID))
	return true
}

// Snapshot returns a deep copy of all records in first-registration order.
// The copy is safe to read without locking and never mutated by the registry.
func (r *Registry) Snapshot() []bridge.WorkerRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]bridge.WorkerRecord, 0, len(r.order))
	for _, id := range r.order {
		rec := r.records[id]
		cp := *rec
		cp.Tools = append([]bridge.ToolSchema(nil), rec.Tools...)
		out = append(out, cp)
	}
	return out
}

// Get returns a copy of one record, or false when the worker has never
// registered.
func (r *Registry) Get(workerID string) (bridge.WorkerRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[workerID]
	if !ok {
		return bridge.WorkerRecord{}, false
	}
	cp := *rec
	cp.Tools = append([]bridge.ToolSchema(nil), rec.Tools...)
	return cp, true
}

// ConnectedCount returns the number of currently connected workers.
func (r *Registry) ConnectedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, rec := range r.records {
		if rec.State == bridge.WorkerConnected {
			n++
		}
	}
	return n
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
