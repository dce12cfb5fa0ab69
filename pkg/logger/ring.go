// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// ringSize bounds the number of records kept for replay on the admin
// log stream. Older records are evicted first.
const ringSize = 256

// Entry is one captured log record.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// ring is the process-wide capture buffer fed by teeHandler.
var ring = &logRing{}

type logRing struct {
	mu      sync.Mutex
	entries []Entry
	start   int
	count   int
	subs    map[chan Entry]struct{}
}

func (r *logRing) append(e Entry) {
	r.mu.Lock()
	if r.entries == nil {
		r.entries = make([]Entry, ringSize)
		r.subs = make(map[chan Entry]struct{})
	}
	if r.count < ringSize {
		r.entries[(r.start+r.count)%ringSize] = e
		r.count++
	} else {
		r.entries[r.start] = e
		r.start = (r.start + 1) % ringSize
	}
	// Slow subscribers drop records rather than block the logger.
	for ch := range r.subs {
		select {
		case ch <- e:
		default:
		}
	}
	r.mu.Unlock()
}

func (r *logRing) recent() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.entries[(r.start+i)%ringSize])
	}
	return out
}

func (r *logRing) subscribe() (<-chan Entry, func()) {
	ch := make(chan Entry, 64)
	r.mu.Lock()
	if r.subs == nil {
		r.subs = make(map[chan Entry]struct{})
	}
	r.subs[ch] = struct{}{}
	r.mu.Unlock()
	cancel := func() {
		r.mu.Lock()
		delete(r.subs, ch)
		r.mu.Unlock()
	}
	return ch, cancel
}

// Recent returns the buffered log records, oldest first.
func Recent() []Entry {
	return ring.recent()
}

// Subscribe registers a listener for future log records. The returned cancel
// function must be called to release the subscription.
func Subscribe() (<-chan Entry, func()) {
	return ring.subscribe()
}

// teeHandler forwards records to the wrapped handler and mirrors them into
// the ring buffer. Attrs and groups are delegated unchanged; the captured
// line keeps only time, level and the formatted message.
type teeHandler struct {
	next slog.Handler
}

func (t *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return t.next.Enabled(ctx, level)
}

func (t *teeHandler) Handle(ctx context.Context, rec slog.Record) error {
	var sb strings.Builder
	sb.WriteString(rec.Message)
	rec.Attrs(func(a slog.Attr) bool {
		sb.WriteString(" ")
		sb.WriteString(a.String())
		return true
	})
	ring.append(Entry{
		Time:    rec.Time,
		Level:   rec.Level.String(),
		Message: sb.String(),
	})
	return t.next.Handle(ctx, rec)
}

func (t *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{next: t.next.WithAttrs(attrs)}
}

func (t *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{next: t.next.WithGroup(name)}
}
