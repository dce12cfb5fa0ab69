// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/stacklok/toolgate/pkg/logger"
)

// LogEvents streams recent and live log lines as server-sent events
// (GET /logs/events). The buffered history is replayed first, then the
// stream follows new records until the client disconnects.
func (*Facet) LogEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for _, entry := range logger.Recent() {
		writeEvent(w, entry)
	}
	flusher.Flush()

	events, cancel := logger.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case entry := <-events:
			writeEvent(w, entry)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, entry logger.Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
