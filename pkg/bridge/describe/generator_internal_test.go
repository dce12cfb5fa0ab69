// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package describe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stacklok/toolgate/pkg/bridge"
	"github.com/stacklok/toolgate/pkg/bridge/workers"
)

func TestDocumentDiscardsResultBuiltBeforeInvalidation(t *testing.T) {
	t.Parallel()

	tenantTok := "t-" + strings.Repeat("d", 30)
	workerTok := "w-" + strings.Repeat("e", 30)
	tn := &bridge.Tenant{Name: "T1", BearerToken: tenantTok, WorkerTokens: []string{workerTok}}

	wr := workers.NewRegistry()
	g := NewGenerator(wr, "1.0.0", "https://bridge.example.com")

	// The worker connects after the document has been generated but before
	// it is stored, so the generated document does not list its tool.
	g.afterGenerate = func() {
		g.afterGenerate = nil
		wr.Upsert(bridge.WorkerID(workerTok), workerTok, []bridge.ToolSchema{{Name: "echo"}}, "sess-1")
		g.Invalidate()
	}

	stale := g.Document(tn)
	assert.Empty(t, stale.Paths, "the document predates the worker connect")

	// The stale document must not have been cached: the next call sees the
	// connected worker.
	fresh := g.Document(tn)
	assert.Contains(t, fresh.Paths, "/api/tools/echo")
}
