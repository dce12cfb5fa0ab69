// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package describe_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/toolgate/pkg/bridge"
	"github.com/stacklok/toolgate/pkg/bridge/describe"
	"github.com/stacklok/toolgate/pkg/bridge/workers"
)

var (
	tenantTok = "t-" + strings.Repeat("a", 30)
	workerTok = "w-" + strings.Repeat("b", 30)
	otherTok  = "w-" + strings.Repeat("c", 30)
)

const publicURL = "https://bridge.example.com"

func testTenant(description string) *bridge.Tenant {
	return &bridge.Tenant{
		Name:         "T1",
		Description:  description,
		BearerToken:  tenantTok,
		WorkerTokens: []string{workerTok},
	}
}

func addWorker(wr *workers.Registry, token, sessionID string, tools ...bridge.ToolSchema) {
	wr.Upsert(bridge.WorkerID(token), token, tools, sessionID)
}

func TestDocumentShape(t *testing.T) {
	t.Parallel()

	wr := workers.NewRegistry()
	addWorker(wr, workerTok, "sess-1", bridge.ToolSchema{
		Name:        "echo",
		Description: "echoes its input",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []any{"text"},
		},
		Returns: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"echoed": map[string]any{"type": "string"},
			},
		},
	})

	g := describe.NewGenerator(wr, "1.2.3", publicURL)
	doc := g.Document(testTenant("first tenant"))

	assert.Equal(t, "3.1.0", doc.OpenAPI)
	assert.Equal(t, "Toolgate - T1", doc.Info.Title)
	assert.Equal(t, "1.2.3", doc.Info.Version)
	assert.True(t, strings.HasPrefix(doc.Info.Description, "first tenant"))
	require.Len(t, doc.Servers, 1)
	assert.Equal(t, publicURL, doc.Servers[0].URL)

	scheme, ok := doc.Components.SecuritySchemes["bearerAuth"]
	require.True(t, ok)
	assert.Equal(t, "http", scheme.Type)
	assert.Equal(t, "bearer", scheme.Scheme)
	assert.Contains(t, doc.Components.Schemas, "Error")
	require.Len(t, doc.Security, 1)

	item, ok := doc.Paths["/api/tools/echo"]
	require.True(t, ok)
	require.NotNil(t, item.Post)
	op := item.Post
	assert.Equal(t, "echo", op.OperationID)
	assert.Equal(t, "echoes its input", op.Description)
	assert.False(t, op.IsConsequential)

	require.NotNil(t, op.RequestBody)
	assert.True(t, op.RequestBody.Required, "required properties make the body required")
	schema := op.RequestBody.Content["application/json"].Schema
	assert.Equal(t, []string{"text"}, schema["required"])

	for _, status := range []string{"200", "400", "404", "500"} {
		assert.Contains(t, op.Responses, status)
	}
	ok200 := op.Responses["200"].Content["application/json"].Schema
	props, _ := ok200["properties"].(map[string]any)
	require.Contains(t, props, "result")

	// The consequential marker must survive serialization under its
	// extension name.
	data, err := g.JSON(testTenant(""))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"x-openai-isConsequential": false`)
}

func TestDocumentEmptyTenantDescription(t *testing.T) {
	t.Parallel()

	g := describe.NewGenerator(workers.NewRegistry(), "dev", publicURL)
	doc := g.Document(testTenant(""))
	assert.NotEmpty(t, doc.Info.Description)
	assert.False(t, strings.HasPrefix(doc.Info.Description, "\n"))
}

func TestDocumentFiltersByTenant(t *testing.T) {
	t.Parallel()

	wr := workers.NewRegistry()
	addWorker(wr, workerTok, "sess-1", bridge.ToolSchema{Name: "echo"})
	// Not admitted by T1.
	addWorker(wr, otherTok, "sess-2", bridge.ToolSchema{Name: "secret"})

	g := describe.NewGenerator(wr, "dev", publicURL)
	doc := g.Document(testTenant(""))

	assert.Contains(t, doc.Paths, "/api/tools/echo")
	assert.NotContains(t, doc.Paths, "/api/tools/secret")
}

func TestDocumentExcludesDisconnectedWorkers(t *testing.T) {
	t.Parallel()

	wr := workers.NewRegistry()
	addWorker(wr, workerTok, "sess-1", bridge.ToolSchema{Name: "echo"})
	wr.MarkDisconnected(bridge.WorkerID(workerTok), "sess-1")

	g := describe.NewGenerator(wr, "dev", publicURL)
	doc := g.Document(testTenant(""))
	assert.Empty(t, doc.Paths)
}

func TestDocumentFirstComeWins(t *testing.T) {
	t.Parallel()

	second := "w-" + strings.Repeat("d", 30)
	tn := testTenant("")
	tn.WorkerTokens = []string{workerTok, second}

	wr := workers.NewRegistry()
	addWorker(wr, workerTok, "sess-1", bridge.ToolSchema{Name: "echo", Description: "first owner"})
	addWorker(wr, second, "sess-2",
		bridge.ToolSchema{Name: "echo", Description: "late duplicate"},
		bridge.ToolSchema{Name: "fetch"},
	)

	g := describe.NewGenerator(wr, "dev", publicURL)
	doc := g.Document(tn)

	require.Contains(t, doc.Paths, "/api/tools/echo")
	assert.Equal(t, "first owner", doc.Paths["/api/tools/echo"].Post.Description,
		"the first-registered worker owns a duplicated tool name")
	assert.Contains(t, doc.Paths, "/api/tools/fetch")
	assert.Len(t, doc.Paths, 2)
}

func TestDocumentCacheAndInvalidate(t *testing.T) {
	t.Parallel()

	wr := workers.NewRegistry()
	addWorker(wr, workerTok, "sess-1", bridge.ToolSchema{Name: "echo"})

	g := describe.NewGenerator(wr, "dev", publicURL)
	tn := testTenant("")

	first := g.Document(tn)
	assert.Same(t, first, g.Document(tn), "documents are cached per tenant")

	// A registry change without invalidation is not yet visible.
	addWorker(wr, workerTok, "sess-1", bridge.ToolSchema{Name: "echo"}, bridge.ToolSchema{Name: "fetch"})
	assert.Same(t, first, g.Document(tn))

	g.Invalidate()
	fresh := g.Document(tn)
	assert.NotSame(t, first, fresh)
	assert.Contains(t, fresh.Paths, "/api/tools/fetch")
}

func TestJSONAndYAMLAreLogicallyEqual(t *testing.T) {
	t.Parallel()

	wr := workers.NewRegistry()
	addWorker(wr, workerTok, "sess-1", bridge.ToolSchema{
		Name:        "echo",
		Description: "echoes its input",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text":  map[string]any{"type": "string", "default": "hi"},
				"count": map[string]any{"type": "integer", "minimum": 1},
			},
			"required": []any{"text"},
		},
	})

	g := describe.NewGenerator(wr, "dev", publicURL)
	tn := testTenant("first tenant")

	jsonData, err := g.JSON(tn)
	require.NoError(t, err)
	yamlData, err := g.YAML(tn)
	require.NoError(t, err)

	var fromJSON map[string]any
	require.NoError(t, json.Unmarshal(jsonData, &fromJSON))

	// Normalize the YAML decoding through a JSON round trip so numeric
	// types compare equal.
	var decoded any
	require.NoError(t, yaml.Unmarshal(yamlData, &decoded))
	reencoded, err := json.Marshal(decoded)
	require.NoError(t, err)
	var fromYAML map[string]any
	require.NoError(t, json.Unmarshal(reencoded, &fromYAML))

	assert.Empty(t, cmp.Diff(fromJSON, fromYAML))
}
