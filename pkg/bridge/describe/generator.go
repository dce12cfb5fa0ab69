// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package describe generates per-tenant OpenAPI descriptions from the live
// worker state. A tenant's document lists exactly the tools of currently
// connected workers admitted into that tenant, deduplicated by tool name
// with first-come-wins ownership.
package describe

import (
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/toolgate/pkg/bridge"
	"github.com/stacklok/toolgate/pkg/bridge/workers"
	"github.com/stacklok/toolgate/pkg/logger"
)

const (
	openAPIVersion = "3.1.0"
	baseTitle      = "Toolgate"
	docBlurb       = "Tools exposed through the toolgate bridge. " +
		"Invoke a tool by POSTing a JSON object of named arguments to its path."
)

// Generator produces and caches per-tenant description documents. Cached
// documents are invalidated whenever the connected worker set changes; wire
// Invalidate into the session manager's change notifications.
type Generator struct {
	workers *workers.Registry

	version   string
	publicURL string

	mu    sync.Mutex
	gen   uint64
	cache map[string]*Document // keyed by tenant name

	// afterGenerate, when non-nil, runs between snapshot generation and
	// the cache store. Tests use it to interleave invalidations.
	afterGenerate func()
}

// NewGenerator creates a description generator. version is the bridge
// version reported in every document; publicURL is the servers-block entry.
func NewGenerator(wr *workers.Registry, version, publicURL string) *Generator {
	return &Generator{
		workers:   wr,
		version:   version,
		publicURL: publicURL,
		cache:     make(map[string]*Document),
	}
}

// Invalidate drops every cached document. Called on worker connect,
// disconnect and re-registration.
func (g *Generator) Invalidate() {
	g.mu.Lock()
	g.gen++
	g.cache = make(map[string]*Document)
	g.mu.Unlock()
	logger.Debug("description cache invalidated")
}

// Document returns the description document for one tenant, generating it
// if not cached. The returned document is shared; callers must not mutate it.
func (g *Generator) Document(t *bridge.Tenant) *Document {
	g.mu.Lock()
	if doc, ok := g.cache[t.Name]; ok {
		g.mu.Unlock()
		return doc
	}
	gen := g.gen
	g.mu.Unlock()

	doc := g.generate(t)
	if g.afterGenerate != nil {
		g.afterGenerate()
	}

	// An invalidation may land while generate snapshots the worker set. A
	// document built from the pre-invalidation snapshot must not be
	// committed, or it would be served until the next worker change.
	g.mu.Lock()
	if g.gen == gen {
		g.cache[t.Name] = doc
	}
	g.mu.Unlock()
	return doc
}

// JSON returns the tenant's description serialized as JSON.
func (g *Generator) JSON(t *bridge.Tenant) ([]byte, error) {
	data, err := json.MarshalIndent(g.Document(t), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializing description for tenant %s: %w", t.Name, err)
	}
	return data, nil
}

// YAML returns the tenant's description serialized as YAML. It is the same
// logical document as JSON.
func (g *Generator) YAML(t *bridge.Tenant) ([]byte, error) {
	data, err := yaml.Marshal(g.Document(t))
	if err != nil {
		return nil, fmt.Errorf("serializing description for tenant %s: %w", t.Name, err)
	}
	return data, nil
}

func (g *Generator) generate(t *bridge.Tenant) *Document {
	doc := &Document{
		OpenAPI: openAPIVersion,
		Info: Info{
			Title:       fmt.Sprintf("%s - %s", baseTitle, t.Name),
			Version:     g.version,
			Description: truncate(tenantDescription(t)),
		},
		Servers: []Server{{URL: g.publicURL}},
		Paths:   make(map[string]PathItem),
		Components: Components{
			SecuritySchemes: map[string]SecurityScheme{
				"bearerAuth": {Type: "http", Scheme: "bearer"},
			},
			Schemas: map[string]map[string]any{
				"Error": errorSchema(),
			},
		},
		Security: []map[string][]string{
			{"bearerAuth": {}},
		},
	}

	// Snapshot order is first-registration order, so iterating in order
	// and skipping already-claimed names yields first-come-wins
	// deduplication among still-connected workers.
	snapshot := g.workers.Snapshot()
	for i := range snapshot {
		w := &snapshot[i]
		if w.State != bridge.WorkerConnected || !t.Admits(w.Token) {
			continue
		}
		for j := range w.Tools {
			tool := &w.Tools[j]
			path := "/api/tools/" + tool.Name
			if _, claimed := doc.Paths[path]; claimed {
				continue
			}
			doc.Paths[path] = PathItem{Post: g.operation(tool)}
		}
	}

	return doc
}

func (g *Generator) operation(tool *bridge.ToolSchema) *Operation {
	op := &Operation{
		OperationID:     tool.Name,
		Description:     truncate(tool.Description),
		IsConsequential: false,
		Responses:       make(map[string]Response, 4),
	}

	params := sanitizeSchema(tool.Parameters)
	op.RequestBody = &RequestBody{
		Required: len(requiredOf(params)) > 0,
		Content: map[string]Media{
			"application/json": {Schema: params},
		},
	}

	var returns map[string]any
	if tool.Returns != nil {
		returns = sanitizeSchema(tool.Returns)
	} else {
		returns = map[string]any{"type": "object"}
	}
	op.Responses["200"] = Response{
		Description: "Tool result",
		Content: map[string]Media{
			"application/json": {Schema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"result": returns,
				},
			}},
		},
	}
	for _, status := range []string{"400", "404", "500"} {
		op.Responses[status] = errorResponse(status)
	}

	return op
}

func errorResponse(status string) Response {
	descriptions := map[string]string{
		"400": "Invalid arguments",
		"404": "Tool not found",
		"500": "Tool execution failed",
	}
	return Response{
		Description: descriptions[status],
		Content: map[string]Media{
			"application/json": {Schema: map[string]any{
				"$ref": "#/components/schemas/Error",
			}},
		},
	}
}

func errorSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"error": map[string]any{"type": "string"},
			"code":  map[string]any{"type": "string"},
		},
		"required": []string{"error", "code"},
	}
}

func tenantDescription(t *bridge.Tenant) string {
	if t.Description == "" {
		return docBlurb
	}
	return t.Description + "\n\n" + docBlurb
}

func requiredOf(schema map[string]any) []string {
	req, _ := schema["required"].([]string)
	return req
}
