// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package describe

// The OpenAPI document model. Only the subset the bridge emits is modeled;
// schemas themselves stay as generic maps produced by sanitizeSchema. JSON
// and YAML serializations of one Document are logically identical.

// Document is one per-tenant OpenAPI description.
type Document struct {
	OpenAPI    string                `json:"openapi" yaml:"openapi"`
	Info       Info                  `json:"info" yaml:"info"`
	Servers    []Server              `json:"servers" yaml:"servers"`
	Paths      map[string]PathItem   `json:"paths" yaml:"paths"`
	Components Components            `json:"components" yaml:"components"`
	Security   []map[string][]string `json:"security" yaml:"security"`
}

// Info is the document info block.
type Info struct {
	Title       string `json:"title" yaml:"title"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description" yaml:"description"`
}

// Server is one entry of the servers block.
type Server struct {
	URL string `json:"url" yaml:"url"`
}

// PathItem holds the operations of one path. Tool paths only ever carry POST.
type PathItem struct {
	Post *Operation `json:"post,omitempty" yaml:"post,omitempty"`
}

// Operation is one POST tool operation.
type Operation struct {
	OperationID string              `json:"operationId" yaml:"operationId"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	RequestBody *RequestBody        `json:"requestBody,omitempty" yaml:"requestBody,omitempty"`
	Responses   map[string]Response `json:"responses" yaml:"responses"`

	// IsConsequential marks the operation as non-state-changing for
	// consumers that gate side-effecting calls behind confirmation.
	IsConsequential bool `json:"x-openai-isConsequential" yaml:"x-openai-isConsequential"`
}

// RequestBody is an application/json request body.
type RequestBody struct {
	Required bool             `json:"required" yaml:"required"`
	Content  map[string]Media `json:"content" yaml:"content"`
}

// Media wraps a schema under a content type.
type Media struct {
	Schema map[string]any `json:"schema" yaml:"schema"`
}

// Response is one response entry. Either Content or Ref is set.
type Response struct {
	Description string           `json:"description" yaml:"description"`
	Content     map[string]Media `json:"content,omitempty" yaml:"content,omitempty"`
}

// Components declares the shared security scheme and error schema.
type Components struct {
	SecuritySchemes map[string]SecurityScheme `json:"securitySchemes" yaml:"securitySchemes"`
	Schemas         map[string]map[string]any `json:"schemas" yaml:"schemas"`
}

// SecurityScheme is the bearer scheme declaration.
type SecurityScheme struct {
	Type   string `json:"type" yaml:"type"`
	Scheme string `json:"scheme" yaml:"scheme"`
}
