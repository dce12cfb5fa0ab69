// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package describe

import "encoding/json"

// maxDescriptionLen bounds every description string in a generated document.
// Downstream consumers reject longer strings.
const maxDescriptionLen = 300

// truncate shortens s to maxDescriptionLen characters total, replacing the
// tail with an ellipsis on overflow.
func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxDescriptionLen {
		return s
	}
	return string(runes[:maxDescriptionLen-3]) + "..."
}

// scalarKeys are schema keywords copied through unchanged. $ref, oneOf,
// allOf and anyOf are not interpreted by the generator; they are surfaced
// as-is and left for the consumer to reject or handle.
var scalarKeys = []string{
	"type", "format", "enum",
	"minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum",
	"minLength", "maxLength", "pattern",
	"minItems", "maxItems",
	"$ref", "oneOf", "allOf", "anyOf",
}

// sanitizeSchema normalizes a tool parameter or return schema into the
// JSON-Schema subset emitted in descriptions:
//
//   - descriptions truncated to 300 characters
//   - required always an array of strings (possibly empty), never an
//     object or a single string
//   - nested objects and array items sanitized recursively
//   - additionalProperties preserved (bool or sanitized schema)
//   - default values coerced to the declared type
//
// Sanitizing is idempotent: sanitize(sanitize(s)) == sanitize(s).
func sanitizeSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}

	out := make(map[string]any, len(schema))

	for _, k := range scalarKeys {
		if v, ok := schema[k]; ok {
			out[k] = v
		}
	}

	if desc, ok := schema["description"].(string); ok {
		out["description"] = truncate(desc)
	}

	if props, ok := schema["properties"].(map[string]any); ok {
		sanitized := make(map[string]any, len(props))
		for name, sub := range props {
			if subSchema, ok := sub.(map[string]any); ok {
				sanitized[name] = sanitizeSchema(subSchema)
			} else {
				sanitized[name] = sub
			}
		}
		out["properties"] = sanitized
	}

	if items, ok := schema["items"].(map[string]any); ok {
		out["items"] = sanitizeSchema(items)
	}

	if req, ok := schema["required"]; ok {
		out["required"] = requiredAsArray(req)
	}

	if ap, ok := schema["additionalProperties"]; ok {
		if apSchema, isSchema := ap.(map[string]any); isSchema {
			out["additionalProperties"] = sanitizeSchema(apSchema)
		} else {
			out["additionalProperties"] = ap
		}
	}

	if def, ok := schema["default"]; ok {
		declared, _ := out["type"].(string)
		out["default"] = coerceDefault(declared, def)
	}

	return out
}

// requiredAsArray normalizes the required keyword to an array of strings.
// Workers occasionally announce it as a single string or a map of names.
func requiredAsArray(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, e := range req {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{req}
	case map[string]any:
		out := make([]string, 0, len(req))
		for name := range req {
			out = append(out, name)
		}
		return out
	default:
		return []string{}
	}
}

// coerceDefault forces a default value to match the declared type so the
// document validates against strict consumers.
func coerceDefault(declaredType string, v any) any {
	switch declaredType {
	case "string":
		if s, ok := v.(string); ok {
			return s
		}
		return stringify(v)
	case "number", "integer":
		switch n := v.(type) {
		case float64, float32, int, int32, int64, uint, uint32, uint64:
			return n
		case string:
			return 0
		default:
			return 0
		}
	case "boolean":
		if b, ok := v.(bool); ok {
			return b
		}
		return false
	case "array":
		if a, ok := v.([]any); ok {
			return a
		}
		return []any{v}
	case "object":
		if o, ok := v.(map[string]any); ok {
			return o
		}
		return map[string]any{}
	default:
		return v
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	switch v.(type) {
	case nil:
		return ""
	default:
		// The value came out of a JSON document, so this is always a
		// number, bool, array or object literal.
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
