// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/stacklok/toolgate/pkg/bridge"
	"github.com/stacklok/toolgate/pkg/logger"
)

// validateArgs checks the invocation arguments against the tool's declared
// parameter schema before dispatch, so schema violations fail fast at the
// bridge instead of round-tripping to the worker.
//
// A schema that fails to compile (workers may announce constructs outside
// the supported JSON-Schema subset) disables validation for that call rather
// than reject it.
func validateArgs(tool *bridge.ToolSchema, args map[string]any) error {
	if len(tool.Parameters) == 0 {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(tool.Parameters)
	schema, err := gojsonschema.NewSchema(schemaLoader)
	if err != nil {
		logger.Debugw("skipping argument validation, schema does not compile",
			"tool", tool.Name, "error", err.Error())
		return nil
	}

	if args == nil {
		args = map[string]any{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("%w: %v", bridge.ErrInvalidPayload, err)
	}
	if !result.Valid() {
		first := result.Errors()[0]
		return fmt.Errorf("%w: argument %s: %s", bridge.ErrInvalidPayload, first.Field(), first.Description())
	}
	return nil
}
