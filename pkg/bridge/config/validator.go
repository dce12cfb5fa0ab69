// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strings"

	"github.com/stacklok/toolgate/pkg/bridge"
)

// DefaultValidator implements configuration validation for server mode.
type DefaultValidator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *DefaultValidator {
	return &DefaultValidator{}
}

// Validate performs full validation of the configuration.
// All problems are collected so a broken file is reported in one pass.
func (v *DefaultValidator) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: configuration is nil", bridge.ErrInvalidConfig)
	}

	var problems []string

	if err := v.validateMode(cfg); err != nil {
		problems = append(problems, err.Error())
	}
	if err := v.validateHTTP(&cfg.Server.HTTP); err != nil {
		problems = append(problems, err.Error())
	}
	problems = append(problems, v.validateAPISpaces(cfg)...)
	if err := v.validateAdmin(cfg); err != nil {
		problems = append(problems, err.Error())
	}
	if err := v.validateLogging(&cfg.Server.Logging); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n  - %s", bridge.ErrInvalidConfig, strings.Join(problems, "\n  - "))
	}
	return nil
}

func (*DefaultValidator) validateMode(cfg *Config) error {
	switch cfg.Mode {
	case ModeServer, ModeClient, ModeCombo:
		return nil
	default:
		return fmt.Errorf("mode must be one of server, client, combo; got %q", cfg.Mode)
	}
}

func (*DefaultValidator) validateHTTP(h *HTTPConfig) error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("server.http.port must be in 1-65535; got %d", h.Port)
	}
	return nil
}

func (*DefaultValidator) validateAPISpaces(cfg *Config) []string {
	var problems []string

	if len(cfg.Server.APISpaces) == 0 {
		return []string{"server.apiSpaces must contain at least one entry"}
	}

	seenNames := make(map[string]bool)
	// Bearer tokens must be unique across all tenants and the admin token.
	seenTokens := make(map[string]string)
	if cfg.Server.Admin.AdminToken != "" {
		seenTokens[cfg.Server.Admin.AdminToken] = "admin token"
	}
	seenHashes := make(map[string]string)

	for i, space := range cfg.Server.APISpaces {
		where := fmt.Sprintf("server.apiSpaces[%d]", i)

		if space.Name == "" {
			problems = append(problems, where+": name is required")
		} else if seenNames[space.Name] {
			problems = append(problems, fmt.Sprintf("%s: duplicate name %q", where, space.Name))
		}
		seenNames[space.Name] = true

		if len(space.BearerToken) < MinTokenLength {
			problems = append(problems, fmt.Sprintf("%s: bearerToken must be at least %d characters", where, MinTokenLength))
		}
		if prev, dup := seenTokens[space.BearerToken]; dup {
			problems = append(problems, fmt.Sprintf("%s: bearerToken collides with %s", where, prev))
		}
		seenTokens[space.BearerToken] = where

		// A 16-hex-prefix collision would make description URLs
		// ambiguous, so it is as fatal as a full token collision.
		hash := bridge.TokenHash(space.BearerToken)
		if prev, dup := seenHashes[hash]; dup {
			problems = append(problems, fmt.Sprintf("%s: token hash collides with %s", where, prev))
		}
		seenHashes[hash] = where

		if len(space.AllowedClientTokens) == 0 {
			problems = append(problems, where+": allowedClientTokens must contain at least one entry")
		}
		for j, wt := range space.AllowedClientTokens {
			if len(wt) < MinTokenLength {
				problems = append(problems,
					fmt.Sprintf("%s.allowedClientTokens[%d]: token must be at least %d characters", where, j, MinTokenLength))
			}
		}
	}

	return problems
}

func (*DefaultValidator) validateAdmin(cfg *Config) error {
	token := cfg.Server.Admin.AdminToken
	if token != "" && len(token) < MinTokenLength {
		return fmt.Errorf("server.admin.adminToken must be at least %d characters", MinTokenLength)
	}
	return nil
}

func (*DefaultValidator) validateLogging(l *LoggingConfig) error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.logging.level must be one of debug, info, warn, error; got %q", l.Level)
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("server.logging.format must be one of text, json; got %q", l.Format)
	}
	return nil
}
