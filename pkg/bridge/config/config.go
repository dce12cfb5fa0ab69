// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config provides the configuration model for the toolgate server.
//
// Configuration is loaded from a YAML file and validated before the server
// starts. Validation failures are fatal: the process exits non-zero rather
// than serve with a partial tenant set.
package config

import "time"

// Mode values recognized in the top-level "mode" field. Only server mode is
// implemented by this repository; client and combo are accepted so a shared
// configuration file can be pointed at both halves of a deployment.
const (
	// ModeServer runs the bridge server.
	ModeServer = "server"
	// ModeClient runs only the worker-side client (external to this repo).
	ModeClient = "client"
	// ModeCombo runs both halves in one process (external to this repo).
	ModeCombo = "combo"
)

// MinTokenLength is the minimum accepted length for bearer tokens
// (tenant tokens, worker tokens and the admin token).
const MinTokenLength = 32

// Config is the root configuration document.
type Config struct {
	// Mode selects which half of the bridge this process runs.
	Mode string `yaml:"mode"`

	// Server holds all server-mode options.
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds server-mode options.
type ServerConfig struct {
	HTTP      HTTPConfig      `yaml:"http"`
	APISpaces []APISpaceConfig `yaml:"apiSpaces"`
	Admin     AdminConfig     `yaml:"admin"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// HTTPConfig holds the listener options.
type HTTPConfig struct {
	// Host is the bind address (default: "127.0.0.1").
	Host string `yaml:"host"`

	// Port is the bind port (default: 8890).
	Port int `yaml:"port"`

	// PublicURL is the externally visible base URL used in generated
	// API descriptions. Defaults to http://<host>:<port>.
	PublicURL string `yaml:"publicUrl"`
}

// APISpaceConfig defines one tenant: an isolated API namespace with its own
// bearer token and the set of worker tokens admitted into it.
type APISpaceConfig struct {
	// Name uniquely identifies the tenant.
	Name string `yaml:"name"`

	// Description is optional free text included in the tenant's
	// generated API description.
	Description string `yaml:"description"`

	// BearerToken authenticates callers of this tenant's namespace.
	BearerToken string `yaml:"bearerToken"`

	// AllowedClientTokens lists the worker tokens admitted into this
	// tenant. Must contain at least one entry.
	AllowedClientTokens []string `yaml:"allowedClientTokens"`
}

// AdminConfig holds the admin facet options.
type AdminConfig struct {
	// AdminToken gates the admin dashboard and stats endpoints. When
	// empty, a random token is generated at startup and logged once.
	AdminToken string `yaml:"adminToken"`
}

// LoggingConfig holds logging options.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error (default: info).
	Level string `yaml:"level"`

	// Format is one of text, json (default: text).
	Format string `yaml:"format"`
}

// Timeouts that are fixed by the protocol rather than configurable.
const (
	// DefaultInvokeTimeout is the hard deadline for a tool invocation.
	DefaultInvokeTimeout = 30 * time.Second

	// KeepAliveInterval is how often the server pings each session.
	KeepAliveInterval = 30 * time.Second

	// PongTimeout is how long the server waits for a pong before
	// terminating a session.
	PongTimeout = 5 * time.Second

	// HandshakeWindow is how long a freshly upgraded session has to send
	// its register frame.
	HandshakeWindow = 10 * time.Second

	// ShutdownGrace is how long in-flight HTTP handlers get to finish
	// their error responses during shutdown.
	ShutdownGrace = 2 * time.Second
)

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeServer
	}
	if c.Server.HTTP.Host == "" {
		c.Server.HTTP.Host = "127.0.0.1"
	}
	if c.Server.HTTP.Port == 0 {
		c.Server.HTTP.Port = 8890
	}
	if c.Server.Logging.Level == "" {
		c.Server.Logging.Level = "info"
	}
	if c.Server.Logging.Format == "" {
		c.Server.Logging.Format = "text"
	}
}
