// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stacklok/toolgate/pkg/bridge"
)

// Loader loads a configuration document from some source.
type Loader interface {
	// Load reads, defaults and returns the configuration.
	// The result is not yet validated; run a Validator over it.
	Load() (*Config, error)
}

// yamlLoader loads configuration from a YAML file on disk.
type yamlLoader struct {
	path string
}

// NewYAMLLoader creates a loader for the given YAML file path.
func NewYAMLLoader(path string) Loader {
	return &yamlLoader{path: path}
}

// Load reads and parses the YAML file, then applies defaults.
func (l *yamlLoader) Load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", bridge.ErrInvalidConfig, l.path, err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", bridge.ErrInvalidConfig, l.path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}
