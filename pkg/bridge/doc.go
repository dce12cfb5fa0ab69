// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package bridge contains the shared domain model for the toolgate bridge:
// tenants, workers, tool schemas and the error taxonomy surfaced to HTTP
// callers. Subpackages implement the registries, the worker session layer,
// the invocation router and the HTTP surface.
package bridge
