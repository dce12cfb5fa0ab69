// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry exposes the bridge's Prometheus collectors.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectedWorkers tracks the number of workers with a live session.
	ConnectedWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "toolgate_connected_workers",
		Help: "Number of workers with a live session.",
	})

	// Invocations counts tool invocations by tenant and outcome.
	Invocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "toolgate_invocations_total",
		Help: "Tool invocations by tenant and outcome.",
	}, []string{"tenant", "outcome"})

	// InvocationDuration observes end-to-end invocation latency.
	InvocationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "toolgate_invocation_duration_seconds",
		Help:    "End-to-end tool invocation latency.",
		Buckets: prometheus.DefBuckets,
	})

	// SessionsOpened counts accepted worker session upgrades.
	SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "toolgate_sessions_opened_total",
		Help: "Accepted worker session upgrades.",
	})
)

// Handler returns the HTTP handler serving the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
