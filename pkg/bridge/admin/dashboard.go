// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stacklok/toolgate/pkg/bridge"
	"github.com/stacklok/toolgate/pkg/logger"
)

// Totals aggregates process-wide dashboard counters.
type Totals struct {
	Tenants          int    `json:"tenants"`
	ConnectedWorkers int    `json:"connectedWorkers"`
	DistinctTools    int    `json:"distinctTools"`
	Uptime           string `json:"uptime"`
}

// WorkerCard summarizes one worker for a tenant card. Only the id prefix is
// shown; worker tokens never appear in dashboard data.
type WorkerCard struct {
	IDPrefix  string `json:"idPrefix"`
	State     string `json:"state"`
	ToolCount int    `json:"toolCount"`
}

// TenantCard summarizes one tenant for the dashboard.
type TenantCard struct {
	Name           string       `json:"name"`
	Description    string       `json:"description,omitempty"`
	Hash           string       `json:"hash"`
	DescriptionURL string       `json:"descriptionUrl"`
	Workers        []WorkerCard `json:"workers"`
}

// DashboardData is everything the dashboard template and the stats endpoint
// render.
type DashboardData struct {
	Totals  Totals       `json:"totals"`
	Tenants []TenantCard `json:"tenants"`
}

// collect aggregates live registry state into dashboard data.
func (f *Facet) collect() DashboardData {
	snapshot := f.workers.Snapshot()

	distinct := make(map[string]bool)
	connected := 0
	for i := range snapshot {
		w := &snapshot[i]
		if w.State != bridge.WorkerConnected {
			continue
		}
		connected++
		for _, tool := range w.Tools {
			distinct[tool.Name] = true
		}
	}

	data := DashboardData{
		Totals: Totals{
			Tenants:          len(f.tenants.List()),
			ConnectedWorkers: connected,
			DistinctTools:    len(distinct),
			Uptime:           time.Since(f.startedAt).Round(time.Second).String(),
		},
	}

	for _, t := range f.tenants.List() {
		hash := f.tenants.TokenHash(t)
		card := TenantCard{
			Name:           t.Name,
			Description:    t.Description,
			Hash:           hash,
			DescriptionURL: fmt.Sprintf("%s/openapi/%s/json", f.publicURL, hash),
		}
		for i := range snapshot {
			w := &snapshot[i]
			if !t.Admits(w.Token) {
				continue
			}
			card.Workers = append(card.Workers, WorkerCard{
				IDPrefix:  w.ID[:12],
				State:     string(w.State),
				ToolCount: len(w.Tools),
			})
		}
		data.Tenants = append(data.Tenants, card)
	}

	return data
}

// Dashboard renders the admin dashboard (GET /admin).
func (f *Facet) Dashboard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := f.templates.ExecuteTemplate(w, "dashboard.html", f.collect()); err != nil {
		logger.Errorf("rendering dashboard: %v", err)
	}
}

// Stats serves the dashboard counters as JSON (GET /api/admin/stats).
func (f *Facet) Stats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(f.collect()); err != nil {
		logger.Errorf("writing stats response: %v", err)
	}
}
