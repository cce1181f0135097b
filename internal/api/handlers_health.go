// Keepstack - Personal Knowledge Backend for Saved Content
// Copyright 2026 Keepstack Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/keepstack/keepstack

package api

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker aggregates dependency probes for the readiness endpoint.
type HealthChecker struct {
	checks map[string]Pinger
}

// NewHealthChecker builds the checker; nil pingers are skipped so optional
// dependencies (embedded NATS) need no special casing at the call site.
func NewHealthChecker(checks map[string]Pinger) *HealthChecker {
	filtered := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			filtered[name] = p
		}
	}
	return &HealthChecker{checks: filtered}
}

const healthProbeTimeout = 5 * time.Second

// Live handles GET /health/live: the process is up.
func (hc *HealthChecker) Live(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Ready handles GET /health/ready: every dependency answers its probe.
func (hc *HealthChecker) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	components := make(map[string]string, len(hc.checks))
	healthy := true
	for name, p := range hc.checks {
		if err := p.Ping(ctx); err != nil {
			components[name] = "unreachable"
			healthy = false
			continue
		}
		components[name] = "ok"
	}

	body := map[string]interface{}{
		"status":     "ready",
		"components": components,
	}
	if !healthy {
		body["status"] = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, Response{Success: false, Data: body})
		return
	}
	respond(w, http.StatusOK, body)
}

// Health handles GET /health: liveness plus the component map, always 200
// so dashboards can read the detail without tripping on the status code.
func (hc *HealthChecker) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	components := make(map[string]string, len(hc.checks))
	for name, p := range hc.checks {
		if err := p.Ping(ctx); err != nil {
			components[name] = "unreachable"
			continue
		}
		components[name] = "ok"
	}
	respond(w, http.StatusOK, map[string]interface{}{
		"status":     "up",
		"components": components,
	})
}
