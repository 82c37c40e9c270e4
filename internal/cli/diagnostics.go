// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-hsm.
//
// go-hsm is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jeremyhahn/go-hsm/internal/config"
	"github.com/jeremyhahn/go-hsm/pkg/health"
	"github.com/jeremyhahn/go-hsm/pkg/hsm"
	"github.com/jeremyhahn/go-hsm/pkg/logging"
	"github.com/jeremyhahn/go-hsm/pkg/metrics"
)

// HealthCheckResponse represents the response for health check endpoints.
type HealthCheckResponse struct {
	// Status is the overall health status
	Status health.Status `json:"status"`
	// Message provides additional context
	Message string `json:"message,omitempty"`
	// Checks contains individual check results (for readiness)
	Checks []health.CheckResult `json:"checks,omitempty"`
}

// diagnostics serves Prometheus metrics and health probes alongside the
// console so operators can scrape session state while the console runs.
type diagnostics struct {
	checker   *health.Checker
	srv       *http.Server
	collector *metrics.ResourceCollector
	cancel    context.CancelFunc
	log       *logging.Logger
}

// startDiagnostics wires the health checker to the active session and
// starts the HTTP listener. Probe paths follow Kubernetes conventions:
// /health/live, /health/ready, /health/startup; metrics are served at
// the configured path.
func startDiagnostics(cfg *config.Config, manager *hsm.SessionManager, log *logging.Logger) *diagnostics {
	ctx, cancel := context.WithCancel(context.Background())

	d := &diagnostics{
		checker: health.NewChecker(),
		cancel:  cancel,
		log:     log,
	}
	d.checker.RegisterCheck("session", health.SessionCheck(manager))
	d.checker.RegisterCheck("device", health.DeviceCheck(manager, hsm.ObjectID(cfg.SigningKeyID)))

	d.collector = metrics.NewResourceCollector(ctx, 15*time.Second)
	go d.collector.Start()

	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, metrics.Handler())
	mux.HandleFunc("/health/live", d.livenessHandler)
	mux.HandleFunc("/health/ready", d.readinessHandler)
	mux.HandleFunc("/health/startup", d.startupHandler)

	d.srv = &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           metrics.HTTPMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Diagnostics listening on %s", cfg.Metrics.Addr)
		if err := d.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Diagnostics listener failed: %v", err)
		}
	}()

	d.checker.MarkStarted()
	return d
}

// Stop shuts the listener down and stops the resource collector.
func (d *diagnostics) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.srv.Shutdown(ctx); err != nil {
		d.log.Errorf("Diagnostics shutdown: %v", err)
	}
	d.collector.Stop()
	d.cancel()
}

// livenessHandler handles GET /health/live requests.
func (d *diagnostics) livenessHandler(w http.ResponseWriter, r *http.Request) {
	result := d.checker.Live(r.Context())

	resp := HealthCheckResponse{
		Status:  result.Status,
		Message: result.Message,
	}

	statusCode := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, resp, statusCode)
}

// readinessHandler handles GET /health/ready requests. A degraded session
// still serves traffic; only unhealthy returns 503.
func (d *diagnostics) readinessHandler(w http.ResponseWriter, r *http.Request) {
	results := d.checker.Ready(r.Context())
	overallStatus := health.AggregateStatus(results)

	resp := HealthCheckResponse{
		Status: overallStatus,
		Checks: results,
	}

	switch overallStatus {
	case health.StatusHealthy:
		resp.Message = "All checks passed"
	case health.StatusDegraded:
		resp.Message = "Session is degraded"
	case health.StatusUnhealthy:
		resp.Message = "One or more checks failed"
	}

	statusCode := http.StatusOK
	if overallStatus == health.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, resp, statusCode)
}

// startupHandler handles GET /health/startup requests.
func (d *diagnostics) startupHandler(w http.ResponseWriter, r *http.Request) {
	result := d.checker.Startup(r.Context())

	resp := HealthCheckResponse{
		Status:  result.Status,
		Message: result.Message,
	}

	statusCode := http.StatusOK
	if result.Status == health.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, resp, statusCode)
}

// writeJSON writes data as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
