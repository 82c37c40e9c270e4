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

// Package metrics provides Prometheus instrumentation for go-hsm operations.
// It exposes operation counters, latency histograms, error counters, and
// session gauges so device interactions can be monitored end to end.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Namespace is the Prometheus namespace for all go-hsm metrics
	Namespace = "hsm"

	// Label names
	LabelOperation = "operation"
	LabelConnector = "connector"
	LabelStatus    = "status"
	LabelErrorType = "error_type"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpConnect      = "connect"
	OpDisconnect   = "disconnect"
	OpSign         = "sign"
	OpVerify       = "verify"
	OpList         = "list"
	OpGetInfo      = "get_object_info"
	OpGetPublicKey = "get_public_key"
	OpDelete       = "delete"
	OpHealthCheck  = "health_check"
)

var (
	// OperationsTotal tracks the total number of device operations by type,
	// connector, and status. Use RecordOperation to increment this counter.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of device operations by type, connector, and status",
		},
		[]string{LabelOperation, LabelConnector, LabelStatus},
	)

	// OperationDuration tracks the duration of device operations in seconds.
	// Buckets are optimized for USB round-trip latencies plus local crypto.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of device operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{LabelOperation, LabelConnector},
	)

	// ErrorsTotal tracks the total number of errors by operation, connector,
	// and error type. Error types should be specific (e.g. "invalid_input",
	// "authentication_failed", "object_not_found").
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation, connector, and error type",
		},
		[]string{LabelOperation, LabelConnector, LabelErrorType},
	)

	// SessionActive indicates whether an authenticated device session is held
	// (1) or not (0), per connector.
	SessionActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "session_active",
			Help:      "Whether an authenticated device session is held (1) or not (0)",
		},
		[]string{LabelConnector},
	)

	// ObjectsTotal tracks the number of objects reported by the most recent
	// listing, per connector.
	ObjectsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "objects_total",
			Help:      "Number of objects reported by the most recent listing",
		},
		[]string{LabelConnector},
	)

	// HTTPRequestsTotal tracks the total number of HTTP requests served by the
	// monitoring endpoint, by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{"method", "status_code"},
	)

	// HTTPRequestDuration tracks the duration of monitoring HTTP requests in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Goroutines tracks the current number of goroutines.
	// Updated periodically by the resource collector.
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	// MemoryAllocBytes tracks the current bytes of allocated heap objects.
	// Updated periodically by the resource collector.
	MemoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Current bytes of allocated heap objects",
		},
	)

	// UptimeSeconds tracks process uptime in seconds since the collector started.
	UptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordOperation records a device operation with its duration and status.
// This is the primary function for tracking operational metrics.
//
// Parameters:
//   - operation: The operation name (use Op* constants)
//   - connector: The connector identifier (e.g. "softhsm", "pkcs11")
//   - status: The operation status (use Status* constants)
//   - duration: The operation duration in seconds
func RecordOperation(operation, connector, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, connector, status).Inc()
	OperationDuration.WithLabelValues(operation, connector).Observe(duration)
}

// RecordError records an error event with context about where it occurred.
//
// Parameters:
//   - operation: The operation during which the error occurred (use Op* constants)
//   - connector: The connector where the error occurred
//   - errorType: A specific error type identifier (e.g. "invalid_input")
func RecordError(operation, connector, errorType string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(operation, connector, errorType).Inc()
}

// SetSessionActive records whether an authenticated session is held.
func SetSessionActive(connector string, active bool) {
	if !enabled.Load() {
		return
	}
	v := float64(0)
	if active {
		v = 1
	}
	SessionActive.WithLabelValues(connector).Set(v)
}

// SetObjectsTotal records the object count from the most recent listing.
func SetObjectsTotal(connector string, count float64) {
	if !enabled.Load() {
		return
	}
	ObjectsTotal.WithLabelValues(connector).Set(count)
}

// RecordHTTPRequest records a monitoring HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// Enable turns on metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable turns off metrics collection. Recording functions become no-ops.
func Disable() {
	enabled.Store(false)
}

// IsEnabled reports whether metrics collection is enabled.
func IsEnabled() bool {
	return enabled.Load()
}

// Handler returns an http.Handler that serves the Prometheus metrics
// exposition endpoint, typically mounted at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
