// Package metrics is istgtd's Prometheus surface: session/connection
// gauges, per-opcode command counters, transfer byte counters and backing
// store error counters, registered against a private registry (never the
// global DefaultRegisterer, so tests can construct independent instances),
// bound via promauto.With(reg) against an explicit *prometheus.Registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector istgtd exports. A nil *Metrics is valid
// and every method is a no-op on it, so callers can pass nil
// through code paths that shouldn't pay for instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	activeSessions       prometheus.Gauge
	activeConnections    prometheus.Gauge
	commandsTotal        *prometheus.CounterVec
	bytesTotal           *prometheus.CounterVec
	r2tsIssued           prometheus.Counter
	reservationConflicts prometheus.Counter
	backingStoreErrors   *prometheus.CounterVec
}

// New registers istgtd's collector set on a fresh registry and returns it.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		activeSessions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "istgtd_active_sessions",
			Help: "Number of iSCSI sessions currently logged in.",
		}),
		activeConnections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "istgtd_active_connections",
			Help: "Number of TCP connections currently open across all sessions.",
		}),
		commandsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "istgtd_scsi_commands_total",
			Help: "Total SCSI commands executed, by opcode name and status.",
		}, []string{"opcode", "status"}),
		bytesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "istgtd_backing_store_bytes_total",
			Help: "Total bytes transferred to/from backing stores.",
		}, []string{"direction"}), // "read" | "write"
		r2tsIssued: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "istgtd_r2ts_issued_total",
			Help: "Total R2T PDUs issued by the task queue's R2T engine.",
		}),
		reservationConflicts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "istgtd_reservation_conflicts_total",
			Help: "Total SCSI commands rejected with RESERVATION CONFLICT.",
		}),
		backingStoreErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "istgtd_backing_store_errors_total",
			Help: "Total backing store I/O errors, by operation.",
		}, []string{"op"}), // "read" | "write" | "sync"
	}
	return m
}

// Registry exposes the private registry for the HTTP /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

func (m *Metrics) IncActiveConnections() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
}

func (m *Metrics) DecActiveConnections() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

func (m *Metrics) RecordCommand(opcodeName, status string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(opcodeName, status).Inc()
}

func (m *Metrics) RecordBytes(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesTotal.WithLabelValues(direction).Add(float64(n))
}

func (m *Metrics) RecordR2T() {
	if m == nil {
		return
	}
	m.r2tsIssued.Inc()
}

func (m *Metrics) RecordReservationConflict() {
	if m == nil {
		return
	}
	m.reservationConflicts.Inc()
}

func (m *Metrics) RecordBackingStoreError(op string) {
	if m == nil {
		return
	}
	m.backingStoreErrors.WithLabelValues(op).Inc()
}
