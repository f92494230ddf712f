// Package httpapi is istgtd's operator-facing HTTP surface: liveness and
// readiness probes, a JSON status summary (session/target counts) and the
// Prometheus /metrics endpoint. This is deliberately thin — the wire
// protocol istgtd serves is iSCSI over raw TCP, not HTTP; this router only
// carries the operational side-channel, built on chi's router
// shape (middleware stack, /health routes) adapted from a control-plane API
// to a read-only status surface.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/piscisaureus/istgt/internal/metrics"
)

// TargetStatus is one target's name and active session count (§3's Target
// "active session count" attribute), as reported by /status.
type TargetStatus struct {
	Name           string `json:"name"`
	Online         bool   `json:"online"`
	ActiveSessions int    `json:"active_sessions"`
}

// StatusSource is the subset of *runtime.Runtime the status handler reads;
// declared as an interface to avoid an internal/httpapi <-> internal/runtime
// import cycle, mirroring connection.Runtime's split.
type StatusSource interface {
	SessionCount() int
	TargetCount() int
	TargetStatuses() []TargetStatus
}

// NewRouter builds the operator HTTP surface:
//
//   - GET /healthz       - liveness probe, always 200 once the server is up
//   - GET /readyz        - readiness probe, 200 once the runtime is Running
//   - GET /status        - JSON {sessions, targets}
//   - GET /metrics       - Prometheus exposition format
func NewRouter(rt StatusSource, ready func() bool, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if ready != nil && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Sessions int            `json:"sessions"`
			Targets  int            `json:"targets"`
			Detail   []TargetStatus `json:"target_detail"`
		}{Sessions: rt.SessionCount(), Targets: rt.TargetCount(), Detail: rt.TargetStatuses()})
	})

	if reg := m.Registry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	return r
}
