package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/piscisaureus/istgt/internal/metrics"
)

type fakeStatusSource struct {
	sessions, targets int
	detail            []TargetStatus
}

func (f fakeStatusSource) SessionCount() int            { return f.sessions }
func (f fakeStatusSource) TargetCount() int             { return f.targets }
func (f fakeStatusSource) TargetStatuses() []TargetStatus { return f.detail }

func TestHealthzAlwaysOK(t *testing.T) {
	r := NewRouter(fakeStatusSource{}, func() bool { return false }, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReflectsReadyFunc(t *testing.T) {
	r := NewRouter(fakeStatusSource{}, func() bool { return false }, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	r = NewRouter(fakeStatusSource{}, func() bool { return true }, nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzWithNilReadyFuncDefaultsOK(t *testing.T) {
	r := NewRouter(fakeStatusSource{}, nil, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusReportsSessionAndTargetCounts(t *testing.T) {
	detail := []TargetStatus{{Name: "iqn.test:tgt1", Online: true, ActiveSessions: 2}}
	r := NewRouter(fakeStatusSource{sessions: 3, targets: 7, detail: detail}, func() bool { return true }, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sessions int            `json:"sessions"`
		Targets  int            `json:"targets"`
		Detail   []TargetStatus `json:"target_detail"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 3, body.Sessions)
	require.Equal(t, 7, body.Targets)
	require.Equal(t, detail, body.Detail)
}

func TestMetricsEndpointAbsentWithoutMetrics(t *testing.T) {
	r := NewRouter(fakeStatusSource{}, func() bool { return true }, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpointServesPrometheusExposition(t *testing.T) {
	m := metrics.New()
	m.IncActiveConnections()

	r := NewRouter(fakeStatusSource{}, func() bool { return true }, m)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "istgtd_active_connections")
}
