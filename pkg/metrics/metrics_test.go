package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRun(t *testing.T) {
	m := New()

	m.ObserveRun(StatusOK, 10, 3)
	m.ObserveRun(StatusOK, 5, 5)
	m.ObserveRun(StatusFailed, 0, 0)

	assert.InDelta(t, 2, testutil.ToFloat64(m.runs.WithLabelValues(StatusOK)), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.runs.WithLabelValues(StatusFailed)), 1e-9)
	assert.InDelta(t, 15, testutil.ToFloat64(m.claims), 1e-9)
	assert.InDelta(t, 8, testutil.ToFloat64(m.queued), 1e-9)
}

func TestObserveStage(t *testing.T) {
	m := New()
	m.ObserveStage(StageQueue, 20*time.Millisecond)
	m.Since(StageCombine, time.Now())

	assert.Equal(t, 2, testutil.CollectAndCount(m.stages))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveRun(StatusOK, 1, 1)
		m.ObserveStage(StageLoad, time.Second)
		require.NoError(t, m.RegisterRuntime())
		require.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
	})
	assert.Nil(t, m.Registry())

	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})
	assert.NotNil(t, m.Instrument("runs", h))
}

func TestInstrumentAndHandler(t *testing.T) {
	m := New()
	require.NoError(t, m.RegisterRuntime())

	h := m.Instrument("runs", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/data/runs", nil))

	assert.InDelta(t, 1,
		testutil.ToFloat64(m.requests.WithLabelValues("runs", "get", "418")), 1e-9)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "claimq_api_http_requests_total")
	assert.Contains(t, body, "go_goroutines")
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveRun(StatusOK, 4, 2)

	path := filepath.Join(t.TempDir(), "claimq.prom")
	require.NoError(t, m.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(b), `claimq_pipeline_runs_total{status="ok"} 1`))
	assert.Contains(t, string(b), "claimq_pipeline_claims_scored_total 4")
}
