package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "omnichannel/internal/errors"
	"omnichannel/internal/pipeline"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "omnichannel_test_rows_total",
		Help: "rows seen by the test",
	})
	registry.MustRegister(counter)
	counter.Add(3)
	return NewServer("127.0.0.1:0", "omnichannel", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	w := get(t, s.Handler(), "/healthz")

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var body HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "omnichannel", body.Service)
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "run-42")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, "run-42", w.Header().Get("X-Request-ID"))
}

func TestStatusBeforeRun(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/status", "/status/clean"} {
		w := get(t, s.Handler(), path)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)

		var body apperrors.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "RUN_NOT_STARTED", body.Error.ErrorCode)
	}
}

func TestStatusTracksRun(t *testing.T) {
	s := newTestServer(t)

	state := pipeline.NewRunState("run-1")
	state.AddStep(pipeline.StepClean, "Clean orders")
	state.AddStep(pipeline.StepEnrich, "Enrich orders")
	state.Start()
	clean := state.Step(pipeline.StepClean)
	clean.Start()
	clean.SetRows(10, 8, map[string]int{"cancelled": 2})
	clean.Complete()
	state.Step(pipeline.StepEnrich).Start()
	s.Status.Track(state)

	w := get(t, s.Handler(), "/status")
	require.Equal(t, http.StatusOK, w.Code)

	var snap pipeline.RunSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "run-1", snap.ID)
	assert.Equal(t, pipeline.RunStatusRunning, snap.Status)
	require.Len(t, snap.Steps, 2)
	assert.Equal(t, pipeline.StepClean, snap.Steps[0].ID)
	assert.Equal(t, pipeline.StepStatusCompleted, snap.Steps[0].Status)
	assert.Equal(t, 8, snap.Steps[0].RowsOut)
	assert.Equal(t, map[string]int{"cancelled": 2}, snap.Steps[0].Dropped)
	assert.Equal(t, pipeline.StepStatusActive, snap.Steps[1].Status)

	w = get(t, s.Handler(), "/status/"+pipeline.StepClean)
	require.Equal(t, http.StatusOK, w.Code)
	var step pipeline.StepSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &step))
	assert.Equal(t, 10, step.RowsIn)

	w = get(t, s.Handler(), "/status/scm")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusReportsFailure(t *testing.T) {
	s := newTestServer(t)
	state := pipeline.NewRunState("run-2")
	state.AddStep(pipeline.StepMatch, "Match")
	state.Start()
	state.Fail(pipeline.WrapError(errors.New("no treated units"), pipeline.StepMatch))
	s.Status.Track(state)

	w := get(t, s.Handler(), "/status")
	require.Equal(t, http.StatusOK, w.Code)
	var snap pipeline.RunSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, pipeline.RunStatusFailed, snap.Status)
	assert.Contains(t, snap.Error, "step match")
	assert.NotNil(t, snap.EndTime)
}

func TestMetrics(t *testing.T) {
	s := newTestServer(t)
	w := get(t, s.Handler(), "/metrics")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "omnichannel_test_rows_total 3")
}

func TestMetricsDisabled(t *testing.T) {
	s := NewServer("127.0.0.1:0", "omnichannel", nil, nil)
	w := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecovererReturnsJSON(t *testing.T) {
	s := newTestServer(t)
	router := s.routes(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("exporter exploded")
	}))

	w := get(t, router, "/metrics")
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "INTERNAL_SERVER_ERROR", body.Error.ErrorCode)
}

func TestServerLifecycle(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.Start(ctx))

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", s.Addr()))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Shutdown(ctx))
}
