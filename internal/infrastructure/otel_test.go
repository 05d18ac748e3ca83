package infrastructure

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOTelInitialization(t *testing.T) {
	logger := NewLogger("error", &bytes.Buffer{})

	providers, err := InitializeOTel(&OTelConfig{
		ServiceName:    "omnichannel-test",
		ServiceVersion: "test",
		Environment:    "test",
		TraceExporter:  "none",
		MetricExporter: "prometheus",
		SampleRatio:    1,
		Registry:       prometheus.NewRegistry(),
	}, logger)
	require.NoError(t, err)
	require.NotNil(t, providers)

	assert.Nil(t, providers.TracerProvider, "tracing disabled")
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.PrometheusHTTP)

	metrics, err := CreatePipelineMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordStage(ctx, "cleaning", 250*time.Millisecond, nil)
	metrics.RecordRows(ctx, "cleaning", 10, 7, map[string]int{"cancelled": 2, "invalid_post_code": 1, "none": 0})
	metrics.RecordGeocode(ctx, "google", true, false)
	metrics.RecordStorage(ctx, "save", "processed/panel.csv", 24)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(w, req)

	body := w.Body.String()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(body, "pipeline_stage_runs_total"), body)
	assert.Contains(t, body, "pipeline_rows_dropped_total")
	assert.Contains(t, body, `reason="cancelled"`)
	assert.NotContains(t, body, `reason="none"`)
	assert.Contains(t, body, "storage_rows_total")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, providers.Shutdown(shutdownCtx))
}

func TestOTelUnsupportedExporter(t *testing.T) {
	logger := NewLogger("error", &bytes.Buffer{})

	_, err := InitializeOTel(&OTelConfig{TraceExporter: "jaeger", MetricExporter: "none"}, logger)
	assert.Error(t, err)

	_, err = InitializeOTel(&OTelConfig{TraceExporter: "none", MetricExporter: "statsd"}, logger)
	assert.Error(t, err)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *PipelineMetrics
	ctx := context.Background()
	m.RecordStage(ctx, "x", time.Second, assert.AnError)
	m.RecordRows(ctx, "x", 1, 1, nil)
	m.RecordGeocode(ctx, "x", false, true)
	m.RecordStorage(ctx, "load", "x", 1)

	noop, err := CreatePipelineMetrics(nil)
	require.NoError(t, err)
	noop.RecordStage(ctx, "x", time.Second, assert.AnError)
}

func TestPushMetrics(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	logger := NewLogger("error", &bytes.Buffer{})
	require.NoError(t, PushMetrics(context.Background(), server.URL, "omnichannel", "run-1", registry, logger))
	assert.Equal(t, "/metrics/job/omnichannel/run/run-1", gotPath)

	assert.NoError(t, PushMetrics(context.Background(), "", "omnichannel", "", registry, logger))
}
