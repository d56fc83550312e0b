package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracingConfigSetDefaults(t *testing.T) {
	var cfg TracingConfig
	cfg.SetDefaults()

	assert.Equal(t, DefaultServiceName, cfg.ServiceName)
	assert.Equal(t, float64(DefaultSamplingRate), cfg.SamplingRate)
	assert.Equal(t, DefaultOTLPEndpoint, cfg.Endpoint)
	assert.Equal(t, "otlp", cfg.Exporter)
	assert.True(t, cfg.IsInsecure())
}

func TestMetricsConfigSetDefaults(t *testing.T) {
	var cfg MetricsConfig
	cfg.SetDefaults()

	assert.Equal(t, DefaultMetricsPath, cfg.Endpoint)
	assert.Equal(t, "mcpmesh", cfg.Namespace)
}

func TestTracingConfigValidate(t *testing.T) {
	cfg := TracingConfig{Enabled: true, Endpoint: "localhost:4317", SamplingRate: 0.5, Exporter: "otlp"}
	require.NoError(t, cfg.Validate())

	bad := TracingConfig{Enabled: true, Endpoint: "localhost:4317", SamplingRate: 2, Exporter: "otlp"}
	assert.Error(t, bad.Validate())

	badExporter := TracingConfig{Enabled: true, Endpoint: "localhost:4317", SamplingRate: 1, Exporter: "carrier-pigeon"}
	assert.Error(t, badExporter.Validate())
}

func TestNewMetricsDisabled(t *testing.T) {
	m, err := NewMetrics(&MetricsConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestMetricsRecording(t *testing.T) {
	m, err := NewMetrics(&MetricsConfig{Enabled: true, Namespace: "mcpmesh_test"})
	require.NoError(t, err)
	require.NotNil(t, m)

	m.RecordAgentCall("router", "mesh-agent", 100*time.Millisecond)
	m.RecordToolCall("search", 50*time.Millisecond)
	m.RecordLLMCall("gpt-4o", "openai", 500*time.Millisecond)
	m.RecordLLMTokens("gpt-4o", "openai", 100, 50)
	m.RecordHTTPRequest(http.MethodPost, "/mcp", 200, 10*time.Millisecond, 128, 256)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "mcpmesh_test_agent_calls_total")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAgentCall("router", "mesh-agent", time.Millisecond)
		m.RecordToolError("search", "boom")
		_ = m.Registry()
	})
}

func TestNoopMetricsSatisfiesRecorder(t *testing.T) {
	var rec Recorder = NoopMetrics{}
	rec.RecordAgentCall("router", "mesh-agent", time.Millisecond)
	rec.RecordHTTPRequest(http.MethodGet, "/health", 200, time.Millisecond, 0, 0)

	rr := httptest.NewRecorder()
	NoopMetrics{}.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestNoopTracer(t *testing.T) {
	tracer := NoopTracer{}

	ctx := context.Background()
	ctx, span := tracer.StartToolExecution(ctx, "search", "mesh-agent", "fn-1")
	defer span.End()

	assert.NotNil(t, ctx)
	assert.NotPanics(t, func() { tracer.AddToolPayload(span, "{}", "{}") })
}

func TestNoopManagerIsInert(t *testing.T) {
	m := NoopManager()
	assert.False(t, m.TracingEnabled())
	assert.False(t, m.MetricsEnabled())
	assert.Nil(t, m.Tracer())
	assert.Nil(t, m.Metrics())
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestHTTPMiddlewareRecordsMetrics(t *testing.T) {
	m, err := NewMetrics(&MetricsConfig{Enabled: true, Namespace: "mcpmesh_mw"})
	require.NoError(t, err)

	handler := HTTPMiddleware(nil, m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)

	metricsRR := httptest.NewRecorder()
	m.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, metricsRR.Body.String(), "mcpmesh_mw_http_requests_total")
}
