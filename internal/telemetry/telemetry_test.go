package telemetry

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestNewConfigFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewConfigFromEnv("floxd")
		assert.Equal(t, "floxd", cfg.ServiceName)
		assert.Equal(t, "localhost:4317", cfg.OTLP.Endpoint)
		assert.True(t, cfg.OTLP.Insecure)
		assert.Equal(t, 1.0, cfg.Tracing.SamplingRate)
		assert.Equal(t, 10*time.Second, cfg.Metrics.Interval)
		assert.False(t, cfg.ExportsToFiles())
	})

	t.Run("file export and clamping", func(t *testing.T) {
		t.Setenv("OTEL_EXPORT_DIR", "/tmp/x")
		t.Setenv("OTEL_TRACES_SAMPLER_ARG", "7")
		t.Setenv("OTEL_METRIC_EXPORT_INTERVAL", "-3")
		t.Setenv("OTEL_SERVICE_NAME", "custom")
		t.Setenv("ENABLE_TRACING", "true")

		cfg := NewConfigFromEnv("floxd")
		assert.Equal(t, "custom", cfg.ServiceName)
		assert.True(t, cfg.ExportsToFiles())
		assert.Equal(t, "/tmp/x/traces.jsonl", cfg.TracesPath())
		assert.Equal(t, "/tmp/x/logs.jsonl", cfg.LogsPath())
		assert.True(t, cfg.Tracing.Enabled)
		assert.Equal(t, 1.0, cfg.Tracing.SamplingRate)
		assert.Equal(t, 10*time.Second, cfg.Metrics.Interval)
	})

	t.Run("interval in milliseconds", func(t *testing.T) {
		t.Setenv("OTEL_METRIC_EXPORT_INTERVAL", "2500")
		t.Setenv("OTEL_TRACES_SAMPLER_ARG", "-1")

		cfg := NewConfigFromEnv("floxd")
		assert.Equal(t, 2500*time.Millisecond, cfg.Metrics.Interval)
		assert.Equal(t, 0.0, cfg.Tracing.SamplingRate)
	})
}

func TestNewLoggerAddsServiceFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{ServiceName: "floxd", ServiceVersion: "1.2", Environment: "test", LogLevel: "debug"}, &buf)

	l.WithField("game", "g1").Debug("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["message"])
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "floxd", entry["service.name"])
	assert.Equal(t, "1.2", entry["service.version"])
	assert.Equal(t, "g1", entry["game"])
	assert.Contains(t, entry, "@timestamp")
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	l := NewLogger(&Config{LogLevel: "chatty"}, &bytes.Buffer{})
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestSDKLoggerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	SDKLogger(NewLogger(&Config{LogLevel: "info"}, &buf)).Info("request")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "flox-sdk", entry["component"])
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "out.json")
	hook, err := NewFileLogger(path)
	require.NoError(t, err)

	l := NewLogger(&Config{LogLevel: "info"}, &bytes.Buffer{})
	l.AddHook(hook)
	l.WithError(errors.New("boom")).Warn("careful")
	require.NoError(t, hook.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "careful", entry["message"])
	assert.Equal(t, "boom", entry["error"])
}

func TestFileTracerExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.jsonl")
	exporter, err := NewFileTracerExporter(path)
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	ctx, parent := tp.Tracer("test").Start(context.Background(), "parent")
	_, child := tp.Tracer("test").Start(ctx, "child", trace.WithSpanKind(trace.SpanKindClient))
	child.AddEvent("cache miss")
	EndSpan(child, errors.New("store down"))
	EndSpan(parent, nil)
	require.NoError(t, tp.Shutdown(context.Background()))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var spans []FileSpan
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var span FileSpan
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &span))
		spans = append(spans, span)
	}
	require.Len(t, spans, 2)

	assert.Equal(t, "child", spans[0].Name)
	assert.Equal(t, "client", spans[0].Kind)
	assert.Equal(t, spans[1].SpanID, spans[0].ParentID)
	assert.Equal(t, "Error", spans[0].Status)
	assert.Equal(t, "store down", spans[0].Error)
	// the custom event plus the recorded error
	require.Len(t, spans[0].Events, 2)
	assert.Equal(t, "cache miss", spans[0].Events[0].Name)
	assert.Equal(t, "exception", spans[0].Events[1].Name)

	assert.Equal(t, "Ok", spans[1].Status)
	assert.Empty(t, spans[1].ParentID)
}

func TestRouteOf(t *testing.T) {
	tests := map[string]string{
		"":                          "status",
		"authenticate":              "authenticate",
		"entities/SaveGame":         "entities/:type",
		"entities/SaveGame/abc":     "entities/:type/:id",
		"leaderboards/default":      "leaderboards/:id",
		"logs":                      "logs",
		"logs/f4a1":                 "logs/:id",
		"entities/.player/p1":       "entities/:type/:id",
		"entities/.player/p1/extra": "entities/:type/:id",
	}
	for path, want := range tests {
		assert.Equal(t, want, RouteOf(path), path)
	}
}

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPrometheusObserver(reg)

	obs.OnRequestStart("GET", "entities/SaveGame/1")
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.inFlight))
	obs.OnRequestEnd("GET", "entities/SaveGame/1", 200, 20*time.Millisecond, nil)

	obs.OnRequestStart("GET", "entities/SaveGame/2")
	obs.OnRequestEnd("GET", "entities/SaveGame/2", 0, time.Millisecond, errors.New("refused"))

	assert.Equal(t, 0.0, testutil.ToFloat64(obs.inFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.requests.WithLabelValues("GET", "entities/:type/:id", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(obs.requests.WithLabelValues("GET", "entities/:type/:id", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(obs.duration))
}

func TestOTelObserver(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	obs, err := NewOTelObserver(provider.Meter("test"))
	require.NoError(t, err)

	obs.OnRequestStart("POST", "authenticate")
	obs.OnRequestEnd("POST", "authenticate", 200, 5*time.Millisecond, nil)
	obs.OnRequestEnd("POST", "authenticate", 403, 5*time.Millisecond, errors.New("forbidden"))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	totals := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					totals[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), totals["flox.client.requests"])
	assert.Equal(t, int64(1), totals["flox.client.errors"])
}

func TestFiberMetricsMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(FiberMetricsMiddleware())
	app.Get("/probe/:id", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})
	app.Get("/metrics", FiberPrometheusHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/probe/42", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/probe/:id", "202")))

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestTimeOperation(t *testing.T) {
	done := TimeOperation(context.Background(), "probe_op")
	done("success")

	assert.Equal(t, 1, testutil.CollectAndCount(storeOperationDuration, "flox_store_operation_duration_seconds"))
}
