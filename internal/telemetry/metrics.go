package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	metricsOnce sync.Once
	promOnce    sync.Once

	meterProvider *sdkmetric.MeterProvider

	// Dev backend metrics
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	storeOperationDuration *prometheus.HistogramVec
	loginsTotal            *prometheus.CounterVec
	scoresPostedTotal      prometheus.Counter
	serviceUp              prometheus.Gauge
)

// InitMetrics registers the Prometheus metrics and, when enabled, sets up
// the OTLP meter provider.
func InitMetrics(cfg *Config) error {
	var err error
	metricsOnce.Do(func() {
		initPrometheusMetrics()

		if cfg.Metrics.Enabled && !cfg.ExportsToFiles() {
			err = initOTELMetrics(cfg)
		}

		serviceUp.Set(1)
	})
	return err
}

func initPrometheusMetrics() {
	promOnce.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flox_http_requests_total",
			Help: "Total number of HTTP requests served",
		}, []string{"method", "route", "status"})

		httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flox_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

		storeOperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flox_store_operation_duration_seconds",
			Help:    "Duration of store operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "status"})

		loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flox_logins_total",
			Help: "Total number of login attempts",
		}, []string{"auth_type", "status"})

		scoresPostedTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "flox_scores_posted_total",
			Help: "Total number of posted scores",
		})

		serviceUp = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flox_service_up",
			Help: "Whether the service is up (1) or down (0)",
		})
	})
}

func initOTELMetrics(cfg *Config) error {
	ctx := context.Background()

	res, err := cfg.resource(ctx)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLP.Endpoint)}
	if cfg.OTLP.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Metrics.Interval))),
	)
	otel.SetMeterProvider(meterProvider)
	return nil
}

// CloseMetrics flushes and stops the OTLP meter provider, if any.
func CloseMetrics(ctx context.Context) error {
	if meterProvider == nil {
		return nil
	}
	return meterProvider.Shutdown(ctx)
}

// RecordHTTPRequest records a request served by the dev backend
func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	initPrometheusMetrics()
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordStoreOperation records the duration of a store operation
func RecordStoreOperation(operation, status string, duration time.Duration) {
	initPrometheusMetrics()
	storeOperationDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}

// RecordLogin records a login attempt
func RecordLogin(authType string, success bool) {
	initPrometheusMetrics()
	status := "success"
	if !success {
		status = "failure"
	}
	loginsTotal.WithLabelValues(authType, status).Inc()
}

// RecordScorePosted records a posted score
func RecordScorePosted() {
	initPrometheusMetrics()
	scoresPostedTotal.Inc()
}

// RouteOf maps an SDK request path to a low-cardinality route label,
// e.g. "entities/SaveGame/123" to "entities/:type/:id".
func RouteOf(path string) string {
	if path == "" {
		return "status"
	}
	segments := strings.Split(path, "/")
	switch segments[0] {
	case "entities":
		route := "entities"
		if len(segments) > 1 {
			route += "/:type"
		}
		if len(segments) > 2 {
			route += "/:id"
		}
		return route
	default:
		if len(segments) > 1 {
			return segments[0] + "/:id"
		}
		return segments[0]
	}
}

// PrometheusObserver reports SDK requests as Prometheus metrics. It
// implements sdk.Observer.
type PrometheusObserver struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewPrometheusObserver registers the client metrics with reg.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	factory := promauto.With(reg)
	return &PrometheusObserver{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flox_client_requests_total",
			Help: "Total number of requests sent to the Flox service",
		}, []string{"method", "route", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flox_client_request_duration_seconds",
			Help:    "Duration of requests sent to the Flox service in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flox_client_requests_in_flight",
			Help: "Number of requests waiting for a response",
		}),
	}
}

// OnRequestStart implements sdk.Observer
func (o *PrometheusObserver) OnRequestStart(method, path string) {
	o.inFlight.Inc()
}

// OnRequestEnd implements sdk.Observer
func (o *PrometheusObserver) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
	o.inFlight.Dec()
	route := RouteOf(path)
	o.requests.WithLabelValues(method, route, statusLabel(status)).Inc()
	o.duration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// statusLabel is the status code, or "error" when no response arrived.
func statusLabel(status int) string {
	if status == 0 {
		return "error"
	}
	return strconv.Itoa(status)
}

// OTelObserver reports SDK requests through OpenTelemetry instruments. It
// implements sdk.Observer.
type OTelObserver struct {
	requests metric.Int64Counter
	errors   metric.Int64Counter
	duration metric.Float64Histogram
}

// NewOTelObserver creates the client instruments on meter. Pass nil to use
// the global meter provider.
func NewOTelObserver(meter metric.Meter) (*OTelObserver, error) {
	if meter == nil {
		meter = otel.Meter("github.com/birbparty/flox-go/sdk")
	}

	requests, err := meter.Int64Counter("flox.client.requests",
		metric.WithDescription("Requests sent to the Flox service"))
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}
	errs, err := meter.Int64Counter("flox.client.errors",
		metric.WithDescription("Requests that failed or returned an error status"))
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}
	duration, err := meter.Float64Histogram("flox.client.duration",
		metric.WithDescription("Duration of requests sent to the Flox service"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &OTelObserver{requests: requests, errors: errs, duration: duration}, nil
}

// OnRequestStart implements sdk.Observer
func (o *OTelObserver) OnRequestStart(method, path string) {}

// OnRequestEnd implements sdk.Observer
func (o *OTelObserver) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("flox.route", RouteOf(path)),
		attribute.String("http.status", statusLabel(status)),
	)
	o.requests.Add(ctx, 1, attrs)
	o.duration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		o.errors.Add(ctx, 1, attrs)
	}
}
