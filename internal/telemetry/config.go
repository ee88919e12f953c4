package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Config holds the configuration for telemetry
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	LogLevel       string

	// OTLP is the collector traces and metrics are sent to
	OTLP OTLPConfig

	// ExportDir replaces the collector with local JSON-lines files
	// (traces.jsonl and logs.jsonl), e.g. for floxd on a laptop.
	ExportDir string

	Tracing TracingConfig
	Metrics MetricsConfig
}

// OTLPConfig addresses an OTLP/gRPC collector
type OTLPConfig struct {
	Endpoint string
	Insecure bool
}

// TracingConfig controls span export
type TracingConfig struct {
	Enabled      bool
	SamplingRate float64
}

// MetricsConfig controls OTLP metric export. Prometheus metrics are always
// registered.
type MetricsConfig struct {
	Enabled  bool
	Interval time.Duration
}

const defaultMetricsInterval = 10 * time.Second

// NewConfigFromEnv creates a new config from environment variables.
// serviceName is used unless OTEL_SERVICE_NAME overrides it.
func NewConfigFromEnv(serviceName string) *Config {
	cfg := &Config{
		ServiceName:    getEnv("OTEL_SERVICE_NAME", serviceName),
		ServiceVersion: getEnv("SERVICE_VERSION", "unknown"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		OTLP: OTLPConfig{
			Endpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		},
		ExportDir: os.Getenv("OTEL_EXPORT_DIR"),
		Tracing: TracingConfig{
			Enabled:      getEnvBool("ENABLE_TRACING", false),
			SamplingRate: getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
		Metrics: MetricsConfig{
			Enabled:  getEnvBool("ENABLE_METRICS", false),
			Interval: time.Duration(getEnvInt("OTEL_METRIC_EXPORT_INTERVAL", 0)) * time.Millisecond,
		},
	}
	cfg.normalize()
	return cfg
}

// normalize clamps the sampling rate to [0, 1] and fills in the export
// interval.
func (c *Config) normalize() {
	switch {
	case c.Tracing.SamplingRate < 0:
		c.Tracing.SamplingRate = 0
	case c.Tracing.SamplingRate > 1:
		c.Tracing.SamplingRate = 1
	}
	if c.Metrics.Interval <= 0 {
		c.Metrics.Interval = defaultMetricsInterval
	}
}

// ExportsToFiles reports whether telemetry goes to ExportDir instead of a
// collector.
func (c *Config) ExportsToFiles() bool {
	return c.ExportDir != ""
}

// TracesPath is the span file used with ExportDir
func (c *Config) TracesPath() string {
	return filepath.Join(c.ExportDir, "traces.jsonl")
}

// LogsPath is the log file used with ExportDir
func (c *Config) LogsPath() string {
	return filepath.Join(c.ExportDir, "logs.jsonl")
}

// resource describes the service to the collector
func (c *Config) resource(ctx context.Context) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(c.ServiceName),
			semconv.ServiceVersionKey.String(c.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(c.Environment),
		),
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
