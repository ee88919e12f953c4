// Package telemetry sets up logging, metrics and tracing for the Flox
// binaries and provides observers that feed SDK request events into
// Prometheus or OpenTelemetry.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

// Init initializes all telemetry components
func Init(cfg *Config) error {
	if err := InitLogger(cfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := InitMetrics(cfg); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	if err := InitTracing(cfg); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	fields := logrus.Fields{
		"service":     cfg.ServiceName,
		"version":     cfg.ServiceVersion,
		"environment": cfg.Environment,
		"tracing":     cfg.Tracing.Enabled,
		"metrics":     cfg.Metrics.Enabled,
	}
	if cfg.ExportsToFiles() {
		fields["export_dir"] = cfg.ExportDir
	} else if cfg.Tracing.Enabled || cfg.Metrics.Enabled {
		fields["otlp_endpoint"] = cfg.OTLP.Endpoint
	}
	L().WithFields(fields).Info("Telemetry initialized")
	return nil
}

// Shutdown flushes and closes all telemetry components. Failures are
// logged, not returned, so every component gets its chance to flush.
func Shutdown(ctx context.Context) error {
	if err := CloseTracing(ctx); err != nil {
		L().WithError(err).Error("Failed to close tracing")
	}
	if err := CloseMetrics(ctx); err != nil {
		L().WithError(err).Error("Failed to close metrics")
	}
	if err := CloseLogger(); err != nil {
		L().WithError(err).Error("Failed to close logger")
	}
	return nil
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// FiberPrometheusHandler serves the default registry from a Fiber app.
func FiberPrometheusHandler() fiber.Handler {
	return adaptor.HTTPHandler(PrometheusHandler())
}

// FiberMetricsMiddleware opens a server span per request and records the
// request metrics. Requests are labelled by route pattern, not by raw path.
func FiberMetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		ctx, span := StartSpan(c.UserContext(), c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer))
		c.SetUserContext(ctx)

		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
		route := c.Route().Path
		RecordHTTPRequest(c.Method(), route, strconv.Itoa(status), time.Since(start))

		span.SetAttributes(
			semconv.HTTPMethodKey.String(c.Method()),
			semconv.HTTPTargetKey.String(c.OriginalURL()),
			semconv.HTTPRouteKey.String(route),
			semconv.HTTPStatusCodeKey.Int(status),
		)

		// Client errors are the caller's fault; only 5xx marks the span.
		spanErr := err
		if status < 500 {
			spanErr = nil
		} else if spanErr == nil {
			spanErr = errors.New(http.StatusText(status))
		}
		EndSpan(span, spanErr)

		return err
	}
}

// FiberLoggingMiddleware returns a Fiber middleware for structured logging
func FiberLoggingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		entry := WithContext(c.UserContext()).WithFields(logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"duration":   time.Since(start).Milliseconds(),
			"ip":         c.IP(),
			"user_agent": c.Get("User-Agent"),
		})
		if id, ok := c.Locals("requestid").(string); ok {
			entry = entry.WithField("request_id", id)
		}

		if err != nil {
			entry.WithError(err).Error("Request failed")
		} else if c.Response().StatusCode() >= 400 {
			entry.Warn("Request completed with error status")
		} else {
			entry.Info("Request completed")
		}

		return err
	}
}

// TimeOperation times a store operation. Call the returned function with
// "success", "miss" or "error" once the operation is done.
func TimeOperation(ctx context.Context, operation string) func(status string) {
	start := time.Now()
	spanCtx, span := StartSpan(ctx, "store."+operation)

	return func(status string) {
		duration := time.Since(start)
		RecordStoreOperation(operation, status, duration)

		span.SetAttributes(semconv.DBOperationKey.String(operation))
		var err error
		if status == "error" {
			err = fmt.Errorf("store %s failed", operation)
		}
		EndSpan(span, err)

		WithContext(spanCtx).WithFields(logrus.Fields{
			"operation": operation,
			"status":    status,
			"duration":  duration.Milliseconds(),
		}).Debug("Store operation completed")
	}
}
