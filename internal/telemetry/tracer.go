package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// instrumentationName names the tracer until InitTracing has run.
const instrumentationName = "github.com/birbparty/flox-go"

var (
	tracerOnce     sync.Once
	tracer         trace.Tracer
	tracerProvider *sdktrace.TracerProvider
)

// InitTracing installs the global tracer provider. The SDK opens its client
// spans on the global provider, so with tracing disabled a noop provider
// keeps them free.
func InitTracing(cfg *Config) error {
	var err error
	tracerOnce.Do(func() {
		if !cfg.Tracing.Enabled {
			otel.SetTracerProvider(noop.NewTracerProvider())
			tracer = otel.Tracer(cfg.ServiceName)
			return
		}

		ctx := context.Background()
		res, resErr := cfg.resource(ctx)
		if resErr != nil {
			err = fmt.Errorf("failed to create resource: %w", resErr)
			return
		}

		exporter, expErr := newSpanExporter(ctx, cfg)
		if expErr != nil {
			err = expErr
			return
		}

		// Sampling follows the caller: a request that arrives with a sampled
		// traceparent stays sampled.
		tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Tracing.SamplingRate))),
		)

		otel.SetTracerProvider(tracerProvider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		tracer = otel.Tracer(cfg.ServiceName)
	})

	return err
}

func newSpanExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	if cfg.ExportsToFiles() {
		exporter, err := NewFileTracerExporter(cfg.TracesPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create span file: %w", err)
		}
		return exporter, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLP.Endpoint)}
	if cfg.OTLP.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	return exporter, nil
}

// FileTracerExporter appends finished spans to a JSON-lines file, one
// FileSpan per line.
type FileTracerExporter struct {
	out *appendFile
}

// FileSpan is the JSON form of a finished span
type FileSpan struct {
	TraceID    string                 `json:"trace_id"`
	SpanID     string                 `json:"span_id"`
	ParentID   string                 `json:"parent_id,omitempty"`
	Name       string                 `json:"name"`
	Kind       string                 `json:"kind"`
	StartTime  time.Time              `json:"start_time"`
	DurationMS float64                `json:"duration_ms"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
	Status     string                 `json:"status"`
	Error      string                 `json:"error,omitempty"`
	Events     []SpanEvent            `json:"events,omitempty"`
}

// SpanEvent is an event recorded on a span
type SpanEvent struct {
	Name       string                 `json:"name"`
	Timestamp  time.Time              `json:"timestamp"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// NewFileTracerExporter opens filePath for appending, creating its
// directory if needed.
func NewFileTracerExporter(filePath string) (*FileTracerExporter, error) {
	out, err := openAppendFile(filePath)
	if err != nil {
		return nil, err
	}
	return &FileTracerExporter{out: out}, nil
}

// ExportSpans implements sdktrace.SpanExporter
func (f *FileTracerExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	lines := make([][]byte, 0, len(spans))
	for _, span := range spans {
		line, err := json.Marshal(newFileSpan(span))
		if err != nil {
			return err
		}
		lines = append(lines, append(line, '\n'))
	}
	return f.out.writeLines(lines...)
}

// Shutdown implements sdktrace.SpanExporter
func (f *FileTracerExporter) Shutdown(ctx context.Context) error {
	return f.out.close()
}

func newFileSpan(span sdktrace.ReadOnlySpan) FileSpan {
	fs := FileSpan{
		TraceID:    span.SpanContext().TraceID().String(),
		SpanID:     span.SpanContext().SpanID().String(),
		Name:       span.Name(),
		Kind:       span.SpanKind().String(),
		StartTime:  span.StartTime(),
		DurationMS: float64(span.EndTime().Sub(span.StartTime())) / float64(time.Millisecond),
		Attributes: attributeMap(span.Attributes()),
		Status:     span.Status().Code.String(),
	}
	if span.Status().Code == codes.Error {
		fs.Error = span.Status().Description
	}
	if span.Parent().IsValid() {
		fs.ParentID = span.Parent().SpanID().String()
	}
	for _, event := range span.Events() {
		fs.Events = append(fs.Events, SpanEvent{
			Name:       event.Name,
			Timestamp:  event.Time,
			Attributes: attributeMap(event.Attributes),
		})
	}
	return fs
}

func attributeMap(attrs []attribute.KeyValue) map[string]interface{} {
	if len(attrs) == 0 {
		return nil
	}
	m := make(map[string]interface{}, len(attrs))
	for _, attr := range attrs {
		m[string(attr.Key)] = attr.Value.AsInterface()
	}
	return m
}

// Tracer returns the tracer of the service
func Tracer() trace.Tracer {
	if tracer == nil {
		return otel.Tracer(instrumentationName)
	}
	return tracer
}

// StartSpan starts a new span with the given name
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// EndSpan sets the span status from err and ends it. A non-nil err is also
// recorded as an event.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// CloseTracing flushes pending spans and stops the tracer provider
func CloseTracing(ctx context.Context) error {
	if tracerProvider == nil {
		return nil
	}
	return tracerProvider.Shutdown(ctx)
}
