package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	tracerOnce sync.Once
	tracer     trace.Tracer
)

// InitTracing installs the W3C propagator and a tracer provider. Spans go
// to the OTLP collector, or to TracesFilePath when file export is on.
func InitTracing(cfg *Config) error {
	var err error
	tracerOnce.Do(func() {
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))

		if !cfg.EnableTracing {
			otel.SetTracerProvider(noop.NewTracerProvider())
			tracer = otel.Tracer(cfg.ServiceName)
			return
		}

		ctx := context.Background()
		res, resErr := resource.New(ctx, resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		))
		if resErr != nil {
			err = fmt.Errorf("failed to create resource: %w", resErr)
			return
		}

		exporter, expErr := newSpanExporter(ctx, cfg)
		if expErr != nil {
			err = expErr
			return
		}

		otel.SetTracerProvider(sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		))
		tracer = otel.Tracer(cfg.ServiceName)
	})
	return err
}

func newSpanExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	if cfg.ExportToFile && cfg.TracesFilePath != "" {
		exp, err := newFileSpanExporter(cfg.TracesFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace file: %w", err)
		}
		return exp, nil
	}

	exp, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	return exp, nil
}

// fileSpanExporter appends one JSON line per finished span
type fileSpanExporter struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

type spanRecord struct {
	TraceID    string         `json:"trace_id"`
	SpanID     string         `json:"span_id"`
	ParentID   string         `json:"parent_id,omitempty"`
	Name       string         `json:"name"`
	Start      time.Time      `json:"start_time"`
	End        time.Time      `json:"end_time"`
	Status     string         `json:"status"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func newFileSpanExporter(path string) (*fileSpanExporter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileSpanExporter{file: f, enc: json.NewEncoder(f)}, nil
}

func (f *fileSpanExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, span := range spans {
		rec := spanRecord{
			TraceID: span.SpanContext().TraceID().String(),
			SpanID:  span.SpanContext().SpanID().String(),
			Name:    span.Name(),
			Start:   span.StartTime(),
			End:     span.EndTime(),
			Status:  span.Status().Code.String(),
		}
		if span.Parent().IsValid() {
			rec.ParentID = span.Parent().SpanID().String()
		}
		if attrs := span.Attributes(); len(attrs) > 0 {
			rec.Attributes = make(map[string]any, len(attrs))
			for _, kv := range attrs {
				rec.Attributes[string(kv.Key)] = kv.Value.AsInterface()
			}
		}
		if err := f.enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

func (f *fileSpanExporter) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Close()
}

// Tracer returns the tracer set up by InitTracing, or the global one
func Tracer() trace.Tracer {
	if tracer == nil {
		return otel.Tracer("pinch")
	}
	return tracer
}

// StartSpan starts a span under ctx
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// FinishSpan sets the span status from err. A non-nil err is also
// recorded as a span event. The caller still ends the span.
func FinishSpan(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// CloseTracing flushes and shuts down the SDK tracer provider, if installed
func CloseTracing(ctx context.Context) error {
	if tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		return tp.Shutdown(ctx)
	}
	return nil
}
