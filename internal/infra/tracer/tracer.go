// Package tracer configures OpenTelemetry for the tutor and offers thin span
// helpers so callers do not import the otel packages directly.
package tracer

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"tutor-dispatch/internal/infra/config"
)

const serviceName = "tutor-dispatch"

// Shutdown flushes pending spans.
type Shutdown func(context.Context) error

type options struct {
	out     io.Writer
	version string
}

// Option customises Setup.
type Option func(*options)

// WithWriter sends stdout-exporter output to w instead of os.Stdout.
func WithWriter(w io.Writer) Option { return func(o *options) { o.out = w } }

// WithVersion tags every span's resource with service.version.
func WithVersion(v string) Option { return func(o *options) { o.version = v } }

// Setup installs the global TracerProvider. Disabled tracing and the "noop"
// exporter both install a noop provider.
func Setup(_ context.Context, cfg config.TracerConfig, opts ...Option) (Shutdown, error) {
	o := options{out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}

	if !cfg.Enabled || cfg.Exporter == "" || cfg.Exporter == "noop" {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}
	if cfg.Exporter != "stdout" {
		return nil, fmt.Errorf("unsupported trace exporter %q", cfg.Exporter)
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(o.out), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("stdout trace exporter: %w", err)
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", serviceName)}
	if o.version != "" {
		attrs = append(attrs, attribute.String("service.version", o.version))
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(serviceName).Start(ctx, name, opts...)
}

// RecordError marks the span failed.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func SetOK(span trace.Span) { span.SetStatus(codes.Ok, "") }

func StringAttr(k, v string) attribute.KeyValue { return attribute.String(k, v) }
func IntAttr(k string, v int) attribute.KeyValue { return attribute.Int(k, v) }
func FloatAttr(k string, v float64) attribute.KeyValue { return attribute.Float64(k, v) }
func BoolAttr(k string, v bool) attribute.KeyValue { return attribute.Bool(k, v) }
