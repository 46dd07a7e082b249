package otel

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"

	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

type OpenTelemetryTypeConfig struct {
	// Exporter is "otlp" (default) or "stdout".
	Exporter string
	Endpoint string
	Protocol string
}

type OpenTelemetryConfig struct {
	ServiceName string
	Traces      *OpenTelemetryTypeConfig
	Metrics     *OpenTelemetryTypeConfig
	Logs        *OpenTelemetryTypeConfig
}

func newTraceProvider(ctx context.Context, res *resource.Resource, c *OpenTelemetryTypeConfig) (*trace.TracerProvider, error) {
	if c == nil {
		return nil, nil
	}

	var err error
	var traceExporter trace.SpanExporter
	switch {
	case c.Exporter == ExporterStdout:
		traceExporter, err = stdouttrace.New()
	case c.Protocol == ProtocolGRPC:
		traceExporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithInsecure(), // TODO: support TLS
			otlptracegrpc.WithEndpoint(c.Endpoint),
		)
	default:
		traceExporter, err = otlptracehttp.New(ctx,
			otlptracehttp.WithInsecure(), // TODO: support TLS
			otlptracehttp.WithEndpointURL(ensureHTTPEndpoint("traces", c.Endpoint)),
		)
	}
	if err != nil {
		return nil, err
	}

	return trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithBatcher(traceExporter, trace.WithBatchTimeout(time.Second)),
	), nil
}

func newMeterProvider(ctx context.Context, res *resource.Resource, c *OpenTelemetryTypeConfig) (*metric.MeterProvider, error) {
	if c == nil {
		return nil, nil
	}

	var err error
	var metricExporter metric.Exporter
	switch {
	case c.Exporter == ExporterStdout:
		metricExporter, err = stdoutmetric.New()
	case c.Protocol == ProtocolGRPC:
		metricExporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithInsecure(), // TODO: support TLS
			otlpmetricgrpc.WithEndpoint(c.Endpoint),
		)
	default:
		metricExporter, err = otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithInsecure(), // TODO: support TLS
			otlpmetrichttp.WithEndpointURL(ensureHTTPEndpoint("metrics", c.Endpoint)),
		)
	}
	if err != nil {
		return nil, err
	}

	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(metricExporter,
			metric.WithInterval(15*time.Second))),
	), nil
}

func newLoggerProvider(ctx context.Context, res *resource.Resource, c *OpenTelemetryTypeConfig) (*log.LoggerProvider, error) {
	if c == nil {
		return nil, nil
	}

	var err error
	var logExporter log.Exporter
	switch {
	case c.Exporter == ExporterStdout:
		logExporter, err = stdoutlog.New()
	case c.Protocol == ProtocolGRPC:
		logExporter, err = otlploggrpc.New(ctx,
			otlploggrpc.WithInsecure(), // TODO: support TLS
			otlploggrpc.WithEndpoint(c.Endpoint),
		)
	default:
		logExporter, err = otlploghttp.New(ctx,
			otlploghttp.WithInsecure(), // TODO: support TLS
			otlploghttp.WithEndpointURL(ensureHTTPEndpoint("logs", c.Endpoint)),
		)
	}
	if err != nil {
		return nil, err
	}

	return log.NewLoggerProvider(
		log.WithResource(res),
		log.WithProcessor(log.NewBatchProcessor(logExporter)),
	), nil
}

// ensureHTTPEndpoint turns "collector:4318" into
// "http://collector:4318/v1/<type>".
func ensureHTTPEndpoint(exporterType string, endpoint string) string {
	full := endpoint
	if !strings.HasPrefix(endpoint, "http") {
		full = "http://" + endpoint
	}
	suffix := "/v1/" + exporterType
	if !strings.HasSuffix(full, suffix) {
		full = strings.TrimSuffix(full, "/") + suffix
	}
	return full
}
