// Package otel installs the OpenTelemetry tracer provider and offers small
// helpers for annotating the current span.
package otel

import (
	"context"
	"os"
	"strconv"
	"strings"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

const (
	defaultServiceName  = "echo"
	defaultHTTPEndpoint = "127.0.0.1:4318"
)

// Options configures trace export.
type Options struct {
	Enabled            bool
	HTTPEndpoint       string
	ServiceName        string
	ServiceVersion     string
	ResourceAttributes map[string]string
}

// OptionsFromEnv reads ECHO_OTEL_* and falls back to the standard
// OTEL_EXPORTER_OTLP_ENDPOINT for the collector address.
func OptionsFromEnv() Options {
	options := Options{ServiceName: defaultServiceName}
	if rawEnabled, ok := os.LookupEnv("ECHO_OTEL_ENABLED"); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(rawEnabled)); err == nil {
			options.Enabled = parsed
		}
	}
	options.HTTPEndpoint = strings.TrimSpace(os.Getenv("ECHO_OTEL_ENDPOINT"))
	if options.HTTPEndpoint == "" {
		options.HTTPEndpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	}
	if serviceName := strings.TrimSpace(os.Getenv("ECHO_OTEL_SERVICE_NAME")); serviceName != "" {
		options.ServiceName = serviceName
	}
	options.ResourceAttributes = parseResourceAttributes(os.Getenv("ECHO_OTEL_RESOURCE_ATTRIBUTES"))
	return options
}

// SetupTracing installs a batching OTLP/HTTP tracer provider as the global
// provider. When tracing is disabled the returned shutdown is a no-op and
// the global no-op provider stays in place.
func SetupTracing(ctx context.Context, options Options) (func(context.Context) error, error) {
	if !options.Enabled {
		return func(context.Context) error { return nil }, nil
	}
	endpoint := normalizeEndpoint(options.HTTPEndpoint)
	if endpoint == "" {
		endpoint = defaultHTTPEndpoint
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := sdkresource.New(ctx, sdkresource.WithAttributes(resourceAttributes(options)...))
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otelapi.SetTracerProvider(tracerProvider)
	otelapi.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return tracerProvider.Shutdown, nil
}

func resourceAttributes(options Options) []attribute.KeyValue {
	serviceName := strings.TrimSpace(options.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	attrs := []attribute.KeyValue{
		attribute.String("service.name", serviceName),
	}
	if strings.TrimSpace(options.ServiceVersion) != "" {
		attrs = append(attrs, attribute.String("service.version", options.ServiceVersion))
	}
	if host, err := os.Hostname(); err == nil && strings.TrimSpace(host) != "" {
		attrs = append(attrs, attribute.String("host.name", host))
	}
	for key, value := range options.ResourceAttributes {
		if trimmedKey := strings.TrimSpace(key); trimmedKey != "" {
			attrs = append(attrs, attribute.String(trimmedKey, value))
		}
	}
	return attrs
}

func parseResourceAttributes(raw string) map[string]string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}
	attributes := make(map[string]string)
	for _, pair := range strings.Split(trimmed, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		attributes[key] = strings.TrimSpace(parts[1])
	}
	if len(attributes) == 0 {
		return nil
	}
	return attributes
}

func normalizeEndpoint(raw string) string {
	endpoint := strings.TrimSpace(raw)
	endpoint = strings.TrimSuffix(endpoint, "/")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimSuffix(endpoint, "/")
}
