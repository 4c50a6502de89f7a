package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestParseResourceAttributes(t *testing.T) {
	attrs := parseResourceAttributes("env=dev, team = core ,invalid,=skip")
	if attrs["env"] != "dev" {
		t.Fatalf("expected env=dev, got %q", attrs["env"])
	}
	if attrs["team"] != "core" {
		t.Fatalf("expected team=core, got %q", attrs["team"])
	}
	if _, ok := attrs["invalid"]; ok {
		t.Fatalf("expected invalid attribute to be skipped")
	}
	if _, ok := attrs[""]; ok {
		t.Fatalf("expected empty key to be skipped")
	}
	if parseResourceAttributes("  ") != nil {
		t.Fatalf("expected nil for blank input")
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	cases := map[string]string{
		"http://127.0.0.1:4318":  "127.0.0.1:4318",
		"https://localhost:4318": "localhost:4318",
		"127.0.0.1:4318/":        "127.0.0.1:4318",
		"":                       "",
	}
	for input, expected := range cases {
		if got := normalizeEndpoint(input); got != expected {
			t.Fatalf("normalizeEndpoint(%q) = %q, want %q", input, got, expected)
		}
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("ECHO_OTEL_ENABLED", "true")
	t.Setenv("ECHO_OTEL_SERVICE_NAME", "echo-test")
	t.Setenv("ECHO_OTEL_RESOURCE_ATTRIBUTES", "env=staging")
	t.Setenv("ECHO_OTEL_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")

	opts := OptionsFromEnv()
	if !opts.Enabled {
		t.Fatalf("expected Enabled true")
	}
	if opts.ServiceName != "echo-test" {
		t.Fatalf("expected service name override, got %q", opts.ServiceName)
	}
	if opts.HTTPEndpoint != "http://collector:4318" {
		t.Fatalf("expected fallback endpoint, got %q", opts.HTTPEndpoint)
	}
	if opts.ResourceAttributes["env"] != "staging" {
		t.Fatalf("expected resource attribute env=staging, got %v", opts.ResourceAttributes)
	}
}

func TestSetupTracingDisabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), Options{})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestResourceAttributesDefaultServiceName(t *testing.T) {
	attrs := resourceAttributes(Options{ServiceVersion: "1.2.3", ResourceAttributes: map[string]string{"env": "dev"}})
	found := map[string]string{}
	for _, attr := range attrs {
		found[string(attr.Key)] = attr.Value.AsString()
	}
	if found["service.name"] != "echo" || found["service.version"] != "1.2.3" || found["env"] != "dev" {
		t.Fatalf("unexpected resource attributes %v", found)
	}
}

func TestRecordSpanEvent(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	ctx, span := provider.Tracer("test").Start(context.Background(), "load")
	RecordSpanEvent(ctx, "spec.loaded", attribute.String("path", "a.yaml"))
	RecordSpanEvent(ctx, "")
	RecordSpanEvent(context.Background(), "ignored")
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected one span, got %d", len(spans))
	}
	events := spans[0].Events()
	if len(events) != 1 || events[0].Name != "spec.loaded" {
		t.Fatalf("expected spec.loaded event, got %+v", events)
	}
}
