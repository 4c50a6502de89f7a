package pipeline

import (
	"context"
	"testing"
	"time"

	otelapi "go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"echo/internal/event"
	"echo/internal/transport"
)

var fixedTimestamp = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newBus(t *testing.T) *transport.Bus {
	t.Helper()
	bus := transport.NewBus(transport.BusOptions{Dialer: transport.NewMemoryNetwork()})
	if err := bus.Connect(context.Background(), transport.Endpoint{}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func fileEvent(t *testing.T, name, path string) event.Echo {
	t.Helper()
	echo, err := event.New(name, event.SourceWatcher,
		event.WithPayload(map[string]any{event.PayloadSource: path}),
		event.WithTimestamp(fixedTimestamp),
	)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	return echo
}

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otelapi.GetTracerProvider()
	otelapi.SetTracerProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otelapi.SetTracerProvider(previous)
	})
	return recorder
}

func findSpan(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, span := range spans {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

func spanAttribute(span sdktrace.ReadOnlySpan, key string) string {
	for _, attr := range span.Attributes() {
		if string(attr.Key) == key {
			return attr.Value.Emit()
		}
	}
	return ""
}

func waitEcho(t *testing.T, ch <-chan event.Echo) event.Echo {
	t.Helper()
	select {
	case echo := <-ch:
		return echo
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return event.Echo{}
	}
}
