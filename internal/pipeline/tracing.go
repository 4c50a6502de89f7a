package pipeline

import (
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"echo/internal/event"
)

const (
	tracerName       = "echo/pipeline"
	emitSpanName     = "echo.emit"
	dispatchSpanName = "echo.dispatch"
)

func tracer() trace.Tracer {
	return otelapi.Tracer(tracerName)
}

func echoAttributes(subject string, echo event.Echo) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("messaging.system", "nats"),
		attribute.String("messaging.destination.name", subject),
		attribute.String("echo.name", echo.Name()),
		attribute.String("echo.source", echo.Source()),
		attribute.String("echo.hash", echo.Hash()),
	}
}
