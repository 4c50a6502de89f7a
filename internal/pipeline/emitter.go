package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"echo/internal/event"
	"echo/internal/logging"
	"echo/internal/metrics"
)

// Publisher is the transport side of the Emitter.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type EmitterOptions struct {
	Logger  *logging.Logger
	Metrics *metrics.Registry
}

type Emitter struct {
	publisher Publisher
	logger    *logging.Logger
	metrics   *metrics.Registry
}

func NewEmitter(publisher Publisher, opts EmitterOptions) *Emitter {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Emitter{
		publisher: publisher,
		logger:    logger.Named("pipeline"),
		metrics:   opts.Metrics,
	}
}

// Publish encodes echo in its wire form and sends it on subject. Delivery
// is not acknowledged and failures are not retried.
func (e *Emitter) Publish(ctx context.Context, subject string, echo event.Echo) error {
	if ctx == nil {
		ctx = context.Background()
	}
	_, span := tracer().Start(ctx, emitSpanName,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(echoAttributes(subject, echo)...),
	)
	defer span.End()

	data, err := json.Marshal(echo)
	if err == nil {
		err = e.publisher.Publish(subject, data)
	}
	e.metrics.RecordPublish(subject, err)
	if err != nil {
		err = fmt.Errorf("emit %s: %w", subject, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("emit failed", map[string]string{
			logging.FieldSubject: subject,
			logging.FieldHash:    echo.ShortHash(),
			logging.FieldError:   err.Error(),
		})
		return err
	}

	e.logger.Info("emitted", map[string]string{
		logging.FieldSubject: subject,
		logging.FieldHash:    echo.ShortHash(),
	})
	return nil
}
