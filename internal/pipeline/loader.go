package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"echo/internal/event"
	"echo/internal/logging"
	"echo/internal/metrics"
	"echo/internal/transport"
)

// Handler processes one inbound event.
type Handler func(ctx context.Context, echo event.Echo) error

// Subscriber is the transport side of the Loader.
type Subscriber interface {
	Subscribe(subject string, handler transport.MessageHandler) error
	Unsubscribe(subject string) error
	UnsubscribeAll() int
}

type LoaderOptions struct {
	Logger  *logging.Logger
	Metrics *metrics.Registry
}

// Loader owns the subject to handler registry. Every inbound message is
// decoded and dispatched in isolation: a malformed payload or a failing
// handler is logged and the subscription keeps serving later messages.
type Loader struct {
	mu       sync.Mutex
	bus      Subscriber
	handlers map[string]Handler
	logger   *logging.Logger
	metrics  *metrics.Registry
}

// DefaultHandlers are the built-in handlers for file events.
type DefaultHandlers struct {
	Created  Handler
	Modified Handler
}

func NewLoader(bus Subscriber, opts LoaderOptions) *Loader {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Loader{
		bus:      bus,
		handlers: make(map[string]Handler),
		logger:   logger.Named("pipeline"),
		metrics:  opts.Metrics,
	}
}

// RegisterHandler subscribes handler to subject. Registering a subject that
// is already registered is a no-op.
func (l *Loader) RegisterHandler(subject string, handler Handler) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return transport.ErrEmptySubject
	}
	if handler == nil {
		return fmt.Errorf("register %s: handler is required", subject)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.handlers[subject]; exists {
		l.logger.Info("handler already registered", map[string]string{logging.FieldSubject: subject})
		return nil
	}
	err := l.bus.Subscribe(subject, func(msg transport.Message) {
		l.dispatch(subject, handler, msg)
	})
	if errors.Is(err, transport.ErrAlreadySubscribed) {
		l.logger.Info("subject already subscribed", map[string]string{logging.FieldSubject: subject})
		return nil
	}
	if err != nil {
		return fmt.Errorf("register %s: %w", subject, err)
	}
	l.handlers[subject] = handler
	return nil
}

// LoadDefaults registers the built-in file.created and file.modified
// handlers.
func (l *Loader) LoadDefaults(defaults DefaultHandlers) error {
	return errors.Join(
		l.RegisterHandler(event.TypeFileCreated, defaults.Created),
		l.RegisterHandler(event.TypeFileModified, defaults.Modified),
	)
}

func (l *Loader) Unregister(subject string) error {
	subject = strings.TrimSpace(subject)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.handlers[subject]; !ok {
		return fmt.Errorf("%w: %s", transport.ErrNotSubscribed, subject)
	}
	delete(l.handlers, subject)
	return l.bus.Unsubscribe(subject)
}

// UnregisterAll tears down every subscription on the bus and clears the
// handler registry.
func (l *Loader) UnregisterAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	failed := l.bus.UnsubscribeAll()
	if failed > 0 {
		l.logger.Warn("some subscriptions failed to close", map[string]string{
			"failed": fmt.Sprint(failed),
		})
	}
	l.handlers = make(map[string]Handler)
}

// Subjects lists registered subjects, sorted.
func (l *Loader) Subjects() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	subjects := make([]string, 0, len(l.handlers))
	for subject := range l.handlers {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)
	return subjects
}

func (l *Loader) dispatch(subject string, handler Handler, msg transport.Message) {
	ctx, span := tracer().Start(context.Background(), dispatchSpanName,
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	echo, claimedHash, err := event.Decode(msg.Data)
	if err != nil {
		l.metrics.IncDecodeFailure(msg.Subject)
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		l.logger.Warn("discarding malformed message", map[string]string{
			logging.FieldSubject: msg.Subject,
			logging.FieldError:   err.Error(),
		})
		return
	}
	span.SetAttributes(echoAttributes(msg.Subject, echo)...)

	if claimedHash != "" && claimedHash != echo.Hash() {
		l.metrics.IncHashMismatch()
		l.logger.Warn("event hash mismatch", map[string]string{
			logging.FieldSubject: msg.Subject,
			"claimed":            claimedHash,
			logging.FieldHash:    echo.Hash(),
		})
	}

	start := time.Now()
	err = invoke(ctx, handler, echo)
	l.metrics.RecordDispatch(msg.Subject, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.logger.Error("handler failed", map[string]string{
			logging.FieldSubject: subject,
			logging.FieldHash:    echo.ShortHash(),
			logging.FieldError:   err.Error(),
		})
		return
	}
	l.logger.Debug("dispatched", map[string]string{
		logging.FieldSubject: msg.Subject,
		logging.FieldHash:    echo.ShortHash(),
	})
}

func invoke(ctx context.Context, handler Handler, echo event.Echo) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("handler panic: %v", recovered)
		}
	}()
	return handler(ctx, echo)
}
