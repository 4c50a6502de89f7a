package pipeline

import (
	"context"
	"strconv"
	"sync/atomic"

	"echo/internal/event"
	"echo/internal/logging"
	"echo/internal/metrics"
)

const DefaultQueueSize = 256

// EventPublisher sends one event on a subject.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, echo event.Echo) error
}

type DispatcherOptions struct {
	QueueSize int
	Logger    *logging.Logger
	Metrics   *metrics.Registry
}

// Dispatcher is the handoff between watcher goroutines and the publishing
// loop. Submit never blocks; Run publishes queued events one at a time on
// the subject named after the event.
type Dispatcher struct {
	queue     chan event.Echo
	publisher EventPublisher
	logger    *logging.Logger
	metrics   *metrics.Registry
	dropped   atomic.Int64
}

func NewDispatcher(publisher EventPublisher, opts DispatcherOptions) *Dispatcher {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Dispatcher{
		queue:     make(chan event.Echo, size),
		publisher: publisher,
		logger:    logger.Named("pipeline"),
		metrics:   opts.Metrics,
	}
}

// Submit queues echo for publishing. When the queue is full the event is
// dropped and Submit reports false.
func (d *Dispatcher) Submit(echo event.Echo) bool {
	select {
	case d.queue <- echo:
		return true
	default:
	}
	dropped := d.dropped.Add(1)
	d.metrics.IncHandoffDropped()
	d.logger.Warn("dispatch queue full, dropping event", map[string]string{
		logging.FieldSubject: echo.Name(),
		logging.FieldHash:    echo.ShortHash(),
		"dropped":            strconv.FormatInt(dropped, 10),
	})
	return false
}

// Run publishes queued events until ctx is done. Events still queued at
// that point are abandoned.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if pending := len(d.queue); pending > 0 {
				d.logger.Warn("dispatcher stopped with queued events", map[string]string{
					"pending": strconv.Itoa(pending),
				})
			}
			return nil
		case echo := <-d.queue:
			// Failures are already logged and counted by the publisher.
			_ = d.publisher.Publish(ctx, echo.Name(), echo)
		}
	}
}

func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}
