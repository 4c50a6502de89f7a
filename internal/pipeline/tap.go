package pipeline

import (
	"echo/internal/event"
	"echo/internal/logging"
	"echo/internal/transport"
)

// AllSubjects matches every subject on the transport.
const AllSubjects = ">"

// Observer is the pattern side of the transport bus.
type Observer interface {
	Observe(pattern string, handler transport.MessageHandler) error
}

// Tap mirrors decoded events from the transport into an in-process bus so
// local consumers (the HTTP API) can follow the stream.
type Tap struct {
	observer Observer
	local    *event.Bus[event.Echo]
	logger   *logging.Logger
}

func NewTap(observer Observer, local *event.Bus[event.Echo], logger *logging.Logger) *Tap {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Tap{observer: observer, local: local, logger: logger.Named("pipeline")}
}

// Start observes pattern, or every subject when pattern is empty.
func (t *Tap) Start(pattern string) error {
	if pattern == "" {
		pattern = AllSubjects
	}
	return t.observer.Observe(pattern, t.forward)
}

func (t *Tap) forward(msg transport.Message) {
	echo, _, err := event.Decode(msg.Data)
	if err != nil {
		t.logger.Debug("tap skipped undecodable message", map[string]string{
			logging.FieldSubject: msg.Subject,
			logging.FieldError:   err.Error(),
		})
		return
	}
	t.local.Publish(echo)
}
