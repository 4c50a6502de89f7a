package event

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidEvent = errors.New("invalid event")

// Echo is an immutable domain event identified by the SHA-256 digest of its
// canonical form. Build one with New; the zero value is not a valid event.
type Echo struct {
	name      string
	source    string
	payload   map[string]any
	timestamp time.Time
}

type Option func(*Echo)

// WithPayload attaches a copy of payload. A nil payload means "absent",
// which hashes differently from an empty one.
func WithPayload(payload map[string]any) Option {
	return func(echo *Echo) {
		echo.payload = clonePayload(payload)
	}
}

// WithTimestamp overrides the creation time. Zero values are ignored.
func WithTimestamp(timestamp time.Time) Option {
	return func(echo *Echo) {
		if !timestamp.IsZero() {
			echo.timestamp = timestamp
		}
	}
}

func New(name, source string, options ...Option) (Echo, error) {
	if strings.TrimSpace(name) == "" {
		return Echo{}, fmt.Errorf("%w: name is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(source) == "" {
		return Echo{}, fmt.Errorf("%w: source is required", ErrInvalidEvent)
	}

	echo := Echo{
		name:      name,
		source:    source,
		timestamp: time.Now().UTC(),
	}
	for _, option := range options {
		if option != nil {
			option(&echo)
		}
	}
	echo.timestamp = echo.timestamp.UTC()

	if _, err := CanonicalPayload(echo.payload); err != nil {
		return Echo{}, fmt.Errorf("%w: payload: %v", ErrInvalidEvent, err)
	}
	return echo, nil
}

// NewFileEvent builds a watcher event whose payload carries the notified path.
func NewFileEvent(name, path string) (Echo, error) {
	return New(name, SourceWatcher, WithPayload(map[string]any{PayloadSource: path}))
}

func (e Echo) Name() string {
	return e.name
}

func (e Echo) Type() string {
	return e.name
}

func (e Echo) Source() string {
	return e.source
}

func (e Echo) Timestamp() time.Time {
	return e.timestamp
}

// Payload returns a copy of the payload, or nil when none was attached.
func (e Echo) Payload() map[string]any {
	return clonePayload(e.payload)
}

func (e Echo) HasPayload() bool {
	return e.payload != nil
}

// PayloadString reads a string payload field.
func (e Echo) PayloadString(key string) (string, bool) {
	if e.payload == nil {
		return "", false
	}
	value, ok := e.payload[key].(string)
	return value, ok
}

// CanonicalString is the exact input of Hash:
// <timestamp ms, +00:00>|<name>|<source>|<sorted compact payload JSON or empty>.
func (e Echo) CanonicalString() string {
	payload, err := CanonicalPayload(e.payload)
	if err != nil {
		payload = ""
	}
	var builder strings.Builder
	builder.WriteString(CanonicalTimestamp(e.timestamp))
	builder.WriteByte('|')
	builder.WriteString(e.name)
	builder.WriteByte('|')
	builder.WriteString(e.source)
	builder.WriteByte('|')
	builder.WriteString(payload)
	return builder.String()
}

// Hash is recomputed on every call.
func (e Echo) Hash() string {
	sum := sha256.Sum256([]byte(e.CanonicalString()))
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first eight hex characters of Hash.
func (e Echo) ShortHash() string {
	return e.Hash()[:8]
}

// Same reports whether both events share an identity.
func (e Echo) Same(other Echo) bool {
	return e.Hash() == other.Hash()
}

func (e Echo) String() string {
	return fmt.Sprintf("%s from %s at %s (%s)", e.name, e.source, CanonicalTimestamp(e.timestamp), e.ShortHash())
}

func clonePayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	cloned := make(map[string]any, len(payload))
	for key, value := range payload {
		cloned[key] = cloneValue(value)
	}
	return cloned
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return clonePayload(typed)
	case []any:
		cloned := make([]any, len(typed))
		for i, item := range typed {
			cloned[i] = cloneValue(item)
		}
		return cloned
	case []string:
		return append([]string(nil), typed...)
	default:
		return value
	}
}
