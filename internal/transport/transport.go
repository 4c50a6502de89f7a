package transport

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Message is one inbound delivery.
type Message struct {
	Subject string
	Data    []byte
}

type MessageHandler func(Message)

type Subscription interface {
	Unsubscribe() error
}

// Conn is a live connection to a pub/sub transport.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler MessageHandler) (Subscription, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, endpoint Endpoint) (Conn, error)
}

type DialerFunc func(ctx context.Context, endpoint Endpoint) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, endpoint Endpoint) (Conn, error) {
	return f(ctx, endpoint)
}

// Endpoint locates a transport server. Host may carry a scheme, for example
// nats://broker, in which case Port fills in a missing port.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) IsZero() bool {
	return strings.TrimSpace(e.Host) == "" && e.Port == 0
}

// URL renders the endpoint as a nats:// URL.
func (e Endpoint) URL() (string, error) {
	host := strings.TrimSpace(e.Host)
	if host == "" {
		return "", fmt.Errorf("%w: host is required", ErrMissingEndpoint)
	}
	if e.Port < 0 || e.Port > 65535 {
		return "", fmt.Errorf("%w: invalid port %d", ErrMissingEndpoint, e.Port)
	}

	if strings.Contains(host, "://") {
		parsed, err := url.Parse(host)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMissingEndpoint, err)
		}
		if parsed.Port() == "" {
			if e.Port == 0 {
				return "", fmt.Errorf("%w: port is required", ErrMissingEndpoint)
			}
			parsed.Host = net.JoinHostPort(parsed.Hostname(), strconv.Itoa(e.Port))
		}
		return parsed.String(), nil
	}
	if e.Port == 0 {
		return "", fmt.Errorf("%w: port is required", ErrMissingEndpoint)
	}
	return "nats://" + net.JoinHostPort(host, strconv.Itoa(e.Port)), nil
}

func (e Endpoint) String() string {
	if rendered, err := e.URL(); err == nil {
		return rendered
	}
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// ParseEndpoint reads host and port strings as found in the environment.
func ParseEndpoint(host, port string) (Endpoint, error) {
	endpoint := Endpoint{Host: strings.TrimSpace(host)}
	port = strings.TrimSpace(port)
	if port != "" {
		value, err := strconv.Atoi(port)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: invalid port %q", ErrMissingEndpoint, port)
		}
		endpoint.Port = value
	}
	if _, err := endpoint.URL(); err != nil {
		return Endpoint{}, err
	}
	return endpoint, nil
}

func normalizeSubject(subject string) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", ErrEmptySubject
	}
	return subject, nil
}
