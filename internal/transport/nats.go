package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"echo/internal/logging"
)

const defaultConnectTimeout = 5 * time.Second

// NATSDialer connects to a NATS server with nats.go.
type NATSDialer struct {
	Name    string
	Logger  *logging.Logger
	Timeout time.Duration
	Options []nats.Option
}

func (d NATSDialer) Dial(ctx context.Context, endpoint Endpoint) (Conn, error) {
	serverURL, err := endpoint.URL()
	if err != nil {
		return nil, err
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := d.Logger
	name := d.Name
	if name == "" {
		name = "echo"
	}
	options := []nats.Option{
		nats.Name(name),
		nats.Timeout(timeout),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := map[string]string{logging.FieldError: err.Error()}
			if sub != nil {
				fields[logging.FieldSubject] = sub.Subject
			}
			logger.Warn("nats async error", fields)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err == nil {
				return
			}
			logger.Warn("nats disconnected", map[string]string{logging.FieldError: err.Error()})
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.Info("nats reconnected", map[string]string{"url": conn.ConnectedUrl()})
		}),
	}
	options = append(options, d.Options...)

	conn, err := nats.Connect(serverURL, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", serverURL, err)
	}
	logger.Info("connected to nats", map[string]string{"url": conn.ConnectedUrl()})
	return &natsConn{conn: conn}, nil
}

type natsConn struct {
	conn *nats.Conn
}

func (c *natsConn) Publish(subject string, data []byte) error {
	if err := c.conn.Publish(subject, data); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) {
			return fmt.Errorf("%w: %v", ErrClosed, err)
		}
		return err
	}
	return nil
}

func (c *natsConn) Subscribe(subject string, handler MessageHandler) (Subscription, error) {
	return c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(Message{Subject: msg.Subject, Data: msg.Data})
	})
}

// Close flushes pending publishes before closing so fire-and-forget sends
// issued just before shutdown still leave the process.
func (c *natsConn) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	err := c.conn.FlushTimeout(time.Second)
	c.conn.Close()
	if err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
