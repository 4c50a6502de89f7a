package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"echo/internal/logging"
)

const ReadyForConnectionsTimeout = 5 * time.Second

type ServerOptions struct {
	Host string
	// Port -1 picks a random free port.
	Port         int
	Name         string
	Logger       *logging.Logger
	ReadyTimeout time.Duration
	Debug        bool
}

// ServerManager runs an embedded NATS server for single-process
// deployments.
type ServerManager struct {
	server *server.Server
	logger *logging.Logger
}

func StartServer(ctx context.Context, opts ServerOptions) (*ServerManager, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	host := opts.Host
	if host == "" {
		host = "127.0.0.1"
	}
	name := opts.Name
	if name == "" {
		name = "echo-embedded"
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.Named("nats-server")

	serverOpts := &server.Options{
		ServerName: name,
		Host:       host,
		Port:       opts.Port,
		NoSigs:     true,
		Debug:      opts.Debug,
	}
	ns, err := server.NewServer(serverOpts)
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}
	ns.SetLoggerV2(newServerLogger(logger, name), opts.Debug, false, false)
	go ns.Start()

	timeout := opts.ReadyTimeout
	if timeout <= 0 {
		timeout = ReadyForConnectionsTimeout
	}
	if !ns.ReadyForConnections(timeout) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server not ready for connections within %s", timeout)
	}
	logger.Info("nats server listening", map[string]string{"url": ns.ClientURL()})
	return &ServerManager{server: ns, logger: logger}, nil
}

// Endpoint is where clients reach the server.
func (m *ServerManager) Endpoint() Endpoint {
	addr, ok := m.server.Addr().(*net.TCPAddr)
	if !ok {
		return Endpoint{}
	}
	return Endpoint{Host: addr.IP.String(), Port: addr.Port}
}

func (m *ServerManager) ClientURL() string {
	return m.server.ClientURL()
}

func (m *ServerManager) Stop() {
	if m == nil || m.server == nil {
		return
	}
	m.server.Shutdown()
	m.server.WaitForShutdown()
	m.logger.Info("nats server stopped", nil)
}

// serverLogger forwards nats-server output to the application logger.
// Notices and debug output are noisy, so they go to debug.
type serverLogger struct {
	logger   *logging.Logger
	serverID string
}

var _ server.Logger = serverLogger{}

func newServerLogger(logger *logging.Logger, serverID string) serverLogger {
	return serverLogger{logger: logger, serverID: serverID}
}

func (l serverLogger) Noticef(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...), l.fields())
}

func (l serverLogger) Warnf(format string, v ...any) {
	l.logger.Warn(fmt.Sprintf(format, v...), l.fields())
}

// Fatalf is logged as an error; the server shuts itself down.
func (l serverLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...), l.fields())
}

func (l serverLogger) Errorf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...), l.fields())
}

func (l serverLogger) Debugf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...), l.fields())
}

func (l serverLogger) Tracef(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...), l.fields())
}

func (l serverLogger) fields() map[string]string {
	return map[string]string{"server": l.serverID}
}
