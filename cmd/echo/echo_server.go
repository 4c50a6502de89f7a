package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"echo/internal/api"
	"echo/internal/config"
	"echo/internal/event"
	"echo/internal/logging"
	"echo/internal/metrics"
	"echo/internal/pipeline"
	"echo/internal/spec"
	"echo/internal/transport"
	"echo/internal/watcher"
	"echo/internal/worker"
)

const (
	eventHistorySize = 200
	phaseTimeout     = 5 * time.Second
)

// echoServer is one running pipeline: watchers feed the dispatcher, the
// dispatcher publishes on the transport and the loader hands inbound
// events to the spec worker.
type echoServer struct {
	logger     *logging.Logger
	metrics    *metrics.Registry
	natsServer *transport.ServerManager
	bus        *transport.Bus
	events     *event.Bus[event.Echo]
	dispatcher *pipeline.Dispatcher
	loader     *pipeline.Loader
	worker     *worker.SpecWorker
	watchers   *watcher.Manager
	shutdown   *shutdownCoordinator

	cancel       context.CancelFunc
	dispatchDone chan struct{}
	reportDone   chan struct{}
}

type serverDeps struct {
	Metrics *metrics.Registry
	// Network backs the memory transport. Nil creates a private one.
	Network *transport.MemoryNetwork
}

func startEchoServer(ctx context.Context, cfg Config, logger *logging.Logger, deps serverDeps) (*echoServer, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	registry := deps.Metrics
	if registry == nil {
		registry = metrics.Default
	}
	settings := cfg.Settings
	runCtx, cancel := context.WithCancel(ctx)

	server := &echoServer{
		logger:       logger,
		metrics:      registry,
		shutdown:     newShutdownCoordinator(logger),
		cancel:       cancel,
		dispatchDone: make(chan struct{}),
		reportDone:   make(chan struct{}),
	}
	fail := func(err error) (*echoServer, error) {
		server.stop()
		return nil, err
	}

	dialer, endpoint, err := server.transportDialer(runCtx, settings, deps)
	if err != nil {
		return fail(err)
	}
	server.bus = transport.NewBus(transport.BusOptions{Logger: logger, Dialer: dialer})
	if err := server.bus.Connect(runCtx, endpoint); err != nil {
		return fail(fmt.Errorf("connect transport: %w", err))
	}
	logger.Info("transport connected", map[string]string{
		"mode":     settings.Transport.Mode,
		"endpoint": endpoint.String(),
	})

	server.events = event.NewBus[event.Echo](runCtx, event.BusOptions{
		Name:        "echoes",
		HistorySize: eventHistorySize,
	})

	emitter := pipeline.NewEmitter(server.bus, pipeline.EmitterOptions{Logger: logger, Metrics: registry})
	server.dispatcher = pipeline.NewDispatcher(emitter, pipeline.DispatcherOptions{
		QueueSize: int(settings.Watch.QueueSize),
		Logger:    logger,
		Metrics:   registry,
	})
	go func() {
		defer close(server.dispatchDone)
		_ = server.dispatcher.Run(runCtx)
	}()

	specLoader := spec.NewLoader(logger, registry)
	server.worker = worker.NewSpecWorker(worker.Options{Loader: specLoader, Logger: logger})
	server.loader = pipeline.NewLoader(server.bus, pipeline.LoaderOptions{Logger: logger, Metrics: registry})
	if err := server.loader.LoadDefaults(server.worker.Handlers()); err != nil {
		return fail(fmt.Errorf("register default handlers: %w", err))
	}
	if err := pipeline.NewTap(server.bus, server.events, logger).Start(""); err != nil {
		logger.Warn("event tap unavailable", map[string]string{logging.FieldError: err.Error()})
	}

	if settings.Spec.Default != "" {
		if document := specLoader.LoadOrNil(settings.Spec.Default); document != nil {
			logger.Info("default spec loaded", map[string]string{
				logging.FieldPath: settings.Spec.Default,
				"capability":      document.Spec.Capability,
			})
		}
	}

	server.watchers = watcher.NewManager(watcher.Options{
		Logger:      logger,
		LogCapacity: int(settings.Watch.LogCapacity),
		OnEvent: func(echo event.Echo) {
			server.dispatcher.Submit(echo)
		},
		Metrics: registry,
	})
	if err := registerWatchers(server.watchers, settings, logger); err != nil {
		return fail(err)
	}
	if err := server.watchers.StartAll(); err != nil {
		return fail(fmt.Errorf("start watchers: %w", err))
	}
	server.watchers.LogActiveWatchers()

	go server.reportActiveWatchers(runCtx, settings.Watch.ReportInterval)

	server.addShutdownPhases()
	return server, nil
}

func (s *echoServer) transportDialer(ctx context.Context, settings config.Settings, deps serverDeps) (transport.Dialer, transport.Endpoint, error) {
	switch settings.Transport.Mode {
	case config.TransportMemory:
		network := deps.Network
		if network == nil {
			network = transport.NewMemoryNetwork()
		}
		return network, transport.Endpoint{Host: "memory"}, nil
	case config.TransportEmbedded:
		port := -1
		if settings.Transport.Port != "" {
			parsed, err := strconv.Atoi(settings.Transport.Port)
			if err != nil {
				return nil, transport.Endpoint{}, fmt.Errorf("invalid transport.port %q", settings.Transport.Port)
			}
			port = parsed
		}
		manager, err := transport.StartServer(ctx, transport.ServerOptions{
			Host:   settings.Transport.Host,
			Port:   port,
			Logger: s.logger,
		})
		if err != nil {
			return nil, transport.Endpoint{}, fmt.Errorf("start embedded nats: %w", err)
		}
		s.natsServer = manager
		return transport.NATSDialer{Name: "echo", Logger: s.logger}, manager.Endpoint(), nil
	default:
		endpoint, err := transport.ParseEndpoint(settings.Transport.Host, settings.Transport.Port)
		if err != nil {
			return nil, transport.Endpoint{}, err
		}
		return transport.NATSDialer{Name: "echo", Logger: s.logger}, endpoint, nil
	}
}

// registerWatchers registers the configured paths and [[watchers]] tables.
// A missing root is created once when create-missing is on; any other
// registration failure is fatal.
func registerWatchers(manager *watcher.Manager, settings config.Settings, logger *logging.Logger) error {
	for _, path := range settings.Watch.Paths {
		_, err := manager.RegisterPath(path)
		if errors.Is(err, watcher.ErrPathNotFound) && settings.Watch.CreateMissing {
			if mkErr := os.MkdirAll(path, 0o755); mkErr != nil {
				return fmt.Errorf("create watch path %s: %w", path, mkErr)
			}
			logger.Info("created missing watch path", map[string]string{logging.FieldPath: path})
			_, err = manager.RegisterPath(path)
		}
		if err != nil {
			return fmt.Errorf("register watch path: %w", err)
		}
	}
	for _, fields := range settings.Watchers {
		if _, err := manager.AddWatcherFields(fields); err != nil {
			logger.Warn("skipping invalid watcher", map[string]string{logging.FieldError: err.Error()})
		}
	}
	return nil
}

func (s *echoServer) reportActiveWatchers(ctx context.Context, interval time.Duration) {
	defer close(s.reportDone)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.watchers.LogActiveWatchers()
		}
	}
}

func (s *echoServer) addShutdownPhases() {
	s.shutdown.Add("watchers", func(context.Context) error {
		return s.watchers.StopAll()
	})
	s.shutdown.Add("dispatcher", func(ctx context.Context) error {
		s.cancel()
		return waitDone(ctx, s.dispatchDone, "dispatcher")
	})
	s.shutdown.Add("reporter", func(ctx context.Context) error {
		return waitDone(ctx, s.reportDone, "reporter")
	})
	s.shutdown.Add("subscriptions", func(context.Context) error {
		s.loader.UnregisterAll()
		return nil
	})
	s.shutdown.Add("transport", func(context.Context) error {
		return s.bus.Close()
	})
	if s.natsServer != nil {
		s.shutdown.Add("nats-server", func(context.Context) error {
			s.natsServer.Stop()
			return nil
		})
	}
	s.shutdown.Add("events", func(context.Context) error {
		s.events.Close()
		return nil
	})
}

// stop unwinds a partially started server.
func (s *echoServer) stop() {
	s.cancel()
	if s.watchers != nil {
		_ = s.watchers.StopAll()
	}
	if s.loader != nil {
		s.loader.UnregisterAll()
	}
	if s.bus != nil {
		_ = s.bus.Close()
	}
	if s.natsServer != nil {
		s.natsServer.Stop()
	}
	if s.events != nil {
		s.events.Close()
	}
}

// Shutdown runs every shutdown phase once.
func (s *echoServer) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.shutdown.Run(ctx)
}

func (s *echoServer) apiHandler(cfg Config) http.Handler {
	mux := http.NewServeMux()
	api.RegisterRoutes(mux, api.Options{
		Logger:        s.logger,
		AuthToken:     cfg.AuthToken,
		Watchers:      s.watchers,
		Subscriptions: s.bus,
		Events:        s.events,
		Specs:         s.worker.Catalog(),
		Metrics:       s.metrics,
	})
	return mux
}

func waitDone(ctx context.Context, done <-chan struct{}, name string) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s did not stop: %w", name, ctx.Err())
	}
}

// runUntilStopped blocks until stop is done, serving the API when an
// address is configured.
func runUntilStopped(stop context.Context, cfg Config, server *echoServer, logger *logging.Logger) error {
	addr := cfg.Settings.HTTP.Addr
	if addr == "" {
		<-stop.Done()
		return nil
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.apiHandler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("status api listening", map[string]string{"addr": addr})
	runner := &ServerRunner{Logger: logger, ShutdownTimeout: httpServerShutdownTimeout}
	if serverErr := runner.Run(stop, ManagedServer{
		Name:     "api",
		Serve:    httpServer.ListenAndServe,
		Shutdown: httpServer.Shutdown,
	}); serverErr != nil {
		return serverErr
	}
	return nil
}
