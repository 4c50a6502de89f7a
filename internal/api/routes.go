package api

import (
	"net/http"

	"echo/internal/event"
	"echo/internal/logging"
	"echo/internal/metrics"
)

// Options wires the API to the running components. Nil sources answer
// 503 on their routes.
type Options struct {
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
	Watchers       WatcherSource
	Subscriptions  SubscriptionSource
	Events         *event.Bus[event.Echo]
	Specs          SpecSource
	Metrics        *metrics.Registry
}

func RegisterRoutes(mux *http.ServeMux, opts Options) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	apiLogger := logger.Named("api")

	rest := &RestHandler{
		Watchers:      opts.Watchers,
		Subscriptions: opts.Subscriptions,
		Events:        opts.Events,
		Specs:         opts.Specs,
		Metrics:       opts.Metrics,
		Logger:        logger,
	}
	wrap := func(handler http.Handler) http.Handler {
		return loggingMiddleware(apiLogger, handler)
	}

	mux.Handle("/api/watchers", wrap(restHandler(opts.AuthToken, rest.handleWatchers)))
	mux.Handle("/api/watchers/", wrap(restHandler(opts.AuthToken, rest.handleWatcher)))
	mux.Handle("/api/subscriptions", wrap(restHandler(opts.AuthToken, rest.handleSubscriptions)))
	mux.Handle("/api/events/recent", wrap(restHandler(opts.AuthToken, rest.handleRecentEvents)))
	mux.Handle("/api/specs", wrap(restHandler(opts.AuthToken, rest.handleSpecs)))
	mux.Handle("/api/version", wrap(restHandler(opts.AuthToken, rest.handleVersion)))
	mux.Handle("/api/logs", wrap(restHandler(opts.AuthToken, rest.handleLogs)))
	mux.Handle("/metrics", wrap(restHandler(opts.AuthToken, rest.handleMetrics)))
	mux.Handle(eventsRoute, wrap(securityHeadersMiddleware(cacheControlNoStore, &EventsHandler{
		Bus:            opts.Events,
		Logger:         apiLogger,
		AuthToken:      opts.AuthToken,
		AllowedOrigins: opts.AllowedOrigins,
	})))
}
