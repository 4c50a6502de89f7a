package api

import (
	"net/http"
	"strconv"
	"strings"

	"echo/internal/event"
	"echo/internal/logging"
	"echo/internal/metrics"
	"echo/internal/transport"
	"echo/internal/version"
	"echo/internal/watcher"
	"echo/internal/worker"
)

const (
	defaultRecentEvents = 50
	maxRecentEvents     = 1000
	defaultLogLimit     = 200
)

// WatcherSource exposes watcher state.
type WatcherSource interface {
	Snapshot() []watcher.Status
	Status(name string) (watcher.Status, error)
}

// SubscriptionSource exposes the transport subscriptions.
type SubscriptionSource interface {
	Subjects() []transport.SubscriptionInfo
}

// SpecSource exposes the loaded spec catalog.
type SpecSource interface {
	List() []worker.Entry
}

type RestHandler struct {
	Watchers      WatcherSource
	Subscriptions SubscriptionSource
	Events        *event.Bus[event.Echo]
	Specs         SpecSource
	Metrics       *metrics.Registry
	Logger        *logging.Logger
}

type subscriptionsResponse struct {
	Subscriptions []transport.SubscriptionInfo `json:"subscriptions"`
}

func (h *RestHandler) handleWatchers(w http.ResponseWriter, r *http.Request) *apiError {
	if err := requireGet(w, r); err != nil {
		return err
	}
	if h.Watchers == nil {
		return unavailable("watcher manager")
	}
	writeJSON(w, http.StatusOK, h.Watchers.Snapshot())
	return nil
}

func (h *RestHandler) handleWatcher(w http.ResponseWriter, r *http.Request) *apiError {
	if err := requireGet(w, r); err != nil {
		return err
	}
	if h.Watchers == nil {
		return unavailable("watcher manager")
	}
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/watchers/"), "/")
	if name == "" {
		return &apiError{Status: http.StatusBadRequest, Message: "missing watcher name", Code: codeMissingWatcher}
	}
	status, err := h.Watchers.Status(name)
	if err != nil {
		return watcherError(err)
	}
	writeJSON(w, http.StatusOK, status)
	return nil
}

func (h *RestHandler) handleSubscriptions(w http.ResponseWriter, r *http.Request) *apiError {
	if err := requireGet(w, r); err != nil {
		return err
	}
	if h.Subscriptions == nil {
		return unavailable("event bus")
	}
	subjects := h.Subscriptions.Subjects()
	if subjects == nil {
		subjects = []transport.SubscriptionInfo{}
	}
	writeJSON(w, http.StatusOK, subscriptionsResponse{Subscriptions: subjects})
	return nil
}

func (h *RestHandler) handleRecentEvents(w http.ResponseWriter, r *http.Request) *apiError {
	if err := requireGet(w, r); err != nil {
		return err
	}
	if h.Events == nil {
		return unavailable("event history")
	}
	limit, apiErr := parseLimit(r.URL.Query().Get("limit"), defaultRecentEvents, maxRecentEvents)
	if apiErr != nil {
		return apiErr
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	history := h.Events.History(0)
	events := make([]event.Echo, 0, len(history))
	for _, item := range history {
		if name != "" && item.Name() != name {
			continue
		}
		events = append(events, item)
	}
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	writeJSON(w, http.StatusOK, events)
	return nil
}

func (h *RestHandler) handleSpecs(w http.ResponseWriter, r *http.Request) *apiError {
	if err := requireGet(w, r); err != nil {
		return err
	}
	if h.Specs == nil {
		return unavailable("spec catalog")
	}
	entries := h.Specs.List()
	if entries == nil {
		entries = []worker.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
	return nil
}

func (h *RestHandler) handleVersion(w http.ResponseWriter, r *http.Request) *apiError {
	if err := requireGet(w, r); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, version.GetVersionInfo())
	return nil
}

func (h *RestHandler) handleLogs(w http.ResponseWriter, r *http.Request) *apiError {
	if err := requireGet(w, r); err != nil {
		return err
	}
	if h.Logger == nil || h.Logger.Buffer() == nil {
		return unavailable("log buffer")
	}
	query := r.URL.Query()
	minLevel := logging.LevelDebug
	if rawLevel := strings.TrimSpace(query.Get("level")); rawLevel != "" {
		parsed, ok := logging.ParseLevel(rawLevel)
		if !ok {
			return &apiError{Status: http.StatusBadRequest, Message: "invalid log level", Code: codeInvalidLogLevel}
		}
		minLevel = parsed
	}
	limit, apiErr := parseLimit(query.Get("limit"), defaultLogLimit, logging.DefaultBufferSize)
	if apiErr != nil {
		return apiErr
	}
	entries := h.Logger.Buffer().Filter(minLevel, strings.TrimSpace(query.Get("category")))
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	if entries == nil {
		entries = []logging.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
	return nil
}

func (h *RestHandler) handleMetrics(w http.ResponseWriter, r *http.Request) *apiError {
	if err := requireGet(w, r); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := h.Metrics.WritePrometheus(w); err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: "write metrics failed", Code: codeMetricsFailed}
	}
	return nil
}

func parseLimit(raw string, fallback, max int) (int, *apiError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, &apiError{Status: http.StatusBadRequest, Message: "invalid limit", Code: codeInvalidLimit}
	}
	if parsed > max {
		parsed = max
	}
	return parsed, nil
}
