package watcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"echo/internal/event"
	"echo/internal/logging"
	"echo/internal/metrics"
)

const reportLogLines = 5

type Options struct {
	Logger      *logging.Logger
	LogCapacity int
	// OnEvent receives an Echo for every matched notification. It runs on the
	// observer goroutine and must not block.
	OnEvent func(event.Echo)
	Metrics *metrics.Registry
	Now     func() time.Time
}

// Manager owns the watcher registry and the observers of active watchers.
type Manager struct {
	mu        sync.RWMutex
	configs   map[string]*Config
	order     []*Config
	observers map[string]*observer

	logger      *logging.Logger
	logCapacity int
	onEvent     func(event.Echo)
	metrics     *metrics.Registry
	now         func() time.Time
}

var _ Handler = (*Manager)(nil)

func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	capacity := opts.LogCapacity
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &Manager{
		configs:     make(map[string]*Config),
		observers:   make(map[string]*observer),
		logger:      logger.Named("watcher"),
		logCapacity: capacity,
		onEvent:     opts.OnEvent,
		metrics:     opts.Metrics,
		now:         now,
	}
}

// RegisterPath adds a watcher for an existing directory, named after its
// last path segment. It does not start observing.
func (m *Manager) RegisterPath(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrPathNotFound)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
		}
		return nil, fmt.Errorf("stat watch path %s: %w", path, err)
	}
	name := NameForPath(path)
	if name == "" {
		if abs, err := filepath.Abs(path); err == nil {
			name = NameForPath(abs)
		}
	}
	config, err := NewConfig(name, path, m.logCapacity)
	if err != nil {
		return nil, err
	}
	return m.AddWatcher(config)
}

// AddWatcher registers config. A duplicate name or watch path leaves the
// registry unchanged, logs a warning and returns the existing entry.
func (m *Manager) AddWatcher(config *Config) (*Config, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if strings.TrimSpace(config.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if config.logs == nil {
		rebuilt, err := NewConfig(config.Name, config.WatchPath, m.logCapacity)
		if err != nil {
			return nil, err
		}
		config = rebuilt
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.configs[config.Name]; ok {
		m.logger.Warn("watcher already registered", map[string]string{
			logging.FieldWatcher: config.Name,
		})
		return existing, nil
	}
	if config.WatchPath != "" {
		for _, existing := range m.order {
			if existing.WatchPath != "" && filepath.Clean(existing.WatchPath) == filepath.Clean(config.WatchPath) {
				m.logger.Warn("watch path already registered", map[string]string{
					logging.FieldWatcher: existing.Name,
					logging.FieldPath:    config.WatchPath,
				})
				return existing, nil
			}
		}
	}

	m.configs[config.Name] = config
	m.order = append(m.order, config)
	m.logger.Info("watcher registered", map[string]string{
		logging.FieldWatcher: config.Name,
		logging.FieldPath:    config.WatchPath,
	})
	return config, nil
}

// AddWatcherFields builds a Config from raw fields, as read from a config
// file. Recognized keys are name, watch_path (or path) and log_capacity.
func (m *Manager) AddWatcherFields(fields map[string]any) (*Config, error) {
	name, err := stringField(fields, "name")
	if err != nil {
		return nil, err
	}
	watchPath, err := stringField(fields, "watch_path", "path")
	if err != nil {
		return nil, err
	}
	capacity := m.logCapacity
	if raw, ok := fields["log_capacity"]; ok {
		switch value := raw.(type) {
		case int:
			capacity = value
		case int64:
			capacity = int(value)
		case float64:
			capacity = int(value)
		default:
			return nil, fmt.Errorf("%w: log_capacity must be a number", ErrInvalidConfig)
		}
		if capacity <= 0 {
			return nil, fmt.Errorf("%w: log_capacity must be positive", ErrInvalidConfig)
		}
	}
	if name == "" && watchPath != "" {
		name = NameForPath(watchPath)
	}
	config, err := NewConfig(name, watchPath, capacity)
	if err != nil {
		return nil, err
	}
	return m.AddWatcher(config)
}

func stringField(fields map[string]any, keys ...string) (string, error) {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok || raw == nil {
			continue
		}
		value, ok := raw.(string)
		if !ok {
			return "", fmt.Errorf("%w: %s must be a string", ErrInvalidConfig, key)
		}
		return strings.TrimSpace(value), nil
	}
	return "", nil
}

func (m *Manager) Get(name string) (*Config, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	config, ok := m.configs[name]
	return config, ok
}

// StartOne starts observing the named watcher. Starting an active watcher
// is a no-op.
func (m *Manager) StartOne(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	config, ok := m.configs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWatcher, name)
	}
	return m.startLocked(config)
}

func (m *Manager) StartAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, config := range m.order {
		if err := m.startLocked(config); err != nil {
			errs = append(errs, fmt.Errorf("start %s: %w", config.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) startLocked(config *Config) error {
	if _, running := m.observers[config.Name]; running {
		return nil
	}
	if config.WatchPath == "" {
		return fmt.Errorf("%w: %s", ErrNoWatchPath, config.Name)
	}
	name := config.Name
	obs, err := startObserver(config.WatchPath, m, m.logger.With(map[string]string{
		logging.FieldWatcher: name,
	}), func(err error) {
		m.observerFailed(name, err)
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrPathNotFound, config.WatchPath)
		}
		return err
	}
	m.observers[name] = obs
	startedAt := m.now().UTC()
	config.markActive(startedAt)
	config.AppendLog(fmt.Sprintf("started watching %s at %s", config.WatchPath, startedAt.Format(time.RFC3339)))
	m.logger.Info("watcher started", map[string]string{
		logging.FieldWatcher: name,
		logging.FieldPath:    config.WatchPath,
	})
	return nil
}

// StopOne stops the named watcher. Stopping an inactive watcher is a no-op.
func (m *Manager) StopOne(name string) error {
	m.mu.Lock()
	config, ok := m.configs[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownWatcher, name)
	}
	obs := m.detachLocked(config)
	m.mu.Unlock()

	return m.stopObserver(config, obs)
}

func (m *Manager) StopAll() error {
	m.mu.Lock()
	type pending struct {
		config *Config
		obs    *observer
	}
	stopping := make([]pending, 0, len(m.observers))
	for _, config := range m.order {
		if obs := m.detachLocked(config); obs != nil {
			stopping = append(stopping, pending{config: config, obs: obs})
		}
	}
	m.mu.Unlock()

	var errs []error
	for _, entry := range stopping {
		if err := m.stopObserver(entry.config, entry.obs); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", entry.config.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) detachLocked(config *Config) *observer {
	obs, ok := m.observers[config.Name]
	if !ok {
		return nil
	}
	delete(m.observers, config.Name)
	config.markInactive()
	return obs
}

// stopObserver joins the observer outside the registry lock so in-flight
// callbacks can still resolve their watcher.
func (m *Manager) stopObserver(config *Config, obs *observer) error {
	if obs == nil {
		return nil
	}
	err := obs.stop()
	config.AppendLog(fmt.Sprintf("stopped watching %s at %s", config.WatchPath, m.now().UTC().Format(time.RFC3339)))
	m.logger.Info("watcher stopped", map[string]string{
		logging.FieldWatcher: config.Name,
	})
	return err
}

func (m *Manager) observerFailed(name string, err error) {
	m.mu.Lock()
	config, ok := m.configs[name]
	if ok {
		delete(m.observers, name)
		config.markInactive()
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	config.AppendLog("observer failed: " + err.Error())
	m.logger.Error("watcher observer failed", map[string]string{
		logging.FieldWatcher: name,
		logging.FieldError:   err.Error(),
	})
}

func (m *Manager) OnCreated(path string) {
	m.notify(event.TypeFileCreated, "created", path)
}

func (m *Manager) OnModified(path string) {
	m.notify(event.TypeFileModified, "modified", path)
}

func (m *Manager) notify(kind, verb, path string) {
	config := m.resolve(path)
	if config == nil {
		m.metrics.IncUnmatchedNotification()
		m.logger.Debug("notification without watcher", map[string]string{
			logging.FieldPath: path,
		})
		return
	}
	path = spellUnder(config.WatchPath, path)

	at := m.now().UTC()
	config.AppendLog(fmt.Sprintf("file %s: %s at %s", verb, path, at.Format(time.RFC3339Nano)))
	m.metrics.RecordNotification(config.Name, verb)

	if m.onEvent == nil {
		return
	}
	echo, err := event.New(kind, event.SourceWatcher,
		event.WithPayload(map[string]any{event.PayloadSource: path}),
		event.WithTimestamp(at),
	)
	if err != nil {
		m.logger.Warn("build event failed", map[string]string{
			logging.FieldPath:  path,
			logging.FieldError: err.Error(),
		})
		return
	}
	m.onEvent(echo)
}

// resolve returns the first watcher, in registration order, whose watch
// path contains path. Nested roots are decided by order, not depth.
func (m *Manager) resolve(path string) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, config := range m.order {
		if config.WatchPath == "" {
			continue
		}
		if isWithinPath(config.WatchPath, path) {
			return config
		}
	}
	return nil
}

// Snapshot returns the status of every watcher in registration order.
func (m *Manager) Snapshot() []Status {
	return m.snapshot(0)
}

func (m *Manager) snapshot(lastLogs int) []Status {
	m.mu.RLock()
	configs := append([]*Config(nil), m.order...)
	m.mu.RUnlock()

	statuses := make([]Status, 0, len(configs))
	for _, config := range configs {
		statuses = append(statuses, config.status(lastLogs))
	}
	return statuses
}

func (m *Manager) Status(name string) (Status, error) {
	config, ok := m.Get(name)
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrUnknownWatcher, name)
	}
	return config.Status(), nil
}

// ActiveNames lists active watchers, sorted.
func (m *Manager) ActiveNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.observers))
	for name := range m.observers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LogActiveWatchers writes a summary of each active watcher and its recent
// log lines.
func (m *Manager) LogActiveWatchers() {
	active := 0
	for _, status := range m.snapshot(reportLogLines) {
		if !status.Active {
			continue
		}
		active++
		m.logger.Info("active watcher", map[string]string{
			logging.FieldWatcher: status.Name,
			logging.FieldPath:    status.WatchPath,
			"started_at":         status.StartedAt.Format(time.RFC3339),
			"uptime":             m.now().Sub(status.StartedAt).Truncate(time.Second).String(),
			"recent":             strings.Join(status.Logs, " | "),
		})
	}
	m.logger.Info("active watcher report", map[string]string{
		"active": strconv.Itoa(active),
	})
}
