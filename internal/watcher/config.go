package watcher

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"echo/internal/buffer"
)

const DefaultLogCapacity = 100

// Config is the state of one named, path-bound watcher. Log appends and the
// activity flag are guarded so observers and API readers can share it.
type Config struct {
	Name      string
	WatchPath string

	mu        sync.Mutex
	active    bool
	startedAt time.Time
	logs      *buffer.Ring[string]
}

// Status is a point-in-time copy of a Config.
type Status struct {
	Name      string    `json:"name"`
	WatchPath string    `json:"watch_path,omitempty"`
	Active    bool      `json:"active"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Logs      []string  `json:"logs"`
}

func NewConfig(name, watchPath string, logCapacity int) (*Config, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w: name %q must not contain path separators", ErrInvalidConfig, name)
	}
	watchPath = strings.TrimSpace(watchPath)
	if logCapacity <= 0 {
		logCapacity = DefaultLogCapacity
	}
	return &Config{
		Name:      name,
		WatchPath: watchPath,
		logs:      buffer.NewRing[string](logCapacity),
	}, nil
}

// NameForPath derives a watcher name from the last segment of path.
func NameForPath(path string) string {
	trimmed := strings.TrimRight(path, `/\`)
	if trimmed == "" {
		return ""
	}
	base := filepath.Base(trimmed)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return base
}

func (c *Config) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Config) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

// AppendLog records a diagnostic line, evicting the oldest once full.
func (c *Config) AppendLog(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs.Add(line)
}

// Logs returns the retained log lines, oldest first.
func (c *Config) Logs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logs.List()
}

func (c *Config) LogCapacity() int {
	return c.logs.Cap()
}

func (c *Config) Status() Status {
	return c.status(0)
}

func (c *Config) status(lastLogs int) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	logs := c.logs.Last(lastLogs)
	if logs == nil {
		logs = []string{}
	}
	return Status{
		Name:      c.Name,
		WatchPath: c.WatchPath,
		Active:    c.active,
		StartedAt: c.startedAt,
		Logs:      logs,
	}
}

func (c *Config) markActive(at time.Time) {
	c.mu.Lock()
	c.active = true
	c.startedAt = at
	c.mu.Unlock()
}

func (c *Config) markInactive() {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
}

func (c *Config) String() string {
	return fmt.Sprintf("%s(%s)", c.Name, c.WatchPath)
}
