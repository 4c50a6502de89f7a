package worker

import (
	"sort"
	"sync"
	"time"

	"echo/internal/spec"
)

// Entry is the latest load attempt for one spec file.
type Entry struct {
	Path      string         `json:"path"`
	Document  *spec.Document `json:"document,omitempty"`
	Error     string         `json:"error,omitempty"`
	LoadedAt  time.Time      `json:"loaded_at"`
	EventHash string         `json:"event_hash,omitempty"`
	Loads     int            `json:"loads"`
}

func (e Entry) Valid() bool {
	return e.Document != nil && e.Error == ""
}

type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]Entry)}
}

func (c *Catalog) record(path string, doc *spec.Document, loadErr error, at time.Time, hash string) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := Entry{
		Path:      path,
		Document:  doc,
		LoadedAt:  at,
		EventHash: hash,
		Loads:     c.entries[path].Loads + 1,
	}
	if loadErr != nil {
		entry.Document = nil
		entry.Error = loadErr.Error()
	}
	c.entries[path] = entry
	return entry
}

func (c *Catalog) Get(path string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[path]
	return entry, ok
}

// List returns every entry sorted by path.
func (c *Catalog) List() []Entry {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	c.mu.RUnlock()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Catalog) Remove(path string) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[path]; !ok {
		return false
	}
	delete(c.entries, path)
	return true
}
