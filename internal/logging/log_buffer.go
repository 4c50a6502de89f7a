package logging

import (
	"sync"

	"echo/internal/buffer"
)

// LogBuffer keeps the most recent entries for the HTTP API.
type LogBuffer struct {
	mu      sync.Mutex
	entries *buffer.Ring[LogEntry]
}

func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{
		entries: buffer.NewRing[LogEntry](size),
	}
}

func (b *LogBuffer) Add(entry LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries.Add(entry)
}

func (b *LogBuffer) List() []LogEntry {
	return b.Last(0)
}

// Last returns up to n of the newest entries, oldest first.
func (b *LogBuffer) Last(n int) []LogEntry {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entries.Last(n)
}

// Filter returns retained entries at or above minLevel, optionally
// restricted to one category.
func (b *LogBuffer) Filter(minLevel Level, category string) []LogEntry {
	entries := b.List()
	filtered := entries[:0]
	for _, entry := range entries {
		if !LevelAtLeast(entry.Level, minLevel) {
			continue
		}
		if category != "" && entry.Category() != category {
			continue
		}
		filtered = append(filtered, entry)
	}
	return filtered
}

func LevelAtLeast(level, minLevel Level) bool {
	if minLevel == "" {
		return true
	}
	return levelRank(level) >= levelRank(minLevel)
}
