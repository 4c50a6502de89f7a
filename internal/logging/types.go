package logging

import "time"

type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Context keys shared by every component.
const (
	FieldCategory = "echo.category"
	FieldSource   = "echo.source"
	FieldSubject  = "subject"
	FieldHash     = "hash"
	FieldPath     = "path"
	FieldWatcher  = "watcher"
	FieldError    = "error"
)

// LevelEnvVar selects the minimum level when no flag overrides it.
const LevelEnvVar = "ECHO_LOG_LEVEL"

type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

// Category returns the component tag of the entry, if any.
func (e LogEntry) Category() string {
	return e.Context[FieldCategory]
}
