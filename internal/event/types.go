package event

import "time"

// Event represents a typed event with an occurrence timestamp.
type Event interface {
	Type() string
	Timestamp() time.Time
}

const (
	TypeFileCreated  = "file.created"
	TypeFileModified = "file.modified"
)

// SourceWatcher tags events that originate from filesystem watchers.
const SourceWatcher = "watcher"

// PayloadSource is the payload key that carries the notified path.
const PayloadSource = "src"
