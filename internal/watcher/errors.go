package watcher

import "errors"

var (
	ErrPathNotFound   = errors.New("watch path not found")
	ErrInvalidConfig  = errors.New("invalid watcher config")
	ErrUnknownWatcher = errors.New("unknown watcher")
	ErrNoWatchPath    = errors.New("watcher has no watch path")
)
