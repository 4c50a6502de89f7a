// Package watcher turns filesystem notifications under registered roots into
// per-watcher log entries and Echo events.
//
// A Manager owns the registry of Configs. Each started Config runs its own
// fsnotify observer which forwards create and write notifications to the
// Manager through the Handler interface. Notifications are best-effort: the
// OS may coalesce or drop them under load.
package watcher
