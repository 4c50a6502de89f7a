// Package api serves the read-only status API: watcher state, transport
// subscriptions, recent events, loaded specs, logs and metrics, plus a
// websocket stream of live events.
package api
