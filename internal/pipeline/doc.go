// Package pipeline connects Echo events to the transport.
//
// Emitter encodes and publishes events, Dispatcher moves events produced on
// watcher goroutines onto a single publishing loop, Loader turns inbound
// messages back into events for registered handlers and Tap mirrors every
// subject into an in-process bus.
package pipeline
