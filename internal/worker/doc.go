// Package worker holds the built-in handlers for file events. Each handler
// loads the spec file named by the event and records the outcome in a
// Catalog.
package worker
