// Package transport is the publish/subscribe layer of the pipeline.
//
// Bus enforces at most one subscription per subject on top of a Conn. Conns
// come from a Dialer: NATSDialer talks to a NATS server (remote, or the
// embedded one started by ServerManager), MemoryNetwork keeps everything in
// process with NATS subject semantics.
package transport
