// Package server accepts WebSocket connections and drives the per-connection
// protocol state machine.
//
// Each connection moves through AwaitingAuth, Authenticated and KeyExchanged
// until it closes. A connection has exactly two goroutines: a reader that
// decodes frames and handles them in arrival order, and a writer that drains
// the connection's outbound queue. Only the writer touches the socket for
// writing, so frames queued for one connection are sent in queue order.
//
// Errors are reported to the connection that caused them and never affect
// another connection. A panic while handling a frame is recovered and the
// connection stays open.
package server
