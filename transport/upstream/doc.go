// Package upstream maintains the single logical WebSocket connection to the
// jam server.
//
// Client is a persistent-reconnecting transport: it owns at most one live
// connection, recovers from every non-explicit disconnect with capped
// exponential backoff, and keeps the link warm with an application-level
// PING whose PONG never reaches the message handler.
//
// Connection States:
//
// disconnected → connecting → connected → disconnected, never skipping
// states. Connect is idempotent; Close is the only operation that suppresses
// the automatic reconnect.
//
// Delivery semantics for Send: connected messages go out immediately;
// messages sent while connecting are queued FIFO and flushed in order the
// moment the socket opens, before any other traffic; messages sent while
// disconnected are silently dropped; callers that need guaranteed delivery
// resend after the state-change hook reports the reconnection.
//
// Handlers are injected through Config rather than set on a singleton, so
// tests can run multiple independent clients against in-memory fakes via the
// Dialer interface.
package upstream
