// Package coordinator holds the business rules of the jam agent.
//
// The Coordinator is the only component that makes decisions: it reduces
// server-pushed events into state-store mutations, translates local commands
// from consumer surfaces into outbound protocol messages, and re-broadcasts
// every resulting snapshot to all registered surfaces.
//
// Surfaces:
//
// A Surface is an opaque handle for one consumer (the popup UI, a
// page-embedded script, the REST API). Exactly one surface is pinned as
// authoritative for playback: remote play commands go to it alone, and its
// disappearance (disconnect or navigation off the allowed origin) leaves the
// jam. Which concrete surface gets pinned is decided by whoever issues the
// create/join command; the coordinator just tracks the handle.
//
// Fan-out is best-effort: a surface that fails to take a delivery is
// skipped, never retried or queued.
package coordinator
