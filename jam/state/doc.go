// Package state holds the authoritative local view of the jam session.
//
// Store is a single mutable snapshot with copy-on-write update semantics:
// every mutator produces a new session value instead of editing in place, so
// a consumer holding an earlier snapshot never observes torn state. Each
// mutator fires the injected change listener exactly once and then persists
// the snapshot in the background, best-effort.
//
// Persistence:
//
// SnapshotPersistence abstracts the storage; FilePersistence keeps one JSON
// record at a configured path. Restore loads the last persisted snapshot and
// always forces the connection state back to disconnected: a freshly
// started process has to re-establish its own connection, and a stale
// "connected" flag would be a lie.
//
// Storage failures are swallowed: state correctness never depends on storage
// availability.
package state
