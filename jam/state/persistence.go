package state

// SnapshotPersistence defines the interface for persisting the snapshot
// across process restarts.
type SnapshotPersistence interface {
	// Save persists the snapshot to storage.
	Save(snap Snapshot) error

	// Load retrieves the last persisted snapshot. The second result is
	// false when nothing has been stored yet.
	Load() (Snapshot, bool, error)
}
