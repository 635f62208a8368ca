package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FilePersistence implements SnapshotPersistence using a single JSON file at
// a well-known path.
type FilePersistence struct {
	path string
}

// NewFilePersistence creates a file-based persistence layer, creating the
// parent directory if needed.
func NewFilePersistence(path string) (*FilePersistence, error) {
	if path == "" {
		return nil, fmt.Errorf("state file path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return &FilePersistence{path: path}, nil
}

// Save writes the snapshot as indented JSON.
func (fp *FilePersistence) Save(snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal jam state: %w", err)
	}
	if err := os.WriteFile(fp.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return nil
}

// Load reads the last saved snapshot. A missing file is not an error.
func (fp *FilePersistence) Load() (Snapshot, bool, error) {
	data, err := os.ReadFile(fp.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("failed to read state file: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to unmarshal jam state: %w", err)
	}
	return snap, true, nil
}
