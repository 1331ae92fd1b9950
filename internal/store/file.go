package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileName is the default name of the JSON snapshot file.
const FileName = "counts.json"

// FileBackend stores the snapshot as an indented JSON document.
type FileBackend struct {
	path string
	now  func() time.Time
}

// NewFileBackend returns a backend writing to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: filepath.Clean(path), now: time.Now}
}

// Path returns the snapshot file path.
func (b *FileBackend) Path() string { return b.path }

// Load reads and migrates the snapshot. A missing file yields a fresh
// snapshot and no error.
func (b *FileBackend) Load() (*Snapshot, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewSnapshot(b.now()), nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return Decode(data, b.now())
}

// Save writes snap to a temporary file in the same directory, syncs it
// and renames it over the target, so a crash never leaves a torn file.
func (b *FileBackend) Save(snap *Snapshot) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	out := snap.Clone()
	out.SchemaVersion = CurrentSchemaVersion
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod: %w", err)
	}

	if err := os.Rename(tmpPath, b.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Close is a no-op; the file is opened per operation.
func (b *FileBackend) Close() error { return nil }
