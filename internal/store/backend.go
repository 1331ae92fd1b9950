package store

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

// Backend loads and saves snapshots.
type Backend interface {
	// Load returns the stored snapshot, or a fresh one when nothing is
	// stored yet.
	Load() (*Snapshot, error)
	Save(*Snapshot) error
	Close() error
	Path() string
}

// Backend types accepted by Open.
const (
	TypeFile   = "file"
	TypeSQLite = "sqlite"
)

// Config selects and locates a backend.
type Config struct {
	Type string
	// Path is the snapshot file. When empty, the default file name for
	// Type is used inside Dir.
	Path string
	Dir  string
}

// ResolvePath returns the file the configured backend uses.
func (c Config) ResolvePath() string {
	if c.Path != "" {
		return c.Path
	}
	if c.Type == TypeSQLite {
		return filepath.Join(c.Dir, DBFileName)
	}
	return filepath.Join(c.Dir, FileName)
}

// Open returns the backend named by cfg.Type.
func Open(cfg Config) (Backend, error) {
	path := cfg.ResolvePath()
	switch cfg.Type {
	case "", TypeFile:
		return NewFileBackend(path), nil
	case TypeSQLite:
		b, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Type)
	}
}

// LoadOrFresh loads the stored snapshot. Any read or decode failure is
// logged and treated as no prior state.
func LoadOrFresh(b Backend, now time.Time, logger *slog.Logger) *Snapshot {
	snap, err := b.Load()
	if err != nil {
		if logger != nil {
			logger.Warn("could not load snapshot; starting fresh",
				"path", b.Path(), "error", err)
		}
		return NewSnapshot(now)
	}
	return snap
}
