package database

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileStore is a MemoryStore that persists every committed snapshot to a
// gob file. The file is replaced by rename, so a crash leaves either the
// previous or the new snapshot on disk.
type FileStore struct {
	*MemoryStore
	path string
}

// NewFileStore opens the store at path, loading existing profiles if the
// file exists.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("profile store path is required")
	}
	fs := &FileStore{MemoryStore: NewMemoryStore(), path: path}

	snap, err := LoadSnapshot(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		fs.replaceAll(snap.Profiles)
	}

	fs.commit = fs.save
	return fs, nil
}

// Path returns the snapshot file path.
func (f *FileStore) Path() string {
	return f.path
}

// Close is a no-op; every write is already durable.
func (f *FileStore) Close() error {
	return nil
}

func (f *FileStore) save(next *profileSet) error {
	return SaveSnapshot(f.path, Snapshot{
		Version:  currentSnapshotVersion,
		SavedAt:  time.Now().UTC(),
		Profiles: next.list(),
	})
}

// SaveSnapshot writes snap to path atomically.
func SaveSnapshot(path string, snap Snapshot) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("failed to encode profiles: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync profiles: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close profiles file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace profiles file: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot. A missing file
// returns an error wrapping os.ErrNotExist.
func LoadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return snap, fmt.Errorf("failed to read profiles file: %w", err)
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return snap, fmt.Errorf("failed to decode profiles: %w", err)
	}
	if snap.Version != currentSnapshotVersion {
		return snap, fmt.Errorf("unsupported profiles file version %d (want %d)", snap.Version, currentSnapshotVersion)
	}
	for _, p := range snap.Profiles {
		if err := p.Validate(); err != nil {
			return snap, fmt.Errorf("profiles file %s: %w", path, err)
		}
	}
	return snap, nil
}
