package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// File persists one small JSON document at a fixed path. Saves go through a
// temp file in the same directory followed by an atomic rename, so a crash
// mid-write never leaves a torn document for the next Load to see.
//
// A File is owned by a single process; cross-process concurrency is not
// supported.
type File struct {
	path   string
	logger *zap.Logger
}

// NewFile creates a store bound to path.
func NewFile(path string, logger *zap.Logger) *File {
	return &File{path: path, logger: logger}
}

// Path returns the file path the store persists to.
func (f *File) Path() string {
	return f.path
}

// Load reads the persisted document into v. A missing file is not an error:
// v is left at its zero value. A malformed or unreadable document is logged
// as a warning and likewise treated as empty state, so stale or corrupt state
// never blocks the next run.
func (f *File) Load(v any) error {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		f.logger.Warn("State file unreadable, starting from empty state",
			zap.String("path", f.path), zap.Error(err))
		return nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		f.logger.Warn("State file corrupt, starting from empty state",
			zap.String("path", f.path), zap.Error(err))
		return nil
	}
	return nil
}

// Save writes v as indented JSON. The document is first written to a temp
// file next to the target and then renamed over it.
func (f *File) Save(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state for %s: %w", f.path, err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp state file %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace state file %s: %w", f.path, err)
	}
	return nil
}

// Reset deletes the persisted document. Missing files are fine.
func (f *File) Reset() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to reset state file %s: %w", f.path, err)
	}
	return nil
}
