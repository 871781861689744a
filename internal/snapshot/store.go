// Package snapshot persists the per-image tag lists between runs as a
// single indented JSON document.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/symnixhq/symnix-image-scraper/internal/version"
)

// Snapshot maps an image name to its ordered tag list, newest first.
type Snapshot map[string][]version.Tag

// Store reads and writes the snapshot document at a fixed path.
// Writes replace the whole document; there is no locking, so concurrent
// runs against the same path are last-writer-wins.
type Store struct {
	path string
}

// NewStore creates a store for the given snapshot path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot from disk. A missing file is created as an
// empty document first, so a fresh install starts from an empty mapping.
func (s *Store) Load() (Snapshot, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		if err := s.Save(Snapshot{}); err != nil {
			return nil, fmt.Errorf("failed to initialize snapshot file: %w", err)
		}
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot file %s: %w", s.path, err)
	}
	if snap == nil {
		snap = Snapshot{}
	}

	return snap, nil
}

// Save replaces the snapshot document. The write goes through a temp file
// in the same directory followed by a rename, so readers never observe a
// partially written document.
func (s *Store) Save(snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp snapshot file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}

	return nil
}
