package instance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists the full instance table as a single JSON document.
//
// The document is rewritten whole on every save, via temp file plus rename so
// a concurrent reader never observes a torn write. The design assumes a single
// writer per file at a time; there is no cross-process lock.
type Store struct {
	path string
}

// NewStore creates a Store writing to the given file path.
func NewStore(path string) *Store {
	return &Store{path: strings.TrimSpace(path)}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Write serializes all instances to the backing file.
//
// Writing the same in-memory state twice produces an equivalent document;
// instances are persisted in the order given.
func (s *Store) Write(instances []*Instance) error {
	if strings.TrimSpace(s.path) == "" {
		return fmt.Errorf("instance store path is empty")
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	b, err := json.MarshalIndent(instances, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal instance state: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, "instances.json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename state file: %w", err)
	}
	return nil
}

// Read loads all persisted instances.
//
// A missing file is not an error; it returns an empty slice so first use
// starts from a clean table.
func (s *Store) Read() ([]*Instance, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read instance state: %w", err)
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, nil
	}

	var instances []*Instance
	if err := json.Unmarshal([]byte(trimmed), &instances); err != nil {
		return nil, fmt.Errorf("parse instance state: %w", err)
	}
	return instances, nil
}
