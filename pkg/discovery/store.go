// Package discovery provides a file-backed service discovery registry.
//
// A producer instance writes one JSON document per logical service name; any
// consumer process reads it back by name. Records are hints, not guarantees:
// existence does not imply the underlying job is still alive, and readers
// must treat every record as possibly stale. Last writer for a service name
// wins; a missing file means "not yet discoverable" and is never an error.
//
// Directory layout:
//
//	<root>/<service_name>.json
//
// Writes use temp file plus rename so readers never observe a torn document.
// The design assumes a single writer per service at a time.
package discovery

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Record is the cross-process handoff unit for one service.
type Record struct {
	// Service is the logical service name (the file stem).
	Service string `json:"service"`

	// JobID is the scheduler handle of the producing job.
	JobID string `json:"job_id,omitempty"`

	// Node is the compute node the service was placed on.
	Node string `json:"node,omitempty"`

	// Ports the service listens on.
	Ports []int `json:"ports,omitempty"`

	// InstanceID is the producing instance's id.
	InstanceID string `json:"instance_id,omitempty"`

	// UpdatedAt is when the record was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// Complete reports whether the record carries enough to build an endpoint.
// A record missing node or ports is incomplete, not a valid endpoint.
func (r *Record) Complete() bool {
	return r != nil && r.Node != "" && len(r.Ports) > 0
}

// Endpoint returns the record's "host:port" using the first port.
// Returns false for incomplete records.
func (r *Record) Endpoint() (string, bool) {
	if !r.Complete() {
		return "", false
	}
	return net.JoinHostPort(r.Node, fmt.Sprintf("%d", r.Ports[0])), true
}

// Store reads and writes discovery records under a root directory.
type Store struct {
	root string
}

// NewStore creates a Store over the given directory. The directory is
// created on first write.
func NewStore(root string) *Store {
	return &Store{root: strings.TrimSpace(root)}
}

// RootDir returns the store's directory.
func (s *Store) RootDir() string {
	return s.root
}

func (s *Store) recordPath(service string) string {
	return filepath.Join(s.root, service+".json")
}

// Write persists the record for its service name, replacing any previous one.
func (s *Store) Write(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("discovery record is nil")
	}
	service := strings.TrimSpace(rec.Service)
	if service == "" {
		return fmt.Errorf("service name is required")
	}
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("create discovery dir: %w", err)
	}

	rec.UpdatedAt = time.Now().UTC()

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal discovery record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(s.root, service+".json.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write discovery record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close discovery record: %w", err)
	}

	if err := os.Rename(tmpName, s.recordPath(service)); err != nil {
		return fmt.Errorf("rename discovery record: %w", err)
	}
	return nil
}

// Read returns the record for a service, or (nil, nil) when the service is
// not yet discoverable.
func (s *Store) Read(service string) (*Record, error) {
	service = strings.TrimSpace(service)
	if service == "" {
		return nil, fmt.Errorf("service name is required")
	}

	b, err := os.ReadFile(s.recordPath(service))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read discovery record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("parse discovery record for %s: %w", service, err)
	}
	if rec.Service == "" {
		rec.Service = service
	}
	return &rec, nil
}

// Clear deletes the record for a service. Clearing an absent record is a
// no-op.
func (s *Store) Clear(service string) error {
	err := os.Remove(s.recordPath(strings.TrimSpace(service)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear discovery record: %w", err)
	}
	return nil
}

// List enumerates services with discovery records, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read discovery dir: %w", err)
	}

	var services []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		services = append(services, strings.TrimSuffix(entry.Name(), ".json"))
	}
	sort.Strings(services)
	return services, nil
}
