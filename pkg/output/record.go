// Package output provides JSONL output for instance state exports.
//
// Output is structured as typed record envelopes containing instance
// snapshots, lifecycle events, and discovery records. Each line is a
// self-contained JSON object that can be parsed independently, so the
// stream stays consumable by line-oriented tooling and periodic
// exporters.
package output

import (
	"encoding/json"
	"errors"
	"time"
)

// Record type constants define the envelope types for JSONL output.
// These follow the pattern: slurmbench.<type>.v<version>
const (
	// TypeInstance identifies instance snapshot records.
	TypeInstance = "slurmbench.instance.v1"

	// TypeEvent identifies lifecycle event records.
	TypeEvent = "slurmbench.event.v1"

	// TypeDiscovery identifies discovery registry records.
	TypeDiscovery = "slurmbench.discovery.v1"

	// TypeSummary identifies final summary records.
	TypeSummary = "slurmbench.summary.v1"
)

// Record is the envelope for all JSONL output.
//
// Each line contains a Record with a type-specific payload in the Data
// field. The type field determines how to interpret the payload.
type Record struct {
	// Type identifies the record type (e.g., "slurmbench.instance.v1").
	Type string `json:"type"`

	// TS is the timestamp when the record was created (RFC3339Nano).
	TS time.Time `json:"ts"`

	// RunID correlates all records emitted by one invocation.
	RunID string `json:"run_id"`

	// Scheduler identifies the backing scheduler (e.g., "slurm").
	Scheduler string `json:"scheduler"`

	// Data contains the type-specific payload as raw JSON.
	Data json.RawMessage `json:"data"`
}

// InstanceRecord is the data payload for instance snapshots.
//
// Status values and field names mirror the persisted instance document
// so exported streams stay joinable with the state file.
type InstanceRecord struct {
	ID          string            `json:"id"`
	RecipeName  string            `json:"recipe_name"`
	Status      string            `json:"status"`
	JobID       string            `json:"job_id,omitempty"`
	Endpoints   map[string]string `json:"endpoints,omitempty"`
	Components  []ComponentRecord `json:"components,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Uptime      string            `json:"uptime,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ComponentRecord is one sub-job of a composite instance.
type ComponentRecord struct {
	Name     string `json:"name"`
	JobID    string `json:"job_id"`
	Endpoint string `json:"endpoint,omitempty"`
	Status   string `json:"status"`
}

// EventRecord is the data payload for lifecycle events.
type EventRecord struct {
	// Event names the lifecycle action ("deploy", "stop", "refresh",
	// "prune").
	Event string `json:"event"`

	// InstanceID is the affected instance, if any.
	InstanceID string `json:"instance_id,omitempty"`

	// Recipe is the owning recipe name, if any.
	Recipe string `json:"recipe,omitempty"`

	// JobID is the scheduler handle, if any.
	JobID string `json:"job_id,omitempty"`

	// Detail carries free-form context (error text, endpoint).
	Detail string `json:"detail,omitempty"`
}

// DiscoveryRecord is the data payload for discovery registry exports.
type DiscoveryRecord struct {
	Service    string    `json:"service"`
	JobID      string    `json:"job_id,omitempty"`
	Node       string    `json:"node,omitempty"`
	Ports      []int     `json:"ports,omitempty"`
	InstanceID string    `json:"instance_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SummaryRecord is the data payload for final summaries.
type SummaryRecord struct {
	// Total is the number of instances exported.
	Total int `json:"total"`

	// ByStatus counts instances per lifecycle status.
	ByStatus map[string]int `json:"by_status,omitempty"`
}

// Writer errors.
var (
	// ErrWriterClosed is returned when writing to a closed writer.
	ErrWriterClosed = errors.New("writer is closed")
)

// WriteError wraps errors that occur during write operations.
type WriteError struct {
	Op  string // Operation that failed (e.g., "marshal_data", "write")
	Err error  // Underlying error
}

func (e *WriteError) Error() string {
	return "output: " + e.Op + ": " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
