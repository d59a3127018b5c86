package manager

import (
	"time"

	"github.com/hpckit/slurmbench/pkg/instance"
)

// Snapshot is a read-only copy of an instance's state at refresh time,
// suitable for JSON output and API responses.
type Snapshot struct {
	ID          string                        `json:"id"`
	RecipeName  string                        `json:"recipe_name"`
	Status      instance.Status               `json:"status"`
	JobID       string                        `json:"job_id,omitempty"`
	Endpoints   map[string]string             `json:"endpoints,omitempty"`
	Components  map[string]instance.Component `json:"components,omitempty"`
	CreatedAt   time.Time                     `json:"created_at"`
	CompletedAt *time.Time                    `json:"completed_at,omitempty"`
	Uptime      string                        `json:"uptime"`
	Metadata    map[string]string             `json:"metadata,omitempty"`
}

func snapshotOf(inst *instance.Instance) *Snapshot {
	snap := &Snapshot{
		ID:         inst.ID,
		RecipeName: inst.RecipeName,
		Status:     inst.Status,
		JobID:      inst.JobID,
		CreatedAt:  inst.CreatedAt,
		Uptime:     inst.Uptime().Round(time.Second).String(),
	}
	if inst.CompletedAt != nil {
		t := *inst.CompletedAt
		snap.CompletedAt = &t
	}
	if len(inst.Endpoints) > 0 {
		snap.Endpoints = make(map[string]string, len(inst.Endpoints))
		for k, v := range inst.Endpoints {
			snap.Endpoints[k] = v
		}
	}
	if len(inst.Components) > 0 {
		snap.Components = make(map[string]instance.Component, len(inst.Components))
		for k, c := range inst.Components {
			snap.Components[k] = *c
		}
	}
	if len(inst.Metadata) > 0 {
		snap.Metadata = make(map[string]string, len(inst.Metadata))
		for k, v := range inst.Metadata {
			snap.Metadata[k] = v
		}
	}
	return snap
}
