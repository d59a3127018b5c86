// Package instance tracks the runtime lifecycle of deployed recipes.
//
// An Instance is created when a recipe is submitted to the scheduler and is
// retained after it reaches a terminal state so historical status queries keep
// working until the registry is pruned. Instances are persisted to a single
// JSON document after every mutation that changes status or endpoints, and
// reloaded at startup.
package instance

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a deployed instance.
//
// NOTE: These values are persisted in instances.json and are part of the
// stable on-disk contract.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// rank orders statuses along the lifecycle graph. Terminal states share a
// rank because no transition between them is legal.
func (s Status) rank() int {
	switch s {
	case StatusSubmitted:
		return 1
	case StatusStarting:
		return 2
	case StatusRunning:
		return 3
	case StatusCompleted, StatusFailed, StatusCanceled:
		return 4
	}
	return 0
}

// Component is a named sub-job belonging to a composite Instance, e.g. the
// Prometheus infra component of a monitoring stack. A Component's lifetime is
// bounded by its owning Instance and is never shared across Instances.
type Component struct {
	Name     string `json:"name"`
	JobID    string `json:"job_id"`
	Endpoint string `json:"endpoint,omitempty"`
	Status   Status `json:"status"`
}

// Transition advances the component's status with the same monotonic rules
// as Instance.Transition. Returns true when the status changed.
func (c *Component) Transition(next Status) bool {
	if c.Status.Terminal() {
		return false
	}
	if next.rank() <= c.Status.rank() {
		return false
	}
	c.Status = next
	return true
}

// Instance is the persistent runtime record for one deployed recipe.
//
// The schema is designed for backward-compatible extension (additive fields).
type Instance struct {
	// ID is globally unique and immutable after creation.
	ID string `json:"id"`

	// RecipeName references the owning recipe; the recipe itself is
	// re-associated by name on reload.
	RecipeName string `json:"recipe_name"`

	Status Status `json:"status"`

	// JobID is the opaque scheduler handle, empty until submission succeeds.
	JobID string `json:"job_id,omitempty"`

	// Endpoints maps a logical target name to its resolved "host:port".
	Endpoints map[string]string `json:"endpoints,omitempty"`

	// Components holds sub-jobs of composite instances, keyed by name.
	Components map[string]*Component `json:"components,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Metadata is an open bag for orchestrator extras (resolved node,
	// failure cause). Intentionally string-only so the on-disk schema stays
	// stable as callers evolve.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// New creates an Instance for the named recipe in StatusSubmitted.
func New(recipeName string) *Instance {
	return &Instance{
		ID:         uuid.New().String(),
		RecipeName: recipeName,
		Status:     StatusSubmitted,
		Endpoints:  make(map[string]string),
		Components: make(map[string]*Component),
		CreatedAt:  time.Now().UTC(),
		Metadata:   make(map[string]string),
	}
}

// ShortID returns the first segment of the instance id for display.
func (i *Instance) ShortID() string {
	if len(i.ID) >= 8 {
		return i.ID[:8]
	}
	return i.ID
}

// Transition advances the instance along the lifecycle graph.
//
// Returns true when the status changed. Backward moves (e.g. the scheduler
// still reporting pending while the instance is already starting) and any
// move out of a terminal state are ignored, keeping the observed status
// sequence monotonic. Entering a terminal state stamps CompletedAt once.
func (i *Instance) Transition(next Status) bool {
	if i.Status.Terminal() {
		return false
	}
	if next.rank() <= i.Status.rank() {
		return false
	}
	i.Status = next
	if next.Terminal() && i.CompletedAt == nil {
		now := time.Now().UTC()
		i.CompletedAt = &now
	}
	return true
}

// AddComponent registers a sub-job under this instance.
func (i *Instance) AddComponent(name, jobID, endpoint string, status Status) *Component {
	if i.Components == nil {
		i.Components = make(map[string]*Component)
	}
	c := &Component{Name: name, JobID: jobID, Endpoint: endpoint, Status: status}
	i.Components[name] = c
	return c
}

// LiveHandles returns every scheduler handle owned by the instance (its own
// and its components') whose state is not yet terminal.
func (i *Instance) LiveHandles() map[string]string {
	out := make(map[string]string)
	if i.JobID != "" && !i.Status.Terminal() {
		out[""] = i.JobID
	}
	for name, c := range i.Components {
		if c.JobID != "" && !c.Status.Terminal() {
			out[name] = c.JobID
		}
	}
	return out
}

// Uptime returns the duration from creation to completion, or to now for
// instances that are still live.
func (i *Instance) Uptime() time.Duration {
	end := time.Now().UTC()
	if i.CompletedAt != nil {
		end = *i.CompletedAt
	}
	return end.Sub(i.CreatedAt)
}
