// Package slurm submits, cancels, and queries jobs on a SLURM batch scheduler.
//
// The Gateway interface isolates orchestration logic from the literal sbatch,
// scancel, and squeue command-line syntax, so that tests substitute a fake
// gateway and never shell out. The CLI-backed implementation renders a batch
// script from a JobSpec, submits it synchronously, and translates SLURM's
// state vocabulary into the internal lifecycle enumeration through a single
// explicit mapping table.
package slurm

import (
	"context"

	"github.com/hpckit/slurmbench/pkg/instance"
)

// JobSpec is the scheduler submission payload for one job.
type JobSpec struct {
	// Name is the scheduler-visible job name.
	Name string

	// Kind labels the job in the script banner (e.g. "Server Deployment").
	Kind string

	// InstanceID correlates scheduler logs back to the owning instance.
	InstanceID string

	// Command is the literal command the job executes.
	Command string

	// WorkingDir is the directory the command runs in.
	WorkingDir string

	// Env is exported before the command runs.
	Env map[string]string

	// Ports is informational, echoed into the job banner.
	Ports []int

	// Resource request.
	CPUCores int
	MemoryGB int
	GPUCount int

	// Scheduling hints; empty values fall back to the gateway defaults.
	Partition string
	QOS       string
	Account   string
	TimeLimit string

	// LogPath, when set, directs stdout and stderr to this file.
	LogPath string
}

// JobStatus is the result of a status query for one handle.
type JobStatus struct {
	// State is the internal lifecycle classification.
	State instance.Status

	// Node is the assigned compute node, empty until the job is placed.
	Node string
}

// Gateway is the external batch scheduler interface.
type Gateway interface {
	// Submit renders and submits the job, returning the scheduler-assigned
	// handle. Fails with a SchedulerError on non-zero exit or a malformed
	// handle in the response.
	Submit(ctx context.Context, spec *JobSpec) (string, error)

	// Cancel best-effort cancels a job. Returns false (not an error) if the
	// scheduler reports the handle already gone; cancellation is idempotent.
	Cancel(ctx context.Context, handle string) (bool, error)

	// QueryStatus returns the handle's current internal state and, when
	// running, its assigned node. An empty query result (handle unknown to
	// the scheduler) is reported as StatusCompleted, because jobs are reaped
	// after completion.
	QueryStatus(ctx context.Context, handle string) (JobStatus, error)
}
