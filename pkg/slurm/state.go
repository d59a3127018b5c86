package slurm

import "github.com/hpckit/slurmbench/pkg/instance"

// stateTable maps SLURM's state vocabulary onto the internal lifecycle
// enumeration. The mapping is total: states not listed here classify as
// StatusSubmitted (still pending as far as this tool is concerned), never as
// running or terminal.
var stateTable = map[string]instance.Status{
	"PENDING":     instance.StatusSubmitted,
	"CONFIGURING": instance.StatusStarting,
	"RUNNING":     instance.StatusRunning,
	"COMPLETING":  instance.StatusCompleted,
	"COMPLETED":   instance.StatusCompleted,
	"FAILED":      instance.StatusFailed,
	"TIMEOUT":     instance.StatusFailed,
	"NODE_FAIL":   instance.StatusFailed,
	"CANCELLED":   instance.StatusCanceled,
}

// MapState translates one external SLURM state string.
//
// Unrecognized states are classified as StatusSubmitted so that a new SLURM
// state name can never silently promote a job to running. Callers that see an
// empty squeue result (rather than an unknown state string) treat the job as
// completed; that case is handled in QueryStatus, not here.
func MapState(external string) instance.Status {
	if s, ok := stateTable[external]; ok {
		return s
	}
	return instance.StatusSubmitted
}
