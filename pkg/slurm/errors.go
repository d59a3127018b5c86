package slurm

import (
	"errors"
	"fmt"
)

// ErrScheduler is the sentinel for scheduler transport failures.
var ErrScheduler = errors.New("scheduler error")

// SchedulerError wraps a failed scheduler CLI invocation with context.
type SchedulerError struct {
	// Op is the operation that failed ("submit", "cancel", "query").
	Op string

	// Handle is the scheduler job handle, if one was involved.
	Handle string

	// Detail is the scheduler-reported error text (stderr), if any.
	Detail string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *SchedulerError) Error() string {
	switch {
	case e.Handle != "" && e.Detail != "":
		return fmt.Sprintf("slurm %s: job %s: %s: %v", e.Op, e.Handle, e.Detail, e.Err)
	case e.Handle != "":
		return fmt.Sprintf("slurm %s: job %s: %v", e.Op, e.Handle, e.Err)
	case e.Detail != "":
		return fmt.Sprintf("slurm %s: %s: %v", e.Op, e.Detail, e.Err)
	default:
		return fmt.Sprintf("slurm %s: %v", e.Op, e.Err)
	}
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *SchedulerError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrScheduler) match any SchedulerError.
func (e *SchedulerError) Is(target error) bool {
	return target == ErrScheduler
}

// IsSchedulerError returns true if the error is a scheduler transport failure.
func IsSchedulerError(err error) bool {
	return errors.Is(err, ErrScheduler)
}
