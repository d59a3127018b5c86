package manager

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrPartialFailure indicates a multi-component operation where some but not
// all sub-operations succeeded.
var ErrPartialFailure = errors.New("partial failure")

// ComponentFailure records one failed sub-operation of a composite action.
type ComponentFailure struct {
	Name string
	Err  error
}

// PartialFailureError reports a composite deploy or teardown in which some
// components succeeded and others did not, so the caller can decide on
// manual remediation.
type PartialFailureError struct {
	// Op is the operation that partially failed ("stop", "deploy").
	Op string

	// InstanceID identifies the affected instance.
	InstanceID string

	// Succeeded lists component names whose sub-operation completed.
	Succeeded []string

	// Failed lists components whose sub-operation did not complete.
	Failed []ComponentFailure
}

func (e *PartialFailureError) Error() string {
	names := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return fmt.Sprintf("%s of instance %s partially failed: %d of %d components failed (%s)",
		e.Op, e.InstanceID, len(e.Failed), len(e.Failed)+len(e.Succeeded), strings.Join(names, ", "))
}

// Is lets errors.Is(err, ErrPartialFailure) match.
func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure
}

// Unwrap exposes the individual component errors.
func (e *PartialFailureError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		if f.Err != nil {
			out = append(out, f.Err)
		}
	}
	return out
}
