package taskgraph

import (
	"fmt"
)

// Sentinel errors for the structural/resource error taxonomy described in
// spec §7. User-payload failures are never one of these; they are
// reported as a *PanicError captured by the owning Topology instead.
var (
	// ErrInvariantViolation is returned for structural misuse: submitting
	// a graph that is already running, or Runtime.Schedule of an empty
	// task or of a task from another topology. Editing a graph's edges
	// while a topology over it is in flight is not checked.
	ErrInvariantViolation = fmt.Errorf("taskgraph: invariant violation")

	// ErrAllocationFailure names the resource-exhaustion case of the
	// error taxonomy (spec §7). No code path in this package returns it.
	ErrAllocationFailure = fmt.Errorf("taskgraph: allocation failure")

	// ErrExecutorStopped is returned by submission APIs once Release has
	// been called on the Executor.
	ErrExecutorStopped = fmt.Errorf("taskgraph: executor stopped")
)

// PanicError wraps a recovered user-payload panic, the form in which
// spec §7 "exactly one exception per topology run" is surfaced through
// Future.Get.
type PanicError struct {
	NodeName string
	Kind     string
	Value    any
	Stack    []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("taskgraph: task %q (%s) panicked: %v", e.NodeName, e.Kind, e.Value)
}

// Unwrap lets errors.Is/As see through to the original panic value when
// it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
