package orchestrator

import (
	"errors"
	"fmt"
)

// Operation names carried by InitError and OperationError, also used as the
// metrics label for aborted cycles.
const (
	OpInit             = "init"
	OpClusterViewLoad  = "cluster-view-load"
	OpSchedulingChoice = "scheduling-choice"
	OpActionProgress   = "action-progress"
	OpLockLost         = "lock-lost"
)

// ErrLockLost reports that the per-cluster lock was discovered lost
// mid-cycle. The cycle aborts cleanly; applied writes remain because
// convergence is re-entrant.
var ErrLockLost = errors.New("cluster lock lost")

// Scheduling-choice errors confined to one cycle. They are logged and
// recorded on the report but do not abort the cycle.
var (
	// ErrClusterInitNoTarget reports that no candidate node exists to seed
	// cluster initialisation.
	ErrClusterInitNoTarget = errors.New("no candidate node for cluster init")
	// ErrNodeNoMemberAddress reports that the chosen node has no
	// addressable endpoint.
	ErrNodeNoMemberAddress = errors.New("selected node has no member address")
)

// isSchedChoice reports whether a step error is a per-cycle scheduling
// choice failure rather than an engine failure.
func isSchedChoice(err error) bool {
	return errors.Is(err, ErrClusterInitNoTarget) || errors.Is(err, ErrNodeNoMemberAddress)
}

// InitError wraps store or connectivity failures while assembling cycle
// state. It is surfaced to the task runtime's retry policy, never retried
// internally.
type InitError struct {
	Op  string
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("orchestrate init failed (%s): %v", e.Op, e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// OperationError wraps failures of an in-flight cycle, such as losing the
// cluster lock. The cycle aborts without persisting a report.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("orchestrate operation failed (%s): %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}
