package actions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/keeldb/keel/pkg/types"
	"github.com/keeldb/keel/pkg/view"
)

// Invocation carries everything a handler may inspect when progressing an
// action: the current action record (including any stored state payload) and
// the cycle's cluster view.
type Invocation struct {
	Action *types.OrchestratorAction
	View   *view.ClusterView
}

// ProgressChanges is the decision a handler returns from one invocation:
// the next state, an optional replacement state payload, and an optional
// structured error to record on the action.
type ProgressChanges struct {
	State types.ActionState
	// StatePayload replaces the stored payload when non-nil.
	StatePayload json.RawMessage
	// Error is recorded as the action's error payload when non-nil.
	Error json.RawMessage
}

// Handler progresses actions of one kind. Implementations must be idempotent
// per invocation: any external call they make has to be safe to retry, since
// a cycle aborted after the call but before the persist will invoke the
// handler again with the previous payload.
type Handler interface {
	Progress(ctx context.Context, inv Invocation) (ProgressChanges, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, inv Invocation) (ProgressChanges, error)

// Progress implements Handler.
func (f HandlerFunc) Progress(ctx context.Context, inv Invocation) (ProgressChanges, error) {
	return f(ctx, inv)
}

// Entry binds a kind to its handler and scheduling metadata.
type Entry struct {
	Kind    string
	Handler Handler
	// Mode controls whether actions of this kind may overlap with other
	// exclusive actions on the same cluster.
	Mode types.ScheduleMode
	// Timeout bounds how long a running action of this kind may take before
	// the engine force-fails it. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout applies to kinds registered without an explicit timeout.
const DefaultTimeout = time.Hour
