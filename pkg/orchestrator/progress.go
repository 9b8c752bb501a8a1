package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/keeldb/keel/pkg/actions"
	"github.com/keeldb/keel/pkg/events"
	"github.com/keeldb/keel/pkg/metrics"
	"github.com/keeldb/keel/pkg/types"
)

// progressActions runs one scheduling/progress pass over the view's
// unfinished actions in FIFO order. Action-scoped failures are recorded on
// the action and do not stop the pass; a store write failure aborts it.
func (c *cycle) progressActions(ctx context.Context) error {
	// An already running exclusive action blocks further exclusive
	// scheduling for the whole cycle.
	for _, action := range c.view.Actions {
		if action.State != types.ActionStateRunning {
			continue
		}
		if entry, ok := c.orchestrator.registry.Lookup(action.Kind); ok && entry.Mode == types.ScheduleModeExclusive {
			c.exclusiveActive = true
		}
	}

	for _, action := range c.view.Actions {
		var err error
		switch action.State {
		case types.ActionStatePendingApprove:
			// Waiting on an operator; nothing to do.
		case types.ActionStatePendingSchedule:
			err = c.scheduleAction(ctx, action)
		case types.ActionStateRunning:
			err = c.progressRunning(ctx, action)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// scheduleAction attempts the PendingSchedule -> Running transition.
func (c *cycle) scheduleAction(ctx context.Context, action *types.OrchestratorAction) error {
	entry, ok := c.orchestrator.registry.Lookup(action.Kind)
	if !ok {
		return c.failAction(ctx, action, actions.ErrorKindUnknownKind,
			"no handler registered for kind "+action.Kind)
	}

	if entry.Mode == types.ScheduleModeExclusive && c.exclusiveActive {
		// Another exclusive action already holds the cluster; retried next
		// cycle, not an error.
		c.logger.Debug().
			Str("action_id", action.ID).
			Str("kind", action.Kind).
			Msg("Exclusive action deferred, another exclusive action is active")
		return nil
	}

	action.ScheduledAt = time.Now()
	changes, err := entry.Handler.Progress(ctx, actions.Invocation{Action: action, View: c.view})
	if err != nil {
		return c.failAction(ctx, action, actions.ErrorKindDidNotStart, err.Error())
	}

	if err := c.applyChanges(ctx, action, changes); err != nil {
		return err
	}
	if entry.Mode == types.ScheduleModeExclusive && action.State == types.ActionStateRunning {
		c.exclusiveActive = true
	}
	return nil
}

// progressRunning invokes the handler for a running action, unless the
// action has exceeded its timeout, in which case it is failed without
// consulting the handler.
func (c *cycle) progressRunning(ctx context.Context, action *types.OrchestratorAction) error {
	entry, ok := c.orchestrator.registry.Lookup(action.Kind)
	if !ok {
		return c.failAction(ctx, action, actions.ErrorKindUnknownKind,
			"no handler registered for kind "+action.Kind)
	}

	timeout := action.Timeout
	if timeout == 0 {
		timeout = entry.Timeout
	}
	if !action.ScheduledAt.IsZero() && !c.start.Before(action.ScheduledAt.Add(timeout)) {
		metrics.ActionTimeoutsTotal.Inc()
		return c.failAction(ctx, action, actions.ErrorKindTimedOut,
			"action exceeded timeout of "+timeout.String())
	}

	changes, err := entry.Handler.Progress(ctx, actions.Invocation{Action: action, View: c.view})
	if err != nil {
		return c.failAction(ctx, action, actions.ErrorKindHandler, err.Error())
	}
	return c.applyChanges(ctx, action, changes)
}

// applyChanges persists a handler's decision and emits the matching event.
// Each transition emits exactly one event; a Running -> Running invocation
// that changes nothing persists nothing.
func (c *cycle) applyChanges(ctx context.Context, action *types.OrchestratorAction, changes actions.ProgressChanges) error {
	previous := action.State
	payloadChanged := changes.StatePayload != nil && !bytes.Equal(action.StatePayload, changes.StatePayload)
	if payloadChanged {
		action.StatePayload = changes.StatePayload
	}
	if changes.Error != nil {
		action.StatePayloadError = changes.Error
	}
	action.State = changes.State

	changed := previous != changes.State || payloadChanged || changes.Error != nil
	if !changed {
		return nil
	}
	if changes.State.Finished() {
		action.FinishedAt = time.Now()
	}

	if err := c.orchestrator.store.PutAction(ctx, action); err != nil {
		// Fail fast: no in-cycle rollback, the next cycle re-reads fresh
		// state and retries safely.
		return err
	}
	metrics.ActionTransitionsTotal.WithLabelValues(string(action.State)).Inc()
	c.progressed++

	switch action.State {
	case types.ActionStateDone:
		c.publishAction(events.EventActionSucceeded, action, "action completed")
	case types.ActionStateFailed:
		c.publishAction(events.EventActionFailed, action, "action failed")
	case types.ActionStateCancelled:
		c.publishAction(events.EventActionCancelled, action, "action cancelled")
	default:
		c.publishAction(events.EventActionUpdated, action, "action progressed")
	}
	return nil
}

// failAction records an action-scoped failure on the action itself. The
// returned error is non-nil only when the store write failed.
func (c *cycle) failAction(ctx context.Context, action *types.OrchestratorAction, errorKind, message string) error {
	c.logger.Warn().
		Str("action_id", action.ID).
		Str("kind", action.Kind).
		Str("error_kind", errorKind).
		Str("error", message).
		Msg("Action failed")
	return c.applyChanges(ctx, action, actions.ProgressChanges{
		State: types.ActionStateFailed,
		Error: actions.NewErrorPayload(errorKind, message),
	})
}

// publishAction emits one action lifecycle event.
func (c *cycle) publishAction(eventType events.EventType, action *types.OrchestratorAction, message string) {
	c.orchestrator.publish(eventType, c.nsID, c.clusterID, message, map[string]string{
		"action_id": action.ID,
		"kind":      action.Kind,
		"state":     string(action.State),
	})
}

// encodeArgs marshals scheduler-provided args for a new action record.
func encodeArgs(args interface{}) (json.RawMessage, error) {
	if args == nil {
		return nil, nil
	}
	return json.Marshal(args)
}
