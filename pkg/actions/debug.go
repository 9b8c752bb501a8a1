package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/keeldb/keel/pkg/types"
)

// Debug action kinds. They perform no external work and exist to exercise
// the scheduling, progress and event machinery end to end.
const (
	KindTestSuccess = "test.success"
	KindTestFail    = "test.fail"
	KindTestLoop    = "test.loop"
)

// RegisterDebug adds the debug kinds to a registry.
func RegisterDebug(registry *Registry) error {
	entries := []Entry{
		{Kind: KindTestSuccess, Handler: HandlerFunc(progressTestSuccess), Mode: types.ScheduleModeParallel, Timeout: 5 * time.Minute},
		{Kind: KindTestFail, Handler: HandlerFunc(progressTestFail), Mode: types.ScheduleModeParallel, Timeout: 5 * time.Minute},
		{Kind: KindTestLoop, Handler: HandlerFunc(progressTestLoop), Mode: types.ScheduleModeParallel, Timeout: time.Hour},
	}
	for _, entry := range entries {
		if err := registry.Register(entry); err != nil {
			return err
		}
	}
	return nil
}

func progressTestSuccess(ctx context.Context, inv Invocation) (ProgressChanges, error) {
	return ProgressChanges{State: types.ActionStateDone}, nil
}

func progressTestFail(ctx context.Context, inv Invocation) (ProgressChanges, error) {
	return ProgressChanges{
		State: types.ActionStateFailed,
		Error: NewErrorPayload(ErrorKindHandler, "test.fail always fails"),
	}, nil
}

// loopArgs configures a test.loop action.
type loopArgs struct {
	Target int `json:"target"`
}

// loopPayload is the progress carried across test.loop invocations.
type loopPayload struct {
	Count int `json:"count"`
}

// progressTestLoop increments a counter once per cycle and completes when it
// reaches args.target.
func progressTestLoop(ctx context.Context, inv Invocation) (ProgressChanges, error) {
	var args loopArgs
	if err := json.Unmarshal(inv.Action.Args, &args); err != nil {
		return ProgressChanges{}, fmt.Errorf("invalid test.loop args: %w", err)
	}

	var payload loopPayload
	if len(inv.Action.StatePayload) > 0 {
		if err := json.Unmarshal(inv.Action.StatePayload, &payload); err != nil {
			return ProgressChanges{}, fmt.Errorf("invalid test.loop payload: %w", err)
		}
	}

	payload.Count++
	encoded, err := json.Marshal(payload)
	if err != nil {
		return ProgressChanges{}, err
	}

	state := types.ActionStateRunning
	if payload.Count >= args.Target {
		state = types.ActionStateDone
	}
	return ProgressChanges{State: state, StatePayload: encoded}, nil
}
