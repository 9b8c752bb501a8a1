package orchestrator

import (
	"time"

	"github.com/keeldb/keel/pkg/types"
)

// graceCheck reports whether a step is still inside its grace window: true
// while now < graces[stepID] + window. Steps use it to avoid re-triggering
// while a previously scheduled action is still outstanding.
//
// Entries are never cleared automatically when the triggered action
// finishes; they only age out. See the package documentation.
func graceCheck(stepID string, state *types.ConvergeState, window time.Duration, now time.Time) bool {
	started, ok := state.Graces[stepID]
	if !ok {
		return false
	}
	return now.Before(started.Add(window))
}

// graceStart records that a step triggered at the given time.
func graceStart(stepID string, state *types.ConvergeState, now time.Time) {
	if state.Graces == nil {
		state.Graces = make(map[string]time.Time)
	}
	state.Graces[stepID] = now
}
