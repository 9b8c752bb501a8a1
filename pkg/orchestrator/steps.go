package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/keeldb/keel/pkg/actions"
	"github.com/keeldb/keel/pkg/types"
	"github.com/keeldb/keel/pkg/view"
)

// defaultGrace suppresses a step from re-triggering while its previously
// scheduled action is expected to still be in flight.
const defaultGrace = 20 * time.Minute

// ActionScheduler creates new orchestrator actions during convergence.
// The cycle implements it; steps never touch the store directly.
type ActionScheduler interface {
	Schedule(ctx context.Context, kind string, args interface{}) (*types.OrchestratorAction, error)
}

// StepData carries the inputs a convergence step may inspect.
type StepData struct {
	View      *view.ClusterView
	Now       time.Time
	Scheduler ActionScheduler
	Logger    zerolog.Logger
}

// ConvergenceStep compares one aspect of desired vs. observed cluster state
// and schedules actions to close any gap. Steps run unconditionally every
// cycle, in a fixed order, and evaluate their own preconditions.
type ConvergenceStep interface {
	ID() string
	Converge(ctx context.Context, data *StepData, state *types.ConvergeState) error
}

// DefaultSteps returns the convergence steps in their documented order:
// cluster initialisation strictly before node scale-up.
func DefaultSteps() []ConvergenceStep {
	return []ConvergenceStep{
		&ClusterInitStep{},
		&NodeScaleUpStep{},
	}
}

// ClusterInitStep seeds a brand new cluster: when no node agent has ever
// reported, it elects a discovered node and schedules a cluster.init action.
type ClusterInitStep struct {
	// Grace overrides the default re-trigger suppression window.
	Grace time.Duration
}

// ID implements ConvergenceStep.
func (s *ClusterInitStep) ID() string { return "cluster-init" }

// Converge implements ConvergenceStep.
func (s *ClusterInitStep) Converge(ctx context.Context, data *StepData, state *types.ConvergeState) error {
	if len(data.View.Nodes) > 0 {
		return nil
	}
	if len(data.View.UnfinishedOfKind(actions.KindClusterInit)) > 0 {
		return nil
	}
	if graceCheck(s.ID(), state, grace(s.Grace), data.Now) {
		return nil
	}

	target, err := electInitTarget(data.View)
	if err != nil {
		return err
	}

	args := map[string]interface{}{
		"store":  data.View.Settings.Store,
		"expect": 1,
		"target": target.NodeID,
	}
	if _, err := data.Scheduler.Schedule(ctx, actions.KindClusterInit, args); err != nil {
		return fmt.Errorf("failed to schedule cluster init: %w", err)
	}
	graceStart(s.ID(), state, data.Now)

	data.Logger.Info().
		Str("step", s.ID()).
		Str("target", target.NodeID).
		Msg("Scheduled cluster initialisation")
	return nil
}

// electInitTarget picks the node that will seed the cluster: the first
// discovered member in node-id order, so repeated cycles elect the same one.
func electInitTarget(v *view.ClusterView) (*types.DiscoveryNode, error) {
	candidates := make([]types.DiscoveryNode, len(v.Discovery.Nodes))
	copy(candidates, v.Discovery.Nodes)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: cluster %s/%s has no discovered members",
			ErrClusterInitNoTarget, v.NsID, v.ClusterID)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].NodeID < candidates[j].NodeID
	})
	target := candidates[0]
	if target.MemberAddress == "" {
		return nil, fmt.Errorf("%w: node %s", ErrNodeNoMemberAddress, target.NodeID)
	}
	return &target, nil
}

// NodeScaleUpStep grows an initialised cluster towards its desired node
// count, one node at a time.
type NodeScaleUpStep struct {
	Grace time.Duration
}

// ID implements ConvergenceStep.
func (s *NodeScaleUpStep) ID() string { return "node-scale-up" }

// Converge implements ConvergenceStep.
func (s *NodeScaleUpStep) Converge(ctx context.Context, data *StepData, state *types.ConvergeState) error {
	observed := len(data.View.Discovery.Nodes)
	desired := data.View.Settings.NodeCount
	// An uninitialised cluster is cluster-init's business, not ours.
	if observed == 0 || observed >= desired {
		return nil
	}
	if len(data.View.UnfinishedOfKind(actions.KindClusterAddNode)) > 0 {
		return nil
	}
	if graceCheck(s.ID(), state, grace(s.Grace), data.Now) {
		return nil
	}

	args := map[string]interface{}{
		"store":  data.View.Settings.Store,
		"expect": observed + 1,
	}
	if _, err := data.Scheduler.Schedule(ctx, actions.KindClusterAddNode, args); err != nil {
		return fmt.Errorf("failed to schedule node scale up: %w", err)
	}
	graceStart(s.ID(), state, data.Now)

	data.Logger.Info().
		Str("step", s.ID()).
		Int("observed", observed).
		Int("desired", desired).
		Msg("Scheduled node scale up")
	return nil
}

func grace(override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	return defaultGrace
}
