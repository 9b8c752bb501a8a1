package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/keeldb/keel/pkg/actions"
	"github.com/keeldb/keel/pkg/events"
	"github.com/keeldb/keel/pkg/metrics"
	"github.com/keeldb/keel/pkg/storage"
	"github.com/keeldb/keel/pkg/types"
	"github.com/keeldb/keel/pkg/view"
)

// Lock is the per-cluster mutual exclusion consumed by the engine. Acquire
// never blocks: it returns false when the lock is already held. The backend
// guarantees auto-release if the owning process dies.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Check(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory hands out per-cluster locks.
type LockFactory interface {
	ClusterLock(nsID, clusterID string) Lock
}

// Orchestrator runs per-cluster orchestration cycles: lock, view, converge,
// progress, report.
type Orchestrator struct {
	store    storage.Store
	registry *actions.Registry
	events   events.Publisher
	locks    LockFactory
	steps    []ConvergenceStep
	logger   zerolog.Logger
}

// Config holds the dependencies of an Orchestrator.
type Config struct {
	Store    storage.Store
	Registry *actions.Registry
	Events   events.Publisher
	Locks    LockFactory
	// Steps defaults to DefaultSteps when nil.
	Steps  []ConvergenceStep
	Logger zerolog.Logger
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	steps := cfg.Steps
	if steps == nil {
		steps = DefaultSteps()
	}
	return &Orchestrator{
		store:    cfg.Store,
		registry: cfg.Registry,
		events:   cfg.Events,
		locks:    cfg.Locks,
		steps:    steps,
		logger:   cfg.Logger,
	}
}

// cycle is the state of one orchestration cycle. It exclusively owns its
// view and is discarded when the cycle ends.
type cycle struct {
	orchestrator *Orchestrator
	nsID         string
	clusterID    string
	mode         string
	logger       zerolog.Logger

	start    time.Time
	settings *types.ClusterSettings
	view     *view.ClusterView
	converge *types.ConvergeState

	exclusiveActive bool
	progressed      int
	issues          []string
}

// Orchestrate runs one orchestration cycle for a cluster. A cycle that finds
// the cluster lock already held, or the cluster disabled, returns nil: both
// are expected outcomes, not failures.
func (o *Orchestrator) Orchestrate(ctx context.Context, nsID, clusterID, mode string) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.OrchestrateDuration)
	metrics.OrchestrateCyclesTotal.Inc()

	c := &cycle{
		orchestrator: o,
		nsID:         nsID,
		clusterID:    clusterID,
		mode:         mode,
		logger:       o.logger.With().Str("ns_id", nsID).Str("cluster_id", clusterID).Logger(),
		start:        time.Now(),
	}

	err := c.run(ctx)
	if err != nil {
		var initErr *InitError
		var opErr *OperationError
		switch {
		case errors.As(err, &initErr):
			metrics.OrchestrateErrorsTotal.WithLabelValues(initErr.Op).Inc()
		case errors.As(err, &opErr):
			metrics.OrchestrateErrorsTotal.WithLabelValues(opErr.Op).Inc()
		default:
			metrics.OrchestrateErrorsTotal.WithLabelValues("other").Inc()
		}
	}
	return err
}

func (c *cycle) run(ctx context.Context) error {
	o := c.orchestrator

	// Acquire the per-cluster lock. Already held means another worker owns
	// this cluster right now; skip cleanly.
	lock := o.locks.ClusterLock(c.nsID, c.clusterID)
	held, err := lock.Acquire(ctx)
	if err != nil {
		return &InitError{Op: OpInit, Err: fmt.Errorf("failed to acquire cluster lock: %w", err)}
	}
	if !held {
		metrics.OrchestrateLockedTotal.Inc()
		c.logger.Debug().Msg("Cluster already locked, skipping cycle")
		return nil
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to release cluster lock")
		}
	}()

	// Assemble cycle state.
	settings, err := o.store.GetClusterSettings(ctx, c.nsID, c.clusterID)
	if errors.Is(err, storage.ErrNotFound) {
		c.logger.Debug().Msg("Cluster not registered, skipping cycle")
		return nil
	} else if err != nil {
		return &InitError{Op: OpInit, Err: err}
	}
	c.settings = settings

	c.view, err = view.Load(ctx, o.store, settings)
	if err != nil {
		return &InitError{Op: OpClusterViewLoad, Err: err}
	}

	// Disabled targets short-circuit cleanly: reported, not retried.
	if !settings.Enabled {
		c.logger.Debug().Msg("Cluster disabled, skipping cycle")
		return c.persistReport(ctx, "disabled")
	}

	c.converge, err = o.store.GetConvergeState(ctx, c.nsID, c.clusterID)
	if errors.Is(err, storage.ErrNotFound) {
		c.converge = &types.ConvergeState{NsID: c.nsID, ClusterID: c.clusterID}
	} else if err != nil {
		return &InitError{Op: OpInit, Err: err}
	}

	if err := c.runSteps(ctx); err != nil {
		return err
	}

	// Lock loss is detected opportunistically once per cycle. Writes made so
	// far remain: convergence is re-entrant and never rolled back.
	held, err = lock.Check(ctx)
	if err != nil {
		return &OperationError{Op: OpLockLost, Err: err}
	}
	if !held {
		return &OperationError{Op: OpLockLost, Err: ErrLockLost}
	}

	if err := c.progressActions(ctx); err != nil {
		return &OperationError{Op: OpActionProgress, Err: err}
	}

	outcome := "success"
	if len(c.issues) > 0 {
		outcome = strings.Join(c.issues, "; ")
	}
	return c.persistReport(ctx, outcome)
}

// runSteps executes every convergence step in order. Scheduling-choice
// failures are recorded and the remaining steps still run; any other step
// error aborts the cycle.
func (c *cycle) runSteps(ctx context.Context) error {
	data := &StepData{
		View:      c.view,
		Now:       c.start,
		Scheduler: c,
		Logger:    c.logger,
	}

	for _, step := range c.orchestrator.steps {
		err := step.Converge(ctx, data, c.converge)
		if err == nil {
			continue
		}
		if isSchedChoice(err) {
			c.logger.Warn().Err(err).Str("step", step.ID()).Msg("Convergence step made no progress")
			c.issues = append(c.issues, step.ID()+": "+err.Error())
			continue
		}
		return &InitError{Op: OpSchedulingChoice, Err: fmt.Errorf("step %s: %w", step.ID(), err)}
	}

	if err := c.orchestrator.store.PutConvergeState(ctx, c.converge); err != nil {
		return &InitError{Op: OpSchedulingChoice, Err: fmt.Errorf("failed to persist converge state: %w", err)}
	}
	return nil
}

// Schedule implements ActionScheduler for convergence steps.
func (c *cycle) Schedule(ctx context.Context, kind string, args interface{}) (*types.OrchestratorAction, error) {
	entry, ok := c.orchestrator.registry.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("cannot schedule unregistered action kind %q", kind)
	}

	encoded, err := encodeArgs(args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode args for %s: %w", kind, err)
	}

	state := types.ActionStatePendingSchedule
	if c.settings.Approvals {
		state = types.ActionStatePendingApprove
	}
	action := &types.OrchestratorAction{
		ID:        uuid.New().String(),
		NsID:      c.nsID,
		ClusterID: c.clusterID,
		Kind:      kind,
		Args:      encoded,
		State:     state,
		CreatedAt: time.Now(),
		Timeout:   entry.Timeout,
	}
	if err := c.orchestrator.store.PutAction(ctx, action); err != nil {
		return nil, fmt.Errorf("failed to persist action: %w", err)
	}

	c.publishAction(events.EventActionNew, action, "action created")
	return action, nil
}

// persistReport writes the cycle's audit record and emits the report event.
func (c *cycle) persistReport(ctx context.Context, outcome string) error {
	report := &types.OrchestrateReport{
		NsID:              c.nsID,
		ClusterID:         c.clusterID,
		Mode:              c.mode,
		StartTime:         c.start,
		Outcome:           outcome,
		NodesCount:        len(c.view.Nodes),
		ActionsProgressed: c.progressed,
	}
	if err := c.orchestrator.store.PutReport(ctx, report); err != nil {
		return &OperationError{Op: OpInit, Err: fmt.Errorf("failed to persist report: %w", err)}
	}

	c.orchestrator.publish(events.EventReportOrchestrate, c.nsID, c.clusterID,
		"orchestration cycle completed", map[string]string{
			"mode":    c.mode,
			"outcome": outcome,
		})
	return nil
}

// publish emits one event through the configured publisher.
func (o *Orchestrator) publish(eventType events.EventType, nsID, clusterID, message string, metadata map[string]string) {
	o.events.Publish(&events.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		NsID:      nsID,
		ClusterID: clusterID,
		Message:   message,
		Metadata:  metadata,
	})
}
