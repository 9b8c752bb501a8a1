package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keeldb/keel/pkg/actions"
	"github.com/keeldb/keel/pkg/clients"
	"github.com/keeldb/keel/pkg/events"
	"github.com/keeldb/keel/pkg/storage"
	"github.com/keeldb/keel/pkg/types"
)

// fakeLock is a controllable in-process lock.
type fakeLock struct {
	acquireHeld bool
	acquireErr  error
	checkHeld   bool
	acquired    int
	released    int
}

func (l *fakeLock) Acquire(ctx context.Context) (bool, error) {
	l.acquired++
	return l.acquireHeld, l.acquireErr
}

func (l *fakeLock) Check(ctx context.Context) (bool, error) {
	return l.checkHeld, nil
}

func (l *fakeLock) Release(ctx context.Context) error {
	l.released++
	return nil
}

type fakeLockFactory struct {
	lock *fakeLock
}

func (f *fakeLockFactory) ClusterLock(nsID, clusterID string) Lock {
	return f.lock
}

// recordingPublisher captures every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*events.Event
}

func (p *recordingPublisher) Publish(event *events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) ofType(eventType events.EventType) []*events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []*events.Event
	for _, event := range p.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

// fakePlatform satisfies the cluster action handlers without a network.
type fakePlatform struct {
	provisioned int
}

func (p *fakePlatform) Provision(ctx context.Context, req clients.ProvisionRequest) (*clients.ProvisionResponse, error) {
	p.provisioned++
	return &clients.ProvisionResponse{RequestID: "req-1"}, nil
}

func (p *fakePlatform) Deprovision(ctx context.Context, req clients.DeprovisionRequest) error {
	return nil
}

func (p *fakePlatform) Discover(ctx context.Context, nsID, clusterID string) (*types.ClusterDiscovery, error) {
	return &types.ClusterDiscovery{NsID: nsID, ClusterID: clusterID}, nil
}

// fakeAgent reports every member ready.
type fakeAgent struct{}

func (a *fakeAgent) Info(ctx context.Context, address string) (*clients.AgentInfo, error) {
	return &clients.AgentInfo{Kind: "postgres"}, nil
}

func (a *fakeAgent) Status(ctx context.Context, address string) (*clients.AgentStatus, error) {
	return &clients.AgentStatus{Status: clients.AgentStatusReady}, nil
}

type testEnv struct {
	store    *storage.BoltStore
	registry *actions.Registry
	pub      *recordingPublisher
	lock     *fakeLock
	orch     *Orchestrator
}

// newTestEnv builds an orchestrator on a real store with fake collaborators.
// Passing a non-nil empty steps slice disables convergence steps.
func newTestEnv(t *testing.T, steps []ConvergenceStep) *testEnv {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry := actions.NewRegistry()
	require.NoError(t, actions.RegisterDebug(registry))
	require.NoError(t, actions.RegisterCluster(registry, &fakePlatform{}, &fakeAgent{}))

	env := &testEnv{
		store:    store,
		registry: registry,
		pub:      &recordingPublisher{},
		lock:     &fakeLock{acquireHeld: true, checkHeld: true},
	}
	env.orch = New(Config{
		Store:    store,
		Registry: registry,
		Events:   env.pub,
		Locks:    &fakeLockFactory{lock: env.lock},
		Steps:    steps,
	})
	return env
}

func noSteps() []ConvergenceStep {
	return []ConvergenceStep{}
}

func (e *testEnv) putSettings(t *testing.T, mutate func(*types.ClusterSettings)) {
	t.Helper()
	settings := &types.ClusterSettings{
		NsID:      "prod",
		ClusterID: "orders-db",
		Enabled:   true,
		NodeCount: 1,
		Store:     "postgres",
	}
	if mutate != nil {
		mutate(settings)
	}
	require.NoError(t, e.store.PutClusterSettings(context.Background(), settings))
}

func (e *testEnv) putAction(t *testing.T, action *types.OrchestratorAction) {
	t.Helper()
	action.NsID = "prod"
	action.ClusterID = "orders-db"
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}
	require.NoError(t, e.store.PutAction(context.Background(), action))
}

func (e *testEnv) orchestrate(t *testing.T) {
	t.Helper()
	require.NoError(t, e.orch.Orchestrate(context.Background(), "prod", "orders-db", types.OrchestrateModePeriodic))
}

func (e *testEnv) actionByID(t *testing.T, id string) *types.OrchestratorAction {
	t.Helper()
	action, err := e.store.GetAction(context.Background(), "prod", "orders-db", id)
	require.NoError(t, err)
	return action
}

func (e *testEnv) reports(t *testing.T) []*types.OrchestrateReport {
	t.Helper()
	reports, err := e.store.ListReports(context.Background(), "prod", "orders-db")
	require.NoError(t, err)
	return reports
}

func TestCycleSkipsWhenLockHeld(t *testing.T) {
	env := newTestEnv(t, nil)
	env.putSettings(t, nil)
	env.lock.acquireHeld = false

	env.orchestrate(t)

	// A locked cluster is somebody else's cycle: no writes, no events.
	assert.Empty(t, env.reports(t))
	assert.Empty(t, env.pub.events)
	assert.Equal(t, 0, env.lock.released)
}

func TestCycleSkipsUnregisteredCluster(t *testing.T) {
	env := newTestEnv(t, nil)

	env.orchestrate(t)

	assert.Empty(t, env.reports(t))
	assert.Equal(t, 1, env.lock.released)
}

func TestLockAcquireErrorIsInitError(t *testing.T) {
	env := newTestEnv(t, nil)
	env.putSettings(t, nil)
	env.lock.acquireErr = errors.New("redis down")

	err := env.orch.Orchestrate(context.Background(), "prod", "orders-db", types.OrchestrateModePeriodic)

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, OpInit, initErr.Op)
}

func TestDisabledClusterReportsAndSkips(t *testing.T) {
	env := newTestEnv(t, nil)
	env.putSettings(t, func(s *types.ClusterSettings) { s.Enabled = false })
	env.putAction(t, &types.OrchestratorAction{
		ID: "pending", Kind: actions.KindTestSuccess, State: types.ActionStatePendingSchedule,
	})

	env.orchestrate(t)

	reports := env.reports(t)
	require.Len(t, reports, 1)
	assert.Equal(t, "disabled", reports[0].Outcome)

	// Nothing progressed.
	assert.Equal(t, types.ActionStatePendingSchedule, env.actionByID(t, "pending").State)
	assert.Len(t, env.pub.ofType(events.EventReportOrchestrate), 1)
	assert.Empty(t, env.pub.ofType(events.EventActionUpdated))
}

func TestEmptyClusterWithoutDiscoveryReportsNoTarget(t *testing.T) {
	env := newTestEnv(t, nil) // default steps
	env.putSettings(t, nil)

	env.orchestrate(t)

	// No candidate to elect, yet the cycle completes and leaves its report.
	reports := env.reports(t)
	require.Len(t, reports, 1)
	assert.Contains(t, reports[0].Outcome, "cluster-init")
	assert.Contains(t, reports[0].Outcome, "no candidate")

	list, err := env.store.ListActions(context.Background(), "prod", "orders-db")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestClusterInitScheduledForDiscoveredCluster(t *testing.T) {
	env := newTestEnv(t, nil)
	env.putSettings(t, nil)
	require.NoError(t, env.store.PutDiscovery(context.Background(), &types.ClusterDiscovery{
		NsID: "prod", ClusterID: "orders-db",
		Nodes: []types.DiscoveryNode{
			{NodeID: "n2", MemberAddress: "10.0.0.2:5432"},
			{NodeID: "n1", MemberAddress: "10.0.0.1:5432"},
		},
	}))

	env.orchestrate(t)

	list, err := env.store.ListUnfinishedActions(context.Background(), "prod", "orders-db")
	require.NoError(t, err)
	require.Len(t, list, 1)
	action := list[0]
	assert.Equal(t, actions.KindClusterInit, action.Kind)
	assert.Equal(t, types.ActionStatePendingSchedule, action.State)

	// Deterministic election: lowest node id wins.
	var args map[string]interface{}
	require.NoError(t, json.Unmarshal(action.Args, &args))
	assert.Equal(t, "n1", args["target"])

	// The step's grace window is persisted for the next cycle.
	converge, err := env.store.GetConvergeState(context.Background(), "prod", "orders-db")
	require.NoError(t, err)
	assert.Contains(t, converge.Graces, "cluster-init")

	require.Len(t, env.pub.ofType(events.EventActionNew), 1)

	reports := env.reports(t)
	require.Len(t, reports, 1)
	assert.Equal(t, "success", reports[0].Outcome)
}

func TestApprovalsGateNewActions(t *testing.T) {
	env := newTestEnv(t, nil)
	env.putSettings(t, func(s *types.ClusterSettings) { s.Approvals = true })
	require.NoError(t, env.store.PutDiscovery(context.Background(), &types.ClusterDiscovery{
		NsID: "prod", ClusterID: "orders-db",
		Nodes: []types.DiscoveryNode{{NodeID: "n1", MemberAddress: "10.0.0.1:5432"}},
	}))

	env.orchestrate(t)

	list, err := env.store.ListUnfinishedActions(context.Background(), "prod", "orders-db")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, types.ActionStatePendingApprove, list[0].State)
}

func TestGraceSuppressesRetrigger(t *testing.T) {
	env := newTestEnv(t, nil)
	env.putSettings(t, nil)
	require.NoError(t, env.store.PutDiscovery(context.Background(), &types.ClusterDiscovery{
		NsID: "prod", ClusterID: "orders-db",
		Nodes: []types.DiscoveryNode{{NodeID: "n1", MemberAddress: "10.0.0.1:5432"}},
	}))

	env.orchestrate(t)

	list, err := env.store.ListUnfinishedActions(context.Background(), "prod", "orders-db")
	require.NoError(t, err)
	require.Len(t, list, 1)

	// Force the scheduled init to a terminal state; the grace window alone
	// must still hold the step back on the next cycle.
	failed := list[0]
	failed.State = types.ActionStateFailed
	failed.FinishedAt = time.Now()
	require.NoError(t, env.store.PutAction(context.Background(), failed))

	env.orchestrate(t)

	all, err := env.store.ListActions(context.Background(), "prod", "orders-db")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLoopActionProgressesAcrossCycles(t *testing.T) {
	env := newTestEnv(t, noSteps())
	env.putSettings(t, nil)
	env.putAction(t, &types.OrchestratorAction{
		ID:    "loop",
		Kind:  actions.KindTestLoop,
		Args:  json.RawMessage(`{"target":3}`),
		State: types.ActionStatePendingSchedule,
	})

	// Cycle 1: pending -> running, count 1.
	env.orchestrate(t)
	action := env.actionByID(t, "loop")
	assert.Equal(t, types.ActionStateRunning, action.State)
	assert.JSONEq(t, `{"count":1}`, string(action.StatePayload))
	assert.False(t, action.ScheduledAt.IsZero())
	require.Len(t, env.pub.ofType(events.EventActionUpdated), 1)
	env.pub.reset()

	// Cycle 2: running -> running, count 2, still exactly one event.
	env.orchestrate(t)
	action = env.actionByID(t, "loop")
	assert.Equal(t, types.ActionStateRunning, action.State)
	assert.JSONEq(t, `{"count":2}`, string(action.StatePayload))
	require.Len(t, env.pub.ofType(events.EventActionUpdated), 1)
	assert.Empty(t, env.pub.ofType(events.EventActionSucceeded))
	env.pub.reset()

	// Cycle 3: target reached.
	env.orchestrate(t)
	action = env.actionByID(t, "loop")
	assert.Equal(t, types.ActionStateDone, action.State)
	assert.JSONEq(t, `{"count":3}`, string(action.StatePayload))
	assert.False(t, action.FinishedAt.IsZero())
	require.Len(t, env.pub.ofType(events.EventActionSucceeded), 1)
	assert.Empty(t, env.pub.ofType(events.EventActionUpdated))
	env.pub.reset()

	// Cycle 4: finished actions are invisible to the engine.
	env.orchestrate(t)
	assert.Empty(t, env.pub.ofType(events.EventActionUpdated))
	assert.Empty(t, env.pub.ofType(events.EventActionSucceeded))

	reports := env.reports(t)
	require.Len(t, reports, 4)
	for _, report := range reports {
		assert.Equal(t, "success", report.Outcome)
	}
}

func TestUnknownKindFailsAction(t *testing.T) {
	env := newTestEnv(t, noSteps())
	env.putSettings(t, nil)
	env.putAction(t, &types.OrchestratorAction{
		ID: "mystery", Kind: "does.not.exist", State: types.ActionStatePendingSchedule,
	})

	env.orchestrate(t)

	action := env.actionByID(t, "mystery")
	assert.Equal(t, types.ActionStateFailed, action.State)
	assert.False(t, action.FinishedAt.IsZero())

	var payload actions.ErrorPayload
	require.NoError(t, json.Unmarshal(action.StatePayloadError, &payload))
	assert.Equal(t, actions.ErrorKindUnknownKind, payload.Kind)

	require.Len(t, env.pub.ofType(events.EventActionFailed), 1)
}

func TestHandlerErrorFailsRunningAction(t *testing.T) {
	env := newTestEnv(t, noSteps())
	env.putSettings(t, nil)
	require.NoError(t, env.registry.Register(actions.Entry{
		Kind: "always.errors",
		Handler: actions.HandlerFunc(func(ctx context.Context, inv actions.Invocation) (actions.ProgressChanges, error) {
			return actions.ProgressChanges{}, errors.New("boom")
		}),
		Mode: types.ScheduleModeParallel,
	}))
	env.putAction(t, &types.OrchestratorAction{
		ID: "doomed", Kind: "always.errors",
		State: types.ActionStateRunning, ScheduledAt: time.Now(),
	})

	env.orchestrate(t)

	action := env.actionByID(t, "doomed")
	assert.Equal(t, types.ActionStateFailed, action.State)

	var payload actions.ErrorPayload
	require.NoError(t, json.Unmarshal(action.StatePayloadError, &payload))
	assert.Equal(t, actions.ErrorKindHandler, payload.Kind)
	assert.Contains(t, payload.Message, "boom")
}

func TestTimeoutForcesFailureWithoutHandler(t *testing.T) {
	env := newTestEnv(t, noSteps())
	env.putSettings(t, nil)

	invoked := false
	require.NoError(t, env.registry.Register(actions.Entry{
		Kind: "slow.kind",
		Handler: actions.HandlerFunc(func(ctx context.Context, inv actions.Invocation) (actions.ProgressChanges, error) {
			invoked = true
			return actions.ProgressChanges{State: types.ActionStateRunning}, nil
		}),
		Mode:    types.ScheduleModeParallel,
		Timeout: time.Hour,
	}))
	env.putAction(t, &types.OrchestratorAction{
		ID: "stale", Kind: "slow.kind",
		State:       types.ActionStateRunning,
		ScheduledAt: time.Now().Add(-2 * time.Hour),
		Timeout:     time.Hour,
	})

	env.orchestrate(t)

	assert.False(t, invoked, "timed out action must not reach its handler")

	action := env.actionByID(t, "stale")
	assert.Equal(t, types.ActionStateFailed, action.State)

	var payload actions.ErrorPayload
	require.NoError(t, json.Unmarshal(action.StatePayloadError, &payload))
	assert.Equal(t, actions.ErrorKindTimedOut, payload.Kind)
	require.Len(t, env.pub.ofType(events.EventActionFailed), 1)
}

// registerExclusive adds an exclusive kind whose handler stays running.
func registerExclusive(t *testing.T, env *testEnv, kind string) {
	t.Helper()
	require.NoError(t, env.registry.Register(actions.Entry{
		Kind: kind,
		Handler: actions.HandlerFunc(func(ctx context.Context, inv actions.Invocation) (actions.ProgressChanges, error) {
			return actions.ProgressChanges{State: types.ActionStateRunning}, nil
		}),
		Mode:    types.ScheduleModeExclusive,
		Timeout: time.Hour,
	}))
}

func TestExclusiveActionsNeverOverlap(t *testing.T) {
	env := newTestEnv(t, noSteps())
	env.putSettings(t, nil)
	registerExclusive(t, env, "excl.a")
	registerExclusive(t, env, "excl.b")

	base := time.Now()
	env.putAction(t, &types.OrchestratorAction{
		ID: "first", Kind: "excl.a", State: types.ActionStatePendingSchedule, CreatedAt: base,
	})
	env.putAction(t, &types.OrchestratorAction{
		ID: "second", Kind: "excl.b", State: types.ActionStatePendingSchedule, CreatedAt: base.Add(time.Second),
	})
	env.putAction(t, &types.OrchestratorAction{
		ID: "parallel", Kind: actions.KindTestSuccess, State: types.ActionStatePendingSchedule, CreatedAt: base.Add(2 * time.Second),
	})

	env.orchestrate(t)

	// FIFO winner runs; the second exclusive waits; parallel is unaffected.
	assert.Equal(t, types.ActionStateRunning, env.actionByID(t, "first").State)
	assert.Equal(t, types.ActionStatePendingSchedule, env.actionByID(t, "second").State)
	assert.Equal(t, types.ActionStateDone, env.actionByID(t, "parallel").State)
}

func TestRunningExclusiveBlocksPendingExclusive(t *testing.T) {
	env := newTestEnv(t, noSteps())
	env.putSettings(t, nil)
	registerExclusive(t, env, "excl.a")
	registerExclusive(t, env, "excl.b")

	base := time.Now()
	env.putAction(t, &types.OrchestratorAction{
		ID: "running", Kind: "excl.a", State: types.ActionStateRunning,
		ScheduledAt: base, CreatedAt: base,
	})
	env.putAction(t, &types.OrchestratorAction{
		ID: "waiting", Kind: "excl.b", State: types.ActionStatePendingSchedule,
		CreatedAt: base.Add(time.Second),
	})

	env.orchestrate(t)

	assert.Equal(t, types.ActionStateRunning, env.actionByID(t, "running").State)
	assert.Equal(t, types.ActionStatePendingSchedule, env.actionByID(t, "waiting").State)
}

func TestPendingApproveIsLeftAlone(t *testing.T) {
	env := newTestEnv(t, noSteps())
	env.putSettings(t, nil)
	env.putAction(t, &types.OrchestratorAction{
		ID: "held", Kind: actions.KindTestSuccess, State: types.ActionStatePendingApprove,
	})

	env.orchestrate(t)

	assert.Equal(t, types.ActionStatePendingApprove, env.actionByID(t, "held").State)
	assert.Empty(t, env.pub.ofType(events.EventActionUpdated))
	assert.Empty(t, env.pub.ofType(events.EventActionSucceeded))
}

func TestLockLostAbortsCycle(t *testing.T) {
	env := newTestEnv(t, noSteps())
	env.putSettings(t, nil)
	env.lock.checkHeld = false
	env.putAction(t, &types.OrchestratorAction{
		ID: "untouched", Kind: actions.KindTestSuccess, State: types.ActionStatePendingSchedule,
	})

	err := env.orch.Orchestrate(context.Background(), "prod", "orders-db", types.OrchestrateModePeriodic)
	require.ErrorIs(t, err, ErrLockLost)

	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, OpLockLost, opErr.Op)

	// Aborted before progress: no report, action untouched.
	assert.Empty(t, env.reports(t))
	assert.Equal(t, types.ActionStatePendingSchedule, env.actionByID(t, "untouched").State)
}

func TestIdempotentCycleOnConvergedCluster(t *testing.T) {
	env := newTestEnv(t, nil)
	env.putSettings(t, nil)
	ctx := context.Background()
	require.NoError(t, env.store.PutDiscovery(ctx, &types.ClusterDiscovery{
		NsID: "prod", ClusterID: "orders-db",
		Nodes: []types.DiscoveryNode{{NodeID: "n1", MemberAddress: "10.0.0.1:5432"}},
	}))
	require.NoError(t, env.store.PutNode(ctx, &types.Node{
		NsID: "prod", ClusterID: "orders-db", NodeID: "n1", Status: types.NodeStatusUp,
	}))

	env.orchestrate(t)
	env.orchestrate(t)

	// A converged cluster yields nothing but reports.
	list, err := env.store.ListActions(ctx, "prod", "orders-db")
	require.NoError(t, err)
	assert.Empty(t, list)

	reports := env.reports(t)
	require.Len(t, reports, 2)
	for _, report := range reports {
		assert.Equal(t, "success", report.Outcome)
		assert.Equal(t, 1, report.NodesCount)
		assert.Equal(t, 0, report.ActionsProgressed)
	}
}
