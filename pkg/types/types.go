package types

import (
	"encoding/json"
	"time"
)

// ClusterSettings is the desired-state record for one managed database cluster.
type ClusterSettings struct {
	NsID      string
	ClusterID string
	// Enabled gates orchestration; disabled clusters are skipped, not retried.
	Enabled bool
	// Approvals requires newly created actions to pass through PendingApprove.
	Approvals bool
	// NodeCount is the number of database nodes the cluster should run.
	NodeCount int
	// Store identifies the database software the cluster runs.
	Store string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClusterDiscovery is the observed membership of a cluster as reported by the
// discovery backend.
type ClusterDiscovery struct {
	NsID      string
	ClusterID string
	// DisplayName is an optional human-friendly cluster name.
	DisplayName string
	// Nodes lists the member addresses discovered for the cluster.
	Nodes     []DiscoveryNode
	UpdatedAt time.Time
}

// DiscoveryNode is one member entry of a ClusterDiscovery.
type DiscoveryNode struct {
	NodeID string
	// MemberAddress is the address agents and peers use to reach the node.
	MemberAddress string
}

// Node is the last known state of one database node, as reported by its agent.
type Node struct {
	NsID      string
	ClusterID string
	NodeID    string
	// Kind identifies the database software running on the node.
	Kind    string
	Version string
	Status  NodeStatus
	// MemberAddress is the address the node is reachable on, empty if unknown.
	MemberAddress string
	LastSeen      time.Time
}

// NodeStatus represents the health of a database node.
type NodeStatus string

const (
	NodeStatusUp       NodeStatus = "up"
	NodeStatusDown     NodeStatus = "down"
	NodeStatusUnknown  NodeStatus = "unknown"
	NodeStatusDraining NodeStatus = "draining"
)

// Shard is the state of one data shard on one node.
type Shard struct {
	NsID      string
	ClusterID string
	NodeID    string
	ShardID   string
	Role      ShardRole
	// CommitOffset is the replication offset reported for the shard, -1 if
	// the datastore does not expose one.
	CommitOffset int64
	// Lag is the replication lag behind the primary, -1 if unknown.
	Lag       int64
	UpdatedAt time.Time
}

// ShardRole is the role a node holds for a shard.
type ShardRole string

const (
	ShardRolePrimary   ShardRole = "primary"
	ShardRoleSecondary ShardRole = "secondary"
	ShardRoleUnknown   ShardRole = "unknown"
)

// StoreExtras carries datastore-specific attributes attached to a cluster that
// the engine stores and surfaces but does not interpret.
type StoreExtras struct {
	NsID      string
	ClusterID string
	// Key namespaces the payload (one record per key per cluster).
	Key       string
	Payload   json.RawMessage
	UpdatedAt time.Time
}

// ActionState is the lifecycle state of an orchestrator action.
type ActionState string

const (
	ActionStatePendingApprove  ActionState = "pending_approve"
	ActionStatePendingSchedule ActionState = "pending_schedule"
	ActionStateRunning         ActionState = "running"
	ActionStateDone            ActionState = "done"
	ActionStateFailed          ActionState = "failed"
	ActionStateCancelled       ActionState = "cancelled"
)

// Finished reports whether the state is terminal.
func (s ActionState) Finished() bool {
	switch s {
	case ActionStateDone, ActionStateFailed, ActionStateCancelled:
		return true
	}
	return false
}

// ScheduleMode controls how actions of a kind may overlap on one cluster.
type ScheduleMode string

const (
	// ScheduleModeExclusive allows at most one exclusive action to be running
	// per cluster at any time.
	ScheduleModeExclusive ScheduleMode = "exclusive"
	// ScheduleModeParallel actions run regardless of what else is in flight.
	ScheduleModeParallel ScheduleMode = "parallel"
)

// OrchestratorAction is an async, resumable unit of control-plane work
// scheduled against a cluster.
type OrchestratorAction struct {
	ID        string
	NsID      string
	ClusterID string
	// Kind selects the handler that progresses the action.
	Kind string
	// Args is the handler-owned invocation payload.
	Args  json.RawMessage
	State ActionState
	// StatePayload is handler-owned progress data carried across cycles.
	StatePayload json.RawMessage
	// StatePayloadError holds the structured error recorded when the action
	// failed, for inspection via API/CLI.
	StatePayloadError json.RawMessage
	CreatedAt         time.Time
	ScheduledAt       time.Time
	FinishedAt        time.Time
	// Timeout bounds how long the action may stay running once scheduled.
	Timeout time.Duration
}

// ConvergeState is the per-cluster grace bookkeeping persisted between cycles:
// step id mapped to the time the step last triggered an action.
type ConvergeState struct {
	NsID      string
	ClusterID string
	Graces    map[string]time.Time
}

// OrchestrateReport is the append-only audit record persisted once per
// orchestration cycle.
type OrchestrateReport struct {
	NsID      string
	ClusterID string
	// Mode records how the cycle was initiated (periodic, manual, ...).
	Mode      string
	StartTime time.Time
	// Outcome summarises how the cycle ended.
	Outcome string
	// NodesCount and ActionsProgressed are cheap aggregates for inspection.
	NodesCount        int
	ActionsProgressed int
}

// Orchestration modes recorded on reports.
const (
	OrchestrateModePeriodic = "periodic"
	OrchestrateModeManual   = "manual"
)
