/*
Package types contains the core data structures shared across keel.

These records describe one managed database cluster from two angles: the
desired state operators declare (ClusterSettings) and the observed state
reported by discovery and node agents (ClusterDiscovery, Node, Shard,
StoreExtras). Orchestration work scheduled against a cluster is modelled as
OrchestratorAction records moving through a fixed lifecycle:

	PendingApprove -> PendingSchedule -> Running -> Done | Failed | Cancelled

PendingApprove is skipped when the cluster does not require approvals.
Terminal states are immutable once FinishedAt is set.

All records carry the (NsID, ClusterID) pair that scopes them; the engine
refuses to mix records from different clusters into one view.
*/
package types
