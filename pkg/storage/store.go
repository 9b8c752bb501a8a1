package storage

import (
	"context"

	"github.com/keeldb/keel/pkg/types"
)

// Store defines the interface for control-plane state storage.
// All queries are scoped by (nsID, clusterID).
type Store interface {
	// Cluster settings
	PutClusterSettings(ctx context.Context, settings *types.ClusterSettings) error
	GetClusterSettings(ctx context.Context, nsID, clusterID string) (*types.ClusterSettings, error)
	ListClusters(ctx context.Context) ([]*types.ClusterSettings, error)

	// Discovery
	PutDiscovery(ctx context.Context, discovery *types.ClusterDiscovery) error
	GetDiscovery(ctx context.Context, nsID, clusterID string) (*types.ClusterDiscovery, error)

	// Nodes
	PutNode(ctx context.Context, node *types.Node) error
	ListNodes(ctx context.Context, nsID, clusterID string) ([]*types.Node, error)

	// Shards
	PutShard(ctx context.Context, shard *types.Shard) error
	ListShards(ctx context.Context, nsID, clusterID string) ([]*types.Shard, error)

	// Store extras
	PutStoreExtras(ctx context.Context, extras *types.StoreExtras) error
	ListStoreExtras(ctx context.Context, nsID, clusterID string) ([]*types.StoreExtras, error)

	// Orchestrator actions
	PutAction(ctx context.Context, action *types.OrchestratorAction) error
	GetAction(ctx context.Context, nsID, clusterID, actionID string) (*types.OrchestratorAction, error)
	ListActions(ctx context.Context, nsID, clusterID string) ([]*types.OrchestratorAction, error)
	// ListUnfinishedActions returns non-terminal actions in creation (FIFO) order.
	ListUnfinishedActions(ctx context.Context, nsID, clusterID string) ([]*types.OrchestratorAction, error)

	// Converge state
	GetConvergeState(ctx context.Context, nsID, clusterID string) (*types.ConvergeState, error)
	PutConvergeState(ctx context.Context, state *types.ConvergeState) error

	// Orchestrate reports
	PutReport(ctx context.Context, report *types.OrchestrateReport) error
	ListReports(ctx context.Context, nsID, clusterID string) ([]*types.OrchestrateReport, error)

	// Utility
	Close() error
}
