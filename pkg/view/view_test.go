package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keeldb/keel/pkg/types"
)

func testSettings() *types.ClusterSettings {
	return &types.ClusterSettings{NsID: "prod", ClusterID: "orders-db", Enabled: true, NodeCount: 3}
}

func testDiscovery() *types.ClusterDiscovery {
	return &types.ClusterDiscovery{NsID: "prod", ClusterID: "orders-db"}
}

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	builder, err := NewBuilder(testSettings(), testDiscovery())
	require.NoError(t, err)
	return builder
}

func TestNewBuilderRejectsMismatchedDiscovery(t *testing.T) {
	tests := []struct {
		name      string
		discovery *types.ClusterDiscovery
		wantErr   error
	}{
		{
			name:      "namespace clash",
			discovery: &types.ClusterDiscovery{NsID: "staging", ClusterID: "orders-db"},
			wantErr:   ErrNamespaceClash,
		},
		{
			name:      "cluster id clash",
			discovery: &types.ClusterDiscovery{NsID: "prod", ClusterID: "other"},
			wantErr:   ErrClusterIDClash,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(testSettings(), tt.discovery)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrClusterViewCorrupt)
		})
	}
}

func TestBuilderRejectsForeignRecords(t *testing.T) {
	builder := newTestBuilder(t)

	err := builder.NodeInfo(&types.Node{NsID: "staging", ClusterID: "orders-db", NodeID: "n1"})
	assert.ErrorIs(t, err, ErrNamespaceClash)

	err = builder.Shard(&types.Shard{NsID: "prod", ClusterID: "other", NodeID: "n1", ShardID: "s0"})
	assert.ErrorIs(t, err, ErrClusterIDClash)

	err = builder.StoreExtras(&types.StoreExtras{NsID: "staging", ClusterID: "orders-db", Key: "k"})
	assert.ErrorIs(t, err, ErrClusterViewCorrupt)

	err = builder.OAction(&types.OrchestratorAction{NsID: "prod", ClusterID: "other", ID: "a1"})
	assert.ErrorIs(t, err, ErrClusterViewCorrupt)
}

func TestBuilderConsumedOnBuild(t *testing.T) {
	builder := newTestBuilder(t)
	view := builder.Build()
	require.NotNil(t, view)

	err := builder.NodeInfo(&types.Node{NsID: "prod", ClusterID: "orders-db", NodeID: "n1"})
	assert.Error(t, err)
}

func TestShardIndices(t *testing.T) {
	builder := newTestBuilder(t)

	require.NoError(t, builder.Shard(&types.Shard{
		NsID: "prod", ClusterID: "orders-db", NodeID: "n1", ShardID: "s0",
		Role: types.ShardRolePrimary,
	}))
	require.NoError(t, builder.Shard(&types.Shard{
		NsID: "prod", ClusterID: "orders-db", NodeID: "n2", ShardID: "s0",
		Role: types.ShardRoleSecondary,
	}))
	require.NoError(t, builder.Shard(&types.Shard{
		NsID: "prod", ClusterID: "orders-db", NodeID: "n1", ShardID: "s1",
		Role: types.ShardRolePrimary,
	}))

	view := builder.Build()

	assert.ElementsMatch(t, []string{"s0", "s1"}, view.ShardIDs())
	assert.Len(t, view.ShardsByID("s0"), 2)
	assert.Len(t, view.ShardsByID("s1"), 1)
	assert.Equal(t, 1, view.PrimaryCount("s0"))
	assert.Equal(t, 0, view.PrimaryCount("missing"))

	shard := view.ShardOnNode("n2", "s0")
	require.NotNil(t, shard)
	assert.Equal(t, types.ShardRoleSecondary, shard.Role)
	assert.Nil(t, view.ShardOnNode("n3", "s0"))
}

func TestShardDuplicatePairReplacesInBothIndices(t *testing.T) {
	builder := newTestBuilder(t)

	require.NoError(t, builder.Shard(&types.Shard{
		NsID: "prod", ClusterID: "orders-db", NodeID: "n1", ShardID: "s0",
		Role: types.ShardRoleSecondary, CommitOffset: 10,
	}))
	require.NoError(t, builder.Shard(&types.Shard{
		NsID: "prod", ClusterID: "orders-db", NodeID: "n1", ShardID: "s0",
		Role: types.ShardRolePrimary, CommitOffset: 20,
	}))

	view := builder.Build()

	// Replacement, not accumulation.
	require.Len(t, view.ShardsByID("s0"), 1)
	assert.Equal(t, int64(20), view.ShardsByID("s0")[0].CommitOffset)
	assert.Equal(t, types.ShardRolePrimary, view.ShardOnNode("n1", "s0").Role)
	assert.Equal(t, 1, view.PrimaryCount("s0"))
}

func TestDownNodeCount(t *testing.T) {
	builder := newTestBuilder(t)

	statuses := map[string]types.NodeStatus{
		"n1": types.NodeStatusUp,
		"n2": types.NodeStatusDown,
		"n3": types.NodeStatusDown,
		"n4": types.NodeStatusUnknown,
	}
	for id, status := range statuses {
		require.NoError(t, builder.NodeInfo(&types.Node{
			NsID: "prod", ClusterID: "orders-db", NodeID: id, Status: status,
		}))
	}

	assert.Equal(t, 2, builder.Build().DownNodeCount())
}

func TestUnfinishedOfKindPreservesOrder(t *testing.T) {
	builder := newTestBuilder(t)

	for _, id := range []string{"a", "b", "c"} {
		kind := "cluster.init"
		if id == "b" {
			kind = "test.loop"
		}
		require.NoError(t, builder.OAction(&types.OrchestratorAction{
			NsID: "prod", ClusterID: "orders-db", ID: id, Kind: kind,
			State: types.ActionStatePendingSchedule,
		}))
	}

	view := builder.Build()

	matched := view.UnfinishedOfKind("cluster.init")
	require.Len(t, matched, 2)
	assert.Equal(t, "a", matched[0].ID)
	assert.Equal(t, "c", matched[1].ID)
	assert.Empty(t, view.UnfinishedOfKind("missing"))
}
