package view

import (
	"errors"
	"fmt"

	"github.com/keeldb/keel/pkg/types"
)

// ErrClusterViewCorrupt is the root of all identity-clash errors: a record
// fed into a builder did not belong to the builder's cluster. Never retried.
var ErrClusterViewCorrupt = errors.New("cluster view corrupt")

var (
	// ErrNamespaceClash reports a record with a mismatched namespace id.
	ErrNamespaceClash = fmt.Errorf("%w: namespace id clash", ErrClusterViewCorrupt)
	// ErrClusterIDClash reports a record with a mismatched cluster id.
	ErrClusterIDClash = fmt.Errorf("%w: cluster id clash", ErrClusterViewCorrupt)
)

// nodeShard indexes one shard record by the pair that owns it.
type nodeShard struct {
	nodeID  string
	shardID string
}

// ClusterView is an immutable snapshot of everything known about one cluster.
// It is rebuilt fresh at the start of every orchestration cycle and owned
// exclusively by that cycle; never cache or share a view.
type ClusterView struct {
	NsID      string
	ClusterID string
	Settings  *types.ClusterSettings
	Discovery *types.ClusterDiscovery

	// Nodes is keyed by node id.
	Nodes map[string]*types.Node
	// StoreExtras is keyed by record key.
	StoreExtras map[string]*types.StoreExtras
	// Actions are the unfinished orchestrator actions in FIFO creation order.
	Actions []*types.OrchestratorAction

	shardsByNode map[nodeShard]*types.Shard
	shardsByID   map[string][]*types.Shard
}

// ShardOnNode returns the shard record reported by a node, or nil.
// When a pair is reported more than once the most recently added record wins.
func (v *ClusterView) ShardOnNode(nodeID, shardID string) *types.Shard {
	return v.shardsByNode[nodeShard{nodeID: nodeID, shardID: shardID}]
}

// ShardsByID returns every node's record for one shard id.
func (v *ClusterView) ShardsByID(shardID string) []*types.Shard {
	return v.shardsByID[shardID]
}

// ShardIDs enumerates the distinct shard ids seen across all nodes.
func (v *ClusterView) ShardIDs() []string {
	ids := make([]string, 0, len(v.shardsByID))
	for id := range v.shardsByID {
		ids = append(ids, id)
	}
	return ids
}

// PrimaryCount returns how many nodes report themselves primary for a shard.
func (v *ClusterView) PrimaryCount(shardID string) int {
	count := 0
	for _, shard := range v.shardsByID[shardID] {
		if shard.Role == types.ShardRolePrimary {
			count++
		}
	}
	return count
}

// DownNodeCount returns how many nodes are reported down.
func (v *ClusterView) DownNodeCount() int {
	count := 0
	for _, node := range v.Nodes {
		if node.Status == types.NodeStatusDown {
			count++
		}
	}
	return count
}

// UnfinishedOfKind returns the unfinished actions of one kind, FIFO order.
func (v *ClusterView) UnfinishedOfKind(kind string) []*types.OrchestratorAction {
	var matched []*types.OrchestratorAction
	for _, action := range v.Actions {
		if action.Kind == kind {
			matched = append(matched, action)
		}
	}
	return matched
}

// Builder assembles a ClusterView from individual records, validating that
// every record belongs to the expected cluster. Builders are pure and
// synchronous; Load performs the store reads and feeds records in.
type Builder struct {
	view *ClusterView
}

// NewBuilder creates a builder for the cluster described by settings.
// The discovery record must belong to the same cluster.
func NewBuilder(settings *types.ClusterSettings, discovery *types.ClusterDiscovery) (*Builder, error) {
	if discovery.NsID != settings.NsID {
		return nil, fmt.Errorf("%w: expected %q, discovery has %q",
			ErrNamespaceClash, settings.NsID, discovery.NsID)
	}
	if discovery.ClusterID != settings.ClusterID {
		return nil, fmt.Errorf("%w: expected %q, discovery has %q",
			ErrClusterIDClash, settings.ClusterID, discovery.ClusterID)
	}

	return &Builder{
		view: &ClusterView{
			NsID:         settings.NsID,
			ClusterID:    settings.ClusterID,
			Settings:     settings,
			Discovery:    discovery,
			Nodes:        make(map[string]*types.Node),
			StoreExtras:  make(map[string]*types.StoreExtras),
			shardsByNode: make(map[nodeShard]*types.Shard),
			shardsByID:   make(map[string][]*types.Shard),
		},
	}, nil
}

// check validates a record's identity against the builder's cluster.
func (b *Builder) check(nsID, clusterID string) error {
	if b.view == nil {
		return errors.New("builder already consumed")
	}
	if nsID != b.view.NsID {
		return fmt.Errorf("%w: expected %q, record has %q", ErrNamespaceClash, b.view.NsID, nsID)
	}
	if clusterID != b.view.ClusterID {
		return fmt.Errorf("%w: expected %q, record has %q", ErrClusterIDClash, b.view.ClusterID, clusterID)
	}
	return nil
}

// NodeInfo merges a node record into the view.
func (b *Builder) NodeInfo(node *types.Node) error {
	if err := b.check(node.NsID, node.ClusterID); err != nil {
		return err
	}
	b.view.Nodes[node.NodeID] = node
	return nil
}

// Shard merges a shard record into both shard indices. A record for an
// already-seen (node, shard) pair replaces the previous one.
func (b *Builder) Shard(shard *types.Shard) error {
	if err := b.check(shard.NsID, shard.ClusterID); err != nil {
		return err
	}

	key := nodeShard{nodeID: shard.NodeID, shardID: shard.ShardID}
	if previous, ok := b.view.shardsByNode[key]; ok {
		records := b.view.shardsByID[shard.ShardID]
		for i, record := range records {
			if record == previous {
				records[i] = shard
				break
			}
		}
	} else {
		b.view.shardsByID[shard.ShardID] = append(b.view.shardsByID[shard.ShardID], shard)
	}
	b.view.shardsByNode[key] = shard
	return nil
}

// StoreExtras merges a store-extras record into the view.
func (b *Builder) StoreExtras(extras *types.StoreExtras) error {
	if err := b.check(extras.NsID, extras.ClusterID); err != nil {
		return err
	}
	b.view.StoreExtras[extras.Key] = extras
	return nil
}

// OAction appends an unfinished orchestrator action. Callers must feed
// actions in creation order; the view preserves it.
func (b *Builder) OAction(action *types.OrchestratorAction) error {
	if err := b.check(action.NsID, action.ClusterID); err != nil {
		return err
	}
	b.view.Actions = append(b.view.Actions, action)
	return nil
}

// Build consumes the builder and returns the immutable view.
// The builder cannot be reused afterwards.
func (b *Builder) Build() *ClusterView {
	view := b.view
	b.view = nil
	return view
}
