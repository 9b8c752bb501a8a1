package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/keeldb/keel/pkg/types"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

var (
	// Bucket names
	bucketClusters    = []byte("clusters")
	bucketDiscoveries = []byte("discoveries")
	bucketNodes       = []byte("nodes")
	bucketShards      = []byte("shards")
	bucketExtras      = []byte("store_extras")
	bucketActions     = []byte("actions")
	bucketConverge    = []byte("converge_state")
	bucketReports     = []byte("reports")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "keel.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketClusters,
			bucketDiscoveries,
			bucketNodes,
			bucketShards,
			bucketExtras,
			bucketActions,
			bucketConverge,
			bucketReports,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// clusterKey scopes cluster-singleton records.
func clusterKey(nsID, clusterID string) []byte {
	return []byte(nsID + "/" + clusterID)
}

// scopedKey scopes per-entity records under one cluster.
func scopedKey(nsID, clusterID string, parts ...string) []byte {
	key := nsID + "/" + clusterID
	for _, part := range parts {
		key += "/" + part
	}
	return []byte(key)
}

// clusterPrefix is the iteration prefix for all records of one cluster.
func clusterPrefix(nsID, clusterID string) []byte {
	return []byte(nsID + "/" + clusterID + "/")
}

func (s *BoltStore) put(bucket, key []byte, record interface{}) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put(key, data)
	})
}

func (s *BoltStore) get(bucket, key []byte, record interface{}) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		data := b.Get(key)
		if data == nil {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, bucket, key)
		}
		return json.Unmarshal(data, record)
	})
}

// Cluster settings operations
func (s *BoltStore) PutClusterSettings(ctx context.Context, settings *types.ClusterSettings) error {
	return s.put(bucketClusters, clusterKey(settings.NsID, settings.ClusterID), settings)
}

func (s *BoltStore) GetClusterSettings(ctx context.Context, nsID, clusterID string) (*types.ClusterSettings, error) {
	var settings types.ClusterSettings
	if err := s.get(bucketClusters, clusterKey(nsID, clusterID), &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *BoltStore) ListClusters(ctx context.Context) ([]*types.ClusterSettings, error) {
	var clusters []*types.ClusterSettings
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketClusters)
		return b.ForEach(func(k, v []byte) error {
			var settings types.ClusterSettings
			if err := json.Unmarshal(v, &settings); err != nil {
				return err
			}
			clusters = append(clusters, &settings)
			return nil
		})
	})
	return clusters, err
}

// Discovery operations
func (s *BoltStore) PutDiscovery(ctx context.Context, discovery *types.ClusterDiscovery) error {
	return s.put(bucketDiscoveries, clusterKey(discovery.NsID, discovery.ClusterID), discovery)
}

func (s *BoltStore) GetDiscovery(ctx context.Context, nsID, clusterID string) (*types.ClusterDiscovery, error) {
	var discovery types.ClusterDiscovery
	if err := s.get(bucketDiscoveries, clusterKey(nsID, clusterID), &discovery); err != nil {
		return nil, err
	}
	return &discovery, nil
}

// Node operations
func (s *BoltStore) PutNode(ctx context.Context, node *types.Node) error {
	return s.put(bucketNodes, scopedKey(node.NsID, node.ClusterID, node.NodeID), node)
}

func (s *BoltStore) ListNodes(ctx context.Context, nsID, clusterID string) ([]*types.Node, error) {
	var nodes []*types.Node
	err := s.scanPrefix(bucketNodes, clusterPrefix(nsID, clusterID), func(v []byte) error {
		var node types.Node
		if err := json.Unmarshal(v, &node); err != nil {
			return err
		}
		nodes = append(nodes, &node)
		return nil
	})
	return nodes, err
}

// Shard operations
func (s *BoltStore) PutShard(ctx context.Context, shard *types.Shard) error {
	return s.put(bucketShards, scopedKey(shard.NsID, shard.ClusterID, shard.NodeID, shard.ShardID), shard)
}

func (s *BoltStore) ListShards(ctx context.Context, nsID, clusterID string) ([]*types.Shard, error) {
	var shards []*types.Shard
	err := s.scanPrefix(bucketShards, clusterPrefix(nsID, clusterID), func(v []byte) error {
		var shard types.Shard
		if err := json.Unmarshal(v, &shard); err != nil {
			return err
		}
		shards = append(shards, &shard)
		return nil
	})
	return shards, err
}

// Store extras operations
func (s *BoltStore) PutStoreExtras(ctx context.Context, extras *types.StoreExtras) error {
	return s.put(bucketExtras, scopedKey(extras.NsID, extras.ClusterID, extras.Key), extras)
}

func (s *BoltStore) ListStoreExtras(ctx context.Context, nsID, clusterID string) ([]*types.StoreExtras, error) {
	var extras []*types.StoreExtras
	err := s.scanPrefix(bucketExtras, clusterPrefix(nsID, clusterID), func(v []byte) error {
		var record types.StoreExtras
		if err := json.Unmarshal(v, &record); err != nil {
			return err
		}
		extras = append(extras, &record)
		return nil
	})
	return extras, err
}

// Action operations.
// Actions are keyed by creation time so cursor scans yield FIFO order.
func actionKey(action *types.OrchestratorAction) []byte {
	ts := fmt.Sprintf("%020d", action.CreatedAt.UnixNano())
	return scopedKey(action.NsID, action.ClusterID, ts, action.ID)
}

func (s *BoltStore) PutAction(ctx context.Context, action *types.OrchestratorAction) error {
	return s.put(bucketActions, actionKey(action), action)
}

func (s *BoltStore) GetAction(ctx context.Context, nsID, clusterID, actionID string) (*types.OrchestratorAction, error) {
	var found *types.OrchestratorAction
	err := s.scanPrefix(bucketActions, clusterPrefix(nsID, clusterID), func(v []byte) error {
		var action types.OrchestratorAction
		if err := json.Unmarshal(v, &action); err != nil {
			return err
		}
		if action.ID == actionID {
			found = &action
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: action %s", ErrNotFound, actionID)
	}
	return found, nil
}

func (s *BoltStore) ListActions(ctx context.Context, nsID, clusterID string) ([]*types.OrchestratorAction, error) {
	var actions []*types.OrchestratorAction
	err := s.scanPrefix(bucketActions, clusterPrefix(nsID, clusterID), func(v []byte) error {
		var action types.OrchestratorAction
		if err := json.Unmarshal(v, &action); err != nil {
			return err
		}
		actions = append(actions, &action)
		return nil
	})
	return actions, err
}

func (s *BoltStore) ListUnfinishedActions(ctx context.Context, nsID, clusterID string) ([]*types.OrchestratorAction, error) {
	actions, err := s.ListActions(ctx, nsID, clusterID)
	if err != nil {
		return nil, err
	}

	var unfinished []*types.OrchestratorAction
	for _, action := range actions {
		if !action.State.Finished() {
			unfinished = append(unfinished, action)
		}
	}
	return unfinished, nil
}

// Converge state operations
func (s *BoltStore) GetConvergeState(ctx context.Context, nsID, clusterID string) (*types.ConvergeState, error) {
	var state types.ConvergeState
	if err := s.get(bucketConverge, clusterKey(nsID, clusterID), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *BoltStore) PutConvergeState(ctx context.Context, state *types.ConvergeState) error {
	return s.put(bucketConverge, clusterKey(state.NsID, state.ClusterID), state)
}

// Report operations
func (s *BoltStore) PutReport(ctx context.Context, report *types.OrchestrateReport) error {
	ts := fmt.Sprintf("%020d", report.StartTime.UnixNano())
	return s.put(bucketReports, scopedKey(report.NsID, report.ClusterID, ts), report)
}

func (s *BoltStore) ListReports(ctx context.Context, nsID, clusterID string) ([]*types.OrchestrateReport, error) {
	var reports []*types.OrchestrateReport
	err := s.scanPrefix(bucketReports, clusterPrefix(nsID, clusterID), func(v []byte) error {
		var report types.OrchestrateReport
		if err := json.Unmarshal(v, &report); err != nil {
			return err
		}
		reports = append(reports, &report)
		return nil
	})
	return reports, err
}

// scanPrefix walks all records under a key prefix in key order.
func (s *BoltStore) scanPrefix(bucket, prefix []byte, fn func(v []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := fn(v); err != nil {
				return err
			}
		}
		return nil
	})
}
