package view

import (
	"context"
	"errors"
	"fmt"

	"github.com/keeldb/keel/pkg/storage"
	"github.com/keeldb/keel/pkg/types"
)

// Load reads every record of one cluster from the store and assembles a
// fresh ClusterView. A cluster with no discovery yet (first run) yields an
// empty view rather than an error.
func Load(ctx context.Context, store storage.Store, settings *types.ClusterSettings) (*ClusterView, error) {
	discovery, err := store.GetDiscovery(ctx, settings.NsID, settings.ClusterID)
	if errors.Is(err, storage.ErrNotFound) {
		discovery = &types.ClusterDiscovery{
			NsID:      settings.NsID,
			ClusterID: settings.ClusterID,
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load discovery: %w", err)
	}

	builder, err := NewBuilder(settings, discovery)
	if err != nil {
		return nil, err
	}

	nodes, err := store.ListNodes(ctx, settings.NsID, settings.ClusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	for _, node := range nodes {
		if err := builder.NodeInfo(node); err != nil {
			return nil, err
		}
	}

	shards, err := store.ListShards(ctx, settings.NsID, settings.ClusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shards: %w", err)
	}
	for _, shard := range shards {
		if err := builder.Shard(shard); err != nil {
			return nil, err
		}
	}

	extras, err := store.ListStoreExtras(ctx, settings.NsID, settings.ClusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list store extras: %w", err)
	}
	for _, record := range extras {
		if err := builder.StoreExtras(record); err != nil {
			return nil, err
		}
	}

	actions, err := store.ListUnfinishedActions(ctx, settings.NsID, settings.ClusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished actions: %w", err)
	}
	for _, action := range actions {
		if err := builder.OAction(action); err != nil {
			return nil, err
		}
	}

	return builder.Build(), nil
}
