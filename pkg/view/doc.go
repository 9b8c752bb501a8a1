/*
Package view builds consistent in-memory snapshots of one cluster's state.

A ClusterView aggregates a cluster's discovery record, node and shard
records, store extras, and the list of unfinished orchestrator actions. The
Builder validates the (nsID, clusterID) identity of every record it merges
and fails with an error wrapping ErrClusterViewCorrupt on any mismatch, so a
corrupt store can never produce a partially mixed view.

Shards are indexed twice: by (node, shard) for O(1) lookup of what one node
reports, and by shard id for enumerating every node's record of one shard.
The second index backs aggregate statistics such as primary counts.

Views are built fresh at the start of each orchestration cycle via Load and
owned exclusively by that cycle. They are never cached, shared, or mutated
after Build.
*/
package view
