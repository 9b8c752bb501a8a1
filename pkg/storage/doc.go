/*
Package storage provides persistent state storage for the keel control plane.

The Store interface abstracts all reads and writes of cluster records:
settings, discovery, nodes, shards, store extras, orchestrator actions,
converge state and orchestrate reports. Every query is scoped by the
(nsID, clusterID) pair so one cluster's records never leak into another's
view.

BoltStore is the embedded implementation built on BoltDB (bbolt). Records are
stored as JSON under composite keys:

	nodes:    ns/cluster/node
	shards:   ns/cluster/node/shard
	actions:  ns/cluster/<created-unix-nano>/<action-id>
	reports:  ns/cluster/<start-unix-nano>

Keying actions by creation time makes cursor scans return them in FIFO order,
which the orchestration engine relies on when progressing actions.

Writes are upserts; there is no separate update path. Get operations return
an error wrapping ErrNotFound when the record does not exist, so callers can
distinguish "missing" from storage failures with errors.Is.
*/
package storage
