/*
Package coordinator provides distributed coordination for keel processes
running on different hosts: per-cluster non-blocking locks and a primary
election.

Locks are backed by a shared Redis. Acquire is SET NX with a TTL, so a lock
held by a crashed process expires on its own; Release and Check are
owner-verified so a lock lost to expiry and re-acquired elsewhere is never
released or mistaken as held by the old owner. Acquire never waits: it
returns false immediately when the lock is held, which the orchestration
engine treats as an expected outcome.

The election is a hashicorp/raft quorum with a no-op state machine: no data
is replicated, the quorum exists purely to elect the primary that runs the
periodic orchestration scheduler. Secondaries take over within seconds of a
primary death.
*/
package coordinator
