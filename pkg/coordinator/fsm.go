package coordinator

import (
	"io"

	"github.com/hashicorp/raft"
)

// electionFSM is the no-op state machine behind the election quorum. Keel
// replicates no state through raft; the quorum exists only to elect a
// primary.
type electionFSM struct{}

// Apply implements raft.FSM. The election log carries no commands.
func (f *electionFSM) Apply(log *raft.Log) interface{} {
	return nil
}

// Snapshot implements raft.FSM.
func (f *electionFSM) Snapshot() (raft.FSMSnapshot, error) {
	return &electionSnapshot{}, nil
}

// Restore implements raft.FSM.
func (f *electionFSM) Restore(rc io.ReadCloser) error {
	return rc.Close()
}

type electionSnapshot struct{}

// Persist implements raft.FSMSnapshot.
func (s *electionSnapshot) Persist(sink raft.SnapshotSink) error {
	return sink.Close()
}

// Release implements raft.FSMSnapshot.
func (s *electionSnapshot) Release() {}
