package coordinator

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// Election elects one primary among the keel control-plane nodes. The
// primary runs the periodic scheduler that enqueues orchestration tasks;
// secondaries only consume from the task queue.
type Election struct {
	nodeID   string
	bindAddr string
	dataDir  string
	raft     *raft.Raft
}

// ElectionConfig holds election configuration.
type ElectionConfig struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// NewElection creates an election participant; call Bootstrap or Join to
// enter the quorum.
func NewElection(cfg ElectionConfig) (*Election, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create election data directory: %w", err)
	}
	e := &Election{
		nodeID:   cfg.NodeID,
		bindAddr: cfg.BindAddr,
		dataDir:  cfg.DataDir,
	}
	if err := e.setup(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Election) setup() error {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(e.nodeID)

	// Tuned for LAN latencies so a dead primary is replaced within seconds
	// rather than the WAN-conservative defaults.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", e.bindAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(e.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(e.dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(e.dataDir, "election-log.db"))
	if err != nil {
		return fmt.Errorf("failed to create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(e.dataDir, "election-stable.db"))
	if err != nil {
		return fmt.Errorf("failed to create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, &electionFSM{}, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("failed to create raft: %w", err)
	}
	e.raft = r
	return nil
}

// Bootstrap forms a new single-node quorum with this node as primary.
func (e *Election) Bootstrap() error {
	configuration := raft.Configuration{
		Servers: []raft.Server{
			{
				ID:      raft.ServerID(e.nodeID),
				Address: raft.ServerAddress(e.bindAddr),
			},
		},
	}
	future := e.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to bootstrap election quorum: %w", err)
	}
	return nil
}

// AddVoter adds another control-plane node to the quorum. Only the primary
// may do this.
func (e *Election) AddVoter(nodeID, address string) error {
	if !e.IsPrimary() {
		return fmt.Errorf("not the primary, current primary: %s", e.PrimaryAddr())
	}
	future := e.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to add voter: %w", err)
	}
	return nil
}

// IsPrimary returns true while this node holds the primary role.
func (e *Election) IsPrimary() bool {
	return e.raft.State() == raft.Leader
}

// PrimaryAddr returns the address of the current primary.
func (e *Election) PrimaryAddr() string {
	return string(e.raft.Leader())
}

// PrimaryCh signals primary role changes: true on gain, false on loss.
func (e *Election) PrimaryCh() <-chan bool {
	return e.raft.LeaderCh()
}

// StepDown transfers the primary role to another quorum member.
func (e *Election) StepDown() error {
	future := e.raft.LeadershipTransfer()
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to step down: %w", err)
	}
	return nil
}

// Shutdown leaves the quorum.
func (e *Election) Shutdown() error {
	future := e.raft.Shutdown()
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to shutdown election: %w", err)
	}
	return nil
}
