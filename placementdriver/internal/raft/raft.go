// This package wraps the placement driver's own Raft group: a single
// dragonboat shard (shard ID 1) whose state machine is the fsm.FSM that
// holds the worker roster and shard map. It mirrors the NodeHost setup
// worker/cmd/worker uses for its per-shard groups; there is exactly one
// group here rather than one per vector-storage shard.
package raft

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/config"
	sm "github.com/lni/dragonboat/v4/statemachine"

	"github.com/vectron-cce/cce/placementdriver/internal/fsm"
)

// pdShardID is the dragonboat shard ID the placement driver's own Raft
// group runs under. There is only ever one: the FSM is a singleton.
const pdShardID uint64 = 1

// Config describes how to start or join the placement driver's Raft group.
type Config struct {
	NodeID   uint64
	RaftAddr string
	DataDir  string
	// Join is true when this node is joining an already-bootstrapped group
	// rather than forming a brand new one.
	Join bool
	// InitialMembers maps replica ID to Raft address for every voter in a
	// freshly bootstrapped group. Empty (with Join true) when joining.
	InitialMembers map[uint64]string
}

// Node wraps a dragonboat NodeHost running the placement driver's single
// Raft group, proposing commands against fsm.FSM and serving linearizable
// reads for it.
type Node struct {
	nh        *dragonboat.NodeHost
	replicaID uint64
}

// NewNode starts (or rejoins) the placement driver's Raft group.
func NewNode(cfg *Config, f *fsm.FSM) (*Node, error) {
	nhDir := filepath.Join(cfg.DataDir, fmt.Sprintf("pd-node-%d", cfg.NodeID))
	nhc := config.NodeHostConfig{
		DeploymentID:   1,
		NodeHostDir:    nhDir,
		RaftAddress:    cfg.RaftAddr,
		ListenAddress:  cfg.RaftAddr,
		RTTMillisecond: 200,
	}
	nh, err := dragonboat.NewNodeHost(nhc)
	if err != nil {
		return nil, fmt.Errorf("new nodehost: %w", err)
	}

	rc := config.Config{
		ReplicaID:          cfg.NodeID,
		ShardID:            pdShardID,
		ElectionRTT:        10,
		HeartbeatRTT:       1,
		CheckQuorum:        true,
		SnapshotEntries:    1000,
		CompactionOverhead: 500,
	}

	factory := func(shardID uint64, replicaID uint64) sm.IStateMachine {
		return f
	}

	if err := nh.StartReplica(cfg.InitialMembers, cfg.Join, factory, rc); err != nil {
		return nil, fmt.Errorf("start replica: %w", err)
	}

	return &Node{nh: nh, replicaID: cfg.NodeID}, nil
}

// Propose submits a command to the Raft group and blocks until it commits
// or the timeout elapses. The returned Result's Value field carries
// whatever the FSM's Update put there (a new worker ID, a non-zero
// success marker, and so on).
func (n *Node) Propose(cmd []byte, timeout time.Duration) (sm.Result, error) {
	cs := n.nh.GetNoOPSession(pdShardID)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return n.nh.SyncPropose(ctx, cs, cmd)
}

// Lookup performs a linearizable read against the FSM through dragonboat's
// ReadIndex protocol.
func (n *Node) Lookup(ctx context.Context, query interface{}) (interface{}, error) {
	return n.nh.SyncRead(ctx, pdShardID, query)
}

// IsLeader reports whether this node currently leads the placement
// driver's Raft group.
func (n *Node) IsLeader() bool {
	leaderID, _, valid, err := n.nh.GetLeaderID(pdShardID)
	return err == nil && valid && leaderID == n.replicaID
}

// AddVoter admits a new replica into the group. Only the leader can do
// this usefully; dragonboat rejects the request otherwise.
func (n *Node) AddVoter(ctx context.Context, nodeID uint64, addr string) error {
	return n.nh.SyncRequestAddReplica(ctx, pdShardID, nodeID, addr, 0)
}

// Shutdown stops the NodeHost and releases its Raft group.
func (n *Node) Shutdown() {
	n.nh.Close()
}
