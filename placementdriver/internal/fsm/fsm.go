package fsm

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	sm "github.com/lni/dragonboat/v4/statemachine"
)

// CommandType is the type of command sent to the Raft log.
type CommandType int

const (
	// RegisterPeer is the command to register a new peer.
	RegisterPeer CommandType = iota
	// RegisterWorker is the command to register a new worker.
	RegisterWorker
	// CreateCollection is the command to create a new collection.
	CreateCollection
	// UpdateWorkerHeartbeat is the command to update a worker's heartbeat.
	UpdateWorkerHeartbeat
	// UpdateShardMetrics is the command to update per-shard QPS/latency metrics.
	UpdateShardMetrics
	// UpdateShardLeader is the command to record which worker leads a shard's Raft group.
	UpdateShardLeader
	// UpdateWorkerState is the command to transition a worker between lifecycle states.
	UpdateWorkerState
	// MoveShard is the command to reassign a shard replica from one worker to another.
	MoveShard
	// RemoveWorker is the command to remove a worker from the cluster roster.
	RemoveWorker
)

// Command is the command sent to the Raft log.
type Command struct {
	Type    CommandType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// RegisterPeerPayload is the payload for the RegisterPeer command.
type RegisterPeerPayload struct {
	ID       string `json:"id"`
	RaftAddr string `json:"raft_addr"`
	APIAddr  string `json:"api_addr"`
}

// RegisterWorkerPayload is the payload for the RegisterWorker command.
type RegisterWorkerPayload struct {
	GrpcAddress string `json:"grpc_address"`
	RaftAddress string `json:"raft_address"`
	// Role is "write" (a normal replication-group member) or "search_only"
	// (a read-only replica kept out of the Raft voter set).
	Role string `json:"role"`

	CPUCores    uint64 `json:"cpu_cores"`
	MemoryBytes uint64 `json:"memory_bytes"` // total capacity, not current usage
	DiskBytes   uint64 `json:"disk_bytes"`

	// FailureDomain fields let the reconciler avoid placing every replica
	// of a shard in the same rack/zone/region.
	Rack   string `json:"rack"`
	Zone   string `json:"zone"`
	Region string `json:"region"`

	// Class generalizes vectron's worker-only deployment to the multi-role
	// cluster the invariant auditor's role-fitness check assumes (storage,
	// cluster-controller, master, proxy, resolver).
	Class string `json:"class"`
}

// CreateCollectionPayload is the payload for the CreateCollection command.
type CreateCollectionPayload struct {
	Name          string `json:"name"`
	Dimension     int32  `json:"dimension"`
	Distance      string `json:"distance"`
	InitialShards int    `json:"initial_shards"`
}

// UpdateWorkerHeartbeatPayload is the payload for the UpdateWorkerHeartbeat command.
type UpdateWorkerHeartbeatPayload struct {
	WorkerID           uint64   `json:"worker_id"`
	CPUUsagePercent    float64  `json:"cpu_usage_percent"`
	MemoryUsagePercent float64  `json:"memory_usage_percent"`
	DiskUsagePercent   float64  `json:"disk_usage_percent"`
	QueriesPerSecond   float64  `json:"queries_per_second"`
	ActiveShards       uint64   `json:"active_shards"`
	VectorCount        uint64   `json:"vector_count"`
	MemoryBytes        uint64   `json:"memory_bytes"`
	RunningShards      []uint64 `json:"running_shards"`
}

// ShardMetricsPayload is the payload for the UpdateShardMetrics command.
type ShardMetricsPayload struct {
	WorkerID         uint64  `json:"worker_id"`
	ShardID          uint64  `json:"shard_id"`
	QueriesPerSecond float64 `json:"queries_per_second"`
	VectorCount      uint64  `json:"vector_count"`
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
}

// UpdateShardLeaderPayload is the payload for the UpdateShardLeader command.
type UpdateShardLeaderPayload struct {
	ShardID  uint64 `json:"shard_id"`
	LeaderID uint64 `json:"leader_id"`
}

// UpdateWorkerStatePayload is the payload for the UpdateWorkerState command.
type UpdateWorkerStatePayload struct {
	WorkerID uint64      `json:"worker_id"`
	State    WorkerState `json:"state"`
}

// MoveShardPayload is the payload for the MoveShard command.
type MoveShardPayload struct {
	ShardID        uint64 `json:"shard_id"`
	SourceWorkerID uint64 `json:"source_worker_id"`
	TargetWorkerID uint64 `json:"target_worker_id"`
}

// RemoveWorkerPayload is the payload for the RemoveWorker command.
type RemoveWorkerPayload struct {
	WorkerID uint64 `json:"worker_id"`
}

// Shard and Collection Data Structures
// ======================================================================================

// ShardAssignment contains all info a worker needs to manage a shard replica.
// This is a DTO and is not stored in the FSM state directly.
type ShardAssignment struct {
	ShardInfo      *ShardInfo        `json:"shard_info"`
	InitialMembers map[uint64]string `json:"initial_members"` // map[nodeID]raftAddress
}

// ShardInfo holds the metadata for a single shard.
type ShardInfo struct {
	ShardID       uint64   `json:"shard_id"`
	Collection    string   `json:"collection"`
	KeyRangeStart uint64   `json:"key_range_start"`
	KeyRangeEnd   uint64   `json:"key_range_end"`
	Replicas      []uint64 `json:"replicas"` // Slice of worker node IDs
	LeaderID      uint64   `json:"leader_id"`
	Dimension     int32    `json:"dimension"`
	Distance      string   `json:"distance"`

	// Epoch increments every time this shard's replica set or leader
	// changes, letting a caller holding a stale ShardInfo detect it.
	Epoch uint64 `json:"epoch"`

	// Bootstrapped/BootstrapMembers track whether this shard's Raft group
	// has already been formed. Until it has, the replicas named in
	// BootstrapMembers are the ones responsible for calling StartReplica
	// with a non-empty initial-members map; everyone else joins later.
	Bootstrapped     bool     `json:"bootstrapped"`
	BootstrapMembers []uint64 `json:"bootstrap_members"`

	// QueriesPerSecond/AvgLatencyMs/VectorCount are the most recently
	// reported load metrics for this shard, last updated by whichever
	// worker reported them via UpdateShardMetrics.
	QueriesPerSecond float64 `json:"queries_per_second"`
	AvgLatencyMs     float64 `json:"avg_latency_ms"`
	VectorCount      uint64  `json:"vector_count"`
}

// Collection holds the metadata for a single collection, including its shards.
type Collection struct {
	Name      string                `json:"name"`
	Dimension int32                 `json:"dimension"`
	Distance  string                `json:"distance"`
	Shards    map[uint64]*ShardInfo `json:"shards"` // map[shardID]*ShardInfo
}

// ======================================================================================
// FSM Implementation
// ======================================================================================

// FSM is the finite state machine for the placement driver.
type FSM struct {
	mu              sync.RWMutex
	Peers           map[string]PeerInfo    // nodeID -> PeerInfo
	Workers         map[uint64]WorkerInfo  // workerID -> WorkerInfo
	Collections     map[string]*Collection // map[collectionName]*Collection
	NextShardID     uint64
	NextWorkerID    uint64
	AssignmentsEpoch uint64 // bumped every time shard-to-worker assignment changes
}

// PeerInfo holds information about a peer in the raft cluster.
type PeerInfo struct {
	ID       string `json:"id"`
	RaftAddr string `json:"raft_addr"`
	APIAddr  string `json:"api_addr"`
}

// WorkerState is the lifecycle state of a worker as tracked by the FSM.
type WorkerState int

const (
	// WorkerStateJoining is set right after registration, before the first heartbeat lands.
	WorkerStateJoining WorkerState = iota
	// WorkerStateReady means the worker is heartbeating normally and eligible for shard assignment.
	WorkerStateReady
	// WorkerStateDraining means the worker asked to be emptied of shards before removal.
	WorkerStateDraining
)

// WorkerInfo holds information about a worker.
type WorkerInfo struct {
	ID            uint64      `json:"id"`
	GrpcAddress   string      `json:"grpc_address"`
	RaftAddress   string      `json:"raft_address"`
	Role          string      `json:"role"` // "write" or "search_only"
	LastHeartbeat time.Time   `json:"last_heartbeat"`
	State         WorkerState `json:"state"`

	// Class generalizes vectron's worker-only deployment to the multi-role
	// cluster model: Storage, ClusterController, Master, Proxy, Resolver.
	// Unset workers are treated as Storage for backward compatibility.
	Class string `json:"class"`

	Rack   string `json:"rack"`
	Zone   string `json:"zone"`
	Region string `json:"region"`

	CPUCores            uint64 `json:"cpu_cores"`
	MemoryCapacityBytes uint64 `json:"memory_capacity_bytes"`
	DiskCapacityBytes   uint64 `json:"disk_capacity_bytes"`
	// TotalCapacity is the shard-slot budget the rebalancer spreads load
	// against; derived from CPUCores at registration time.
	TotalCapacity uint64 `json:"total_capacity"`

	CPUUsagePercent    float64  `json:"cpu_usage_percent"`
	MemoryUsagePercent float64  `json:"memory_usage_percent"`
	DiskUsagePercent   float64  `json:"disk_usage_percent"`
	QueriesPerSecond   float64  `json:"queries_per_second"`
	ActiveShards       uint64   `json:"active_shards"`
	VectorCount        uint64   `json:"vector_count"`
	MemoryBytes        uint64   `json:"memory_bytes"` // current usage, from heartbeats
	RunningShards      []uint64 `json:"running_shards"`
}

// NewFSM creates a new FSM.
func NewFSM() *FSM {
	return &FSM{
		Peers:        make(map[string]PeerInfo),
		Workers:      make(map[uint64]WorkerInfo),
		Collections:  make(map[string]*Collection),
		NextShardID:  1,
		NextWorkerID: 1,
	}
}

// Update applies commands from the Raft log to the FSM.
func (f *FSM) Update(entries []sm.Entry) ([]sm.Entry, error) {
	for i, entry := range entries {
		var cmd Command
		if err := json.Unmarshal(entry.Cmd, &cmd); err != nil {
			return nil, fmt.Errorf("failed to unmarshal command: %w", err)
		}

		var appErr error
		var result uint64
		switch cmd.Type {
		case RegisterPeer:
			var payload RegisterPeerPayload
			if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
				appErr = fmt.Errorf("failed to unmarshal RegisterPeer payload: %w", err)
			} else {
				f.applyRegisterPeer(payload)
			}
		case RegisterWorker:
			var payload RegisterWorkerPayload
			if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
				appErr = fmt.Errorf("failed to unmarshal RegisterWorker payload: %w", err)
			} else {
				result = f.applyRegisterWorker(payload)
			}
		case CreateCollection:
			var payload CreateCollectionPayload
			if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
				appErr = fmt.Errorf("failed to unmarshal CreateCollection payload: %w", err)
			} else {
				appErr = f.applyCreateCollection(payload)
			}
		case UpdateWorkerHeartbeat:
			var payload UpdateWorkerHeartbeatPayload
			if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
				appErr = fmt.Errorf("failed to unmarshal UpdateWorkerHeartbeat payload: %w", err)
			} else {
				f.applyUpdateWorkerHeartbeat(payload)
			}
		case UpdateShardMetrics:
			var payload ShardMetricsPayload
			if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
				appErr = fmt.Errorf("failed to unmarshal UpdateShardMetrics payload: %w", err)
			} else {
				f.applyUpdateShardMetrics(payload)
			}
		case UpdateShardLeader:
			var payload UpdateShardLeaderPayload
			if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
				appErr = fmt.Errorf("failed to unmarshal UpdateShardLeader payload: %w", err)
			} else {
				f.applyUpdateShardLeader(payload)
			}
		case UpdateWorkerState:
			var payload UpdateWorkerStatePayload
			if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
				appErr = fmt.Errorf("failed to unmarshal UpdateWorkerState payload: %w", err)
			} else {
				f.applyUpdateWorkerState(payload)
			}
		case MoveShard:
			var payload MoveShardPayload
			if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
				appErr = fmt.Errorf("failed to unmarshal MoveShard payload: %w", err)
			} else {
				appErr = f.applyMoveShard(payload)
			}
		case RemoveWorker:
			var payload RemoveWorkerPayload
			if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
				appErr = fmt.Errorf("failed to unmarshal RemoveWorker payload: %w", err)
			} else {
				appErr = f.applyRemoveWorker(payload)
			}
		default:
			appErr = fmt.Errorf("unknown command type: %d", cmd.Type)
		}

		if appErr != nil {
			fmt.Printf("Error applying command: %v\n", appErr)
			// For queries that return a result, 0 or a specific error code would be appropriate.
			entries[i].Result = sm.Result{Value: 0}
		} else {
			entries[i].Result = sm.Result{Value: result}
		}
	}
	return entries, nil
}

func (f *FSM) applyRegisterPeer(payload RegisterPeerPayload) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Peers[payload.ID] = PeerInfo{
		ID:       payload.ID,
		RaftAddr: payload.RaftAddr,
		APIAddr:  payload.APIAddr,
	}
}

func (f *FSM) applyRegisterWorker(payload RegisterWorkerPayload) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	workerID := f.NextWorkerID
	f.NextWorkerID++

	class := payload.Class
	if class == "" {
		class = "storage"
	}
	role := payload.Role
	if role == "" {
		role = "write"
	}
	totalCapacity := payload.CPUCores
	if totalCapacity == 0 {
		totalCapacity = 4
	}

	f.Workers[workerID] = WorkerInfo{
		ID:                  workerID,
		GrpcAddress:         payload.GrpcAddress,
		RaftAddress:         payload.RaftAddress,
		Role:                role,
		LastHeartbeat:       time.Now(),
		State:               WorkerStateJoining,
		Class:               class,
		Rack:                payload.Rack,
		Zone:                payload.Zone,
		Region:              payload.Region,
		CPUCores:            payload.CPUCores,
		MemoryCapacityBytes: payload.MemoryBytes,
		DiskCapacityBytes:   payload.DiskBytes,
		TotalCapacity:       totalCapacity,
	}
	return workerID
}

func (f *FSM) applyCreateCollection(payload CreateCollectionPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.Collections[payload.Name]; ok {
		return fmt.Errorf("collection %s already exists", payload.Name)
	}

	replicationFactor := ReplicationFactor()
	if len(f.Workers) < replicationFactor {
		return fmt.Errorf("not enough workers (%d) to meet replication factor (%d)", len(f.Workers), replicationFactor)
	}

	// Create the collection.
	collection := &Collection{
		Name:      payload.Name,
		Dimension: payload.Dimension,
		Distance:  payload.Distance,
		Shards:    make(map[uint64]*ShardInfo),
	}

	// Create initial shards.
	numShards := payload.InitialShards
	if numShards <= 0 {
		numShards = 1 // Default to at least one shard
	}
	shardRangeSize := uint64(math.MaxUint64 / float64(numShards))

	// Get a list of worker IDs to pick replicas from.
	workerIDs := make([]uint64, 0, len(f.Workers))
	for _, w := range f.Workers {
		workerIDs = append(workerIDs, w.ID)
	}

	workerIdx := 0
	for i := 0; i < numShards; i++ {
		shardID := f.NextShardID
		f.NextShardID++

		startKey := uint64(i) * shardRangeSize
		endKey := (uint64(i+1) * shardRangeSize) - 1
		if i == numShards-1 {
			endKey = math.MaxUint64
		}

		// Assign replicas.
		replicas := make([]uint64, 0, replicationFactor)
		for j := 0; j < replicationFactor; j++ {
			replicas = append(replicas, workerIDs[workerIdx%len(workerIDs)])
			workerIdx++
		}

		shard := &ShardInfo{
			ShardID:       shardID,
			Collection:    payload.Name,
			KeyRangeStart: startKey,
			KeyRangeEnd:   endKey,
			Replicas:      replicas,
			Dimension:     payload.Dimension,
			Distance:      payload.Distance,
		}
		collection.Shards[shardID] = shard
	}

	f.Collections[collection.Name] = collection
	f.AssignmentsEpoch++
	fmt.Printf("Created collection '%s' with %d shards\n", collection.Name, numShards)
	return nil
}

func (f *FSM) applyUpdateWorkerHeartbeat(payload UpdateWorkerHeartbeatPayload) {
	f.mu.Lock()
	defer f.mu.Unlock()

	worker, ok := f.Workers[payload.WorkerID]
	if !ok {
		return
	}
	worker.LastHeartbeat = time.Now()
	if worker.State == WorkerStateJoining {
		worker.State = WorkerStateReady
	}
	worker.CPUUsagePercent = payload.CPUUsagePercent
	worker.MemoryUsagePercent = payload.MemoryUsagePercent
	worker.DiskUsagePercent = payload.DiskUsagePercent
	worker.QueriesPerSecond = payload.QueriesPerSecond
	worker.ActiveShards = payload.ActiveShards
	worker.VectorCount = payload.VectorCount
	worker.MemoryBytes = payload.MemoryBytes
	worker.RunningShards = payload.RunningShards
	f.Workers[payload.WorkerID] = worker
}

func (f *FSM) applyUpdateShardMetrics(payload ShardMetricsPayload) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, collection := range f.Collections {
		if shard, ok := collection.Shards[payload.ShardID]; ok {
			shard.QueriesPerSecond = payload.QueriesPerSecond
			shard.VectorCount = payload.VectorCount
			shard.AvgLatencyMs = payload.AvgLatencyMs
			return
		}
	}
}

func (f *FSM) applyUpdateShardLeader(payload UpdateShardLeaderPayload) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, collection := range f.Collections {
		if shard, ok := collection.Shards[payload.ShardID]; ok {
			if shard.LeaderID != payload.LeaderID {
				shard.LeaderID = payload.LeaderID
				shard.Epoch++
				f.AssignmentsEpoch++
			}
			return
		}
	}
}

func (f *FSM) applyUpdateWorkerState(payload UpdateWorkerStatePayload) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if worker, ok := f.Workers[payload.WorkerID]; ok {
		worker.State = payload.State
		f.Workers[payload.WorkerID] = worker
	}
}

func (f *FSM) applyMoveShard(payload MoveShardPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, collection := range f.Collections {
		shard, ok := collection.Shards[payload.ShardID]
		if !ok {
			continue
		}
		found := false
		for idx, replicaID := range shard.Replicas {
			if replicaID == payload.SourceWorkerID {
				shard.Replicas[idx] = payload.TargetWorkerID
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("shard %d has no replica on worker %d", payload.ShardID, payload.SourceWorkerID)
		}
		if shard.LeaderID == payload.SourceWorkerID {
			shard.LeaderID = payload.TargetWorkerID
		}
		shard.Epoch++
		f.AssignmentsEpoch++
		return nil
	}
	return fmt.Errorf("shard %d not found", payload.ShardID)
}

func (f *FSM) applyRemoveWorker(payload RemoveWorkerPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	worker, ok := f.Workers[payload.WorkerID]
	if !ok {
		return fmt.Errorf("worker %d not found", payload.WorkerID)
	}
	if len(worker.RunningShards) > 0 {
		return fmt.Errorf("worker %d still has %d running shards", payload.WorkerID, len(worker.RunningShards))
	}
	delete(f.Workers, payload.WorkerID)
	return nil
}

// Lookup is used for read-only queries of the FSM.
func (f *FSM) Lookup(query interface{}) (interface{}, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return &fsmSnapshot{
		Peers:            f.Peers,
		Workers:          f.Workers,
		Collections:      f.Collections,
		NextShardID:      f.NextShardID,
		NextWorkerID:     f.NextWorkerID,
		AssignmentsEpoch: f.AssignmentsEpoch,
	}, nil
}

// fsmSnapshot is a struct to hold all the data for snapshotting.
type fsmSnapshot struct {
	Peers            map[string]PeerInfo    `json:"peers"`
	Workers          map[uint64]WorkerInfo  `json:"workers"`
	Collections      map[string]*Collection `json:"collections"`
	NextShardID      uint64                 `json:"next_shard_id"`
	NextWorkerID     uint64                 `json:"next_worker_id"`
	AssignmentsEpoch uint64                 `json:"assignments_epoch"`
}

// SaveSnapshot saves the FSM state to a snapshot.
func (f *FSM) SaveSnapshot(w io.Writer, fc sm.ISnapshotFileCollection, done <-chan struct{}) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	data := &fsmSnapshot{
		Peers:            f.Peers,
		Workers:          f.Workers,
		Collections:      f.Collections,
		NextShardID:      f.NextShardID,
		NextWorkerID:     f.NextWorkerID,
		AssignmentsEpoch: f.AssignmentsEpoch,
	}

	return json.NewEncoder(w).Encode(data)
}

// RecoverFromSnapshot restores the FSM state from a snapshot.
func (f *FSM) RecoverFromSnapshot(r io.Reader, files []sm.SnapshotFile, done <-chan struct{}) error {
	var data fsmSnapshot
	if err := json.NewDecoder(r).Decode(&data); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.Peers = data.Peers
	f.Workers = data.Workers
	f.Collections = data.Collections
	f.NextShardID = data.NextShardID
	f.NextWorkerID = data.NextWorkerID
	f.AssignmentsEpoch = data.AssignmentsEpoch

	return nil
}

// Close closes the FSM.
func (f *FSM) Close() error {
	return nil
}

// ======================================================================================
// Helper methods for accessing state
// ======================================================================================

// GetPeer is a helper method for accessing peer info.
func (f *FSM) GetPeer(id string) (PeerInfo, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	peer, ok := f.Peers[id]
	return peer, ok
}

// GetWorker is a helper method for accessing worker info.
func (f *FSM) GetWorker(id uint64) (WorkerInfo, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	worker, ok := f.Workers[id]
	return worker, ok
}

// GetWorkers is a helper method for accessing worker info.
func (f *FSM) GetWorkers() []WorkerInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var workers []WorkerInfo
	for _, w := range f.Workers {
		workers = append(workers, w)
	}
	return workers
}

// GetCollection returns a collection from the FSM.
func (f *FSM) GetCollection(name string) (*Collection, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	collection, ok := f.Collections[name]
	return collection, ok
}

// GetCollections returns a slice of all collections.
func (f *FSM) GetCollections() []*Collection {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var collections []*Collection
	for _, c := range f.Collections {
		collections = append(collections, c)
	}
	return collections
}

// GetAssignmentsEpoch returns the current shard-assignment epoch, bumped
// every time a shard's leader or replica set changes. Clients use it to
// decide whether their cached shard map is stale.
func (f *FSM) GetAssignmentsEpoch() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.AssignmentsEpoch
}

// IsWorkerAssignedToShard reports whether workerID currently holds a
// replica of shardID, per the FSM's shard map.
func (f *FSM) IsWorkerAssignedToShard(workerID, shardID uint64) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, collection := range f.Collections {
		if shard, ok := collection.Shards[shardID]; ok {
			for _, replicaID := range shard.Replicas {
				if replicaID == workerID {
					return true
				}
			}
			return false
		}
	}
	return false
}
