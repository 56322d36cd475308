// Package cluster holds the round-scoped data model the consistency
// checker operates over: shard ranges, replica identities, the shard map,
// and the cluster-wide configuration and statistics that accumulate
// during one check round.
package cluster

import "time"

// ShardRange is a half-open byte-key interval [Begin, End). An empty End
// means "no upper bound" (the tail of the key space).
type ShardRange struct {
	Begin []byte
	End   []byte
}

// Contains reports whether key falls within [r.Begin, r.End).
func (r ShardRange) Contains(key []byte) bool {
	if len(r.Begin) > 0 && bytesLess(key, r.Begin) {
		return false
	}
	if len(r.End) > 0 && !bytesLess(key, r.End) {
		return false
	}
	return true
}

func bytesLess(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// ReplicaId is the opaque identifier the placement driver assigns a
// worker; vectron's concrete realization is the worker's node ID.
type ReplicaId uint64

// ReplicaEndpoint is the capability record the round uses to talk to one
// replica: an address plus a lazily-dialed RPC client. It is intentionally
// a record of data, not an interface with a class hierarchy behind it —
// the round never needs to vary behavior by replica kind.
type ReplicaEndpoint struct {
	ID          ReplicaId
	GrpcAddress string
}

// ShardAssignment is a shard range's current replica sets: Sources are
// where the shard lives today; Destinations is non-empty only while the
// shard is being relocated.
type ShardAssignment struct {
	Range        ShardRange
	ShardID      uint64
	Sources      []ReplicaId
	Destinations []ReplicaId
	Epoch        uint64
}

// InMotion reports whether this shard has a pending relocation.
func (a ShardAssignment) InMotion() bool {
	return len(a.Destinations) > 0
}

// ShardMapEntry is one row of the reconciled shard map: a range paired
// with its assignment. The full map is a sorted, contiguous sequence of
// these (invariant I1).
type ShardMapEntry struct {
	Assignment ShardAssignment
}

// SizeEstimate is a replica's self-reported byte count for a shard, or
// the sentinel UnavailableSize if the replica could not be reached or
// returned no estimate.
type SizeEstimate int64

// UnavailableSize is the sentinel used when no size estimate exists.
const UnavailableSize SizeEstimate = -1

// Present reports whether this is a real estimate rather than the
// sentinel.
func (s SizeEstimate) Present() bool { return s != UnavailableSize }

// ByteSample is the per-key-value-pair sampling record §4.5 accumulates
// from a streamed shard read.
type ByteSample struct {
	ActualSize  int64
	SampledSize int64
	InSample    bool
}

// ShardSizeBounds bounds a shard's acceptable sampled byte count. It is
// derived from the database's total size alone; the shard's position in
// the key space does not affect it.
type ShardSizeBounds struct {
	Min            int64
	Max            int64
	PermittedError int64
}

// ClusterConfig carries the cluster-wide settings the auditor and
// comparator check replicas against.
type ClusterConfig struct {
	StorageTeamSize  int
	DesiredStoreType string
	ExcludedWorkers  map[ReplicaId]bool
	RoleCounts       map[WorkerClass]int
}

// WorkerClass generalizes vectron's worker-only deployment to a
// multi-role cluster: a process's declared fitness for non-storage roles
// is judged against its class.
type WorkerClass int

const (
	ClassUnset WorkerClass = iota
	ClassStorage
	ClassClusterController
	ClassMaster
	ClassProxy
	ClassResolver
)

func (c WorkerClass) String() string {
	switch c {
	case ClassStorage:
		return "storage"
	case ClassClusterController:
		return "cluster-controller"
	case ClassMaster:
		return "master"
	case ClassProxy:
		return "proxy"
	case ClassResolver:
		return "resolver"
	default:
		return "unset"
	}
}

// WorkerInfo is the round's view of one cluster worker, sourced from the
// placement driver's FSM.
type WorkerInfo struct {
	ID            ReplicaId
	GrpcAddress   string
	Class         WorkerClass
	Alive         bool
	LastHeartbeat time.Time
	Excluded      bool
}

// Violation is one recorded finding: a protocol-level inconsistency, a
// degraded-but-tolerated condition, or a statistical anomaly.
type Violation struct {
	Kind    string
	Detail  string
	Fields  map[string]any
	Fatal   bool // Fatal violations abort the round; non-fatal ones are recorded and the round continues.
}

// RoundStats is the outcome of one check round.
type RoundStats struct {
	Success    bool
	Violations []Violation
	StartedAt  time.Time
	FinishedAt time.Time
}

// AddViolation records a violation and marks the round failed. A fatal
// violation is the caller's signal to stop the round early; RoundStats
// itself does not enforce that — callers check Fatal and return.
func (r *RoundStats) AddViolation(v Violation) {
	r.Success = false
	r.Violations = append(r.Violations, v)
}

// NewRoundStats starts a fresh, successful-until-proven-otherwise round.
func NewRoundStats() *RoundStats {
	return &RoundStats{Success: true, StartedAt: time.Now()}
}
