package cluster

import (
	"context"
	"errors"
)

// ErrPeerUnavailable is the sentinel grpcadapter wraps every transport-
// level failure (dial failure, deadline exceeded, connection reset) in,
// so the round can tell "replica didn't answer" apart from "replica
// answered with a protocol-level problem" regardless of which RPC
// produced it.
var ErrPeerUnavailable = errors.New("peer unavailable")

// Database is the narrow view of cluster membership the Version Oracle
// and Shard-Map Reconciler consume: the current set of routing nodes
// (placement driver leader/peers) and a way to be notified when it
// changes so in-flight chunk requests can be cancelled and restarted.
type Database interface {
	// RoutingNodes returns the currently known routing node addresses.
	RoutingNodes(ctx context.Context) ([]string, error)
	// OnRoutingNodesChanged returns a channel closed the next time the
	// routing node set changes, mirroring FoundationDB's
	// onMasterProxiesChanged future.
	OnRoutingNodesChanged() <-chan struct{}
}

// Transaction is the narrow slice of the transactional client's API the
// checker needs: a read version and a way to react to transient faults.
// It deliberately does not expose writes — the checker never mutates
// cluster data.
type Transaction interface {
	GetReadVersion(ctx context.Context) (uint64, error)
	// OnError classifies err and returns nil if the caller should retry
	// the operation (after any backoff OnError itself performs), or the
	// original/non-retryable error otherwise.
	OnError(ctx context.Context, err error) error
}

// ReplicaEndpointClient is the RPC surface one replica exposes to the
// checker. Implemented concretely in internal/grpcadapter against the
// worker's ccrpc.ConsistencyCheckServiceClient.
type ReplicaEndpointClient interface {
	GetKeyValues(ctx context.Context, shardID uint64, startKey, endKey []byte, limit int) (pairs []KeyValue, more bool, err error)
	WaitMetrics(ctx context.Context, shardID uint64) (SizeEstimate, error)
	GetKeyValueStoreType(ctx context.Context, shardID uint64) (string, error)
	DiskStoreRequest(ctx context.Context) (storeIds []uint64, err error)
}

// KeyValue is one pair returned from a replica's streaming range read.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// RoutingClient is the RPC surface a routing node (placement driver)
// exposes to the checker: a paged view of the shard map restricted to a
// byte-key range.
type RoutingClient interface {
	GetKeyServersLocations(ctx context.Context, begin, end []byte, limit int) (entries []ShardMapEntry, more bool, err error)
}

// DbInfo is the cluster-membership feed the round consults for the
// current worker roster, independent of the shard map itself — used by
// the Cluster Invariant Auditor's worker-list consistency check.
type DbInfo interface {
	Workers(ctx context.Context) ([]WorkerInfo, error)
	Config(ctx context.Context) (ClusterConfig, error)
}

// TraceLogger is the structured event logger every component reports
// through; it never decides success/failure itself, only records.
type TraceLogger interface {
	Info(event string, fields map[string]any)
	Warn(event string, fields map[string]any)
	Error(event string, fields map[string]any)
}
