package grpcadapter

import (
	"context"
	"fmt"

	"github.com/vectron-cce/cce/internal/cluster"
	ccepb "github.com/vectron-cce/cce/shared/proto/ccrpc"
)

// ReplicaClients resolves a cluster.ReplicaId to a dialed
// ReplicaEndpointClient, looking up the replica's gRPC address from the
// directory the routing-node dialer populates each round.
type ReplicaClients struct {
	pool *ConnPool
	dir  *AddressDirectory
}

// NewReplicaClients builds a resolver from replica id to gRPC address
// backed by dir, kept current by RoutingDialer's GetKeyServersLocations
// calls.
func NewReplicaClients(pool *ConnPool, dir *AddressDirectory) *ReplicaClients {
	return &ReplicaClients{pool: pool, dir: dir}
}

// Dial returns the ReplicaEndpointClient for id, or a client that fails
// every call with "unknown replica" if the address isn't known.
func (r *ReplicaClients) Dial(id cluster.ReplicaId) cluster.ReplicaEndpointClient {
	addr, ok := r.dir.Get(id)
	if !ok {
		return unknownReplica{id: id}
	}
	conn, err := r.pool.Get(addr)
	if err != nil {
		return unreachableReplica{id: id, err: err}
	}
	return &replicaClient{client: ccepb.NewConsistencyCheckServiceClient(conn)}
}

// wrapUnavailable marks err as a transport-level peer-unavailable fault
// so checkengine's retry classification can distinguish it from a
// protocol-level response.
func wrapUnavailable(err error) error {
	return fmt.Errorf("%w: %v", cluster.ErrPeerUnavailable, err)
}

type unknownReplica struct{ id cluster.ReplicaId }

func (u unknownReplica) err() error {
	return fmt.Errorf("%w: replica %d has no known address", cluster.ErrPeerUnavailable, u.id)
}
func (u unknownReplica) GetKeyValues(context.Context, uint64, []byte, []byte, int) ([]cluster.KeyValue, bool, error) {
	return nil, false, u.err()
}
func (u unknownReplica) WaitMetrics(context.Context, uint64) (cluster.SizeEstimate, error) {
	return cluster.UnavailableSize, u.err()
}
func (u unknownReplica) GetKeyValueStoreType(context.Context, uint64) (string, error) {
	return "", u.err()
}
func (u unknownReplica) DiskStoreRequest(context.Context) ([]uint64, error) {
	return nil, u.err()
}

type unreachableReplica struct {
	id  cluster.ReplicaId
	err error
}

func (u unreachableReplica) wrap() error {
	return fmt.Errorf("%w: dialing replica %d: %v", cluster.ErrPeerUnavailable, u.id, u.err)
}
func (u unreachableReplica) GetKeyValues(context.Context, uint64, []byte, []byte, int) ([]cluster.KeyValue, bool, error) {
	return nil, false, u.wrap()
}
func (u unreachableReplica) WaitMetrics(context.Context, uint64) (cluster.SizeEstimate, error) {
	return cluster.UnavailableSize, u.wrap()
}
func (u unreachableReplica) GetKeyValueStoreType(context.Context, uint64) (string, error) {
	return "", u.wrap()
}
func (u unreachableReplica) DiskStoreRequest(context.Context) ([]uint64, error) {
	return nil, u.wrap()
}

type replicaClient struct {
	client ccepb.ConsistencyCheckServiceClient
}

func (r *replicaClient) GetKeyValues(ctx context.Context, shardID uint64, startKey, endKey []byte, limit int) ([]cluster.KeyValue, bool, error) {
	resp, err := r.client.GetKeyValues(ctx, &ccepb.GetKeyValuesRequest{
		ShardId:  shardID,
		StartKey: startKey,
		EndKey:   endKey,
		Limit:    int32(limit),
	})
	if err != nil {
		return nil, false, wrapUnavailable(err)
	}
	pairs := make([]cluster.KeyValue, 0, len(resp.GetPairs()))
	for _, p := range resp.GetPairs() {
		pairs = append(pairs, cluster.KeyValue{Key: p.GetKey(), Value: p.GetValue()})
	}
	return pairs, resp.GetMore(), nil
}

func (r *replicaClient) WaitMetrics(ctx context.Context, shardID uint64) (cluster.SizeEstimate, error) {
	resp, err := r.client.WaitMetrics(ctx, &ccepb.WaitMetricsRequest{ShardId: shardID})
	if err != nil {
		return cluster.UnavailableSize, wrapUnavailable(err)
	}
	return cluster.SizeEstimate(resp.GetSizeEstimateBytes()), nil
}

func (r *replicaClient) GetKeyValueStoreType(ctx context.Context, shardID uint64) (string, error) {
	resp, err := r.client.GetKeyValueStoreType(ctx, &ccepb.GetKeyValueStoreTypeRequest{ShardId: shardID})
	if err != nil {
		return "", wrapUnavailable(err)
	}
	return resp.GetStoreType(), nil
}

func (r *replicaClient) DiskStoreRequest(ctx context.Context) ([]uint64, error) {
	resp, err := r.client.DiskStoreRequest(ctx, &ccepb.DiskStoreRequestRequest{})
	if err != nil {
		return nil, wrapUnavailable(err)
	}
	return resp.GetStoreIds(), nil
}
