package internal

import (
	"context"
	"log"

	"github.com/lni/dragonboat/v3"
	ccepb "github.com/vectron-cce/cce/shared/proto/ccrpc"
	"github.com/vectron-cce/cce/worker/internal/shard"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CCEServer extends GrpcServer with the four replica-facing RPCs the
// consistency checker's Replica Comparator, Location Verifier and Cluster
// Invariant Auditor depend on. The three shard-scoped ones are served with
// StaleRead rather than SyncRead (DiskStoreRequest reads the data
// directory and involves no Raft read at all): the
// checker needs each replica's own, possibly-divergent local view, not a
// result linearized through Raft consensus. Serving these through
// consensus would make every replica's "own data" identical by
// construction, defeating the whole point of comparing them.
type CCEServer struct {
	ccepb.UnimplementedConsistencyCheckServiceServer
	nodeHost     *dragonboat.NodeHost
	shardManager *shard.Manager
}

// NewCCEServer wraps an existing worker NodeHost and shard manager with the
// consistency-check RPC surface.
func NewCCEServer(nh *dragonboat.NodeHost, sm *shard.Manager) *CCEServer {
	return &CCEServer{nodeHost: nh, shardManager: sm}
}

// GetKeyValues streams a bounded range of this replica's own key-value
// pairs for a shard, the primitive the Replica Comparator uses to walk a
// shard's contents page by page without holding a cursor open across RPCs.
func (s *CCEServer) GetKeyValues(ctx context.Context, req *ccepb.GetKeyValuesRequest) (*ccepb.GetKeyValuesResponse, error) {
	if !s.shardManager.IsShardReady(req.GetShardId()) {
		return nil, status.Errorf(codes.Unavailable, "shard %d not ready", req.GetShardId())
	}

	query := shard.RangeScanQuery{
		StartKey: req.GetStartKey(),
		EndKey:   req.GetEndKey(),
		Limit:    int(req.GetLimit()),
	}

	res, err := s.nodeHost.StaleRead(req.GetShardId(), query)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "range scan failed: %v", err)
	}

	scan, ok := res.(shard.RangeScanResult)
	if !ok {
		return nil, status.Errorf(codes.Internal, "unexpected range scan result type: %T", res)
	}

	pairs := make([]*ccepb.KeyValue, 0, len(scan.Pairs))
	for _, p := range scan.Pairs {
		pairs = append(pairs, &ccepb.KeyValue{Key: p.Key, Value: p.Value})
	}

	return &ccepb.GetKeyValuesResponse{Pairs: pairs, More: scan.More}, nil
}

// WaitMetrics reports this replica's running sampled-byte size estimate
// for a shard, used by the checker's size-estimate check (invariant I5:
// estimate must equal independently recomputed sampledBytes at
// quiescence). Despite the name it does not wait: it is a single StaleRead
// of the current estimate.
func (s *CCEServer) WaitMetrics(ctx context.Context, req *ccepb.WaitMetricsRequest) (*ccepb.WaitMetricsResponse, error) {
	if !s.shardManager.IsShardReady(req.GetShardId()) {
		return nil, status.Errorf(codes.Unavailable, "shard %d not ready", req.GetShardId())
	}

	res, err := s.nodeHost.StaleRead(req.GetShardId(), shard.SizeQuery{})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "size query failed: %v", err)
	}

	estimate, ok := res.(int64)
	if !ok {
		return nil, status.Errorf(codes.Internal, "unexpected size query result type: %T", res)
	}

	return &ccepb.WaitMetricsResponse{SizeEstimateBytes: estimate}, nil
}

// GetKeyValueStoreType reports which storage engine backs a shard's
// replica on this worker, so the checker can flag a replica silently
// running a different engine than its peers.
func (s *CCEServer) GetKeyValueStoreType(ctx context.Context, req *ccepb.GetKeyValueStoreTypeRequest) (*ccepb.GetKeyValueStoreTypeResponse, error) {
	if !s.shardManager.IsShardReady(req.GetShardId()) {
		return nil, status.Errorf(codes.Unavailable, "shard %d not ready", req.GetShardId())
	}

	res, err := s.nodeHost.StaleRead(req.GetShardId(), shard.StoreTypeQuery{})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "store type query failed: %v", err)
	}

	storeType, ok := res.(string)
	if !ok {
		return nil, status.Errorf(codes.Internal, "unexpected store type result: %T", res)
	}

	return &ccepb.GetKeyValueStoreTypeResponse{StoreType: storeType}, nil
}

// DiskStoreRequest lists every shard id this worker holds an on-disk
// store for, regardless of whether a Raft replica is currently running
// for it. A shard directory outlives the replica that created it once
// the placement driver reassigns the shard elsewhere (SyncShards stops
// the Raft cluster but never deletes its data directory), so this is the
// only way to see a store the live shard map no longer names.
func (s *CCEServer) DiskStoreRequest(ctx context.Context, req *ccepb.DiskStoreRequestRequest) (*ccepb.DiskStoreRequestResponse, error) {
	ids := s.shardManager.ListLocalShardDirs()
	log.Printf("DiskStoreRequest: found %d on-disk shard stores", len(ids))
	return &ccepb.DiskStoreRequestResponse{StoreIds: ids}, nil
}
