// This file implements the routing-node RPC surface the consistency
// checker's Shard-Map Reconciler and Location Verifier depend on: a
// read-only view of which replicas currently own which byte-key range,
// built entirely from the existing FSM accessors (no new Raft command
// type is needed since this never mutates cluster state).

package server

import (
	"context"
	"encoding/binary"
	"sort"

	"github.com/vectron-cce/cce/placementdriver/internal/fsm"
	ccepb "github.com/vectron-cce/cce/shared/proto/ccrpc"
)

// RoutingServer exposes the placement driver's shard map to the
// consistency checker. It holds only a read-only FSM reference: unlike
// Server, it never proposes Raft commands, since every RPC here is a
// pure read.
type RoutingServer struct {
	ccepb.UnimplementedRoutingServiceServer
	fsm *fsm.FSM
}

// NewRoutingServer wraps an FSM with the checker-facing routing RPCs.
func NewRoutingServer(f *fsm.FSM) *RoutingServer {
	return &RoutingServer{fsm: f}
}

// shardRangeKey encodes a shard's hashed key-range boundary as a
// fixed-width big-endian byte key, so vectron's existing uint64 hash-range
// sharding scheme can be read back as a half-open byte-key ShardRange
// without changing how shards are actually assigned.
func shardRangeKey(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// GetKeyServersLocations returns every shard whose byte-key range
// intersects [req.RangeBegin, req.RangeEnd), each paired with its current
// source replicas. Destination replicas are never reported.
// Results are paged by Limit with More signaling additional pages
// starting from the last returned range's end.
func (s *RoutingServer) GetKeyServersLocations(ctx context.Context, req *ccepb.GetKeyServersLocationsRequest) (*ccepb.GetKeyServersLocationsResponse, error) {
	workers := make(map[uint64]fsm.WorkerInfo, len(s.fsm.GetWorkers()))
	for _, w := range s.fsm.GetWorkers() {
		workers[w.ID] = w
	}

	type entry struct {
		begin, end []byte
		shard      *fsm.ShardInfo
	}
	var all []entry
	for _, coll := range s.fsm.GetCollections() {
		for _, sh := range coll.Shards {
			begin := shardRangeKey(sh.KeyRangeStart)
			// KeyRangeEnd is inclusive; the exported end is exclusive, and
			// empty for the shard that runs to the top of the key space.
			var end []byte
			if sh.KeyRangeEnd != ^uint64(0) {
				end = shardRangeKey(sh.KeyRangeEnd + 1)
			}
			if len(req.GetRangeEnd()) > 0 && bytesGTE(begin, req.GetRangeEnd()) {
				continue
			}
			if len(req.GetRangeBegin()) > 0 && len(end) > 0 && !bytesLT(req.GetRangeBegin(), end) {
				continue
			}
			all = append(all, entry{begin: begin, end: end, shard: sh})
		}
	}

	sort.Slice(all, func(i, j int) bool { return bytesLT(all[i].begin, all[j].begin) })

	limit := int(req.GetLimit())
	more := false
	if limit > 0 && len(all) > limit {
		all = all[:limit]
		more = true
	}

	entries := make([]*ccepb.ShardMapEntry, 0, len(all))
	for _, e := range all {
		sources := make([]*ccepb.ReplicaEndpoint, 0, len(e.shard.Replicas))
		for _, workerID := range e.shard.Replicas {
			if w, ok := workers[workerID]; ok {
				sources = append(sources, &ccepb.ReplicaEndpoint{
					WorkerId:    workerID,
					GrpcAddress: w.GrpcAddress,
					ShardId:     e.shard.ShardID,
				})
			}
		}

		entries = append(entries, &ccepb.ShardMapEntry{
			RangeBegin:     e.begin,
			RangeEnd:       e.end,
			SourceReplicas: sources,
			Epoch:          e.shard.Epoch,
		})
	}

	return &ccepb.GetKeyServersLocationsResponse{Entries: entries, More: more}, nil
}

// GetClusterConfig reports the settings the Replica Comparator and
// Cluster Invariant Auditor check replicas against. vectron has no
// separate config-store RPC of its own, so this derives the values
// directly from the FSM: the replication factor already governing shard
// placement, and "pebble" as the one storage engine the worker binary
// ever runs.
func (s *RoutingServer) GetClusterConfig(ctx context.Context, req *ccepb.GetClusterConfigRequest) (*ccepb.GetClusterConfigResponse, error) {
	var excluded []uint64
	for _, w := range s.fsm.GetWorkers() {
		if w.State == fsm.WorkerStateDraining {
			excluded = append(excluded, w.ID)
		}
	}
	return &ccepb.GetClusterConfigResponse{
		StorageTeamSize:  int32(fsm.ReplicationFactor()),
		DesiredStoreType: "pebble",
		ExcludedWorkers:  excluded,
	}, nil
}

func bytesLT(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func bytesGTE(a, b []byte) bool {
	return !bytesLT(a, b)
}
