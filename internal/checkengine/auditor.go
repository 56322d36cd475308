package checkengine

import (
	"context"
	"fmt"

	"github.com/vectron-cce/cce/internal/cluster"
)

// tlogQueueLimit is the transaction log queue depth threshold the source
// carried, despite its own doubt about whether it's the right number for
// every cluster size. No code reads it: checkQueueDrain has no queue
// depths to compare against it.
const tlogQueueLimit = 1e5

// ClusterInvariantAuditor runs the quiescent-only, first-client-only
// checks that have no per-shard locality: queue drain, undesirable
// replicas, storage presence, orphaned data stores, worker-list
// consistency, and role fitness.
type ClusterInvariantAuditor struct {
	dbInfo cluster.DbInfo
	dial   func(id cluster.ReplicaId) cluster.ReplicaEndpointClient
	opts   Options
	log    cluster.TraceLogger
}

// NewClusterInvariantAuditor wires the cluster-membership feed and a
// dial function for replica-facing RPCs (store type, disk store
// requests) the presence/extra-store checks issue.
func NewClusterInvariantAuditor(dbInfo cluster.DbInfo, dial func(id cluster.ReplicaId) cluster.ReplicaEndpointClient, opts Options, log cluster.TraceLogger) *ClusterInvariantAuditor {
	return &ClusterInvariantAuditor{dbInfo: dbInfo, dial: dial, opts: opts, log: log}
}

// Audit runs every quiescent cluster-wide check. Callers only invoke
// this from the first client (ClientID == 0, or non-distributed) since
// the checks have no shard-local partitioning to distribute across.
func (a *ClusterInvariantAuditor) Audit(ctx context.Context, shardMap []cluster.ShardMapEntry, stats *cluster.RoundStats) error {
	if !a.opts.PerformQuiescentChecks {
		return nil
	}

	workers, err := a.dbInfo.Workers(ctx)
	if err != nil {
		return fmt.Errorf("list workers: %w", err)
	}
	config, err := a.dbInfo.Config(ctx)
	if err != nil {
		return fmt.Errorf("get cluster config: %w", err)
	}

	a.checkQueueDrain(stats)
	a.checkUndesirableReplicas(ctx, shardMap, workers, config, stats)
	a.checkStoragePresence(workers, shardMap, stats)
	a.checkExtraDataStores(ctx, workers, shardMap, stats)
	a.checkWorkerListConsistency(shardMap, workers, stats)
	a.checkRoleFitness(workers, config, stats)

	return nil
}

// checkQueueDrain checks nothing and records no violation. There is no
// queue-depth RPC surface in this engine (the placement driver exposes
// none), so no data-distribution, transaction-log, or replica queue depth
// is read or compared against a threshold.
func (a *ClusterInvariantAuditor) checkQueueDrain(stats *cluster.RoundStats) {
}

// checkUndesirableReplicas flags any two storage workers sharing a
// network address — checkForUndesirableServers's
// storageServers[i].address()==storageServers[j].address() pairwise
// comparison over every storage server in the cluster, not merely the
// replicas of one shard's own team (which, by shard-map construction,
// never literally repeat an id) — plus, as a second pass, any replica
// running a store engine other than the cluster's desired type.
func (a *ClusterInvariantAuditor) checkUndesirableReplicas(ctx context.Context, shardMap []cluster.ShardMapEntry, workers []cluster.WorkerInfo, config cluster.ClusterConfig, stats *cluster.RoundStats) {
	var storageServers []cluster.WorkerInfo
	for _, w := range workers {
		if w.Class == cluster.ClassStorage && w.Alive {
			storageServers = append(storageServers, w)
		}
	}
	for i := 0; i < len(storageServers); i++ {
		for j := i + 1; j < len(storageServers); j++ {
			left, right := storageServers[i], storageServers[j]
			if left.GrpcAddress == "" || right.GrpcAddress == "" || left.GrpcAddress != right.GrpcAddress {
				continue
			}
			stats.AddViolation(cluster.Violation{
				Kind:   "undesirable replicas",
				Detail: fmt.Sprintf("storage workers %d and %d share network address %s", left.ID, right.ID, left.GrpcAddress),
				Fields: map[string]any{"replica": uint64(left.ID), "duplicate": uint64(right.ID), "address": left.GrpcAddress},
			})
		}
	}

	if config.DesiredStoreType == "" {
		return
	}
	checked := make(map[cluster.ReplicaId]bool)
	for _, entry := range shardMap {
		for _, id := range entry.Assignment.Sources {
			if checked[id] {
				continue
			}
			checked[id] = true

			reqCtx, cancel := context.WithTimeout(ctx, a.opts.RPCTimeout)
			storeType, err := a.dial(id).GetKeyValueStoreType(reqCtx, entry.Assignment.ShardID)
			cancel()
			if err != nil {
				stats.AddViolation(cluster.Violation{Kind: "replica unreachable", Detail: fmt.Sprintf("replica %d unreachable checking store type", id)})
				continue
			}
			if storeType != config.DesiredStoreType {
				stats.AddViolation(cluster.Violation{
					Kind:   "undesirable replicas",
					Detail: fmt.Sprintf("replica %d runs store type %q, desired %q", id, storeType, config.DesiredStoreType),
					Fields: map[string]any{"replica": uint64(id), "got": storeType, "want": config.DesiredStoreType},
				})
			}
		}
	}
}

// checkStoragePresence confirms every worker classed as storage appears
// as a replica of at least one shard; an idle storage worker holding no
// data is otherwise invisible to the rest of the round.
func (a *ClusterInvariantAuditor) checkStoragePresence(workers []cluster.WorkerInfo, shardMap []cluster.ShardMapEntry, stats *cluster.RoundStats) {
	assigned := make(map[cluster.ReplicaId]bool)
	for _, entry := range shardMap {
		for _, id := range entry.Assignment.Sources {
			assigned[id] = true
		}
		for _, id := range entry.Assignment.Destinations {
			assigned[id] = true
		}
	}
	for _, w := range workers {
		if w.Class != cluster.ClassStorage || w.Excluded || !w.Alive {
			continue
		}
		if !assigned[w.ID] {
			stats.AddViolation(cluster.Violation{
				Kind:   "storage server missing shards",
				Detail: fmt.Sprintf("worker %d is classed storage but holds no shard", w.ID),
				Fields: map[string]any{"worker": uint64(w.ID)},
			})
		}
	}
}

// checkExtraDataStores lists every data store a worker actually holds on
// disk, per checkForExtraDataStores's DiskStoreRequest, and diffs it
// against the shards that worker is live-assigned in the current shard
// map (the original's statefulProcesses union of storage-server and log
// ids per address). A store id with no matching live assignment is an
// orphan a relocation left behind — SyncShards stops a shard's Raft
// cluster without deleting its data directory, so this is the only
// signal that can surface one.
func (a *ClusterInvariantAuditor) checkExtraDataStores(ctx context.Context, workers []cluster.WorkerInfo, shardMap []cluster.ShardMapEntry, stats *cluster.RoundStats) {
	liveShards := make(map[cluster.ReplicaId]map[uint64]bool)
	for _, entry := range shardMap {
		for _, id := range entry.Assignment.Sources {
			if liveShards[id] == nil {
				liveShards[id] = make(map[uint64]bool)
			}
			liveShards[id][entry.Assignment.ShardID] = true
		}
	}

	for _, w := range workers {
		if w.Class != cluster.ClassStorage || !w.Alive {
			continue
		}
		reqCtx, cancel := context.WithTimeout(ctx, a.opts.RPCTimeout)
		storeIDs, err := a.dial(w.ID).DiskStoreRequest(reqCtx)
		cancel()
		if err != nil {
			stats.AddViolation(cluster.Violation{Kind: "replica unreachable", Detail: fmt.Sprintf("worker %d unreachable listing on-disk stores", w.ID)})
			continue
		}
		live := liveShards[w.ID]
		for _, shardID := range storeIDs {
			if live[shardID] {
				continue
			}
			stats.AddViolation(cluster.Violation{
				Kind:   "extra data stores",
				Detail: fmt.Sprintf("worker %d holds an on-disk store for shard %d, which it is no longer assigned", w.ID, shardID),
				Fields: map[string]any{"worker": uint64(w.ID), "shard": shardID},
			})
		}
	}
}

// checkWorkerListConsistency confirms every replica named anywhere in
// the shard map corresponds to a worker the placement driver's FSM still
// knows about.
func (a *ClusterInvariantAuditor) checkWorkerListConsistency(shardMap []cluster.ShardMapEntry, workers []cluster.WorkerInfo, stats *cluster.RoundStats) {
	known := make(map[cluster.ReplicaId]bool, len(workers))
	for _, w := range workers {
		known[w.ID] = true
	}
	for _, entry := range shardMap {
		for _, id := range append(append([]cluster.ReplicaId{}, entry.Assignment.Sources...), entry.Assignment.Destinations...) {
			if !known[id] {
				stats.AddViolation(cluster.Violation{
					Kind:   "worker list inconsistent",
					Detail: fmt.Sprintf("shard %x-%x references unknown worker %d", entry.Assignment.Range.Begin, entry.Assignment.Range.End, id),
					Fields: map[string]any{"worker": uint64(id)},
				})
			}
		}
	}
}

// roleClasses are the non-storage roles machineClassFitness judges in
// the original: cluster controller, master, proxy, resolver.
var roleClasses = []cluster.WorkerClass{
	cluster.ClassClusterController,
	cluster.ClassMaster,
	cluster.ClassProxy,
	cluster.ClassResolver,
}

// checkRoleFitness confirms every role is currently held by a worker of
// the best fitness achievable among the live workers eligible for that
// role, mirroring getBestAvailableFitness/machineClassFitness: it is not
// enough for a role to merely be occupied, the occupant must be as fit
// as any other live candidate of that class. WorkerInfo's flattened
// class model (one class per worker, standing in for vectron's
// class-fitness ranking) only expresses one fitness distinction —
// excluded workers rank below non-excluded ones of the same class — so
// a holder is flagged exactly when it is excluded and a non-excluded
// peer of the same class is live and could have taken its place. When
// every live candidate for a class happens to be excluded, the best
// achievable fitness is itself "excluded", and an excluded holder is not
// a violation — the same ExcludeFit fallback the master check in
// ConsistencyCheck.actor.cpp falls back to when no better candidate
// exists, here applied uniformly to every role rather than master alone.
func (a *ClusterInvariantAuditor) checkRoleFitness(workers []cluster.WorkerInfo, config cluster.ClusterConfig, stats *cluster.RoundStats) {
	for _, class := range roleClasses {
		want := config.RoleCounts[class]
		if want <= 0 {
			continue
		}

		var holders, fitPeers []cluster.WorkerInfo
		for _, w := range workers {
			if w.Class != class || !w.Alive {
				continue
			}
			holders = append(holders, w)
			if !w.Excluded {
				fitPeers = append(fitPeers, w)
			}
		}

		if len(holders) == 0 {
			stats.AddViolation(cluster.Violation{
				Kind:   "role fitness violated",
				Detail: fmt.Sprintf("no live worker currently fills role %s", class),
				Fields: map[string]any{"class": class.String()},
			})
			continue
		}

		for _, holder := range holders {
			if !holder.Excluded {
				continue
			}
			if len(fitPeers) == 0 {
				continue
			}
			stats.AddViolation(cluster.Violation{
				Kind:   "role fitness violated",
				Detail: fmt.Sprintf("worker %d fills role %s while excluded, but %d non-excluded peer(s) of that class are live", holder.ID, class, len(fitPeers)),
				Fields: map[string]any{"class": class.String(), "worker": uint64(holder.ID), "fitPeers": len(fitPeers)},
			})
		}
	}
}
