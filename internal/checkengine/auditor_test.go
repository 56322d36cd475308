package checkengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectron-cce/cce/internal/cluster"
)

type fakeDbInfo struct {
	workers []cluster.WorkerInfo
	config  cluster.ClusterConfig
	err     error
}

func (f *fakeDbInfo) Workers(ctx context.Context) ([]cluster.WorkerInfo, error) {
	return f.workers, f.err
}

func (f *fakeDbInfo) Config(ctx context.Context) (cluster.ClusterConfig, error) {
	return f.config, f.err
}

func newTestAuditor(dbInfo cluster.DbInfo, replicas map[cluster.ReplicaId]*fakeReplica, opts Options) *ClusterInvariantAuditor {
	opts.PerformQuiescentChecks = true
	return NewClusterInvariantAuditor(dbInfo, fakeDial(replicas), opts, discardLogger())
}

func TestAuditorSkipsEntirelyWhenNotQuiescent(t *testing.T) {
	dbInfo := &fakeDbInfo{}
	a := NewClusterInvariantAuditor(dbInfo, fakeDial(nil), DefaultOptions(), discardLogger())
	stats := cluster.NewRoundStats()

	err := a.Audit(context.Background(), nil, stats)
	require.NoError(t, err)
	assert.True(t, stats.Success)
}

func TestAuditorUndesirableReplicasFlagsSharedAddress(t *testing.T) {
	dbInfo := &fakeDbInfo{
		workers: []cluster.WorkerInfo{
			{ID: 1, Class: cluster.ClassStorage, Alive: true, GrpcAddress: "10.0.0.1:9000"},
			{ID: 2, Class: cluster.ClassStorage, Alive: true, GrpcAddress: "10.0.0.1:9000"},
		},
		config: cluster.ClusterConfig{},
	}

	a := newTestAuditor(dbInfo, map[cluster.ReplicaId]*fakeReplica{1: {}, 2: {}}, DefaultOptions())
	stats := cluster.NewRoundStats()
	require.NoError(t, a.Audit(context.Background(), nil, stats))

	assert.False(t, stats.Success)
	require.NotEmpty(t, stats.Violations)
	assert.Equal(t, "undesirable replicas", stats.Violations[0].Kind)
}

func TestAuditorUndesirableReplicasIgnoresDistinctAddresses(t *testing.T) {
	dbInfo := &fakeDbInfo{
		workers: []cluster.WorkerInfo{
			{ID: 1, Class: cluster.ClassStorage, Alive: true, GrpcAddress: "10.0.0.1:9000"},
			{ID: 2, Class: cluster.ClassStorage, Alive: true, GrpcAddress: "10.0.0.2:9000"},
		},
		config: cluster.ClusterConfig{},
	}
	shardMap := []cluster.ShardMapEntry{{Assignment: cluster.ShardAssignment{
		ShardID: 1,
		Sources: []cluster.ReplicaId{1, 2},
	}}}

	a := newTestAuditor(dbInfo, map[cluster.ReplicaId]*fakeReplica{1: {}, 2: {}}, DefaultOptions())
	stats := cluster.NewRoundStats()
	require.NoError(t, a.Audit(context.Background(), shardMap, stats))

	assert.True(t, stats.Success)
}

func TestAuditorUndesirableStoreType(t *testing.T) {
	dbInfo := &fakeDbInfo{
		workers: []cluster.WorkerInfo{{ID: 1, Class: cluster.ClassStorage, Alive: true}},
		config:  cluster.ClusterConfig{DesiredStoreType: "pebble"},
	}
	replicas := map[cluster.ReplicaId]*fakeReplica{
		1: {}, // GetKeyValueStoreType returns "pebble" by default
	}
	shardMap := []cluster.ShardMapEntry{{Assignment: cluster.ShardAssignment{
		ShardID: 1,
		Sources: []cluster.ReplicaId{1},
	}}}

	a := newTestAuditor(dbInfo, replicas, DefaultOptions())
	stats := cluster.NewRoundStats()
	require.NoError(t, a.Audit(context.Background(), shardMap, stats))
	assert.True(t, stats.Success)
}

func TestAuditorStoragePresenceFlagsIdleWorker(t *testing.T) {
	dbInfo := &fakeDbInfo{workers: []cluster.WorkerInfo{
		{ID: 9, Class: cluster.ClassStorage, Alive: true},
	}}
	shardMap := []cluster.ShardMapEntry{{Assignment: cluster.ShardAssignment{
		Sources: []cluster.ReplicaId{1},
	}}}

	a := newTestAuditor(dbInfo, map[cluster.ReplicaId]*fakeReplica{1: {}, 9: {}}, DefaultOptions())
	stats := cluster.NewRoundStats()
	require.NoError(t, a.Audit(context.Background(), shardMap, stats))

	assert.False(t, stats.Success)
	var found bool
	for _, v := range stats.Violations {
		if v.Kind == "storage server missing shards" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAuditorExtraDataStoresFlagsOrphanedShard(t *testing.T) {
	dbInfo := &fakeDbInfo{
		workers: []cluster.WorkerInfo{{ID: 1, Class: cluster.ClassStorage, Alive: true}},
		config:  cluster.ClusterConfig{},
	}
	shardMap := []cluster.ShardMapEntry{{Assignment: cluster.ShardAssignment{
		ShardID: 1,
		Sources: []cluster.ReplicaId{1},
	}}}
	replicas := map[cluster.ReplicaId]*fakeReplica{
		1: {storeIDs: []uint64{1, 7}},
	}

	a := newTestAuditor(dbInfo, replicas, DefaultOptions())
	stats := cluster.NewRoundStats()
	require.NoError(t, a.Audit(context.Background(), shardMap, stats))

	assert.False(t, stats.Success)
	var found bool
	for _, v := range stats.Violations {
		if v.Kind == "extra data stores" {
			found = true
			assert.Equal(t, uint64(7), v.Fields["shard"])
		}
	}
	assert.True(t, found)
}

func TestAuditorExtraDataStoresIgnoresLiveAssignments(t *testing.T) {
	dbInfo := &fakeDbInfo{
		workers: []cluster.WorkerInfo{{ID: 1, Class: cluster.ClassStorage, Alive: true}},
		config:  cluster.ClusterConfig{},
	}
	shardMap := []cluster.ShardMapEntry{{Assignment: cluster.ShardAssignment{
		ShardID: 1,
		Sources: []cluster.ReplicaId{1},
	}}}
	replicas := map[cluster.ReplicaId]*fakeReplica{
		1: {storeIDs: []uint64{1}},
	}

	a := newTestAuditor(dbInfo, replicas, DefaultOptions())
	stats := cluster.NewRoundStats()
	require.NoError(t, a.Audit(context.Background(), shardMap, stats))

	assert.True(t, stats.Success)
}

func TestAuditorWorkerListConsistencyFlagsUnknownReplica(t *testing.T) {
	dbInfo := &fakeDbInfo{workers: []cluster.WorkerInfo{{ID: 1, Class: cluster.ClassStorage, Alive: true}}}
	shardMap := []cluster.ShardMapEntry{{Assignment: cluster.ShardAssignment{
		Range:   cluster.ShardRange{Begin: []byte("a"), End: []byte("b")},
		Sources: []cluster.ReplicaId{1, 99},
	}}}

	a := newTestAuditor(dbInfo, map[cluster.ReplicaId]*fakeReplica{1: {}, 99: {}}, DefaultOptions())
	stats := cluster.NewRoundStats()
	require.NoError(t, a.Audit(context.Background(), shardMap, stats))

	assert.False(t, stats.Success)
	var found bool
	for _, v := range stats.Violations {
		if v.Kind == "worker list inconsistent" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAuditorRoleFitnessFlagsUnfilledRole(t *testing.T) {
	dbInfo := &fakeDbInfo{
		workers: []cluster.WorkerInfo{{ID: 1, Class: cluster.ClassStorage, Alive: true}},
		config: cluster.ClusterConfig{
			RoleCounts: map[cluster.WorkerClass]int{cluster.ClassResolver: 1},
		},
	}
	a := newTestAuditor(dbInfo, map[cluster.ReplicaId]*fakeReplica{1: {}}, DefaultOptions())
	stats := cluster.NewRoundStats()
	require.NoError(t, a.Audit(context.Background(), nil, stats))

	assert.False(t, stats.Success)
	require.NotEmpty(t, stats.Violations)
	assert.Equal(t, "role fitness violated", stats.Violations[len(stats.Violations)-1].Kind)
}

func TestAuditorRoleFitnessAllowsExcludedMasterWhenNoBetterCandidate(t *testing.T) {
	dbInfo := &fakeDbInfo{
		workers: []cluster.WorkerInfo{{ID: 1, Class: cluster.ClassMaster, Alive: true, Excluded: true}},
		config: cluster.ClusterConfig{
			ExcludedWorkers: map[cluster.ReplicaId]bool{1: true},
			RoleCounts:      map[cluster.WorkerClass]int{cluster.ClassMaster: 1},
		},
	}
	a := newTestAuditor(dbInfo, nil, DefaultOptions())
	stats := cluster.NewRoundStats()
	require.NoError(t, a.Audit(context.Background(), nil, stats))

	assert.True(t, stats.Success)
}

func TestAuditorRoleFitnessFlagsExcludedHolderWhenBetterCandidateLive(t *testing.T) {
	dbInfo := &fakeDbInfo{
		workers: []cluster.WorkerInfo{
			{ID: 1, Class: cluster.ClassMaster, Alive: true, Excluded: true},
			{ID: 2, Class: cluster.ClassMaster, Alive: true, Excluded: false},
		},
		config: cluster.ClusterConfig{
			ExcludedWorkers: map[cluster.ReplicaId]bool{1: true},
			RoleCounts:      map[cluster.WorkerClass]int{cluster.ClassMaster: 1},
		},
	}
	a := newTestAuditor(dbInfo, nil, DefaultOptions())
	stats := cluster.NewRoundStats()
	require.NoError(t, a.Audit(context.Background(), nil, stats))

	assert.False(t, stats.Success)
	var found bool
	for _, v := range stats.Violations {
		if v.Kind == "role fitness violated" {
			found = true
		}
	}
	assert.True(t, found)
}
