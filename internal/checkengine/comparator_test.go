package checkengine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectron-cce/cce/internal/cluster"
)

// fakeReplica is a single in-memory stand-in for a worker's
// ConsistencyCheckService implementation, holding one shard's full
// key-value contents plus a canned size estimate.
type fakeReplica struct {
	pairs    []cluster.KeyValue
	estimate cluster.SizeEstimate
	storeIDs []uint64
	err      error
}

func (f *fakeReplica) GetKeyValues(ctx context.Context, shardID uint64, startKey, endKey []byte, limit int) ([]cluster.KeyValue, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	var out []cluster.KeyValue
	for _, kv := range f.pairs {
		if bytesLess(kv.Key, startKey) {
			continue
		}
		if len(endKey) > 0 && !bytesLess(kv.Key, endKey) {
			continue
		}
		out = append(out, kv)
		if limit > 0 && len(out) >= limit {
			return out, true, nil
		}
	}
	return out, false, nil
}

func (f *fakeReplica) WaitMetrics(ctx context.Context, shardID uint64) (cluster.SizeEstimate, error) {
	return f.estimate, f.err
}

func (f *fakeReplica) GetKeyValueStoreType(ctx context.Context, shardID uint64) (string, error) {
	return "pebble", f.err
}

func (f *fakeReplica) DiskStoreRequest(ctx context.Context) ([]uint64, error) {
	return f.storeIDs, f.err
}

func fakeDial(replicas map[cluster.ReplicaId]*fakeReplica) func(cluster.ReplicaId) cluster.ReplicaEndpointClient {
	return func(id cluster.ReplicaId) cluster.ReplicaEndpointClient {
		return replicas[id]
	}
}

func newTestComparator(replicas map[cluster.ReplicaId]*fakeReplica, opts Options, storageTeamSize int) *ReplicaComparator {
	txn := &fakeTransaction{}
	oracle := NewVersionOracle(txn, discardLogger())
	rate := NewRateGate(0, 1)
	return NewReplicaComparator(oracle, rate, fakeDial(replicas), opts, discardLogger(), storageTeamSize)
}

func pair(k, v string) cluster.KeyValue {
	return cluster.KeyValue{Key: []byte(k), Value: []byte(v)}
}

func TestReplicaComparatorAgreeingReplicasProduceNoViolations(t *testing.T) {
	pairs := []cluster.KeyValue{pair("a", "1"), pair("b", "2"), pair("c", "3")}
	replicas := map[cluster.ReplicaId]*fakeReplica{
		1: {pairs: pairs},
		2: {pairs: pairs},
	}

	entry := cluster.ShardMapEntry{Assignment: cluster.ShardAssignment{
		Range:   cluster.ShardRange{Begin: nil, End: nil},
		ShardID: 1,
		Sources: []cluster.ReplicaId{1, 2},
	}}

	opts := DefaultOptions()
	opts.Distributed = false
	c := newTestComparator(replicas, opts, 2)

	stats := cluster.NewRoundStats()
	err := c.compareShard(context.Background(), entry, stats)
	require.NoError(t, err)
	assert.True(t, stats.Success)
	assert.Empty(t, stats.Violations)
}

func TestReplicaComparatorDivergingReplicasReportDataInconsistent(t *testing.T) {
	replicas := map[cluster.ReplicaId]*fakeReplica{
		1: {pairs: []cluster.KeyValue{pair("a", "1"), pair("b", "2")}},
		2: {pairs: []cluster.KeyValue{pair("a", "1"), pair("b", "DIFFERENT")}},
	}

	entry := cluster.ShardMapEntry{Assignment: cluster.ShardAssignment{
		ShardID: 1,
		Sources: []cluster.ReplicaId{1, 2},
	}}

	opts := DefaultOptions()
	opts.Distributed = false
	c := newTestComparator(replicas, opts, 2)

	stats := cluster.NewRoundStats()
	err := c.compareShard(context.Background(), entry, stats)
	require.NoError(t, err)
	assert.False(t, stats.Success)
	require.Len(t, stats.Violations, 1)
	v := stats.Violations[0]
	assert.Equal(t, "Data inconsistent", v.Kind)
	assert.True(t, v.Fatal)
	assert.Equal(t, []byte("b"), v.Fields["ValueMismatchKey"])
	assert.Equal(t, 1, v.Fields["ValueMismatches"])
	assert.Equal(t, 1, v.Fields["MatchingKVPairs"])
}

func TestClassifyDivergenceWalksBothSortedSequences(t *testing.T) {
	current := []cluster.KeyValue{pair("a", "1"), pair("b", "mismatch"), pair("d", "4")}
	reference := []cluster.KeyValue{pair("a", "1"), pair("b", "2"), pair("c", "3")}

	d := classifyDivergence(current, reference)
	assert.Equal(t, 1, d.matchingKVPairs)
	assert.Equal(t, 1, d.valueMismatches)
	assert.Equal(t, []byte("b"), d.valueMismatchKey)
	assert.Equal(t, 1, d.currentUniques)
	assert.Equal(t, []byte("d"), d.currentUniqueKey)
	assert.Equal(t, 1, d.referenceUniques)
	assert.Equal(t, []byte("c"), d.referenceUniqueKey)
}

func TestReplicaComparatorWrongTeamSizeInQuiescence(t *testing.T) {
	pairs := []cluster.KeyValue{pair("a", "1")}
	replicas := map[cluster.ReplicaId]*fakeReplica{
		1: {pairs: pairs},
	}

	entry := cluster.ShardMapEntry{Assignment: cluster.ShardAssignment{
		ShardID: 1,
		Sources: []cluster.ReplicaId{1},
	}}

	opts := DefaultOptions()
	opts.Distributed = false
	opts.PerformQuiescentChecks = true
	c := newTestComparator(replicas, opts, 3)

	stats := cluster.NewRoundStats()
	err := c.compareShard(context.Background(), entry, stats)
	require.NoError(t, err)
	assert.False(t, stats.Success)

	var found bool
	for _, v := range stats.Violations {
		if v.Kind == "Invalid team size" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestReplicaComparatorNonQuiescentUnreachableReplicaIsNonFatal(t *testing.T) {
	replicas := map[cluster.ReplicaId]*fakeReplica{
		1: {pairs: []cluster.KeyValue{pair("a", "1")}},
		2: {err: errors.New("connection refused")},
	}

	entry := cluster.ShardMapEntry{Assignment: cluster.ShardAssignment{
		ShardID: 1,
		Sources: []cluster.ReplicaId{1, 2},
	}}

	opts := DefaultOptions()
	opts.Distributed = false
	opts.PerformQuiescentChecks = false
	c := newTestComparator(replicas, opts, 2)

	stats := cluster.NewRoundStats()
	err := c.compareShard(context.Background(), entry, stats)
	require.NoError(t, err)
	assert.True(t, stats.Success)
}

func TestReplicaComparatorQuiescentUnreachableReplicaIsFatal(t *testing.T) {
	replicas := map[cluster.ReplicaId]*fakeReplica{
		1: {pairs: []cluster.KeyValue{pair("a", "1")}},
		2: {err: errors.New("connection refused")},
	}

	entry := cluster.ShardMapEntry{Assignment: cluster.ShardAssignment{
		ShardID: 1,
		Sources: []cluster.ReplicaId{1, 2},
	}}

	opts := DefaultOptions()
	opts.Distributed = false
	opts.PerformQuiescentChecks = true
	c := newTestComparator(replicas, opts, 2)

	stats := cluster.NewRoundStats()
	err := c.compareShard(context.Background(), entry, stats)
	require.NoError(t, err)
	assert.False(t, stats.Success)
	require.Len(t, stats.Violations, 1)
	assert.Equal(t, "replica unreachable", stats.Violations[0].Kind)
}

func TestReplicaComparatorIncorrectSampledEstimateInQuiescence(t *testing.T) {
	pairs := []cluster.KeyValue{pair("a", "1"), pair("b", "2")}
	replicas := map[cluster.ReplicaId]*fakeReplica{
		1: {pairs: pairs, estimate: cluster.SizeEstimate(999999)},
	}

	entry := cluster.ShardMapEntry{Assignment: cluster.ShardAssignment{
		ShardID: 1,
		Sources: []cluster.ReplicaId{1},
	}}

	opts := DefaultOptions()
	opts.Distributed = false
	opts.PerformQuiescentChecks = true
	c := newTestComparator(replicas, opts, 1)

	stats := cluster.NewRoundStats()
	err := c.compareShard(context.Background(), entry, stats)
	require.NoError(t, err)
	assert.False(t, stats.Success)

	var found bool
	for _, v := range stats.Violations {
		if v.Kind == "Storage servers had incorrect sampled estimate" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestReplicaComparatorSizeOnlySkipsDataComparison(t *testing.T) {
	replicas := map[cluster.ReplicaId]*fakeReplica{
		1: {estimate: cluster.SizeEstimate(100)},
	}
	entry := cluster.ShardMapEntry{Assignment: cluster.ShardAssignment{
		ShardID: 1,
		Sources: []cluster.ReplicaId{1},
	}}

	opts := DefaultOptions()
	c := newTestComparator(replicas, opts, 1)

	stats := cluster.NewRoundStats()
	c.sizeOnly(context.Background(), entry, stats)
	assert.True(t, stats.Success)
}
