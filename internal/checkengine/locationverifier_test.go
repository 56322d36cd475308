package checkengine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectron-cce/cce/internal/cluster"
)

func newTestVerifier(replicas map[cluster.ReplicaId]*fakeReplica, opts Options) *LocationVerifier {
	txn := &fakeTransaction{}
	oracle := NewVersionOracle(txn, discardLogger())
	return NewLocationVerifier(oracle, fakeDial(replicas), opts)
}

func TestLocationVerifierAgreeingReplicasMergeCleanly(t *testing.T) {
	pairs := []cluster.KeyValue{pair("a", "1"), pair("b", "2")}
	replicas := map[cluster.ReplicaId]*fakeReplica{
		1: {pairs: pairs},
		2: {pairs: pairs},
	}
	reconciled := []cluster.ShardMapEntry{{Assignment: cluster.ShardAssignment{
		Range:   cluster.ShardRange{Begin: []byte("a"), End: []byte("z")},
		ShardID: 1,
		Sources: []cluster.ReplicaId{1, 2},
	}}}

	v := newTestVerifier(replicas, DefaultOptions())
	stats := cluster.NewRoundStats()

	merged, err := v.Verify(context.Background(), reconciled, stats)
	require.NoError(t, err)
	assert.True(t, stats.Success)
	require.Len(t, merged, 1)
}

func TestLocationVerifierDisagreeingReplicasFailRound(t *testing.T) {
	replicas := map[cluster.ReplicaId]*fakeReplica{
		1: {pairs: []cluster.KeyValue{pair("a", "1")}},
		2: {pairs: []cluster.KeyValue{pair("a", "DIFFERENT")}},
	}
	reconciled := []cluster.ShardMapEntry{{Assignment: cluster.ShardAssignment{
		Range:   cluster.ShardRange{Begin: []byte("a"), End: []byte("z")},
		ShardID: 1,
		Sources: []cluster.ReplicaId{1, 2},
	}}}

	v := newTestVerifier(replicas, DefaultOptions())
	stats := cluster.NewRoundStats()

	_, err := v.Verify(context.Background(), reconciled, stats)
	require.Error(t, err)
	assert.False(t, stats.Success)
	require.Len(t, stats.Violations, 1)
	assert.Equal(t, "key servers inconsistent", stats.Violations[0].Kind)
}

func TestLocationVerifierQuiescentUnreachableReplicaFailsRound(t *testing.T) {
	replicas := map[cluster.ReplicaId]*fakeReplica{
		1: {pairs: []cluster.KeyValue{pair("a", "1")}},
		2: {err: errors.New("connection refused")},
	}
	reconciled := []cluster.ShardMapEntry{{Assignment: cluster.ShardAssignment{
		Range:   cluster.ShardRange{Begin: []byte("a"), End: []byte("z")},
		ShardID: 1,
		Sources: []cluster.ReplicaId{1, 2},
	}}}

	opts := DefaultOptions()
	opts.PerformQuiescentChecks = true
	v := newTestVerifier(replicas, opts)
	stats := cluster.NewRoundStats()

	_, err := v.Verify(context.Background(), reconciled, stats)
	require.Error(t, err)
	assert.False(t, stats.Success)
	assert.Equal(t, "replica unreachable", stats.Violations[0].Kind)
}

func TestLocationVerifierNonQuiescentUnreachableReplicaIsTolerated(t *testing.T) {
	replicas := map[cluster.ReplicaId]*fakeReplica{
		1: {pairs: []cluster.KeyValue{pair("a", "1")}},
		2: {err: errors.New("connection refused")},
	}
	reconciled := []cluster.ShardMapEntry{{Assignment: cluster.ShardAssignment{
		Range:   cluster.ShardRange{Begin: []byte("a"), End: []byte("z")},
		ShardID: 1,
		Sources: []cluster.ReplicaId{1, 2},
	}}}

	opts := DefaultOptions()
	opts.PerformQuiescentChecks = false
	v := newTestVerifier(replicas, opts)
	stats := cluster.NewRoundStats()

	merged, err := v.Verify(context.Background(), reconciled, stats)
	require.NoError(t, err)
	assert.True(t, stats.Success)
	require.Len(t, merged, 1)
}

func TestDedupAppendSkipsByteIdenticalRangeAtChunkSeam(t *testing.T) {
	entry := cluster.ShardMapEntry{Assignment: cluster.ShardAssignment{
		Range: cluster.ShardRange{Begin: []byte("a"), End: []byte("b")},
	}}
	merged := dedupAppend(nil, entry)
	merged = dedupAppend(merged, entry)
	assert.Len(t, merged, 1)
}

func TestPairsEqual(t *testing.T) {
	a := []cluster.KeyValue{pair("x", "1")}
	b := []cluster.KeyValue{pair("x", "1")}
	c := []cluster.KeyValue{pair("x", "2")}

	assert.True(t, pairsEqual(a, b))
	assert.False(t, pairsEqual(a, c))
	assert.False(t, pairsEqual(a, nil))
}
