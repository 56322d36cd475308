package checkengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectron-cce/cce/internal/cluster"
)

type fakeDatabase struct {
	nodes []string
}

func (f *fakeDatabase) RoutingNodes(ctx context.Context) ([]string, error) {
	return f.nodes, nil
}

func (f *fakeDatabase) OnRoutingNodesChanged() <-chan struct{} {
	return make(chan struct{})
}

type fakeRoutingClient struct {
	entries []cluster.ShardMapEntry
}

func (f *fakeRoutingClient) GetKeyServersLocations(ctx context.Context, begin, end []byte, limit int) ([]cluster.ShardMapEntry, bool, error) {
	return f.entries, false, nil
}

func singleShardEntries() []cluster.ShardMapEntry {
	return []cluster.ShardMapEntry{{Assignment: cluster.ShardAssignment{
		Range:   cluster.ShardRange{Begin: nil, End: nil},
		ShardID: 1,
		Sources: []cluster.ReplicaId{1, 2},
	}}}
}

func TestReconcilerAgreeingNodesProduceEntries(t *testing.T) {
	entries := singleShardEntries()
	db := &fakeDatabase{nodes: []string{"node-a", "node-b"}}
	dial := func(addr string) cluster.RoutingClient { return &fakeRoutingClient{entries: entries} }

	opts := DefaultOptions()
	opts.PerformQuiescentChecks = true
	r := NewShardMapReconciler(db, dial, opts, discardLogger())

	stats := cluster.NewRoundStats()
	out, err := r.Reconcile(context.Background(), stats)
	require.NoError(t, err)
	assert.True(t, stats.Success)
	require.Len(t, out, 1)
}

func TestReconcilerDisagreeingNodesFailInQuiescence(t *testing.T) {
	db := &fakeDatabase{nodes: []string{"node-a", "node-b"}}
	dial := func(addr string) cluster.RoutingClient {
		if addr == "node-a" {
			return &fakeRoutingClient{entries: singleShardEntries()}
		}
		other := singleShardEntries()
		other[0].Assignment.Sources = []cluster.ReplicaId{1, 3}
		return &fakeRoutingClient{entries: other}
	}

	opts := DefaultOptions()
	opts.PerformQuiescentChecks = true
	r := NewShardMapReconciler(db, dial, opts, discardLogger())

	stats := cluster.NewRoundStats()
	_, err := r.Reconcile(context.Background(), stats)
	require.Error(t, err)
	assert.False(t, stats.Success)
	require.NotEmpty(t, stats.Violations)
	assert.Equal(t, "key servers inconsistent", stats.Violations[0].Kind)
}

func TestReconcilerNonQuiescentTakesFirstResponse(t *testing.T) {
	db := &fakeDatabase{nodes: []string{"node-a", "node-b"}}
	dial := func(addr string) cluster.RoutingClient {
		if addr == "node-a" {
			return &fakeRoutingClient{entries: singleShardEntries()}
		}
		other := singleShardEntries()
		other[0].Assignment.Sources = []cluster.ReplicaId{1, 3}
		return &fakeRoutingClient{entries: other}
	}

	opts := DefaultOptions()
	opts.PerformQuiescentChecks = false
	r := NewShardMapReconciler(db, dial, opts, discardLogger())

	stats := cluster.NewRoundStats()
	out, err := r.Reconcile(context.Background(), stats)
	require.NoError(t, err)
	assert.True(t, stats.Success)
	require.Len(t, out, 1)
}

func TestShardMapEntriesEqual(t *testing.T) {
	a := singleShardEntries()
	b := singleShardEntries()
	assert.True(t, shardMapEntriesEqual(a, b))

	b[0].Assignment.Sources = []cluster.ReplicaId{9}
	assert.False(t, shardMapEntriesEqual(a, b))
}
