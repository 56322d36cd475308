package grpcadapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectron-cce/cce/internal/cluster"
	ccepb "github.com/vectron-cce/cce/shared/proto/ccrpc"
)

func TestRoutingNodesReturnsACopyOfTheAddressList(t *testing.T) {
	r := NewRoutingNodes([]string{"a:1", "b:2"})

	out, err := r.RoutingNodes(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a:1", "b:2"}, out)

	out[0] = "mutated"
	out2, err := r.RoutingNodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a:1", out2[0])
}

func TestRoutingNodesSetAddressesWakesChangedChannel(t *testing.T) {
	r := NewRoutingNodes([]string{"a:1"})
	changed := r.OnRoutingNodesChanged()

	done := make(chan struct{})
	go func() {
		r.SetAddresses([]string{"a:1", "b:2"})
		close(done)
	}()

	select {
	case <-changed:
	case <-time.After(time.Second):
		t.Fatal("OnRoutingNodesChanged did not fire after SetAddresses")
	}
	<-done

	out, err := r.RoutingNodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1", "b:2"}, out)
}

func TestAddressDirectoryUpdateAndGet(t *testing.T) {
	dir := NewAddressDirectory()

	_, ok := dir.Get(cluster.ReplicaId(1))
	assert.False(t, ok)

	dir.update(
		[]*ccepb.ReplicaEndpoint{{WorkerId: 1, GrpcAddress: "host-a:9000"}},
		[]*ccepb.ReplicaEndpoint{{WorkerId: 2, GrpcAddress: "host-b:9000"}},
	)

	addr, ok := dir.Get(cluster.ReplicaId(1))
	require.True(t, ok)
	assert.Equal(t, "host-a:9000", addr)

	addr, ok = dir.Get(cluster.ReplicaId(2))
	require.True(t, ok)
	assert.Equal(t, "host-b:9000", addr)

	_, ok = dir.Get(cluster.ReplicaId(3))
	assert.False(t, ok)
}

func TestAddressDirectoryUpdateOverwritesStaleAddress(t *testing.T) {
	dir := NewAddressDirectory()
	dir.update([]*ccepb.ReplicaEndpoint{{WorkerId: 1, GrpcAddress: "old:1"}})
	dir.update([]*ccepb.ReplicaEndpoint{{WorkerId: 1, GrpcAddress: "new:2"}})

	addr, ok := dir.Get(cluster.ReplicaId(1))
	require.True(t, ok)
	assert.Equal(t, "new:2", addr)
}

func TestUnreachableRoutingReturnsPeerUnavailable(t *testing.T) {
	u := unreachableRouting{addr: "dead:1", err: assertErr("dial refused")}
	_, _, err := u.GetKeyServersLocations(context.Background(), nil, nil, 100)
	assert.ErrorIs(t, err, cluster.ErrPeerUnavailable)
}

func TestReplicaIDsExtractsWorkerIDs(t *testing.T) {
	ids := replicaIDs([]*ccepb.ReplicaEndpoint{{WorkerId: 5}, {WorkerId: 7}})
	assert.Equal(t, []cluster.ReplicaId{5, 7}, ids)
}

func TestFirstShardIDPicksFirstNonEmptyList(t *testing.T) {
	id := firstShardID(nil, []*ccepb.ReplicaEndpoint{{ShardId: 42}})
	assert.Equal(t, uint64(42), id)
}

func TestFirstShardIDDefaultsToZeroWhenAllListsEmpty(t *testing.T) {
	id := firstShardID(nil, []*ccepb.ReplicaEndpoint{})
	assert.Equal(t, uint64(0), id)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
