package grpcadapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vectron-cce/cce/internal/cluster"
)

func TestReplicaClientsDialUnknownReplicaFailsEveryCall(t *testing.T) {
	r := NewReplicaClients(NewConnPool(), NewAddressDirectory())
	client := r.Dial(cluster.ReplicaId(9))

	_, _, err := client.GetKeyValues(context.Background(), 1, nil, nil, 100)
	assert.ErrorIs(t, err, cluster.ErrPeerUnavailable)

	_, err = client.GetKeyValueStoreType(context.Background(), 1)
	assert.ErrorIs(t, err, cluster.ErrPeerUnavailable)

	est, err := client.WaitMetrics(context.Background(), 1)
	assert.ErrorIs(t, err, cluster.ErrPeerUnavailable)
	assert.Equal(t, cluster.UnavailableSize, est)

	_, err = client.DiskStoreRequest(context.Background())
	assert.ErrorIs(t, err, cluster.ErrPeerUnavailable)
}

func TestUnreachableReplicaWrapsDialError(t *testing.T) {
	u := unreachableReplica{id: 3, err: assertErr("connection refused")}

	_, _, err := u.GetKeyValues(context.Background(), 1, nil, nil, 100)
	assert.ErrorIs(t, err, cluster.ErrPeerUnavailable)

	est, err := u.WaitMetrics(context.Background(), 1)
	assert.ErrorIs(t, err, cluster.ErrPeerUnavailable)
	assert.Equal(t, cluster.UnavailableSize, est)

	_, err = u.GetKeyValueStoreType(context.Background(), 1)
	assert.ErrorIs(t, err, cluster.ErrPeerUnavailable)

	_, err = u.DiskStoreRequest(context.Background())
	assert.ErrorIs(t, err, cluster.ErrPeerUnavailable)
}

func TestWrapUnavailableJoinsSentinelAndDetail(t *testing.T) {
	err := wrapUnavailable(assertErr("boom"))
	assert.ErrorIs(t, err, cluster.ErrPeerUnavailable)
	assert.Contains(t, err.Error(), "boom")
}
