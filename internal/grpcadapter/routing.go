package grpcadapter

import (
	"context"
	"sync"

	"github.com/vectron-cce/cce/internal/cluster"
	ccepb "github.com/vectron-cce/cce/shared/proto/ccrpc"
)

// RoutingNodes is a static, refreshable list of placement driver
// addresses. vectron's placement driver exposes no membership-change
// push notification to external clients, so OnRoutingNodesChanged here
// fires only when SetAddresses is called explicitly (e.g. from a
// periodic re-read of a config file or discovery source); a checker run
// against a fixed address list simply never receives a signal, which is
// correct for that case.
type RoutingNodes struct {
	mu      sync.Mutex
	addrs   []string
	changed chan struct{}
}

// NewRoutingNodes starts the registry with a fixed address list.
func NewRoutingNodes(addrs []string) *RoutingNodes {
	return &RoutingNodes{addrs: addrs, changed: make(chan struct{})}
}

func (r *RoutingNodes) RoutingNodes(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.addrs))
	copy(out, r.addrs)
	return out, nil
}

func (r *RoutingNodes) OnRoutingNodesChanged() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.changed
}

// SetAddresses replaces the known address list and wakes any caller
// blocked in OnRoutingNodesChanged.
func (r *RoutingNodes) SetAddresses(addrs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addrs = addrs
	close(r.changed)
	r.changed = make(chan struct{})
}

// AddressDirectory tracks the most recently observed gRPC address for
// every replica id, populated as a side effect of every
// GetKeyServersLocations response. The cluster package's shard-map model
// intentionally carries only replica ids (a ShardAssignment has no room
// for addresses), so resolving an id to a dialable address is this
// package's concern, not the checker core's.
type AddressDirectory struct {
	mu   sync.Mutex
	addr map[cluster.ReplicaId]string
}

// NewAddressDirectory returns an empty directory.
func NewAddressDirectory() *AddressDirectory {
	return &AddressDirectory{addr: make(map[cluster.ReplicaId]string)}
}

func (d *AddressDirectory) update(endpoints ...[]*ccepb.ReplicaEndpoint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, list := range endpoints {
		for _, e := range list {
			d.addr[cluster.ReplicaId(e.GetWorkerId())] = e.GetGrpcAddress()
		}
	}
}

// Get returns the known address for id, if any.
func (d *AddressDirectory) Get(id cluster.ReplicaId) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr, ok := d.addr[id]
	return addr, ok
}

// RoutingDialer produces a cluster.RoutingClient for a placement driver
// address, dialing lazily through the shared connection pool and
// recording every replica address it observes into dir.
type RoutingDialer struct {
	pool *ConnPool
	dir  *AddressDirectory
}

// NewRoutingDialer wraps a ConnPool for routing-node RPCs, recording
// observed replica addresses into dir.
func NewRoutingDialer(pool *ConnPool, dir *AddressDirectory) *RoutingDialer {
	return &RoutingDialer{pool: pool, dir: dir}
}

// Dial returns the RoutingClient for addr.
func (d *RoutingDialer) Dial(addr string) cluster.RoutingClient {
	conn, err := d.pool.Get(addr)
	if err != nil {
		return unreachableRouting{addr: addr, err: err}
	}
	return &routingClient{client: ccepb.NewRoutingServiceClient(conn), dir: d.dir}
}

type unreachableRouting struct {
	addr string
	err  error
}

func (u unreachableRouting) GetKeyServersLocations(context.Context, []byte, []byte, int) ([]cluster.ShardMapEntry, bool, error) {
	return nil, false, wrapUnavailable(u.err)
}

type routingClient struct {
	client ccepb.RoutingServiceClient
	dir    *AddressDirectory
}

func (r *routingClient) GetKeyServersLocations(ctx context.Context, begin, end []byte, limit int) ([]cluster.ShardMapEntry, bool, error) {
	resp, err := r.client.GetKeyServersLocations(ctx, &ccepb.GetKeyServersLocationsRequest{
		RangeBegin: begin,
		RangeEnd:   end,
		Limit:      int32(limit),
	})
	if err != nil {
		return nil, false, wrapUnavailable(err)
	}

	entries := make([]cluster.ShardMapEntry, 0, len(resp.GetEntries()))
	for _, e := range resp.GetEntries() {
		if r.dir != nil {
			r.dir.update(e.GetSourceReplicas(), e.GetDestReplicas())
		}
		entries = append(entries, cluster.ShardMapEntry{
			Assignment: cluster.ShardAssignment{
				Range:        cluster.ShardRange{Begin: e.GetRangeBegin(), End: e.GetRangeEnd()},
				ShardID:      firstShardID(e.GetSourceReplicas(), e.GetDestReplicas()),
				Sources:      replicaIDs(e.GetSourceReplicas()),
				Destinations: replicaIDs(e.GetDestReplicas()),
				Epoch:        e.GetEpoch(),
			},
		})
	}
	return entries, resp.GetMore(), nil
}

func replicaIDs(endpoints []*ccepb.ReplicaEndpoint) []cluster.ReplicaId {
	ids := make([]cluster.ReplicaId, 0, len(endpoints))
	for _, e := range endpoints {
		ids = append(ids, cluster.ReplicaId(e.GetWorkerId()))
	}
	return ids
}

// firstShardID pulls the shard id any of this entry's replica endpoints
// carries — they all name the same shard, since ShardMapEntry is built
// per-shard on the server side.
func firstShardID(lists ...[]*ccepb.ReplicaEndpoint) uint64 {
	for _, list := range lists {
		if len(list) > 0 {
			return list[0].GetShardId()
		}
	}
	return 0
}

