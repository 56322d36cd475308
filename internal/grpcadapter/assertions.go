package grpcadapter

import "github.com/vectron-cce/cce/internal/cluster"

// Compile-time checks that every adapter in this package actually
// satisfies the collaborator interface it's meant to implement.
var (
	_ cluster.Database             = (*RoutingNodes)(nil)
	_ cluster.DbInfo               = (*ClusterInfo)(nil)
	_ cluster.Transaction          = (*LogicalClockTransaction)(nil)
	_ cluster.RoutingClient        = (*routingClient)(nil)
	_ cluster.RoutingClient        = unreachableRouting{}
	_ cluster.ReplicaEndpointClient = (*replicaClient)(nil)
	_ cluster.ReplicaEndpointClient = unknownReplica{}
	_ cluster.ReplicaEndpointClient = unreachableReplica{}
)
