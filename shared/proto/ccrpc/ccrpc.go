// Package ccrpc defines the wire types and service interfaces for the
// consistency checker's two new RPC surfaces: the worker-side replica
// endpoint (GetKeyValues/WaitMetrics/GetKeyValueStoreType/
// DiskStoreRequest) and the placement-driver-side routing endpoint
// (GetKeyServersLocations). Unlike shared/proto/worker and
// shared/proto/placementdriver, it is hand-authored Go with no .proto
// source, written in the shape protoc-gen-go-grpc emits.
package ccrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// KeyValue is one stored pair as returned by a streaming range read.
type KeyValue struct {
	Key   []byte
	Value []byte
}

func (m *KeyValue) GetKey() []byte {
	if m == nil {
		return nil
	}
	return m.Key
}

func (m *KeyValue) GetValue() []byte {
	if m == nil {
		return nil
	}
	return m.Value
}

// GetKeyValuesRequest asks one replica for a bounded range of its own
// locally-stored key-value pairs.
type GetKeyValuesRequest struct {
	ShardId  uint64
	StartKey []byte
	EndKey   []byte
	Limit    int32
}

func (m *GetKeyValuesRequest) GetShardId() uint64 {
	if m == nil {
		return 0
	}
	return m.ShardId
}
func (m *GetKeyValuesRequest) GetStartKey() []byte {
	if m == nil {
		return nil
	}
	return m.StartKey
}
func (m *GetKeyValuesRequest) GetEndKey() []byte {
	if m == nil {
		return nil
	}
	return m.EndKey
}
func (m *GetKeyValuesRequest) GetLimit() int32 {
	if m == nil {
		return 0
	}
	return m.Limit
}

// GetKeyValuesResponse carries one page of a streaming range read.
type GetKeyValuesResponse struct {
	Pairs []*KeyValue
	More  bool
}

func (m *GetKeyValuesResponse) GetPairs() []*KeyValue {
	if m == nil {
		return nil
	}
	return m.Pairs
}
func (m *GetKeyValuesResponse) GetMore() bool {
	if m == nil {
		return false
	}
	return m.More
}

// WaitMetricsRequest asks a replica for its own running size estimate.
type WaitMetricsRequest struct {
	ShardId uint64
}

func (m *WaitMetricsRequest) GetShardId() uint64 {
	if m == nil {
		return 0
	}
	return m.ShardId
}

// WaitMetricsResponse reports the replica's current sampled-byte estimate.
type WaitMetricsResponse struct {
	SizeEstimateBytes int64
}

func (m *WaitMetricsResponse) GetSizeEstimateBytes() int64 {
	if m == nil {
		return 0
	}
	return m.SizeEstimateBytes
}

// GetKeyValueStoreTypeRequest asks a replica which storage engine it runs.
type GetKeyValueStoreTypeRequest struct {
	ShardId uint64
}

func (m *GetKeyValueStoreTypeRequest) GetShardId() uint64 {
	if m == nil {
		return 0
	}
	return m.ShardId
}

// GetKeyValueStoreTypeResponse names the storage engine.
type GetKeyValueStoreTypeResponse struct {
	StoreType string
}

func (m *GetKeyValueStoreTypeResponse) GetStoreType() string {
	if m == nil {
		return ""
	}
	return m.StoreType
}

// DiskStoreRequestRequest asks a worker to enumerate every data store it
// actually holds on disk, independent of which shards the placement
// driver currently assigns it — a worker-wide query, not a per-shard one.
type DiskStoreRequestRequest struct{}

// DiskStoreRequestResponse lists the shard ids the worker found a local
// on-disk store for. A store id with no corresponding live assignment is
// an orphan left behind by a shard relocation.
type DiskStoreRequestResponse struct {
	StoreIds []uint64
}

func (m *DiskStoreRequestResponse) GetStoreIds() []uint64 {
	if m == nil {
		return nil
	}
	return m.StoreIds
}

// ReplicaEndpoint names one worker's address for a specific shard, as
// reported by the placement driver's routing view.
type ReplicaEndpoint struct {
	WorkerId    uint64
	GrpcAddress string
	ShardId     uint64
}

func (m *ReplicaEndpoint) GetWorkerId() uint64 {
	if m == nil {
		return 0
	}
	return m.WorkerId
}
func (m *ReplicaEndpoint) GetGrpcAddress() string {
	if m == nil {
		return ""
	}
	return m.GrpcAddress
}
func (m *ReplicaEndpoint) GetShardId() uint64 {
	if m == nil {
		return 0
	}
	return m.ShardId
}

// ShardMapEntry pairs a byte-key range with the replicas currently
// assigned to it, per the placement driver's own shard map.
type ShardMapEntry struct {
	RangeBegin     []byte
	RangeEnd       []byte
	SourceReplicas []*ReplicaEndpoint
	DestReplicas   []*ReplicaEndpoint
	Epoch          uint64
}

func (m *ShardMapEntry) GetRangeBegin() []byte {
	if m == nil {
		return nil
	}
	return m.RangeBegin
}
func (m *ShardMapEntry) GetRangeEnd() []byte {
	if m == nil {
		return nil
	}
	return m.RangeEnd
}
func (m *ShardMapEntry) GetSourceReplicas() []*ReplicaEndpoint {
	if m == nil {
		return nil
	}
	return m.SourceReplicas
}
func (m *ShardMapEntry) GetDestReplicas() []*ReplicaEndpoint {
	if m == nil {
		return nil
	}
	return m.DestReplicas
}
func (m *ShardMapEntry) GetEpoch() uint64 {
	if m == nil {
		return 0
	}
	return m.Epoch
}

// GetKeyServersLocationsRequest restricts a shard-map query to a byte-key
// range, paged by Limit.
type GetKeyServersLocationsRequest struct {
	RangeBegin []byte
	RangeEnd   []byte
	Limit      int32
}

func (m *GetKeyServersLocationsRequest) GetRangeBegin() []byte {
	if m == nil {
		return nil
	}
	return m.RangeBegin
}
func (m *GetKeyServersLocationsRequest) GetRangeEnd() []byte {
	if m == nil {
		return nil
	}
	return m.RangeEnd
}
func (m *GetKeyServersLocationsRequest) GetLimit() int32 {
	if m == nil {
		return 0
	}
	return m.Limit
}

// GetKeyServersLocationsResponse is one page of the shard map.
type GetKeyServersLocationsResponse struct {
	Entries []*ShardMapEntry
	More    bool
}

func (m *GetKeyServersLocationsResponse) GetEntries() []*ShardMapEntry {
	if m == nil {
		return nil
	}
	return m.Entries
}
func (m *GetKeyServersLocationsResponse) GetMore() bool {
	if m == nil {
		return false
	}
	return m.More
}

// GetClusterConfigRequest has no fields; the cluster carries one config.
type GetClusterConfigRequest struct{}

// GetClusterConfigResponse reports the settings the Replica Comparator
// and Cluster Invariant Auditor check replicas against.
type GetClusterConfigResponse struct {
	StorageTeamSize  int32
	DesiredStoreType string
	ExcludedWorkers  []uint64
}

func (m *GetClusterConfigResponse) GetStorageTeamSize() int32 {
	if m == nil {
		return 0
	}
	return m.StorageTeamSize
}
func (m *GetClusterConfigResponse) GetDesiredStoreType() string {
	if m == nil {
		return ""
	}
	return m.DesiredStoreType
}
func (m *GetClusterConfigResponse) GetExcludedWorkers() []uint64 {
	if m == nil {
		return nil
	}
	return m.ExcludedWorkers
}

// ConsistencyCheckServiceServer is the worker-side replica endpoint the
// consistency checker drives directly.
type ConsistencyCheckServiceServer interface {
	GetKeyValues(context.Context, *GetKeyValuesRequest) (*GetKeyValuesResponse, error)
	WaitMetrics(context.Context, *WaitMetricsRequest) (*WaitMetricsResponse, error)
	GetKeyValueStoreType(context.Context, *GetKeyValueStoreTypeRequest) (*GetKeyValueStoreTypeResponse, error)
	DiskStoreRequest(context.Context, *DiskStoreRequestRequest) (*DiskStoreRequestResponse, error)
}

// UnimplementedConsistencyCheckServiceServer must be embedded for
// forward-compatibility, matching every other generated service in this
// module.
type UnimplementedConsistencyCheckServiceServer struct{}

func (UnimplementedConsistencyCheckServiceServer) GetKeyValues(context.Context, *GetKeyValuesRequest) (*GetKeyValuesResponse, error) {
	return nil, errUnimplemented("GetKeyValues")
}
func (UnimplementedConsistencyCheckServiceServer) WaitMetrics(context.Context, *WaitMetricsRequest) (*WaitMetricsResponse, error) {
	return nil, errUnimplemented("WaitMetrics")
}
func (UnimplementedConsistencyCheckServiceServer) GetKeyValueStoreType(context.Context, *GetKeyValueStoreTypeRequest) (*GetKeyValueStoreTypeResponse, error) {
	return nil, errUnimplemented("GetKeyValueStoreType")
}
func (UnimplementedConsistencyCheckServiceServer) DiskStoreRequest(context.Context, *DiskStoreRequestRequest) (*DiskStoreRequestResponse, error) {
	return nil, errUnimplemented("DiskStoreRequest")
}

// RoutingServiceServer is the placement-driver-side shard-map endpoint.
type RoutingServiceServer interface {
	GetKeyServersLocations(context.Context, *GetKeyServersLocationsRequest) (*GetKeyServersLocationsResponse, error)
	GetClusterConfig(context.Context, *GetClusterConfigRequest) (*GetClusterConfigResponse, error)
}

// UnimplementedRoutingServiceServer must be embedded for
// forward-compatibility.
type UnimplementedRoutingServiceServer struct{}

func (UnimplementedRoutingServiceServer) GetKeyServersLocations(context.Context, *GetKeyServersLocationsRequest) (*GetKeyServersLocationsResponse, error) {
	return nil, errUnimplemented("GetKeyServersLocations")
}
func (UnimplementedRoutingServiceServer) GetClusterConfig(context.Context, *GetClusterConfigRequest) (*GetClusterConfigResponse, error) {
	return nil, errUnimplemented("GetClusterConfig")
}

// RegisterConsistencyCheckServiceServer and RegisterRoutingServiceServer
// mirror the registration functions protoc-gen-go-grpc emits; since both
// services here are hand-authored rather than generated, each simply
// records its handler under the fixed service name used by the client
// Invoke() calls below.
func RegisterConsistencyCheckServiceServer(s grpc.ServiceRegistrar, srv ConsistencyCheckServiceServer) {
	s.RegisterService(&consistencyCheckServiceDesc, srv)
}

func RegisterRoutingServiceServer(s grpc.ServiceRegistrar, srv RoutingServiceServer) {
	s.RegisterService(&routingServiceDesc, srv)
}

var consistencyCheckServiceDesc = grpc.ServiceDesc{
	ServiceName: "ccrpc.ConsistencyCheckService",
	HandlerType: (*ConsistencyCheckServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetKeyValues", Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(GetKeyValuesRequest)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return srv.(ConsistencyCheckServiceServer).GetKeyValues(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/ccrpc.ConsistencyCheckService/GetKeyValues"}, func(ctx context.Context, req interface{}) (interface{}, error) {
				return srv.(ConsistencyCheckServiceServer).GetKeyValues(ctx, req.(*GetKeyValuesRequest))
			})
		}},
		{MethodName: "WaitMetrics", Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(WaitMetricsRequest)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return srv.(ConsistencyCheckServiceServer).WaitMetrics(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/ccrpc.ConsistencyCheckService/WaitMetrics"}, func(ctx context.Context, req interface{}) (interface{}, error) {
				return srv.(ConsistencyCheckServiceServer).WaitMetrics(ctx, req.(*WaitMetricsRequest))
			})
		}},
		{MethodName: "GetKeyValueStoreType", Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(GetKeyValueStoreTypeRequest)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return srv.(ConsistencyCheckServiceServer).GetKeyValueStoreType(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/ccrpc.ConsistencyCheckService/GetKeyValueStoreType"}, func(ctx context.Context, req interface{}) (interface{}, error) {
				return srv.(ConsistencyCheckServiceServer).GetKeyValueStoreType(ctx, req.(*GetKeyValueStoreTypeRequest))
			})
		}},
		{MethodName: "DiskStoreRequest", Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(DiskStoreRequestRequest)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return srv.(ConsistencyCheckServiceServer).DiskStoreRequest(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/ccrpc.ConsistencyCheckService/DiskStoreRequest"}, func(ctx context.Context, req interface{}) (interface{}, error) {
				return srv.(ConsistencyCheckServiceServer).DiskStoreRequest(ctx, req.(*DiskStoreRequestRequest))
			})
		}},
	},
}

var routingServiceDesc = grpc.ServiceDesc{
	ServiceName: "ccrpc.RoutingService",
	HandlerType: (*RoutingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetKeyServersLocations", Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(GetKeyServersLocationsRequest)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return srv.(RoutingServiceServer).GetKeyServersLocations(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/ccrpc.RoutingService/GetKeyServersLocations"}, func(ctx context.Context, req interface{}) (interface{}, error) {
				return srv.(RoutingServiceServer).GetKeyServersLocations(ctx, req.(*GetKeyServersLocationsRequest))
			})
		}},
		{MethodName: "GetClusterConfig", Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(GetClusterConfigRequest)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return srv.(RoutingServiceServer).GetClusterConfig(ctx, in)
			}
			return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: "/ccrpc.RoutingService/GetClusterConfig"}, func(ctx context.Context, req interface{}) (interface{}, error) {
				return srv.(RoutingServiceServer).GetClusterConfig(ctx, req.(*GetClusterConfigRequest))
			})
		}},
	},
}

func errUnimplemented(method string) error {
	return status.Error(codes.Unimplemented, fmt.Sprintf("method %s not implemented", method))
}

// ConsistencyCheckServiceClient and RoutingServiceClient are the
// corresponding client-side handles internal/grpcadapter dials against.
type ConsistencyCheckServiceClient interface {
	GetKeyValues(ctx context.Context, in *GetKeyValuesRequest, opts ...grpc.CallOption) (*GetKeyValuesResponse, error)
	WaitMetrics(ctx context.Context, in *WaitMetricsRequest, opts ...grpc.CallOption) (*WaitMetricsResponse, error)
	GetKeyValueStoreType(ctx context.Context, in *GetKeyValueStoreTypeRequest, opts ...grpc.CallOption) (*GetKeyValueStoreTypeResponse, error)
	DiskStoreRequest(ctx context.Context, in *DiskStoreRequestRequest, opts ...grpc.CallOption) (*DiskStoreRequestResponse, error)
}

type RoutingServiceClient interface {
	GetKeyServersLocations(ctx context.Context, in *GetKeyServersLocationsRequest, opts ...grpc.CallOption) (*GetKeyServersLocationsResponse, error)
	GetClusterConfig(ctx context.Context, in *GetClusterConfigRequest, opts ...grpc.CallOption) (*GetClusterConfigResponse, error)
}

type consistencyCheckServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewConsistencyCheckServiceClient builds a client handle over an existing
// connection, exactly like every other NewXxxClient constructor in this
// module's generated packages.
func NewConsistencyCheckServiceClient(cc grpc.ClientConnInterface) ConsistencyCheckServiceClient {
	return &consistencyCheckServiceClient{cc: cc}
}

func (c *consistencyCheckServiceClient) GetKeyValues(ctx context.Context, in *GetKeyValuesRequest, opts ...grpc.CallOption) (*GetKeyValuesResponse, error) {
	out := new(GetKeyValuesResponse)
	err := c.cc.Invoke(ctx, "/ccrpc.ConsistencyCheckService/GetKeyValues", in, out, opts...)
	return out, err
}

func (c *consistencyCheckServiceClient) WaitMetrics(ctx context.Context, in *WaitMetricsRequest, opts ...grpc.CallOption) (*WaitMetricsResponse, error) {
	out := new(WaitMetricsResponse)
	err := c.cc.Invoke(ctx, "/ccrpc.ConsistencyCheckService/WaitMetrics", in, out, opts...)
	return out, err
}

func (c *consistencyCheckServiceClient) GetKeyValueStoreType(ctx context.Context, in *GetKeyValueStoreTypeRequest, opts ...grpc.CallOption) (*GetKeyValueStoreTypeResponse, error) {
	out := new(GetKeyValueStoreTypeResponse)
	err := c.cc.Invoke(ctx, "/ccrpc.ConsistencyCheckService/GetKeyValueStoreType", in, out, opts...)
	return out, err
}

func (c *consistencyCheckServiceClient) DiskStoreRequest(ctx context.Context, in *DiskStoreRequestRequest, opts ...grpc.CallOption) (*DiskStoreRequestResponse, error) {
	out := new(DiskStoreRequestResponse)
	err := c.cc.Invoke(ctx, "/ccrpc.ConsistencyCheckService/DiskStoreRequest", in, out, opts...)
	return out, err
}

type routingServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewRoutingServiceClient builds a client handle over an existing
// connection to a placement driver node.
func NewRoutingServiceClient(cc grpc.ClientConnInterface) RoutingServiceClient {
	return &routingServiceClient{cc: cc}
}

func (c *routingServiceClient) GetKeyServersLocations(ctx context.Context, in *GetKeyServersLocationsRequest, opts ...grpc.CallOption) (*GetKeyServersLocationsResponse, error) {
	out := new(GetKeyServersLocationsResponse)
	err := c.cc.Invoke(ctx, "/ccrpc.RoutingService/GetKeyServersLocations", in, out, opts...)
	return out, err
}

func (c *routingServiceClient) GetClusterConfig(ctx context.Context, in *GetClusterConfigRequest, opts ...grpc.CallOption) (*GetClusterConfigResponse, error) {
	out := new(GetClusterConfigResponse)
	err := c.cc.Invoke(ctx, "/ccrpc.RoutingService/GetClusterConfig", in, out, opts...)
	return out, err
}
