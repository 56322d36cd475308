// Package grpcadapter implements the internal/cluster collaborator
// interfaces against real gRPC connections: the worker's
// ConsistencyCheckService and the placement driver's RoutingService,
// both from shared/proto/ccrpc. Its dialing conventions (insecure
// transport, keepalive tuning) mirror worker/internal/pd/client.go.
package grpcadapter

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// ConnPool lazily dials and caches one *grpc.ClientConn per address,
// shared by every collaborator in this package so the checker doesn't
// open a fresh connection per RPC.
type ConnPool struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

// NewConnPool returns an empty pool.
func NewConnPool() *ConnPool {
	return &ConnPool{conns: make(map[string]*grpc.ClientConn)}
}

// Get returns the cached connection for addr, dialing one if needed.
func (p *ConnPool) Get(addr string) (*grpc.ClientConn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.conns[addr]; ok {
		return conn, nil
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                20 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.WithInitialWindowSize(1<<20),
		grpc.WithInitialConnWindowSize(1<<20),
	)
	if err != nil {
		return nil, err
	}
	p.conns[addr] = conn
	return conn, nil
}

// Close tears down every pooled connection.
func (p *ConnPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, conn := range p.conns {
		conn.Close()
	}
	p.conns = make(map[string]*grpc.ClientConn)
}
