package grpcadapter

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/vectron-cce/cce/internal/cluster"
)

// LogicalClockTransaction stands in for the transactional runtime the
// Version Oracle was written against. vectron has no distributed
// transaction manager of its own — shard data is read directly off each
// replica's Raft-backed state machine — so there is no real read-version
// service to call. Instead this hands out a monotonically increasing
// counter, sufficient to pin one comparison step's RPC fan-out to a
// single nominal version without true multi-key snapshot isolation.
type LogicalClockTransaction struct {
	counter uint64
}

// NewLogicalClockTransaction returns a fresh monotonic version source.
func NewLogicalClockTransaction() *LogicalClockTransaction {
	return &LogicalClockTransaction{}
}

func (t *LogicalClockTransaction) GetReadVersion(ctx context.Context) (uint64, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	return atomic.AddUint64(&t.counter, 1), nil
}

// OnError backs off briefly and signals retry for anything except
// context cancellation, since GetReadVersion above never itself returns
// a retryable application error — this exists to satisfy the
// cluster.Transaction contract rather than to recover from a real
// transactional fault.
func (t *LogicalClockTransaction) OnError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}
	return nil
}

var _ cluster.Transaction = (*LogicalClockTransaction)(nil)
