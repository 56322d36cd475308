package grpcadapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogicalClockTransactionReadVersionIsMonotonic(t *testing.T) {
	txn := NewLogicalClockTransaction()

	v1, err := txn.GetReadVersion(context.Background())
	require.NoError(t, err)
	v2, err := txn.GetReadVersion(context.Background())
	require.NoError(t, err)

	assert.Greater(t, v2, v1)
}

func TestLogicalClockTransactionReadVersionRejectsCancelledContext(t *testing.T) {
	txn := NewLogicalClockTransaction()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := txn.GetReadVersion(ctx)
	assert.Error(t, err)
}

func TestLogicalClockTransactionOnErrorRetriesAfterBackoff(t *testing.T) {
	txn := NewLogicalClockTransaction()

	start := time.Now()
	err := txn.OnError(context.Background(), assertErr("transient"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestLogicalClockTransactionOnErrorPropagatesCancellation(t *testing.T) {
	txn := NewLogicalClockTransaction()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := txn.OnError(ctx, context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
}
