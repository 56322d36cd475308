package checkengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateGateDisabledIsNoOp(t *testing.T) {
	g := NewRateGate(0, 1)
	start := time.Now()
	require.NoError(t, g.Acquire(context.Background(), 1<<30))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestRateGateThrottlesOverBurst(t *testing.T) {
	// 10 bytes/sec, 1 second window -> burst of 10. Asking for 25 bytes
	// must take noticeably longer than a single burst-sized request.
	g := NewRateGate(10, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	require.NoError(t, g.Acquire(ctx, 25))
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
}

func TestRateGateRespectsContextCancellation(t *testing.T) {
	g := NewRateGate(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Drain the initial burst, then the next acquire must observe the
	// already-cancelled context rather than blocking.
	_ = g.Acquire(context.Background(), 1)
	err := g.Acquire(ctx, 1)
	assert.Error(t, err)
}
