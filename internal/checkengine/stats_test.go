package checkengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectron-cce/cce/internal/cluster"
)

func TestShardStatsObserveAccumulatesActualBytes(t *testing.T) {
	var s shardStats
	bounds := cluster.ShardSizeBounds{Min: 1024, Max: 1 << 30}

	sample := s.Observe([]byte("key-a"), []byte("some value"), bounds)
	require.True(t, sample.ActualSize > 0)
	assert.Equal(t, sample.ActualSize, s.shardBytes)

	sample2 := s.Observe([]byte("key-b"), []byte("another value"), bounds)
	assert.Equal(t, sample.ActualSize+sample2.ActualSize, s.shardBytes)
}

func TestShardStatsWithinStatisticalBoundIgnoresSmallSamples(t *testing.T) {
	var s shardStats
	// Fewer than 30 samples: the check must never fire regardless of
	// how far shardBytes and sampledBytes have drifted apart.
	s.sampledKeys = 10
	s.shardBytes = 1_000_000
	s.sampledBytes = 1
	assert.True(t, s.withinStatisticalBound())
}

func TestShardStatsWithinStatisticalBoundHonorsSevenSigma(t *testing.T) {
	s := shardStats{sampledKeys: 31, shardVariance: 100}
	// stddev = 10, so the bound is 70.
	s.shardBytes = 1000
	s.sampledBytes = 1000 - 70
	assert.True(t, s.withinStatisticalBound())

	s.sampledBytes = 1000 - 71
	assert.False(t, s.withinStatisticalBound())
}

func TestShardStatsSplitIsFairRequiresRemainderAboveMin(t *testing.T) {
	bounds := cluster.ShardSizeBounds{Min: 100, Max: 10000}
	s := shardStats{}

	// Build up sampledBytes past bounds.Min with a small key so canSplit
	// latches on.
	for i := 0; i < 5; i++ {
		s.Observe([]byte("k"), make([]byte, 40), bounds)
	}
	if !s.canSplit {
		t.Skip("sampling is probabilistic; canSplit did not latch this run")
	}

	// Not enough bytes observed past the split point yet.
	s.sampledBytes = s.splitBytes
	assert.False(t, s.splitIsFair(bounds))

	s.sampledBytes = s.splitBytes + bounds.Min
	assert.True(t, s.splitIsFair(bounds))
}

func TestComputeShardSizeBoundsClampsSmallDatabase(t *testing.T) {
	bounds := computeShardSizeBounds(0)
	assert.Equal(t, int64(minShardBytes), bounds.Min)
	assert.Equal(t, int64(minShardBytes*4), bounds.Max)
	assert.Equal(t, int64(float64(bounds.Max)*shardPermittedErrorFraction), bounds.PermittedError)
}

func TestComputeShardSizeBoundsScalesWithDatabaseSize(t *testing.T) {
	bounds := computeShardSizeBounds(16 * minShardBytes * 16)
	assert.Equal(t, int64(minShardBytes), bounds.Min)
	assert.True(t, bounds.Max > minShardBytes*4)
}
