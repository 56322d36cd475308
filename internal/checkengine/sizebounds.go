package checkengine

import "github.com/vectron-cce/cce/internal/cluster"

// minShardBytes is the fixed lower bound of a "reasonably sized" shard;
// the upper bound is maxShardBytesFraction of the database size, raised
// to 4*minShardBytes when that fraction falls below minShardBytes.
// shardPermittedErrorFraction is the
// fraction of a shard's max size tolerated as sampling/estimation noise
// on top of the 7-sigma statistical bound.
const (
	minShardBytes               = 200 * 1024
	maxShardBytesFraction       = 1.0 / 16 // a single shard should not exceed 1/16th of the db
	shardPermittedErrorFraction = 0.10
)

// computeShardSizeBounds derives (min, max, permittedError) for a shard
// from the round's notion of total database size. Outside a simulator
// harness the size is a large constant (see Options.DatabaseSizeBytes's
// default), which simply yields a generous max bound.
func computeShardSizeBounds(dbSizeBytes int64) cluster.ShardSizeBounds {
	max := int64(float64(dbSizeBytes) * maxShardBytesFraction)
	if max < minShardBytes {
		max = minShardBytes * 4
	}
	permittedError := int64(float64(max) * shardPermittedErrorFraction)
	return cluster.ShardSizeBounds{
		Min:            minShardBytes,
		Max:            max,
		PermittedError: permittedError,
	}
}
