package checkengine

import (
	"math"

	"github.com/vectron-cce/cce/internal/cluster"
	"github.com/vectron-cce/cce/shared/bytesample"
)

// shardStats accumulates the byte-sample statistics §4.5 defines while
// streaming one shard's reference replica, independent of the write-path
// running estimate each replica maintains for itself.
type shardStats struct {
	shardBytes   int64
	shardVariance float64
	sampledBytes int64
	sampledKeys  int64

	// firstKeySampledBytes is the sampled bytes contributed by the first
	// in-sample key observed for this shard; the size-bound check leaves
	// it out of its comparison with the max, since a shard's first key is
	// never itself a candidate split point.
	firstKeySampledBytes int64
	seenFirstKey         bool

	// canSplit and splitBytes track whether some key seen so far would
	// make a fair split point: sampledBytes at that point already clears
	// bounds.min, the key itself isn't jumbo, and the remaining space
	// wouldn't be unfairly lopsided. splitBytes freezes the running
	// sampledBytes total at the first such point.
	canSplit   bool
	splitBytes int64
}

// splitKeySizeLimit bounds how large a single key may be and still count
// as a viable split point; unfairSplitLimit caps how much of a shard's
// max size a split may claim before it's considered unfair. Chosen to
// match FoundationDB's consistency-check defaults for the analogous
// checks this logic is grounded on.
const (
	splitKeySizeLimit = 4096
	unfairSplitLimit  = 1.0
)

// Observe folds one (key, value) pair from the reference response into
// the running statistics, using the same deterministic sampling oracle
// the storage write path uses to maintain its own estimate.
func (s *shardStats) Observe(key, value []byte, bounds cluster.ShardSizeBounds) cluster.ByteSample {
	actualSize, sampledSize, inSample := bytesample.Sample(key, value)

	s.shardBytes += actualSize
	p := float64(actualSize) / float64(sampledSize)
	if p < 1 {
		s.shardVariance += p * (1 - p) * float64(sampledSize) * float64(sampledSize)
	}

	if inSample {
		s.sampledBytes += sampledSize
		s.sampledKeys++
		if !s.seenFirstKey {
			s.firstKeySampledBytes = sampledSize
			s.seenFirstKey = true
		}

		if !s.canSplit &&
			s.sampledBytes >= bounds.Min &&
			len(key) <= splitKeySizeLimit &&
			float64(s.sampledBytes) <= float64(bounds.Max)*unfairSplitLimit/2 {
			s.canSplit = true
			s.splitBytes = s.sampledBytes
		}
	}

	return cluster.ByteSample{ActualSize: actualSize, SampledSize: sampledSize, InSample: inSample}
}

// splitIsFair implements the size-bound check's canSplit predicate: a
// qualifying split point was observed, AND after the full shard is read
// the remainder past that point still clears bounds.min.
func (s *shardStats) splitIsFair(bounds cluster.ShardSizeBounds) bool {
	return s.canSplit &&
		s.sampledBytes-s.splitBytes >= bounds.Min &&
		s.sampledBytes > s.splitBytes
}

// StdDev returns the sample standard deviation, valid once sampledKeys
// exceeds the statistical check's threshold.
func (s *shardStats) StdDev() float64 {
	return math.Sqrt(s.shardVariance)
}

// withinStatisticalBound implements I4/P4: |shardBytes - sampledBytes|
// must lie within 7 standard deviations when more than 30 samples exist.
// Returns true (no violation) when too few samples exist to judge.
func (s *shardStats) withinStatisticalBound() bool {
	if s.sampledKeys <= 30 {
		return true
	}
	diff := s.shardBytes - s.sampledBytes
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) <= 7*s.StdDev()
}
