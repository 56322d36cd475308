// Package bytesample implements the deterministic sampling oracle shared by
// the storage write path (so a replica can maintain its own running size
// estimate for a shard) and the consistency checker's read path (so it can
// recompute the same statistic while streaming a shard's contents). Both
// sides must agree on which keys are "in sample" without any coordination,
// so the function is a pure hash of the key and is never seeded from
// process state.
package bytesample

import (
	"hash/fnv"
	"math"
)

// minSampledUnit is the smallest unit a sampled key-value pair is scaled
// to, mirroring the placement driver's own use of hash/fnv for mapping
// keys into a fixed-width uint64 space (placementdriver/internal/server
// hashes vector IDs the same way to pick a shard).
const minSampledUnit = 250_000

// Sample reports, for one (key, value) pair, its actual on-disk size, the
// size it is scaled to for the purposes of sampling (sampledSize), and
// whether this particular pair falls inside the sample. Sampling
// probability is min(1, actualSize/sampledSize): small keys are unlikely
// to be sampled, large keys always are.
func Sample(key, value []byte) (actualSize int64, sampledSize int64, inSample bool) {
	actualSize = int64(len(key) + len(value))
	if actualSize <= 0 {
		return 0, 0, false
	}

	sampledSize = minSampledUnit
	if actualSize > sampledSize {
		sampledSize = actualSize
	}

	probability := float64(actualSize) / float64(sampledSize)
	if probability > 1 {
		probability = 1
	}

	h := fnv.New64a()
	h.Write(key)
	threshold := uint64(probability * float64(math.MaxUint64))
	inSample = h.Sum64() < threshold

	return actualSize, sampledSize, inSample
}

// RunningEstimate accumulates the sampled-byte running total a storage
// replica reports as its own size estimate for a shard (invariant I5: this
// must equal the checker's independently recomputed sampledBytes in
// quiescence).
type RunningEstimate struct {
	sampledBytes int64
	sampledKeys  int64
}

// Observe folds one (key, value) pair into the running estimate. Called
// from the storage write path on every Put so the estimate never needs a
// full rescan.
func (e *RunningEstimate) Observe(key, value []byte) {
	_, sampledSize, inSample := Sample(key, value)
	if inSample {
		e.sampledBytes += sampledSize
		e.sampledKeys++
	}
}

// Forget removes a previously-observed pair's contribution, called from
// the write path on delete so the estimate tracks the live key set.
func (e *RunningEstimate) Forget(key, value []byte) {
	_, sampledSize, inSample := Sample(key, value)
	if inSample {
		e.sampledBytes -= sampledSize
		e.sampledKeys--
	}
}

// SampledBytes returns the current running estimate.
func (e *RunningEstimate) SampledBytes() int64 {
	return e.sampledBytes
}
