package checkengine

import "math/rand"

// shardWork describes how one client should handle one shard index:
// fully process it, merely fetch its size estimate, or skip it entirely.
type shardWork int

const (
	workSkip shardWork = iota
	workSizeOnly
	workFull
)

// partitionPlan decides, for every shard index in [0, shardCount), what
// this client does with it (P5: deterministic partition — a pure
// function of clientID, clientCount, shardSampleFactor, and the shuffle
// seed; no two distributed clients need to coordinate at runtime).
func partitionPlan(shardCount int, o Options) []shardWork {
	plan := make([]shardWork, shardCount)

	c := 1
	if o.Distributed {
		c = o.ClientCount
		if c < 1 {
			c = 1
		}
	}
	f := o.ShardSampleFactor
	if f < 1 {
		f = 1
	}

	order := identityOrder(shardCount)
	if o.ShuffleShards {
		order = shuffledOrder(shardCount, o.SharedRandomNumber, o.Repetition)
	}

	start := o.ClientID * (f + 1)
	isFirstClient := !o.Distributed || o.ClientID == 0

	if isFirstClient {
		// The first client walks every shard, fully processing only the
		// ones that land on a C*F boundary; every other shard it merely
		// fetches the size estimate for.
		for idx := start; idx < shardCount; idx++ {
			shardIdx := order[idx]
			if idx%(c*f) == 0 {
				plan[shardIdx] = workFull
			} else {
				plan[shardIdx] = workSizeOnly
			}
		}
		return plan
	}

	// Non-first distributed clients own a disjoint stride of shards and
	// fully process every one of them.
	step := c * f
	for idx := start; idx < shardCount; idx += step {
		plan[order[idx]] = workFull
	}

	return plan
}

func identityOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// shuffledOrder returns a deterministic pseudo-random permutation of
// [0, n), seeded purely from sharedRandomNumber and repetition so every
// distributed client computes the identical order without coordination.
func shuffledOrder(n int, sharedRandomNumber, repetition int64) []int {
	seed := sharedRandomNumber*1_000_003 + repetition
	r := rand.New(rand.NewSource(seed))
	order := identityOrder(n)
	r.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	return order
}
