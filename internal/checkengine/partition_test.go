package checkengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionPlanSingleClientFullyProcessesEveryShard(t *testing.T) {
	o := DefaultOptions()
	o.Distributed = false

	plan := partitionPlan(10, o)
	for i, w := range plan {
		assert.Equalf(t, workFull, w, "shard %d", i)
	}
}

func TestPartitionPlanSampleFactorSkipsNonBoundaryShards(t *testing.T) {
	o := DefaultOptions()
	o.Distributed = false
	o.ShardSampleFactor = 4

	plan := partitionPlan(12, o)
	for i, w := range plan {
		if i%4 == 0 {
			assert.Equalf(t, workFull, w, "shard %d", i)
		} else {
			assert.Equalf(t, workSizeOnly, w, "shard %d", i)
		}
	}
}

func TestPartitionPlanDistributedClientsPartitionDisjointly(t *testing.T) {
	const shardCount = 40
	const clientCount = 4

	seen := make(map[int]int)
	for client := 0; client < clientCount; client++ {
		o := DefaultOptions()
		o.Distributed = true
		o.ClientCount = clientCount
		o.ClientID = client
		o.ShardSampleFactor = 2

		plan := partitionPlan(shardCount, o)
		for idx, w := range plan {
			if w == workFull {
				seen[idx]++
			}
		}
	}

	// Every fully-processed shard must belong to exactly one client;
	// non-first clients never overlap each other or the first client's
	// full-processing boundary shards.
	for idx, count := range seen {
		assert.LessOrEqualf(t, count, 1, "shard %d claimed by %d clients", idx, count)
	}
}

func TestPartitionPlanNonFirstClientOwnsStridedShards(t *testing.T) {
	o := DefaultOptions()
	o.Distributed = true
	o.ClientCount = 3
	o.ClientID = 1
	o.ShardSampleFactor = 2

	plan := partitionPlan(30, o)

	step := o.ClientCount * o.ShardSampleFactor
	start := o.ClientID * (o.ShardSampleFactor + 1)
	for idx := start; idx < len(plan); idx += step {
		require.Equalf(t, workFull, plan[idx], "shard %d", idx)
	}
}

func TestShuffledOrderIsDeterministicAcrossClients(t *testing.T) {
	a := shuffledOrder(50, 42, 3)
	b := shuffledOrder(50, 42, 3)
	assert.Equal(t, a, b)

	c := shuffledOrder(50, 7, 3)
	assert.NotEqual(t, a, c)
}
