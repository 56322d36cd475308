// Package checkengine implements the Consistency Check Engine: a single
// check round composed of a Version Oracle, Rate Gate, Shard-Map
// Reconciler, Location Verifier, Replica Comparator, and (in quiescent
// mode) a Cluster Invariant Auditor.
package checkengine

import "time"

// Options configures one check round. DefaultOptions returns the default
// for every field; the zero Options value is not that default (for
// example Distributed defaults to true and the timeouts are non-zero).
type Options struct {
	// PerformQuiescentChecks enables every quiescent-only check: team
	// size, size-estimate equality, queue drain, role fitness, and so on.
	PerformQuiescentChecks bool

	// QuiescentWaitTimeout bounds how long a whole round with
	// PerformQuiescentChecks set may run. The round does not wait for the
	// cluster to become quiescent; it assumes it already is.
	QuiescentWaitTimeout time.Duration

	// Distributed partitions shards across ClientCount cooperating
	// checker clients; each processes a deterministic subset (P5).
	Distributed bool
	ClientCount int
	ClientID    int

	// ShardSampleFactor samples 1-in-N shards; clamped to >= 1.
	ShardSampleFactor int

	// FailureIsError controls whether violations are logged at error or
	// warn severity; it never changes round success/failure.
	FailureIsError bool

	// RateLimit is bytes/sec per replica; 0 means unlimited.
	RateLimit int64
	// RateWindow is the token bucket's refill window.
	RateWindow time.Duration

	// ShuffleShards permutes shard processing order deterministically,
	// seeded from SharedRandomNumber and Repetition so every distributed
	// client agrees on the same order.
	ShuffleShards     bool
	SharedRandomNumber int64
	Repetition         int64

	// Indefinite loops rounds forever with a pause between each.
	Indefinite     bool
	IndefinitePause time.Duration

	// ChunkSize is the shard-map reconciler's per-request key-range
	// chunk size L (small values exercise pagination).
	ChunkSize int

	// ReplyCountLimit bounds the number of pairs each streaming range
	// request issued by the Replica Comparator returns. ReplyByteLimit is
	// not passed to any request: replies are bounded by count only.
	ReplyByteLimit  int64
	ReplyCountLimit int64

	// KeyServersKeys is the key range the shard map itself covers.
	KeyServersKeys struct {
		Begin []byte
		End   []byte
	}
	// KeyServersPrefix identifies shard-map-internal shards, excluded
	// from the size-bound check.
	KeyServersPrefix []byte

	// RPCTimeout bounds every individual RPC the round issues. RPCRetries
	// is not read by any component: no RPC is retried on its own.
	RPCTimeout time.Duration
	RPCRetries int

	// DatabaseSizeBytes is the simulator-provided total database size
	// used to derive ShardSizeBounds; outside a simulator a large
	// constant is used instead (see sizebounds.go).
	DatabaseSizeBytes int64
}

// DefaultOptions returns an Options value with every default from the
// specification's configuration table applied.
func DefaultOptions() Options {
	o := Options{
		PerformQuiescentChecks: false,
		QuiescentWaitTimeout:   600 * time.Second,
		Distributed:            true,
		ClientCount:            1,
		ClientID:               0,
		ShardSampleFactor:      1,
		FailureIsError:         false,
		RateLimit:              0,
		RateWindow:             time.Second,
		ShuffleShards:          false,
		Indefinite:             false,
		IndefinitePause:        5 * time.Second,
		ChunkSize:              100,
		ReplyByteLimit:         150 * 1024,
		ReplyCountLimit:        10000,
		RPCTimeout:             2 * time.Second,
		RPCRetries:             0,
		DatabaseSizeBytes:      1 << 40, // large constant outside a simulator
	}
	if o.ShardSampleFactor < 1 {
		o.ShardSampleFactor = 1
	}
	return o
}
