package checkengine

import (
	"context"
	"fmt"

	"github.com/vectron-cce/cce/internal/cluster"
)

// errShardMapDisagreement is returned when two replicas of the same
// shard-map range disagree on the range's contents, or, in quiescence,
// when one of them cannot be reached; either aborts the round per §4.4.
type errShardMapDisagreement struct {
	rangeBegin []byte
}

func (e *errShardMapDisagreement) Error() string {
	return fmt.Sprintf("key servers inconsistent at range begin %x", e.rangeBegin)
}

// LocationVerifier re-reads the shard map directly from the storage
// replicas named by the reconciler and confirms every replica of each
// range agrees, producing the merged map the Replica Comparator walks.
type LocationVerifier struct {
	oracle *VersionOracle
	dial   func(id cluster.ReplicaId) cluster.ReplicaEndpointClient
	opts   Options
}

// NewLocationVerifier wires a VersionOracle for common-version reads and
// a dial function resolving a replica id to its RPC client.
func NewLocationVerifier(oracle *VersionOracle, dial func(id cluster.ReplicaId) cluster.ReplicaEndpointClient, opts Options) *LocationVerifier {
	return &LocationVerifier{oracle: oracle, dial: dial, opts: opts}
}

// Verify confirms every replica named in reconciled agrees on its own
// shard-map view and returns the merged, deduplicated, contiguous
// sequence of entries (preserving I1 at the seams).
func (v *LocationVerifier) Verify(ctx context.Context, reconciled []cluster.ShardMapEntry, stats *cluster.RoundStats) ([]cluster.ShardMapEntry, error) {
	var merged []cluster.ShardMapEntry

	for _, entry := range reconciled {
		replicas := entry.Assignment.Sources
		if entry.Assignment.InMotion() {
			replicas = entry.Assignment.Destinations
		}

		confirmed, err := v.verifyOne(ctx, entry.Assignment.Range, entry.Assignment.ShardID, replicas, stats)
		if err != nil {
			return merged, err
		}
		if confirmed == nil {
			// No replica responded; caller's retry-forcing error.
			return merged, fmt.Errorf("no replica responded for range %x-%x", entry.Assignment.Range.Begin, entry.Assignment.Range.End)
		}

		merged = dedupAppend(merged, entry)
	}

	return merged, nil
}

func (v *LocationVerifier) verifyOne(ctx context.Context, r cluster.ShardRange, shardID uint64, replicas []cluster.ReplicaId, stats *cluster.RoundStats) ([]cluster.KeyValue, error) {
	if _, err := v.oracle.CurrentVersion(ctx); err != nil {
		return nil, err
	}

	type result struct {
		id    cluster.ReplicaId
		pairs []cluster.KeyValue
		more  bool
		err   error
	}
	resultsCh := make(chan result, len(replicas))

	reqCtx, cancel := context.WithTimeout(ctx, v.opts.RPCTimeout)
	defer cancel()

	for _, id := range replicas {
		id := id
		go func() {
			client := v.dial(id)
			pairs, more, err := client.GetKeyValues(reqCtx, shardID, r.Begin, r.End, int(v.opts.ReplyCountLimit))
			resultsCh <- result{id: id, pairs: pairs, more: more, err: err}
		}()
	}

	var results []result
	for i := 0; i < len(replicas); i++ {
		results = append(results, <-resultsCh)
	}

	var reference *result
	presentCount := 0
	for i := range results {
		res := &results[i]
		if res.err != nil {
			if v.opts.PerformQuiescentChecks {
				stats.AddViolation(cluster.Violation{
					Kind:   "replica unreachable",
					Detail: fmt.Sprintf("replica %d unreachable verifying shard map for range %x-%x", res.id, r.Begin, r.End),
					Fatal:  true,
				})
				return nil, &errShardMapDisagreement{rangeBegin: r.Begin}
			}
			continue
		}
		presentCount++
		if reference == nil {
			reference = res
		}
	}

	if presentCount == 0 {
		return nil, nil
	}

	for i := range results {
		res := &results[i]
		if res.err != nil || res == reference {
			continue
		}
		if res.more != reference.more || !pairsEqual(res.pairs, reference.pairs) {
			stats.AddViolation(cluster.Violation{
				Kind:   "key servers inconsistent",
				Detail: fmt.Sprintf("replica %d disagrees with replica %d on shard map for range %x-%x", res.id, reference.id, r.Begin, r.End),
				Fatal:  true,
			})
			return nil, &errShardMapDisagreement{rangeBegin: r.Begin}
		}
	}

	return reference.pairs, nil
}

func pairsEqual(a, b []cluster.KeyValue) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytesEqual(a[i].Key, b[i].Key) || !bytesEqual(a[i].Value, b[i].Value) {
			return false
		}
	}
	return true
}

// dedupAppend appends entry to merged unless its range is a byte-for-byte
// duplicate of the last appended entry's range, which can happen at chunk
// seams where the reconciler's last key is reused as the next chunk's
// first key.
func dedupAppend(merged []cluster.ShardMapEntry, entry cluster.ShardMapEntry) []cluster.ShardMapEntry {
	if len(merged) > 0 {
		last := merged[len(merged)-1]
		if bytesEqual(last.Assignment.Range.Begin, entry.Assignment.Range.Begin) &&
			bytesEqual(last.Assignment.Range.End, entry.Assignment.Range.End) {
			return merged
		}
	}
	return append(merged, entry)
}
