package checkengine

import (
	"context"
	"fmt"

	"github.com/vectron-cce/cce/internal/cluster"
)

// ReplicaComparator is the central component (§4.5): for every shard in
// the shard map, it streams each source replica's data at a common
// version, cross-checks every replica against a chosen reference, and
// folds the reference's bytes into the running byte-sample statistics
// used by the statistical and size-bound checks.
type ReplicaComparator struct {
	oracle          *VersionOracle
	rate            *RateGate
	dial            func(id cluster.ReplicaId) cluster.ReplicaEndpointClient
	opts            Options
	log             cluster.TraceLogger
	storageTeamSize int
}

// NewReplicaComparator wires the Version Oracle and Rate Gate every
// comparison step consults, plus a dial function resolving a replica id
// to its RPC client. storageTeamSize is the cluster's configured
// replication factor, used by the quiescent team-size check (I2).
func NewReplicaComparator(oracle *VersionOracle, rate *RateGate, dial func(id cluster.ReplicaId) cluster.ReplicaEndpointClient, opts Options, log cluster.TraceLogger, storageTeamSize int) *ReplicaComparator {
	return &ReplicaComparator{oracle: oracle, rate: rate, dial: dial, opts: opts, log: log, storageTeamSize: storageTeamSize}
}

// Compare walks shardMap per the P5 partition plan, fully comparing the
// shards this client owns and only fetching size estimates for the rest.
func (c *ReplicaComparator) Compare(ctx context.Context, shardMap []cluster.ShardMapEntry, stats *cluster.RoundStats) error {
	plan := partitionPlan(len(shardMap), c.opts)

	for i, entry := range shardMap {
		switch plan[i] {
		case workFull:
			if err := c.compareShard(ctx, entry, stats); err != nil {
				return err
			}
		case workSizeOnly:
			c.sizeOnly(ctx, entry, stats)
		case workSkip:
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// sizeOnly fetches each source replica's size estimate without reading
// any data, used for shards this client samples past (ShardSampleFactor)
// rather than fully compares.
func (c *ReplicaComparator) sizeOnly(ctx context.Context, entry cluster.ShardMapEntry, stats *cluster.RoundStats) {
	for _, id := range entry.Assignment.Sources {
		reqCtx, cancel := context.WithTimeout(ctx, c.opts.RPCTimeout)
		_, err := c.dial(id).WaitMetrics(reqCtx, entry.Assignment.ShardID)
		cancel()
		if err != nil && c.opts.PerformQuiescentChecks {
			stats.AddViolation(cluster.Violation{
				Kind:   "replica unreachable",
				Detail: fmt.Sprintf("replica %d unreachable fetching size estimate for shard %x-%x", id, entry.Assignment.Range.Begin, entry.Assignment.Range.End),
			})
		}
	}
}

// compareShard implements the per-shard procedure (§4.5 steps 1-7): team
// size check, server resolution, streaming comparison, size-estimate
// check, statistical check, and size-bound check.
func (c *ReplicaComparator) compareShard(ctx context.Context, entry cluster.ShardMapEntry, stats *cluster.RoundStats) error {
	assignment := entry.Assignment

	if c.opts.PerformQuiescentChecks && !assignment.InMotion() && len(assignment.Sources) != c.storageTeamSize {
		stats.AddViolation(cluster.Violation{
			Kind:   "Invalid team size",
			Detail: fmt.Sprintf("shard %x-%x has %d source replicas, expected %d", assignment.Range.Begin, assignment.Range.End, len(assignment.Sources), c.storageTeamSize),
			Fields: map[string]any{"got": len(assignment.Sources), "want": c.storageTeamSize},
		})
	}

	replicas := assignment.Sources
	if len(replicas) == 0 {
		return nil
	}

	bounds := computeShardSizeBounds(c.opts.DatabaseSizeBytes)
	perReplica := make(map[cluster.ReplicaId]*shardStats, len(replicas))
	for _, id := range replicas {
		perReplica[id] = &shardStats{}
	}

	lastSampleKey := assignment.Range.Begin
	referenceID := replicas[0]

	var refStats *shardStats
	for {
		version, err := c.oracle.CurrentVersion(ctx)
		if err != nil {
			return err
		}

		type result struct {
			id    cluster.ReplicaId
			pairs []cluster.KeyValue
			more  bool
			err   error
		}
		resultsCh := make(chan result, len(replicas))

		reqCtx, cancel := context.WithTimeout(ctx, c.opts.RPCTimeout)
		for _, id := range replicas {
			id := id
			go func() {
				client := c.dial(id)
				pairs, more, err := client.GetKeyValues(reqCtx, assignment.ShardID, lastSampleKey, assignment.Range.End, int(c.opts.ReplyCountLimit))
				resultsCh <- result{id: id, pairs: pairs, more: more, err: err}
			}()
		}

		var responses []result
		for i := 0; i < len(replicas); i++ {
			responses = append(responses, <-resultsCh)
		}
		cancel()
		_ = version

		var reference *result
		present := make(map[cluster.ReplicaId]*result, len(responses))
		retry := false
		for i := range responses {
			res := &responses[i]
			if res.err != nil {
				kind := classifyError(res.err)
				if kind == errKindTransientTransactional {
					// Re-issue the current batch from lastSampleKey;
					// batches already compared are kept.
					retry = true
					break
				}
				if c.opts.PerformQuiescentChecks {
					stats.AddViolation(cluster.Violation{
						Kind:   "replica unreachable",
						Detail: fmt.Sprintf("replica %d unreachable comparing shard %x-%x", res.id, assignment.Range.Begin, assignment.Range.End),
						Fatal:  true,
					})
					return nil
				}
				c.log.Warn("replica_unavailable_non_quiescent", map[string]any{"replica": uint64(res.id)})
				continue
			}
			present[res.id] = res
			if reference == nil || res.id == referenceID {
				reference = res
			}
		}

		if retry {
			c.log.Info("shard_compare_retry", map[string]any{"shard_begin": fmt.Sprintf("%x", assignment.Range.Begin)})
			continue
		}

		if reference == nil {
			stats.AddViolation(cluster.Violation{
				Kind:   "Data inconsistent",
				Detail: fmt.Sprintf("no replica of shard %x-%x responded", assignment.Range.Begin, assignment.Range.End),
				Fatal:  true,
			})
			return nil
		}

		refPairs := reference.pairs
		var chunkBytes int64
		for _, kv := range refPairs {
			chunkBytes += int64(len(kv.Key) + len(kv.Value))
		}
		if err := c.rate.Acquire(ctx, chunkBytes); err != nil {
			return err
		}

		refStats = perReplica[reference.id]
		for _, kv := range refPairs {
			refStats.Observe(kv.Key, kv.Value, bounds)
		}

		for id, res := range present {
			if id == reference.id {
				continue
			}
			if res.more != reference.more || !pairsEqual(res.pairs, refPairs) {
				d := classifyDivergence(res.pairs, refPairs)
				stats.AddViolation(cluster.Violation{
					Kind: "Data inconsistent",
					Detail: fmt.Sprintf("replica %d diverges from replica %d on shard %x-%x: %d unique to %d, %d unique to %d, %d value mismatches, %d matching",
						id, reference.id, assignment.Range.Begin, assignment.Range.End, d.currentUniques, id, d.referenceUniques, reference.id, d.valueMismatches, d.matchingKVPairs),
					Fields: map[string]any{
						"replica":            uint64(id),
						"referenceReplica":   uint64(reference.id),
						"CurrentUniques":     d.currentUniques,
						"CurrentUniqueKey":   d.currentUniqueKey,
						"ReferenceUniques":   d.referenceUniques,
						"ReferenceUniqueKey": d.referenceUniqueKey,
						"ValueMismatches":    d.valueMismatches,
						"ValueMismatchKey":   d.valueMismatchKey,
						"MatchingKVPairs":    d.matchingKVPairs,
					},
					Fatal: true,
				})
				return nil
			}
			s := perReplica[id]
			for _, kv := range res.pairs {
				s.Observe(kv.Key, kv.Value, bounds)
			}
		}

		if len(refPairs) > 0 {
			lastSampleKey = refPairs[len(refPairs)-1].Key
			// Advance past the last key read so the next request doesn't
			// re-read it.
			lastSampleKey = append(append([]byte{}, lastSampleKey...), 0x00)
		}

		if !reference.more {
			break
		}
	}

	c.checkSizeEstimates(ctx, assignment, perReplica, stats)
	c.checkStatisticalBound(assignment, perReplica[referenceID], stats)
	c.checkSizeBound(assignment, perReplica[referenceID], bounds, stats)

	return nil
}

// divergence is the classification of a mismatch between a non-reference
// replica's response (current) and the reference replica's response,
// walking both sorted sequences key by key the way a merge-join does.
type divergence struct {
	currentUniques     int
	referenceUniques   int
	matchingKVPairs    int
	valueMismatches    int
	currentUniqueKey   []byte
	referenceUniqueKey []byte
	valueMismatchKey   []byte
}

// classifyDivergence walks current and reference (both key-sorted, as
// every GetKeyValues page is) in lockstep, tallying keys unique to each
// side, keys present in both with matching values, and keys present in
// both with conflicting values — the same accounting the round's failure
// report needs to pin down exactly how two replicas disagree.
func classifyDivergence(current, reference []cluster.KeyValue) divergence {
	var d divergence
	i, j := 0, 0
	for i < len(current) || j < len(reference) {
		switch {
		case i >= len(current):
			d.referenceUniqueKey = reference[j].Key
			d.referenceUniques++
			j++
		case j >= len(reference):
			d.currentUniqueKey = current[i].Key
			d.currentUniques++
			i++
		case bytesEqual(current[i].Key, reference[j].Key):
			if bytesEqual(current[i].Value, reference[j].Value) {
				d.matchingKVPairs++
			} else {
				d.valueMismatchKey = current[i].Key
				d.valueMismatches++
			}
			i++
			j++
		case bytesLess(current[i].Key, reference[j].Key):
			d.currentUniqueKey = current[i].Key
			d.currentUniques++
			i++
		default:
			d.referenceUniqueKey = reference[j].Key
			d.referenceUniques++
			j++
		}
	}
	return d
}

// checkSizeEstimates implements I5: in quiescence, every replica's own
// reported size estimate must equal the sampledBytes this round
// independently recomputed for it.
func (c *ReplicaComparator) checkSizeEstimates(ctx context.Context, assignment cluster.ShardAssignment, perReplica map[cluster.ReplicaId]*shardStats, stats *cluster.RoundStats) {
	if !c.opts.PerformQuiescentChecks {
		return
	}
	for id, s := range perReplica {
		reqCtx, cancel := context.WithTimeout(ctx, c.opts.RPCTimeout)
		estimate, err := c.dial(id).WaitMetrics(reqCtx, assignment.ShardID)
		cancel()
		if err != nil {
			stats.AddViolation(cluster.Violation{
				Kind:   "replica unreachable",
				Detail: fmt.Sprintf("replica %d unreachable fetching size estimate for shard %x-%x", id, assignment.Range.Begin, assignment.Range.End),
			})
			continue
		}
		if !estimate.Present() {
			continue
		}
		if int64(estimate) != s.sampledBytes {
			stats.AddViolation(cluster.Violation{
				Kind:   "Storage servers had incorrect sampled estimate",
				Detail: fmt.Sprintf("replica %d reported %d, recomputed %d for shard %x-%x", id, int64(estimate), s.sampledBytes, assignment.Range.Begin, assignment.Range.End),
				Fields: map[string]any{"replica": uint64(id), "reported": int64(estimate), "recomputed": s.sampledBytes},
			})
		}
	}
}

// checkStatisticalBound implements I4/P4 against the reference replica's
// accumulated statistics.
func (c *ReplicaComparator) checkStatisticalBound(assignment cluster.ShardAssignment, ref *shardStats, stats *cluster.RoundStats) {
	if ref == nil || ref.withinStatisticalBound() {
		return
	}
	stats.AddViolation(cluster.Violation{
		Kind:   "Invalid shard size statistics",
		Detail: fmt.Sprintf("shard %x-%x: |%d - %d| exceeds 7 standard deviations (%.2f)", assignment.Range.Begin, assignment.Range.End, ref.shardBytes, ref.sampledBytes, ref.StdDev()),
		Fields: map[string]any{"shardBytes": ref.shardBytes, "sampledBytes": ref.sampledBytes, "stdDev": ref.StdDev()},
	})
}

// checkSizeBound records a non-fatal finding when a shard grew large
// enough that a fair split point was available but never taken. The
// finding marks the round failed, but comparison of the remaining shards
// goes on. Shards under Options.KeyServersPrefix are skipped, and the
// first sampled key's bytes are left out of the comparison with the max.
func (c *ReplicaComparator) checkSizeBound(assignment cluster.ShardAssignment, ref *shardStats, bounds cluster.ShardSizeBounds, stats *cluster.RoundStats) {
	if ref == nil {
		return
	}
	if prefix := c.opts.KeyServersPrefix; len(prefix) > 0 && len(assignment.Range.Begin) >= len(prefix) && bytesEqual(assignment.Range.Begin[:len(prefix)], prefix) {
		return
	}
	if ref.sampledBytes-ref.firstKeySampledBytes > bounds.Max+bounds.PermittedError && ref.splitIsFair(bounds) {
		stats.AddViolation(cluster.Violation{
			Kind:   "Shard size bounds exceeded",
			Detail: fmt.Sprintf("shard %x-%x has %d sampled bytes with a fair split available at %d", assignment.Range.Begin, assignment.Range.End, ref.sampledBytes, ref.splitBytes),
			Fields: map[string]any{"sampledBytes": ref.sampledBytes, "max": bounds.Max},
		})
	}
}
