package checkengine

import (
	"context"
	"fmt"
	"time"

	"github.com/vectron-cce/cce/internal/cluster"
)

// ShardMapReconciler obtains the (range -> replica-set) assignment from
// every routing node and reconciles disagreements, walking the key range
// in configurable chunks so pagination is exercised even against a small
// shard map.
type ShardMapReconciler struct {
	db      cluster.Database
	dial    func(addr string) cluster.RoutingClient
	opts    Options
	log     cluster.TraceLogger
}

// NewShardMapReconciler wires a Database collaborator (routing node
// discovery) and a dial function that produces a RoutingClient for a
// given address — internal/grpcadapter supplies the real one.
func NewShardMapReconciler(db cluster.Database, dial func(addr string) cluster.RoutingClient, opts Options, log cluster.TraceLogger) *ShardMapReconciler {
	return &ShardMapReconciler{db: db, dial: dial, opts: opts, log: log}
}

// Reconcile walks [opts.KeyServersKeys.Begin, .End) in chunks, querying
// every routing node per chunk and appending agreed shard assignments to
// the output.
func (r *ShardMapReconciler) Reconcile(ctx context.Context, stats *cluster.RoundStats) ([]cluster.ShardMapEntry, error) {
	var out []cluster.ShardMapEntry
	begin := r.opts.KeyServersKeys.Begin
	end := r.opts.KeyServersKeys.End

	for {
		chunkEnd := r.chunkEnd(begin, end)

		entries, changed, err := r.reconcileChunk(ctx, begin, chunkEnd, stats)
		if err != nil {
			return out, err
		}
		if changed {
			// Routing set changed mid-chunk: restart this chunk rather
			// than trusting a response computed against a stale set.
			continue
		}

		if len(entries) == 0 {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		out = append(out, entries...)
		last := entries[len(entries)-1]
		begin = last.Assignment.Range.End

		if len(end) > 0 && len(begin) > 0 && !bytesLess(begin, end) {
			break
		}
		if len(begin) == 0 {
			break
		}
	}

	return out, nil
}

func (r *ShardMapReconciler) chunkEnd(begin, end []byte) []byte {
	// A real chunk boundary would be derived from opts.ChunkSize worth of
	// shard-map keys; since the reconciler has no independent key-count
	// oracle of its own, it relies on each routing node's Limit-bounded
	// response (opts.ChunkSize entries per call) to naturally bound chunk
	// size instead of precomputing a byte-range boundary here.
	return end
}

func (r *ShardMapReconciler) reconcileChunk(ctx context.Context, begin, end []byte, stats *cluster.RoundStats) ([]cluster.ShardMapEntry, bool, error) {
	nodes, err := r.db.RoutingNodes(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("list routing nodes: %w", err)
	}
	if len(nodes) == 0 {
		return nil, false, nil
	}

	changedCh := r.db.OnRoutingNodesChanged()

	type result struct {
		entries []cluster.ShardMapEntry
		more    bool
		err     error
		addr    string
	}
	resultsCh := make(chan result, len(nodes))

	reqCtx, cancel := context.WithTimeout(ctx, r.opts.RPCTimeout)
	defer cancel()

	for _, addr := range nodes {
		addr := addr
		go func() {
			client := r.dial(addr)
			entries, more, err := client.GetKeyServersLocations(reqCtx, begin, end, r.opts.ChunkSize)
			resultsCh <- result{entries: entries, more: more, err: err, addr: addr}
		}()
	}

	var responses []result
	for i := 0; i < len(nodes); i++ {
		select {
		case <-changedCh:
			cancel()
			return nil, true, nil
		case res := <-resultsCh:
			responses = append(responses, res)
		}
	}

	var present []result
	for _, res := range responses {
		if res.err != nil {
			if r.opts.PerformQuiescentChecks {
				stats.AddViolation(cluster.Violation{
					Kind:   "routing node unreachable",
					Detail: fmt.Sprintf("routing node %s did not respond: %v", res.addr, res.err),
					Fields: map[string]any{"addr": res.addr},
				})
			}
			continue
		}
		present = append(present, res)
	}

	if len(present) == 0 {
		return nil, false, nil
	}

	chosen := present[0]
	if !r.opts.PerformQuiescentChecks {
		// Non-quiescent mode: first successful response wins, the rest
		// are discarded without comparison.
		return chosen.entries, false, nil
	}

	// Quiescent mode: every routing node must agree. Disagreement here
	// means the shard map itself is inconsistent across routing nodes,
	// which is fatal the same way a replica disagreement is in the
	// Location Verifier.
	for _, res := range present[1:] {
		if !shardMapEntriesEqual(res.entries, chosen.entries) {
			stats.AddViolation(cluster.Violation{
				Kind:   "key servers inconsistent",
				Detail: fmt.Sprintf("routing node %s disagrees with routing node %s on shard map for range %x-%x", res.addr, chosen.addr, begin, end),
				Fatal:  true,
			})
			return nil, false, fmt.Errorf("routing nodes disagree on shard map for range %x-%x", begin, end)
		}
	}

	return chosen.entries, false, nil
}

// shardMapEntriesEqual compares two routing nodes' shard-map responses
// for the same chunk entry-by-entry.
func shardMapEntriesEqual(a, b []cluster.ShardMapEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ea, eb := a[i].Assignment, b[i].Assignment
		if !bytesEqual(ea.Range.Begin, eb.Range.Begin) || !bytesEqual(ea.Range.End, eb.Range.End) {
			return false
		}
		if ea.ShardID != eb.ShardID || ea.Epoch != eb.Epoch {
			return false
		}
		if !replicaIDsEqual(ea.Sources, eb.Sources) || !replicaIDsEqual(ea.Destinations, eb.Destinations) {
			return false
		}
	}
	return true
}

func replicaIDsEqual(a, b []cluster.ReplicaId) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
