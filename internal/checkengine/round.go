package checkengine

import (
	"context"
	"time"

	"github.com/vectron-cce/cce/internal/cluster"
)

// Round ties the six components together into one pass over the
// cluster: reconcile the shard map, verify it against the replicas
// themselves, compare every owned shard's data, and — in quiescent mode,
// on the first client only — audit the cluster-wide invariants.
type Round struct {
	reconciler *ShardMapReconciler
	verifier   *LocationVerifier
	comparator *ReplicaComparator
	auditor    *ClusterInvariantAuditor
	opts       Options
	log        cluster.TraceLogger
}

// NewRound assembles a Round from its six components. auditor may be nil
// when PerformQuiescentChecks is false, since it's never invoked in that
// mode.
func NewRound(reconciler *ShardMapReconciler, verifier *LocationVerifier, comparator *ReplicaComparator, auditor *ClusterInvariantAuditor, opts Options, log cluster.TraceLogger) *Round {
	return &Round{reconciler: reconciler, verifier: verifier, comparator: comparator, auditor: auditor, opts: opts, log: log}
}

// Run executes a single check round, returning its RoundStats. In
// quiescent mode the round is first bounded by QuiescentWaitTimeout;
// Run itself doesn't wait for quiescence to begin (that's the caller's
// responsibility — normally a simulator harness) but will not run longer
// than the timeout once started.
func (r *Round) Run(ctx context.Context) (*cluster.RoundStats, error) {
	if r.opts.PerformQuiescentChecks && r.opts.QuiescentWaitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.QuiescentWaitTimeout)
		defer cancel()
	}

	stats := cluster.NewRoundStats()

	reconciled, err := r.reconciler.Reconcile(ctx, stats)
	if err != nil {
		stats.FinishedAt = time.Now()
		return stats, err
	}

	shardMap, err := r.verifier.Verify(ctx, reconciled, stats)
	if err != nil {
		r.log.Warn("location_verifier_aborted_round", map[string]any{"error": err.Error()})
		stats.FinishedAt = time.Now()
		return stats, nil
	}

	if err := r.comparator.Compare(ctx, shardMap, stats); err != nil {
		stats.FinishedAt = time.Now()
		return stats, err
	}

	isFirstClient := !r.opts.Distributed || r.opts.ClientID == 0
	if r.opts.PerformQuiescentChecks && isFirstClient && r.auditor != nil {
		if err := r.auditor.Audit(ctx, shardMap, stats); err != nil {
			stats.FinishedAt = time.Now()
			return stats, err
		}
	}

	stats.FinishedAt = time.Now()
	return stats, nil
}

// RunIndefinitely repeatedly runs rounds, pausing IndefinitePause between
// each, until ctx is cancelled or a round returns a non-violation error
// (a genuine failure to complete the round, as opposed to a recorded
// violation). Each round's stats are delivered to onRound as it
// completes; callers that only want the final round can ignore all but
// the last call.
func (r *Round) RunIndefinitely(ctx context.Context, onRound func(*cluster.RoundStats)) error {
	for {
		stats, err := r.Run(ctx)
		if err != nil {
			return err
		}
		if onRound != nil {
			onRound(stats)
		}
		if !r.opts.Indefinite {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.opts.IndefinitePause):
		}
	}
}
