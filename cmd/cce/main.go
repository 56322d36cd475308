// This file is the main entry point for the standalone consistency
// checker binary. It wires internal/grpcadapter's gRPC collaborators
// into internal/checkengine and runs one round (or, with -indefinite,
// repeated rounds) against a running vectron cluster.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vectron-cce/cce/internal/checkengine"
	"github.com/vectron-cce/cce/internal/cluster"
	"github.com/vectron-cce/cce/internal/grpcadapter"
	"github.com/vectron-cce/cce/shared/runtimeutil"
)

func main() {
	var (
		pdAddrs           = flag.String("pd-addrs", "localhost:6001", "Comma-separated list of placement driver gRPC addresses")
		quiescent         = flag.Bool("quiescent", false, "Run the quiescent-only checks (team size, size estimates, cluster invariants)")
		distributed       = flag.Bool("distributed", true, "Partition shards across clientCount cooperating checker clients")
		clientCount       = flag.Int("client-count", 1, "Number of cooperating checker clients")
		clientID          = flag.Int("client-id", 0, "This client's index in [0, clientCount)")
		shardSampleFactor = flag.Int("shard-sample-factor", 1, "Fully compare 1-in-N shards; the rest are size-only")
		rateLimit         = flag.Int64("rate-limit-bytes", 0, "Per-replica bytes/sec throttle, 0 for unlimited")
		indefinite        = flag.Bool("indefinite", false, "Run rounds forever, pausing between each")
		indefinitePause   = flag.Duration("indefinite-pause", 5*time.Second, "Pause between rounds when -indefinite is set")
		failureIsError    = flag.Bool("failure-is-error", false, "Log violations at error severity instead of warn")
	)
	flag.Parse()

	runtimeutil.LoadServiceEnv("cce")
	runtimeutil.ConfigureGOMAXPROCS("cce")

	addrs := strings.Split(*pdAddrs, ",")
	if len(addrs) == 0 || addrs[0] == "" {
		log.Fatalf("-pd-addrs is required")
	}

	opts := checkengine.DefaultOptions()
	opts.PerformQuiescentChecks = *quiescent
	opts.Distributed = *distributed
	opts.ClientCount = *clientCount
	opts.ClientID = *clientID
	opts.ShardSampleFactor = *shardSampleFactor
	opts.RateLimit = *rateLimit
	opts.Indefinite = *indefinite
	opts.IndefinitePause = *indefinitePause
	opts.FailureIsError = *failureIsError

	pool := grpcadapter.NewConnPool()
	defer pool.Close()

	dir := grpcadapter.NewAddressDirectory()
	db := grpcadapter.NewRoutingNodes(addrs)
	routingDialer := grpcadapter.NewRoutingDialer(pool, dir)
	replicaClients := grpcadapter.NewReplicaClients(pool, dir)
	dbInfo := grpcadapter.NewClusterInfo(pool, func() string { return addrs[0] }, func() string { return addrs[0] })
	txn := grpcadapter.NewLogicalClockTransaction()

	traceLog := checkengine.NewTraceLogger(stdLogger())

	oracle := checkengine.NewVersionOracle(txn, traceLog)
	rateGate := checkengine.NewRateGate(opts.RateLimit, int64(opts.RateWindow.Seconds()))
	reconciler := checkengine.NewShardMapReconciler(db, routingDialer.Dial, opts, traceLog)
	verifier := checkengine.NewLocationVerifier(oracle, replicaClients.Dial, opts)

	storageTeamSize := 0
	if config, err := dbInfo.Config(context.Background()); err == nil {
		storageTeamSize = config.StorageTeamSize
	} else {
		traceLog.Warn("cluster_config_unavailable", map[string]any{"error": err.Error()})
	}

	comparator := checkengine.NewReplicaComparator(oracle, rateGate, replicaClients.Dial, opts, traceLog, storageTeamSize)

	var auditor *checkengine.ClusterInvariantAuditor
	if opts.PerformQuiescentChecks {
		auditor = checkengine.NewClusterInvariantAuditor(dbInfo, replicaClients.Dial, opts, traceLog)
	}

	round := checkengine.NewRound(reconciler, verifier, comparator, auditor, opts, traceLog)

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	exitCode := 0
	err := round.RunIndefinitely(ctx, func(stats *cluster.RoundStats) {
		reportRound(stats, opts.FailureIsError)
		if !stats.Success {
			exitCode = 1
		}
	})
	if err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "consistency check round failed: %v\n", err)
		os.Exit(2)
	}
	os.Exit(exitCode)
}

func reportRound(stats *cluster.RoundStats, failureIsError bool) {
	duration := stats.FinishedAt.Sub(stats.StartedAt)
	if stats.Success {
		fmt.Printf("round OK in %s, no violations\n", duration)
		return
	}
	fmt.Printf("round FAILED in %s, %d violation(s):\n", duration, len(stats.Violations))
	for _, v := range stats.Violations {
		severity := "WARN"
		if v.Fatal || failureIsError {
			severity = "ERROR"
		}
		fmt.Printf("  [%s] %s: %s\n", severity, v.Kind, v.Detail)
	}
}

func stdLogger() *log.Logger {
	return log.New(os.Stderr, "cce: ", log.LstdFlags)
}
