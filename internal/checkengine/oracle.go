package checkengine

import (
	"context"
	"fmt"

	"github.com/vectron-cce/cce/internal/cluster"
)

// VersionOracle retrieves a read version pinning every RPC within one
// comparison step to a common snapshot, retrying transient faults
// reported by the transaction runtime.
type VersionOracle struct {
	txn cluster.Transaction
	log cluster.TraceLogger
}

// NewVersionOracle wraps a Transaction collaborator with the retry loop
// §4.1 requires.
func NewVersionOracle(txn cluster.Transaction, log cluster.TraceLogger) *VersionOracle {
	return &VersionOracle{txn: txn, log: log}
}

// CurrentVersion retrieves a fresh read version, retrying until the
// transaction runtime reports success or a non-retryable fault.
func (o *VersionOracle) CurrentVersion(ctx context.Context) (uint64, error) {
	for {
		v, err := o.txn.GetReadVersion(ctx)
		if err == nil {
			return v, nil
		}

		if retryErr := o.txn.OnError(ctx, err); retryErr != nil {
			return 0, fmt.Errorf("get read version: %w", retryErr)
		}

		o.log.Info("version_oracle_retry", map[string]any{"error": err.Error()})

		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
	}
}
