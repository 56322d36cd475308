package checkengine

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectron-cce/cce/internal/cluster"
)

type fakeTransaction struct {
	failTimes int
	version   uint64
	onErrorErr error
}

func (f *fakeTransaction) GetReadVersion(ctx context.Context) (uint64, error) {
	if f.failTimes > 0 {
		f.failTimes--
		return 0, errors.New("transaction_too_old")
	}
	f.version++
	return f.version, nil
}

func (f *fakeTransaction) OnError(ctx context.Context, err error) error {
	return f.onErrorErr
}

func discardLogger() cluster.TraceLogger {
	return NewTraceLogger(log.New(io.Discard, "", 0))
}

func TestVersionOracleRetriesThenSucceeds(t *testing.T) {
	txn := &fakeTransaction{failTimes: 2}
	o := NewVersionOracle(txn, discardLogger())

	v, err := o.CurrentVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	assert.Equal(t, 0, txn.failTimes)
}

func TestVersionOracleGivesUpOnNonRetryableError(t *testing.T) {
	wantErr := errors.New("non_retryable")
	txn := &fakeTransaction{failTimes: 1, onErrorErr: wantErr}
	o := NewVersionOracle(txn, discardLogger())

	_, err := o.CurrentVersion(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
}

func TestVersionOracleStopsOnContextCancellation(t *testing.T) {
	txn := &fakeTransaction{failTimes: 1000}
	o := NewVersionOracle(txn, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.CurrentVersion(ctx)
	require.Error(t, err)
}
