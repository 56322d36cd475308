package checkengine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vectron-cce/cce/internal/cluster"
)

func TestClassifyErrorNil(t *testing.T) {
	assert.Equal(t, errKindUnknown, classifyError(nil))
}

func TestClassifyErrorTransientTransactional(t *testing.T) {
	for _, msg := range transientTransactionalMessages {
		err := fmt.Errorf("rpc failed: %s", msg)
		assert.Equalf(t, errKindTransientTransactional, classifyError(err), "message %q", msg)
	}
}

func TestClassifyErrorPeerUnavailable(t *testing.T) {
	err := fmt.Errorf("dial replica: %w", cluster.ErrPeerUnavailable)
	assert.Equal(t, errKindPeerUnavailable, classifyError(err))
}

func TestClassifyErrorUnknown(t *testing.T) {
	err := errors.New("some unrelated failure")
	assert.Equal(t, errKindUnknown, classifyError(err))
}
