package exception_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
)

func TestNewETLError(t *testing.T) {
	original := errors.New("disk full")
	err := exception.NewETLError("checkpoint", "failed to publish checkpoint", original, false, true)

	assert.Equal(t, "checkpoint", err.Module)
	assert.Equal(t, "failed to publish checkpoint", err.Message)
	assert.True(t, err.IsRetryable())
	assert.False(t, err.IsSkippable())
	assert.ErrorIs(t, err, original)
	assert.Contains(t, err.Error(), "[checkpoint]")
	assert.Contains(t, err.Error(), "disk full")
	assert.NotEmpty(t, err.StackTrace)
}

func TestNewETLErrorfExtractsTrailingArguments(t *testing.T) {
	err := exception.NewETLErrorf("connector", "failed to read chunk %d", 7, true, true, io.EOF)

	assert.Equal(t, "failed to read chunk 7", err.Message)
	assert.True(t, err.IsSkippable())
	assert.True(t, err.IsRetryable())
	assert.ErrorIs(t, err, io.EOF)
}

func TestNewETLErrorfWithoutTrailingArguments(t *testing.T) {
	err := exception.NewETLErrorf("planner", "chunk size %d is not positive", -1)

	assert.Equal(t, "chunk size -1 is not positive", err.Message)
	assert.False(t, err.IsSkippable())
	assert.False(t, err.IsRetryable())
	assert.NoError(t, errors.Unwrap(err))
}

func TestIsETLError(t *testing.T) {
	etlErr := exception.NewETLError("pool", "worker failed", nil, false, false)
	wrapped := fmt.Errorf("outer: %w", etlErr)

	assert.True(t, exception.IsETLError(etlErr))
	assert.True(t, exception.IsETLError(wrapped))
	assert.False(t, exception.IsETLError(errors.New("plain")))
	assert.False(t, exception.IsETLError(nil))
}

func TestIsTemporary(t *testing.T) {
	assert.True(t, exception.IsTemporary(exception.NewETLError("load", "transient", nil, false, true)))
	assert.False(t, exception.IsTemporary(exception.NewETLError("load", "timeout mentioned but flag wins", nil, false, false)))
	assert.True(t, exception.IsTemporary(errors.New("dial tcp: connection refused")))
	assert.False(t, exception.IsTemporary(nil))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, exception.IsFatal(exception.NewETLError("load", "bad schema", nil, false, false)))
	assert.False(t, exception.IsFatal(exception.NewETLError("load", "transient", nil, false, true)))
	assert.True(t, exception.IsFatal(errors.New("permission denied")))
}

func TestIsErrorOfTypeWithRegisteredSentinels(t *testing.T) {
	assert.True(t, exception.IsErrorOfType(context.DeadlineExceeded, "context.DeadlineExceeded"))
	assert.True(t, exception.IsErrorOfType(fmt.Errorf("wrap: %w", context.Canceled), "context.Canceled"))
	assert.False(t, exception.IsErrorOfType(errors.New("unrelated"), "context.Canceled"))
}

func TestIsErrorOfTypeBySubstringAndReflection(t *testing.T) {
	err := exception.NewETLError("checkpoint", "checksum mismatch", nil, false, false)
	assert.True(t, exception.IsErrorOfType(err, "checksum mismatch"))
	assert.True(t, exception.IsErrorOfType(err, "exception.ETLError"))
}

func TestRegisterErrorType(t *testing.T) {
	sentinel := errors.New("bucket unavailable")
	exception.RegisterErrorType("storage.ErrBucketUnavailable", sentinel)

	assert.True(t, exception.IsErrorTypeRegistered("storage.ErrBucketUnavailable"))
	assert.True(t, exception.IsErrorOfType(fmt.Errorf("wrap: %w", sentinel), "storage.ErrBucketUnavailable"))
}

func TestExtractErrorMessage(t *testing.T) {
	etlErr := exception.NewETLError("pool", "chunk failed", errors.New("cause"), false, false)
	assert.Equal(t, "chunk failed", exception.ExtractErrorMessage(etlErr))
	assert.Equal(t, "plain", exception.ExtractErrorMessage(errors.New("plain")))
	assert.Equal(t, "", exception.ExtractErrorMessage(nil))
}

func TestTaxonomyPredicates(t *testing.T) {
	chunkErr := exception.NewChunkProcessingError("orders", 3, errors.New("malformed"))
	assert.True(t, exception.IsChunkProcessingError(fmt.Errorf("wrap: %w", chunkErr)))
	assert.Contains(t, chunkErr.Error(), "chunk 3")

	corrupt := exception.NewCorruptCheckpointError("orders/000001.ckpt.json", "checksum mismatch")
	assert.True(t, exception.IsCorruptCheckpoint(corrupt))
	assert.False(t, exception.IsCorruptCheckpoint(errors.New("other")))

	noState := exception.NewNoRecoverableStateError("orders")
	assert.True(t, exception.IsNoRecoverableState(noState))

	regression := exception.NewWatermarkRegressionError("orders", "2026-08-03", "2026-08-01")
	assert.True(t, exception.IsWatermarkRegression(regression))
	assert.Contains(t, regression.Error(), "watermark regression")

	timeout := exception.NewBatchTimeoutError(2, 5*time.Minute)
	assert.True(t, exception.IsBatchTimeout(timeout))
	assert.Contains(t, timeout.Error(), "batch 2")
}
