package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/vitoriamariadb/tidal/pkg/etl/core/config"
	"github.com/vitoriamariadb/tidal/pkg/etl/engine/retry"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
)

func TestBackoffScheduleIsExponentialAndCapped(t *testing.T) {
	f := retry.NewDefaultRetryPolicyFactory()
	p := f.Create(5, 100*time.Millisecond, 350*time.Millisecond, 2.0, nil)

	assert.Equal(t, 100*time.Millisecond, p.BackoffInterval(1))
	assert.Equal(t, 200*time.Millisecond, p.BackoffInterval(2))
	// 400ms exceeds the cap.
	assert.Equal(t, 350*time.Millisecond, p.BackoffInterval(3))
	assert.Equal(t, 350*time.Millisecond, p.BackoffInterval(4))
}

func TestShouldRetryUsesRetryableFlag(t *testing.T) {
	f := retry.NewDefaultRetryPolicyFactory()
	p := f.Create(3, time.Millisecond, time.Second, 2.0, nil)

	retryable := exception.NewETLError("load", "connection reset", errors.New("reset"), false, true)
	fatal := exception.NewETLError("load", "schema mismatch", nil, false, false)

	assert.True(t, p.ShouldRetry(retryable))
	assert.False(t, p.ShouldRetry(fatal))
	assert.False(t, p.ShouldRetry(nil))
}

func TestShouldRetryByRegisteredTypeName(t *testing.T) {
	f := retry.NewDefaultRetryPolicyFactory()
	p := f.Create(3, time.Millisecond, time.Second, 2.0, []string{"context.DeadlineExceeded"})

	assert.True(t, p.ShouldRetry(context.DeadlineExceeded))
	assert.False(t, p.ShouldRetry(errors.New("unrelated")))
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	f := retry.NewDefaultRetryPolicyFactory()
	p := f.Create(5, time.Millisecond, 10*time.Millisecond, 2.0, nil)

	attempts := 0
	err := retry.Execute(context.Background(), p, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return exception.NewETLError("load", "transient", nil, false, true)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExecuteStopsOnNonRetryableError(t *testing.T) {
	f := retry.NewDefaultRetryPolicyFactory()
	p := f.Create(5, time.Millisecond, 10*time.Millisecond, 2.0, nil)

	attempts := 0
	fatal := exception.NewETLError("load", "bad schema", nil, false, false)
	err := retry.Execute(context.Background(), p, func(ctx context.Context) error {
		attempts++
		return fatal
	})
	assert.Equal(t, fatal, err)
	assert.Equal(t, 1, attempts)
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	f := retry.NewDefaultRetryPolicyFactory()
	p := f.Create(3, time.Millisecond, 10*time.Millisecond, 2.0, nil)

	attempts := 0
	err := retry.Execute(context.Background(), p, func(ctx context.Context) error {
		attempts++
		return exception.NewETLError("load", "still down", nil, false, true)
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestExecuteHonorsContextCancellation(t *testing.T) {
	f := retry.NewDefaultRetryPolicyFactory()
	p := f.Create(10, 500*time.Millisecond, time.Second, 2.0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := retry.Execute(ctx, p, func(ctx context.Context) error {
		return exception.NewETLError("load", "transient", nil, false, true)
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromConfig(t *testing.T) {
	f := retry.NewDefaultRetryPolicyFactory()
	p := f.FromConfig(config.RetryConfig{
		MaxAttempts:     4,
		InitialInterval: 1000,
		MaxInterval:     60000,
		Factor:          2.0,
	})
	assert.Equal(t, 4, p.MaxAttempts())
	assert.Equal(t, time.Second, p.BackoffInterval(1))
	assert.Equal(t, 2*time.Second, p.BackoffInterval(2))
}
