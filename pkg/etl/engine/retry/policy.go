// Package retry provides an explicit, composable retry policy for wrapping
// load and transport operations.
package retry

import (
	"context"
	"time"

	config "github.com/vitoriamariadb/tidal/pkg/etl/core/config"
	exception "github.com/vitoriamariadb/tidal/pkg/etl/support/exception"
	logger "github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

// RetryPolicy decides whether an error is retryable and how long to back off
// between attempts.
type RetryPolicy interface {
	// ShouldRetry determines whether a given error is retryable.
	ShouldRetry(err error) bool
	// BackoffInterval returns the waiting time before the given attempt
	// number retries (attempt starts at 1).
	BackoffInterval(attempt int) time.Duration
	// MaxAttempts returns the maximum number of attempts including the first.
	MaxAttempts() int
}

// DefaultRetryPolicyFactory creates RetryPolicy instances from configuration.
type DefaultRetryPolicyFactory struct{}

// NewDefaultRetryPolicyFactory creates a new DefaultRetryPolicyFactory.
func NewDefaultRetryPolicyFactory() *DefaultRetryPolicyFactory {
	return &DefaultRetryPolicyFactory{}
}

// Create builds a RetryPolicy with exponential backoff capped at maxInterval.
func (f *DefaultRetryPolicyFactory) Create(maxAttempts int, initialInterval, maxInterval time.Duration, factor float64, retryableExceptions []string) RetryPolicy {
	if factor <= 0 {
		factor = 2.0
	}
	return &exponentialRetryPolicy{
		maxAttempts:         maxAttempts,
		initialInterval:     initialInterval,
		maxInterval:         maxInterval,
		factor:              factor,
		retryableExceptions: retryableExceptions,
	}
}

// FromConfig builds a RetryPolicy from a RetryConfig.
func (f *DefaultRetryPolicyFactory) FromConfig(cfg config.RetryConfig) RetryPolicy {
	return f.Create(
		cfg.MaxAttempts,
		time.Duration(cfg.InitialInterval)*time.Millisecond,
		time.Duration(cfg.MaxInterval)*time.Millisecond,
		cfg.Factor,
		nil,
	)
}

// exponentialRetryPolicy is the default RetryPolicy implementation.
type exponentialRetryPolicy struct {
	maxAttempts         int
	initialInterval     time.Duration
	maxInterval         time.Duration
	factor              float64
	retryableExceptions []string
}

// MaxAttempts returns the maximum number of attempts.
func (p *exponentialRetryPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// ShouldRetry determines whether an error is retryable, based on the
// ETLError retryable flag or the configured retryable exception names.
func (p *exponentialRetryPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	if exception.IsTemporary(err) {
		return true
	}

	for _, typeName := range p.retryableExceptions {
		if exception.IsErrorOfType(err, typeName) {
			return true
		}
	}

	return false
}

// BackoffInterval returns initialInterval * factor^(attempt-1), capped at
// maxInterval.
func (p *exponentialRetryPolicy) BackoffInterval(attempt int) time.Duration {
	interval := float64(p.initialInterval)
	for i := 1; i < attempt; i++ {
		interval *= p.factor
		if time.Duration(interval) >= p.maxInterval {
			return p.maxInterval
		}
	}
	d := time.Duration(interval)
	if p.maxInterval > 0 && d > p.maxInterval {
		d = p.maxInterval
	}
	return d
}

// Execute runs op under the policy, sleeping the backoff interval between
// attempts. Non-retryable errors and context cancellation end the loop early.
func Execute(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error {
	var lastErr error
	maxAttempts := policy.MaxAttempts()
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts || !policy.ShouldRetry(lastErr) {
			return lastErr
		}

		backoff := policy.BackoffInterval(attempt)
		logger.Warnf("Attempt %d/%d failed: %v. Retrying in %s.", attempt, maxAttempts, lastErr, backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// Verify interfaces
var _ RetryPolicy = (*exponentialRetryPolicy)(nil)
