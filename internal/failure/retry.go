package failure

import (
	"context"
	"log/slog"
	"slices"
	"time"
)

// Retry policy defaults.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 200 * time.Millisecond
	DefaultFactor      = 2.0
)

// RetryPolicy controls ExecuteWithRetry. Zero values take the defaults;
// an empty RetryableClasses takes DefaultRetryableClasses, so callers
// can narrow the retried set per operation without restating it.
type RetryPolicy struct {
	MaxAttempts      int
	BaseDelay        time.Duration
	Factor           float64
	RetryableClasses []Class
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.Factor < 1 {
		p.Factor = DefaultFactor
	}
	if len(p.RetryableClasses) == 0 {
		p.RetryableClasses = DefaultRetryableClasses
	}
	return p
}

func (p RetryPolicy) retries(c Class) bool {
	return slices.Contains(p.RetryableClasses, c)
}

// delay returns the wait before the given retry (1-based): base grown by
// factor per completed attempt.
func (p RetryPolicy) delay(retry int) time.Duration {
	d := float64(p.BaseDelay)
	for i := 1; i < retry; i++ {
		d *= p.Factor
	}
	return time.Duration(d)
}

// ExecuteWithRetry runs fn, retrying with exponential backoff on failure
// classes the policy marks retryable. Everything outside that set
// (validation, not-found, business-rule by default) returns immediately:
// retrying cannot change the outcome. The last error is returned when
// attempts are exhausted.
func ExecuteWithRetry(ctx context.Context, logger *slog.Logger, operation string, policy RetryPolicy, fn func(ctx context.Context) error) error {
	policy = policy.normalized()

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		class := Classify(lastErr)
		if !policy.retries(class) {
			logger.Debug("operation failed with non-retryable class",
				"operation", operation, "class", class, "error", lastErr)
			return lastErr
		}
		if attempt == policy.MaxAttempts {
			break
		}

		wait := policy.delay(attempt)
		logger.Warn("operation failed, retrying",
			"operation", operation, "class", class, "attempt", attempt, "wait", wait, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	logger.Error("operation exhausted retries",
		"operation", operation, "attempts", policy.MaxAttempts, "error", lastErr)
	return lastErr
}
