package audit

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"
)

// RetryPolicy controls redelivery of an event to a failing sink.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
}

// DefaultRetryPolicy retries twice with a short exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    2,
		InitialDelay:  200 * time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      2 * time.Second,
	}
}

// deliverWithRetry calls s.Deliver until it succeeds, the error is not
// retryable, or the policy is exhausted. Each attempt gets its own timeout.
func deliverWithRetry(s Sink, e Event, policy RetryPolicy, timeout time.Duration) error {
	var err error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err = s.Deliver(ctx, e)
		cancel()
		if err == nil || !isRetryable(err) || attempt == policy.MaxRetries {
			return err
		}
		delay := calculateBackoff(policy, attempt)
		slog.Debug("audit sink retry", "sink", s.Name(), "attempt", attempt+1, "delay", delay)
		time.Sleep(delay)
	}
	return err
}

// calculateBackoff computes the delay for a given attempt using exponential backoff.
func calculateBackoff(policy RetryPolicy, attempt int) time.Duration {
	factor := policy.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := float64(policy.InitialDelay) * math.Pow(factor, float64(attempt))
	if policy.MaxDelay > 0 && time.Duration(delay) > policy.MaxDelay {
		return policy.MaxDelay
	}
	return time.Duration(delay)
}

// isRetryable reports whether a sink error looks transient.
func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	lower := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"timeout", "rate limit", "too many requests",
		"429", "500", "502", "503", "504",
		"connection reset", "connection refused", "eof",
	} {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
