package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// flakySink fails with err until it has been called failures times.
type flakySink struct {
	recordingSink
	failures int
}

func (s *flakySink) Deliver(ctx context.Context, e Event) error {
	_ = s.recordingSink.Deliver(ctx, e)
	if s.count() <= s.failures {
		return s.err
	}
	return nil
}

func TestCalculateBackoff(t *testing.T) {
	policy := RetryPolicy{InitialDelay: 100 * time.Millisecond, BackoffFactor: 2, MaxDelay: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, calculateBackoff(policy, 0))
	assert.Equal(t, 200*time.Millisecond, calculateBackoff(policy, 1))
	assert.Equal(t, 300*time.Millisecond, calculateBackoff(policy, 2))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(errors.New("slack webhook returned 503")))
	assert.True(t, isRetryable(context.DeadlineExceeded))
	assert.True(t, isRetryable(errors.New("dial tcp: connection refused")))
	assert.False(t, isRetryable(errors.New("telegram returned 400: chat not found")))
}

func TestDeliverWithRetry(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, BackoffFactor: 1}

	t.Run("recovers from transient failure", func(t *testing.T) {
		s := &flakySink{recordingSink: recordingSink{name: "flaky", err: errors.New("502 bad gateway")}, failures: 2}
		assert.NoError(t, deliverWithRetry(s, Event{}, policy, time.Second))
		assert.Equal(t, 3, s.count())
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		s := &flakySink{recordingSink: recordingSink{name: "flaky", err: errors.New("502 bad gateway")}, failures: 10}
		assert.Error(t, deliverWithRetry(s, Event{}, policy, time.Second))
		assert.Equal(t, 3, s.count())
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		s := &flakySink{recordingSink: recordingSink{name: "flaky", err: errors.New("invalid payload")}, failures: 10}
		assert.Error(t, deliverWithRetry(s, Event{}, policy, time.Second))
		assert.Equal(t, 1, s.count())
	})

	t.Run("zero policy delivers once", func(t *testing.T) {
		s := &flakySink{recordingSink: recordingSink{name: "flaky", err: errors.New("timeout")}, failures: 10}
		assert.Error(t, deliverWithRetry(s, Event{}, RetryPolicy{}, time.Second))
		assert.Equal(t, 1, s.count())
	})
}
