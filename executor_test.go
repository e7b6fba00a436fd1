package filesaga

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = RetryPolicy{
	InitialInterval: time.Millisecond,
	MaxInterval:     5 * time.Millisecond,
	MaxAttempts:     3,
}

func TestExecuteSucceedsFirstAttempt(t *testing.T) {
	exec := NewStepExecutor(nil)

	output, attempts, err := exec.Execute(context.Background(), "download", testPolicy, time.Second,
		func(ctx context.Context) (any, error) {
			return "file.json", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "file.json", output)
	assert.Equal(t, 1, attempts)
}

func TestExecuteRetriesTransientUntilSuccess(t *testing.T) {
	exec := NewStepExecutor(nil)

	calls := 0
	output, attempts, err := exec.Execute(context.Background(), "download", testPolicy, time.Second,
		func(ctx context.Context) (any, error) {
			calls++
			if calls < 3 {
				return nil, Transientf("connection reset")
			}
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", output)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, attempts)
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	exec := NewStepExecutor(nil)

	calls := 0
	_, attempts, err := exec.Execute(context.Background(), "download", testPolicy, time.Second,
		func(ctx context.Context) (any, error) {
			calls++
			return nil, Transientf("still down")
		})

	require.Error(t, err)
	assert.Equal(t, testPolicy.MaxAttempts, calls, "attempt ceiling is exact")
	assert.Equal(t, testPolicy.MaxAttempts, attempts)

	var failure *StepFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, StageName("download"), failure.StageID)
	assert.Equal(t, testPolicy.MaxAttempts, failure.Attempts)
	assert.Contains(t, failure.Err.Error(), "still down")
}

func TestExecuteTerminalStopsImmediately(t *testing.T) {
	exec := NewStepExecutor(nil)

	calls := 0
	_, attempts, err := exec.Execute(context.Background(), "validate", testPolicy, time.Second,
		func(ctx context.Context) (any, error) {
			calls++
			return nil, Terminalf("file is empty")
		})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "terminal error must not be retried")
	assert.Equal(t, 1, attempts)
	assert.True(t, IsTerminal(err))
}

func TestExecuteUnclassifiedErrorIsRetried(t *testing.T) {
	exec := NewStepExecutor(nil)

	calls := 0
	_, _, err := exec.Execute(context.Background(), "upload", testPolicy, time.Second,
		func(ctx context.Context) (any, error) {
			calls++
			return nil, errors.New("unclassified")
		})

	require.Error(t, err)
	assert.Equal(t, testPolicy.MaxAttempts, calls)
}

func TestExecuteAttemptTimeoutIsTransient(t *testing.T) {
	exec := NewStepExecutor(nil)

	calls := 0
	_, _, err := exec.Execute(context.Background(), "download", testPolicy, 5*time.Millisecond,
		func(ctx context.Context) (any, error) {
			calls++
			<-ctx.Done()
			return nil, ctx.Err()
		})

	require.Error(t, err)
	assert.Equal(t, testPolicy.MaxAttempts, calls, "per-attempt timeout counts as a transient failure")
	assert.False(t, IsTerminal(err))
}

func TestExecuteCancellationStopsRetries(t *testing.T) {
	exec := NewStepExecutor(nil)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, _, err := exec.Execute(ctx, "download", testPolicy, time.Second,
		func(ctx context.Context) (any, error) {
			calls++
			cancel()
			return nil, ctx.Err()
		})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "a cancelled run never retries")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteCancelledBeforeStart(t *testing.T) {
	exec := NewStepExecutor(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, _, err := exec.Execute(ctx, "download", testPolicy, time.Second,
		func(ctx context.Context) (any, error) {
			calls++
			return nil, nil
		})

	require.Error(t, err)
	assert.Equal(t, 0, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecuteInvalidPolicy(t *testing.T) {
	exec := NewStepExecutor(nil)

	_, _, err := exec.Execute(context.Background(), "download", RetryPolicy{}, time.Second,
		func(ctx context.Context) (any, error) {
			t.Fatal("must not be invoked under an invalid policy")
			return nil, nil
		})

	require.Error(t, err)
}

func TestRetryPolicyValidate(t *testing.T) {
	assert.NoError(t, testPolicy.Validate())
	assert.NoError(t, SingleAttempt.Validate())

	assert.Error(t, RetryPolicy{MaxAttempts: 0}.Validate())
	assert.Error(t, RetryPolicy{MaxAttempts: 2}.Validate(), "retries need an interval")
	assert.Error(t, RetryPolicy{
		InitialInterval: time.Second,
		MaxInterval:     time.Millisecond,
		MaxAttempts:     2,
	}.Validate())
}

func TestRetryPolicyBackoffGrowsAndCaps(t *testing.T) {
	policy := RetryPolicy{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     400 * time.Millisecond,
		MaxAttempts:     10,
	}

	// With +/-25% jitter the wait for attempt n lies within [0.75, 1.25] of
	// min(initial * 2^(n-1), max).
	for attempt, base := range map[int]time.Duration{
		1: 100 * time.Millisecond,
		2: 200 * time.Millisecond,
		3: 400 * time.Millisecond,
		4: 400 * time.Millisecond,
		8: 400 * time.Millisecond,
	} {
		wait := policy.backoff(attempt)
		lo := time.Duration(float64(base) * 0.75)
		hi := time.Duration(float64(base) * 1.25)
		assert.GreaterOrEqual(t, wait, lo, "attempt %d", attempt)
		assert.LessOrEqual(t, wait, hi, "attempt %d", attempt)
	}
}
