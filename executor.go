package filesaga

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// StepExecutor invokes one unit of work with a bounded per-attempt timeout
// and a retry policy. It holds no per-run state and is safe to share across
// stages and concurrent saga runs.
type StepExecutor struct {
	log *slog.Logger
}

// NewStepExecutor creates an executor that logs retry decisions through the
// given logger. A nil logger falls back to slog.Default.
func NewStepExecutor(log *slog.Logger) *StepExecutor {
	if log == nil {
		log = slog.Default()
	}
	return &StepExecutor{log: log}
}

// Execute runs fn under the stage's retry policy, bounding each attempt by
// timeout. Transient failures are retried with exponential backoff; terminal
// failures and context cancellation stop immediately. It returns the output
// and the number of attempts made; on exhaustion the returned error is a
// *StepFailure carrying the stage id, the attempt count, and the last error.
func (e *StepExecutor) Execute(
	ctx context.Context,
	stageID StageName,
	policy RetryPolicy,
	timeout time.Duration,
	fn func(ctx context.Context) (any, error),
) (any, int, error) {
	if err := policy.Validate(); err != nil {
		return nil, 0, &StepFailure{StageID: stageID, Attempts: 0, Err: err}
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt - 1, &StepFailure{StageID: stageID, Attempts: attempt - 1, Err: err}
		}

		output, err := e.attempt(ctx, timeout, fn)
		if err == nil {
			return output, attempt, nil
		}
		lastErr = err

		// A cancelled run never retries; the saga-level deadline belongs to
		// the caller, not to this stage.
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return nil, attempt, &StepFailure{StageID: stageID, Attempts: attempt, Err: err}
		}

		if IsTerminal(err) {
			e.log.Warn("stage failed terminally", "stage", stageID, "attempt", attempt, "error", err)
			return nil, attempt, &StepFailure{StageID: stageID, Attempts: attempt, Err: err}
		}

		if attempt == policy.MaxAttempts {
			break
		}

		wait := policy.backoff(attempt)
		e.log.Warn("stage failed, retrying", "stage", stageID, "attempt", attempt, "backoff", wait, "error", err)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, attempt, &StepFailure{StageID: stageID, Attempts: attempt, Err: ctx.Err()}
		}
	}

	return nil, policy.MaxAttempts, &StepFailure{StageID: stageID, Attempts: policy.MaxAttempts, Err: lastErr}
}

// attempt runs fn once under the per-attempt deadline. An attempt that
// exceeds the deadline fails with a transient timeout error so the retry
// policy applies to it like any other transient failure.
func (e *StepExecutor) attempt(
	ctx context.Context,
	timeout time.Duration,
	fn func(ctx context.Context) (any, error),
) (any, error) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	output, err := fn(attemptCtx)
	if err != nil {
		// Distinguish the attempt deadline from the caller's cancellation:
		// only the former is retryable.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, Transientf("attempt timed out after %v: %w", timeout, err)
		}
		return nil, err
	}
	return output, nil
}
