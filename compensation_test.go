package filesaga

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingUndo appends each invoked target to a shared trace so tests can
// assert on the unwind order across compensation kinds.
func recordingUndo(trace *[]string, kind string, fail map[string]error) UndoFunc {
	return func(ctx context.Context, target string) error {
		*trace = append(*trace, kind+":"+target)
		if err, ok := fail[target]; ok {
			return err
		}
		return nil
	}
}

func newStackForTest(t *testing.T, trace *[]string, fail map[string]error) *CompensationStack {
	t.Helper()
	registry := NewActivityRegistry()
	require.NoError(t, registry.RegisterUndo(CleanupFile, recordingUndo(trace, "cleanup", fail)))
	require.NoError(t, registry.RegisterUndo(RollbackUpload, recordingUndo(trace, "rollback", fail)))
	return NewCompensationStack(NewStepExecutor(nil), registry, nil)
}

func TestUnwindAllReverseOrder(t *testing.T) {
	var trace []string
	stack := newStackForTest(t, &trace, nil)

	stack.Push(CompensationAction{Kind: CleanupFile, Target: "input/a.json"})
	stack.Push(CompensationAction{Kind: CleanupFile, Target: "processed/a.json"})
	stack.Push(CompensationAction{Kind: RollbackUpload, Target: "upload-1"})

	outcomes := stack.UnwindAll(context.Background())

	require.Len(t, outcomes, 3)
	assert.Equal(t, []string{
		"rollback:upload-1",
		"cleanup:processed/a.json",
		"cleanup:input/a.json",
	}, trace, "unwind walks newest-first")
	for _, o := range outcomes {
		assert.NoError(t, o.Err)
	}
	assert.NoError(t, CollectUnwindErrors(outcomes))
}

func TestUnwindContinuesPastFailures(t *testing.T) {
	var trace []string
	stack := newStackForTest(t, &trace, map[string]error{
		"processed/a.json": fmt.Errorf("permission denied"),
	})

	stack.Push(CompensationAction{Kind: CleanupFile, Target: "input/a.json"})
	stack.Push(CompensationAction{Kind: CleanupFile, Target: "processed/a.json"})
	stack.Push(CompensationAction{Kind: RollbackUpload, Target: "upload-1"})

	outcomes := stack.UnwindAll(context.Background())

	require.Len(t, outcomes, 3, "a failed undo never halts the walk")
	assert.Len(t, trace, 3)

	assert.NoError(t, outcomes[0].Err)
	require.Error(t, outcomes[1].Err)
	var ce *CompensationError
	require.ErrorAs(t, outcomes[1].Err, &ce)
	assert.Equal(t, CompensationAction{Kind: CleanupFile, Target: "processed/a.json"}, ce.Action)
	assert.NoError(t, outcomes[2].Err)

	assert.Error(t, CollectUnwindErrors(outcomes))
}

func TestUnwindNotFoundIsSuccess(t *testing.T) {
	var trace []string
	stack := newStackForTest(t, &trace, map[string]error{
		"upload-1": fmt.Errorf("rollback: %w", ErrNotFound),
	})

	stack.Push(CompensationAction{Kind: RollbackUpload, Target: "upload-1"})

	outcomes := stack.UnwindAll(context.Background())

	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0].Err, "an already-gone target is the desired end state")
}

func TestUnwindMissingUndoIsCollected(t *testing.T) {
	registry := NewActivityRegistry()
	stack := NewCompensationStack(NewStepExecutor(nil), registry, nil)

	stack.Push(CompensationAction{Kind: RollbackUpload, Target: "upload-1"})

	outcomes := stack.UnwindAll(context.Background())

	require.Len(t, outcomes, 1)
	require.Error(t, outcomes[0].Err)
	var ce *CompensationError
	assert.ErrorAs(t, outcomes[0].Err, &ce)
}

func TestUnwindRunsOnCancelledContext(t *testing.T) {
	var trace []string
	stack := newStackForTest(t, &trace, nil)
	stack.Push(CompensationAction{Kind: CleanupFile, Target: "input/a.json"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := stack.UnwindAll(ctx)

	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0].Err, "cancelling a saga must not skip its cleanup")
	assert.Len(t, trace, 1)
}

func TestUnwindSingleAttempt(t *testing.T) {
	calls := 0
	registry := NewActivityRegistry()
	require.NoError(t, registry.RegisterUndo(CleanupFile, func(ctx context.Context, target string) error {
		calls++
		return errors.New("flaky")
	}))
	stack := NewCompensationStack(NewStepExecutor(nil), registry, nil)
	stack.Push(CompensationAction{Kind: CleanupFile, Target: "x"})

	outcomes := stack.UnwindAll(context.Background())

	require.Len(t, outcomes, 1)
	assert.Error(t, outcomes[0].Err)
	assert.Equal(t, 1, calls, "compensations get exactly one try")
}

func TestStackActionsCopy(t *testing.T) {
	stack := NewCompensationStack(NewStepExecutor(nil), NewActivityRegistry(), nil)
	stack.Push(CompensationAction{Kind: CleanupFile, Target: "a"})

	actions := stack.Actions()
	actions[0].Target = "mutated"

	assert.Equal(t, "a", stack.Actions()[0].Target)
	assert.Equal(t, 1, stack.Len())
}
