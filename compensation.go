package filesaga

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
)

// CompensationKind names a class of undo action.
type CompensationKind string

const (
	// CleanupFile removes a file created by a forward stage. Already-removed
	// files are a successful no-op.
	CleanupFile CompensationKind = "cleanup_file"

	// RollbackUpload deletes a previously registered upload by id. An unknown
	// id is a successful no-op.
	RollbackUpload CompensationKind = "rollback_upload"
)

// CompensationAction is one undo entry: what to do and to what. It is created
// only when the forward stage that produced it succeeds, and is immutable
// from then on.
type CompensationAction struct {
	Kind   CompensationKind `json:"kind"`
	Target string           `json:"target"`
}

// UnwindOutcome records the result of invoking one compensation during an
// unwind. Err is nil on success (including idempotent no-ops).
type UnwindOutcome struct {
	Action CompensationAction `json:"action"`
	Err    error              `json:"-"`
}

// CompensationStack is the ordered ledger of undo actions registered by the
// forward pass. Insertion order is the sole ordering signal; unwinding walks
// it newest-first. Each saga run owns exactly one stack.
type CompensationStack struct {
	exec     *StepExecutor
	registry *ActivityRegistry
	log      *slog.Logger

	// Undo actions run under a short deadline and a single attempt:
	// compensations must not themselves require compensations. Rollbacks
	// get longer than file cleanups; they cross the network.
	timeouts map[CompensationKind]time.Duration
	policy   RetryPolicy

	actions []CompensationAction
}

// NewCompensationStack creates an empty stack that resolves undo functions
// through the registry and runs them through the executor.
func NewCompensationStack(exec *StepExecutor, registry *ActivityRegistry, log *slog.Logger) *CompensationStack {
	if log == nil {
		log = slog.Default()
	}
	return &CompensationStack{
		exec:     exec,
		registry: registry,
		log:      log,
		timeouts: map[CompensationKind]time.Duration{
			CleanupFile:    time.Minute,
			RollbackUpload: 5 * time.Minute,
		},
		policy: SingleAttempt,
	}
}

// Push appends an undo action to the ledger.
func (s *CompensationStack) Push(action CompensationAction) {
	s.actions = append(s.actions, action)
}

// Len returns the number of registered undo actions.
func (s *CompensationStack) Len() int {
	return len(s.actions)
}

// Actions returns the registered undo actions in push order.
func (s *CompensationStack) Actions() []CompensationAction {
	return append([]CompensationAction(nil), s.actions...)
}

// UnwindAll executes every registered undo action in strict reverse-push
// order. A failed undo is recorded and the walk continues: rollback is
// best-effort and every pending compensation gets its chance to run. The
// parent context's cancellation does not stop the walk either: the unwind
// runs on a detached context so cancelling a saga still cleans up.
func (s *CompensationStack) UnwindAll(ctx context.Context) []UnwindOutcome {
	unwindCtx := context.WithoutCancel(ctx)

	outcomes := make([]UnwindOutcome, 0, len(s.actions))
	for i := len(s.actions) - 1; i >= 0; i-- {
		action := s.actions[i]
		outcomes = append(outcomes, UnwindOutcome{
			Action: action,
			Err:    s.unwindOne(unwindCtx, action),
		})
	}
	return outcomes
}

func (s *CompensationStack) unwindOne(ctx context.Context, action CompensationAction) error {
	undo, err := s.registry.GetUndo(action.Kind)
	if err != nil {
		s.log.Error("no undo registered", "kind", action.Kind, "target", action.Target)
		return &CompensationError{Action: action, Err: err}
	}

	timeout, ok := s.timeouts[action.Kind]
	if !ok {
		timeout = time.Minute
	}

	_, _, err = s.exec.Execute(ctx, StageName("undo:"+string(action.Kind)), s.policy, timeout,
		func(ctx context.Context) (any, error) {
			err := undo(ctx, action.Target)
			// The resource being gone already is the end state we wanted.
			if err != nil && isNotFound(err) {
				s.log.Info("undo target already gone", "kind", action.Kind, "target", action.Target)
				return nil, nil
			}
			return nil, err
		})
	if err != nil {
		s.log.Error("compensation failed", "kind", action.Kind, "target", action.Target, "error", err)
		return &CompensationError{Action: action, Err: err}
	}

	s.log.Info("compensation applied", "kind", action.Kind, "target", action.Target)
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// CollectUnwindErrors aggregates the failures from an unwind into a single
// error, or nil when every compensation succeeded.
func CollectUnwindErrors(outcomes []UnwindOutcome) error {
	var result *multierror.Error
	for _, o := range outcomes {
		if o.Err != nil {
			result = multierror.Append(result, o.Err)
		}
	}
	return result.ErrorOrNil()
}
