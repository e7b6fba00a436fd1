package filesaga

import (
	"errors"
	"fmt"
)

// TransientError represents an activity failure that is expected to clear on
// its own (network hiccup, busy service). The step executor retries these up
// to the stage's attempt ceiling.
type TransientError struct {
	error
}

// Transient wraps a user-provided error as retryable.
func Transient(err error) error {
	return &TransientError{fmt.Errorf("transient: %w", err)}
}

// Transientf is a convenience formatter for TransientError.
func Transientf(format string, args ...any) error {
	return &TransientError{fmt.Errorf(format, args...)}
}

func (e *TransientError) Unwrap() error { return e.error }

// TerminalError represents a failure that retrying cannot fix, such as a
// malformed or empty input file. The step executor gives up after the first
// attempt regardless of the retry policy.
type TerminalError struct {
	error
}

// Terminal wraps a user-provided error as non-retryable.
func Terminal(err error) error {
	return &TerminalError{fmt.Errorf("terminal: %w", err)}
}

// Terminalf is a convenience formatter for TerminalError.
func Terminalf(format string, args ...any) error {
	return &TerminalError{fmt.Errorf(format, args...)}
}

func (e *TerminalError) Unwrap() error { return e.error }

// IsTerminal reports whether err (or anything it wraps) is a TerminalError.
func IsTerminal(err error) bool {
	var te *TerminalError
	return errors.As(err, &te)
}

// ErrNotFound is returned by undo activities when the resource they would
// remove no longer exists. The compensation stack treats it as a successful
// no-op so that undo actions stay idempotent.
var ErrNotFound = errors.New("not found")

// StepFailure is the terminal result of a stage whose attempts are exhausted
// (or whose first attempt hit a terminal error). It carries enough context
// for the engine to decide what to unwind.
type StepFailure struct {
	StageID  StageName
	Attempts int
	Err      error
}

func (f *StepFailure) Error() string {
	return fmt.Sprintf("stage %s failed after %d attempt(s): %v", f.StageID, f.Attempts, f.Err)
}

func (f *StepFailure) Unwrap() error { return f.Err }

// CompensationError records a single undo action that failed during unwind.
// It is collected, never raised, so the remaining undo actions still run.
type CompensationError struct {
	Action CompensationAction
	Err    error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation %s(%s) failed: %v", e.Action.Kind, e.Action.Target, e.Err)
}

func (e *CompensationError) Unwrap() error { return e.Err }

// AbortedError is what the saga's caller receives when a stage failure forced
// an unwind. It always wraps the original stage failure; the compensation
// outcome annotates it but never masks it.
type AbortedError struct {
	WorkflowID string
	Failure    *StepFailure
	Unwind     []UnwindOutcome
	Cancelled  bool
}

func (e *AbortedError) Error() string {
	ok, failed := 0, 0
	for _, u := range e.Unwind {
		if u.Err != nil {
			failed++
		} else {
			ok++
		}
	}
	reason := "aborted"
	if e.Cancelled {
		reason = "cancelled"
	}
	return fmt.Sprintf("saga %s %s: %v (compensations: %d succeeded, %d failed)",
		e.WorkflowID, reason, e.Failure, ok, failed)
}

func (e *AbortedError) Unwrap() error { return e.Failure }
