package filesaga

import (
	"encoding/json"
	"fmt"
)

// RunStatus is the saga engine's state for one run.
type RunStatus int

const (
	StatusPending RunStatus = iota
	StatusRunning
	StatusCompleted
	StatusCompensating
	StatusCompensated
	StatusCompensationPartiallyFailed
	StatusFailed
)

// String returns the string representation of the RunStatus.
func (s RunStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusCompensating:
		return "compensating"
	case StatusCompensated:
		return "compensated"
	case StatusCompensationPartiallyFailed:
		return "compensation_partially_failed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown RunStatus: %d", s)
	}
}

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCompensated, StatusCompensationPartiallyFailed, StatusFailed:
		return true
	}
	return false
}

// next validates a transition and returns the new status. Exactly one
// terminal status is reached per run; an illegal transition is a bug in the
// engine, not a recoverable condition.
func (s RunStatus) next(to RunStatus) (RunStatus, error) {
	ok := false
	switch s {
	case StatusPending:
		ok = to == StatusRunning || to == StatusFailed
	case StatusRunning:
		ok = to == StatusRunning || to == StatusCompleted || to == StatusCompensating || to == StatusFailed
	case StatusCompensating:
		ok = to == StatusCompensated || to == StatusCompensationPartiallyFailed
	}
	if !ok {
		return s, fmt.Errorf("illegal status transition %s -> %s", s, to)
	}
	return to, nil
}

// MarshalJSON implements the json.Marshaler interface for RunStatus.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for RunStatus.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	switch str {
	case "pending":
		*s = StatusPending
	case "running":
		*s = StatusRunning
	case "completed":
		*s = StatusCompleted
	case "compensating":
		*s = StatusCompensating
	case "compensated":
		*s = StatusCompensated
	case "compensation_partially_failed":
		*s = StatusCompensationPartiallyFailed
	case "failed":
		*s = StatusFailed
	default:
		return fmt.Errorf("invalid RunStatus: %s", str)
	}

	return nil
}
