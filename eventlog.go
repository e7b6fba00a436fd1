package filesaga

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType classifies a terminal saga transition.
type EventType string

const (
	EventSagaCompleted EventType = "saga_completed"
	EventSagaFailed    EventType = "saga_failed"
)

// Event is one append-only audit record: exactly one is produced per
// terminal saga transition.
type Event struct {
	Type       EventType                 `json:"event_type"`
	WorkflowID string                    `json:"workflow_id"`
	Status     RunStatus                 `json:"status"`
	Reason     string                    `json:"reason,omitempty"`
	Snapshot   map[StageName]StageResult `json:"snapshot,omitempty"`
	Timestamp  time.Time                 `json:"timestamp"`
}

// EventLogger records terminal saga events for operators. Failures to write
// are reported to the caller but must never roll back the saga decision
// already made.
type EventLogger interface {
	Record(ctx context.Context, event Event) error
}

// FileEventLog appends events as JSON lines to a daily log file under its
// base directory, one file per calendar day.
type FileEventLog struct {
	basePath string
	mu       sync.Mutex
}

// NewFileEventLog creates an event log writing under basePath.
func NewFileEventLog(basePath string) (*FileEventLog, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &FileEventLog{basePath: basePath}, nil
}

// Record appends the event to today's log file.
func (l *FileEventLog) Record(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	filename := filepath.Join(l.basePath,
		fmt.Sprintf("processing_%s.log", event.Timestamp.Format("20060102")))

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// MemoryEventLog collects events in memory for tests.
type MemoryEventLog struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryEventLog creates an empty in-memory event log.
func NewMemoryEventLog() *MemoryEventLog {
	return &MemoryEventLog{}
}

// Record appends the event.
func (l *MemoryEventLog) Record(ctx context.Context, event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	l.events = append(l.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (l *MemoryEventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}
