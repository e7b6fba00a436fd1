package filesaga

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Store is the seam between the engine and whatever durable-execution
// substrate hosts it. The engine persists its progress after every stage
// transition; a crashed run can be re-entered from the last saved state.
// The substrate itself (history, replay, exactly-once delivery) is outside
// this package.
type Store interface {
	// Save persists the current run state.
	Save(ctx context.Context, workflowID string, state State) error

	// Load retrieves a run state by workflow id.
	Load(ctx context.Context, workflowID string) (*State, error)

	// Delete removes a run state.
	Delete(ctx context.Context, workflowID string) error
}

// State contains the minimal information needed to resume or unwind a run.
type State struct {
	WorkflowID      string               `json:"workflow_id"`
	PlanName        string               `json:"plan_name"`
	Status          RunStatus            `json:"status"`
	Input           SagaInput            `json:"input"`
	CompletedStages []CompletedStage     `json:"completed_stages"`
	Compensations   []CompensationAction `json:"compensations"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// CompletedStage records a stage that has been successfully executed, along
// with its output for use by dependent stages after a resume.
type CompletedStage struct {
	Name       StageName       `json:"name"`
	Output     json.RawMessage `json:"output,omitempty"`
	Attempts   int             `json:"attempts"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// MemoryStore provides an in-memory implementation of Store for testing or
// scenarios where persistence is not required.
type MemoryStore struct {
	states map[string]*State
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]*State),
	}
}

// Save stores the run state in memory.
func (m *MemoryStore) Save(ctx context.Context, workflowID string, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stateCopy := state
	stateCopy.UpdatedAt = time.Now()

	m.states[workflowID] = &stateCopy
	return nil
}

// Load retrieves the run state from memory.
func (m *MemoryStore) Load(ctx context.Context, workflowID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, exists := m.states[workflowID]
	if !exists {
		return nil, fmt.Errorf("run %s not found", workflowID)
	}

	stateCopy := *state
	return &stateCopy, nil
}

// Delete removes the run state from memory.
func (m *MemoryStore) Delete(ctx context.Context, workflowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, workflowID)
	return nil
}
