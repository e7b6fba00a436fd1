package filesaga

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/btree"
)

// StageName identifies one stage of the pipeline.
type StageName string

// SagaInput is the immutable input supplied once at saga start.
type SagaInput struct {
	FileURL  string `json:"file_url"`
	Filename string `json:"filename"`
}

// Validate rejects inputs the pipeline cannot act on.
func (in SagaInput) Validate() error {
	if in.FileURL == "" {
		return Terminalf("file_url must not be empty")
	}
	if in.Filename == "" {
		return Terminalf("filename must not be empty")
	}
	return nil
}

// StageResult is the recorded outcome of one successful stage: the activity's
// typed output plus execution metadata.
type StageResult struct {
	Stage      StageName `json:"stage"`
	Output     any       `json:"output,omitempty"`
	Attempts   int       `json:"attempts"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// ProcessingState is the per-run accumulator of stage results, keyed by stage
// name. It is owned exclusively by the engine instance for one run and is
// append-only during the forward pass: recording a stage twice is a bug.
type ProcessingState struct {
	results *btree.Map[StageName, StageResult]
}

// NewProcessingState creates an empty accumulator.
func NewProcessingState() *ProcessingState {
	return &ProcessingState{results: btree.NewMap[StageName, StageResult](8)}
}

// Record appends a stage result. It refuses to overwrite an existing entry.
func (s *ProcessingState) Record(result StageResult) error {
	if _, exists := s.results.Get(result.Stage); exists {
		return fmt.Errorf("stage %s already recorded", result.Stage)
	}
	s.results.Set(result.Stage, result)
	return nil
}

// Lookup returns the recorded result for a stage, if any.
func (s *ProcessingState) Lookup(stage StageName) (StageResult, bool) {
	return s.results.Get(stage)
}

// Len returns the number of recorded stages.
func (s *ProcessingState) Len() int {
	return s.results.Len()
}

// Results returns every recorded result in stage-name order, which keeps
// persisted state deterministic.
func (s *ProcessingState) Results() []StageResult {
	out := make([]StageResult, 0, s.results.Len())
	s.results.Scan(func(_ StageName, result StageResult) bool {
		out = append(out, result)
		return true
	})
	return out
}

// Snapshot returns every recorded result keyed by stage name.
func (s *ProcessingState) Snapshot() map[StageName]StageResult {
	out := make(map[StageName]StageResult, s.results.Len())
	s.results.Scan(func(stage StageName, result StageResult) bool {
		out[stage] = result
		return true
	})
	return out
}

// RunContext is what an activity sees of the run that invoked it: the
// original input, the minted workflow identity, and read access to the
// outputs of earlier stages.
type RunContext struct {
	WorkflowID string
	Input      SagaInput
	state      *ProcessingState
	clock      func() time.Time
}

// NewRunContext builds a standalone run context with the given stage results
// already recorded. Activities are plain functions; this lets them be
// exercised outside an engine.
func NewRunContext(workflowID string, input SagaInput, results ...StageResult) (*RunContext, error) {
	state := NewProcessingState()
	for _, result := range results {
		if err := state.Record(result); err != nil {
			return nil, err
		}
	}
	return &RunContext{WorkflowID: workflowID, Input: input, state: state}, nil
}

// Now returns the run's logical time. A durable-execution host that supplies
// monotonic logical time plugs in through the engine's clock option; the
// default is wall-clock time.
func (rc *RunContext) Now() time.Time {
	if rc.clock != nil {
		return rc.clock()
	}
	return time.Now()
}

// Lookup returns the output of a previously completed stage.
func (rc *RunContext) Lookup(stage StageName) (any, bool) {
	if rc.state == nil {
		return nil, false
	}
	result, ok := rc.state.Lookup(stage)
	if !ok {
		return nil, false
	}
	return result.Output, true
}

// LookupOutput retrieves an earlier stage's output with a type assertion.
// Outputs restored from a persisted run come back as json.RawMessage and are
// unmarshaled into the requested type.
func LookupOutput[R any](rc *RunContext, stage StageName) (R, bool) {
	var zero R
	value, found := rc.Lookup(stage)
	if !found {
		return zero, false
	}

	if typed, ok := value.(R); ok {
		return typed, true
	}

	if raw, ok := value.(json.RawMessage); ok {
		var result R
		if err := json.Unmarshal(raw, &result); err == nil {
			return result, true
		}
	}

	return zero, false
}
