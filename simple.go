package filesaga

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Pipeline is the stripped-down, non-compensating variant of a plan: the
// same stage sequence with per-stage timeouts and retries, but no
// compensation registration and no rollback. A failure propagates to the
// caller with whatever earlier stages produced left in place. Use it when
// idempotent cleanup-by-hand is acceptable.
type Pipeline struct {
	plan     *Plan
	registry *ActivityRegistry
	exec     *StepExecutor
	log      *slog.Logger
	newID    func() string
}

// NewPipeline creates a non-compensating pipeline over the given plan. Any
// compensation builders in the plan's stages are ignored.
func NewPipeline(plan *Plan, registry *ActivityRegistry, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		plan:     plan,
		registry: registry,
		exec:     NewStepExecutor(log),
		log:      log,
		newID:    uuid.NewString,
	}
}

// Run executes the stage sequence. On failure it returns the stage error
// directly along with the results of the stages that did complete.
func (p *Pipeline) Run(ctx context.Context, input SagaInput) (*SagaOutcome, error) {
	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline input: %w", err)
	}

	workflowID := p.newID()
	state := NewProcessingState()

	p.log.Info("pipeline starting", "workflow_id", workflowID, "plan", p.plan.Name())

	for _, stage := range p.plan.Stages() {
		activity, err := p.registry.Get(stage.Activity)
		if err != nil {
			return nil, &StepFailure{StageID: stage.Name, Err: err}
		}

		runCtx := &RunContext{
			WorkflowID: workflowID,
			Input:      input,
			state:      state,
		}

		startedAt := time.Now()
		output, attempts, err := p.exec.Execute(ctx, stage.Name, stage.Retry, stage.Timeout,
			func(ctx context.Context) (any, error) {
				return activity(ctx, runCtx)
			})
		if err != nil {
			p.log.Error("pipeline stage failed", "workflow_id", workflowID,
				"stage", stage.Name, "error", err)
			return &SagaOutcome{
				Status:     StatusFailed,
				WorkflowID: workflowID,
				Results:    state.Snapshot(),
			}, err
		}

		if err := state.Record(StageResult{
			Stage:      stage.Name,
			Output:     output,
			Attempts:   attempts,
			StartedAt:  startedAt,
			FinishedAt: time.Now(),
		}); err != nil {
			return nil, &StepFailure{StageID: stage.Name, Err: err}
		}
	}

	p.log.Info("pipeline completed", "workflow_id", workflowID, "stages", state.Len())

	return &SagaOutcome{
		Status:     StatusCompleted,
		WorkflowID: workflowID,
		Results:    state.Snapshot(),
	}, nil
}
