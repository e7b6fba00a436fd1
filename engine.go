package filesaga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// SagaOutcome is the terminal record of one saga run.
type SagaOutcome struct {
	Status     RunStatus                 `json:"status"`
	WorkflowID string                    `json:"workflow_id"`
	Results    map[StageName]StageResult `json:"results"`

	// PendingCompensations lists the undo actions that were registered but
	// never executed. Non-empty only on success: a completed saga has
	// nothing to unwind.
	PendingCompensations []CompensationAction `json:"pending_compensations,omitempty"`
}

// Engine drives a plan's stage sequence for one saga run at a time. A single
// Engine may serve many concurrent runs; all per-run state (accumulator,
// compensation stack, status) lives in the run, not the engine.
type Engine struct {
	plan     *Plan
	registry *ActivityRegistry
	exec     *StepExecutor
	store    Store
	events   EventLogger
	metrics  *Metrics
	log      *slog.Logger
	newID    func() string
	clock    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the store used to persist run progress after every stage
// transition.
func WithStore(store Store) Option {
	return func(e *Engine) { e.store = store }
}

// WithEventLogger sets the audit log for terminal saga events.
func WithEventLogger(events EventLogger) Option {
	return func(e *Engine) { e.events = events }
}

// WithMetrics attaches Prometheus instruments to the engine.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the engine's structured logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithIDGenerator overrides workflow id minting. The default mints UUIDs;
// a durable-execution host that assigns identities can plug in here.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithClock overrides the run's logical time source, for durable hosts that
// supply monotonic logical time (and for tests).
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// NewEngine creates an engine for the given plan and activity registry.
func NewEngine(plan *Plan, registry *ActivityRegistry, opts ...Option) *Engine {
	e := &Engine{
		plan:     plan,
		registry: registry,
		log:      slog.Default(),
		newID:    uuid.NewString,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.exec = NewStepExecutor(e.log)
	if e.store == nil {
		e.store = NewMemoryStore()
	}
	if e.events == nil {
		e.events = NewMemoryEventLog()
	}
	return e
}

// run is the state owned exclusively by one saga run.
type run struct {
	workflowID string
	input      SagaInput
	status     RunStatus
	state      *ProcessingState
	stack      *CompensationStack
	startedAt  time.Time
}

func (r *run) transition(to RunStatus) error {
	next, err := r.status.next(to)
	if err != nil {
		return err
	}
	r.status = next
	return nil
}

// Run executes the full stage sequence for one input. On success it returns
// the outcome with every stage's result and the compensations that were
// registered but never needed. On the first stage failure it unwinds the
// compensation stack newest-first, records a failure event, and returns an
// *AbortedError wrapping the original stage failure; the compensation
// outcome never masks it.
func (e *Engine) Run(ctx context.Context, input SagaInput) (*SagaOutcome, error) {
	if err := input.Validate(); err != nil {
		return nil, fmt.Errorf("invalid saga input: %w", err)
	}

	r := &run{
		workflowID: e.newID(),
		input:      input,
		status:     StatusPending,
		state:      NewProcessingState(),
		stack:      NewCompensationStack(e.exec, e.registry, e.log),
		startedAt:  e.clock(),
	}

	e.log.Info("saga starting", "workflow_id", r.workflowID, "plan", e.plan.Name(),
		"file_url", input.FileURL, "filename", input.Filename)

	return e.advance(ctx, r, e.plan.Stages())
}

// Resume re-enters a partially completed run from persisted state, skipping
// every stage the previous incarnation finished. Outputs of completed stages
// come back as raw JSON; dependent stages decode them through LookupOutput.
func (e *Engine) Resume(ctx context.Context, workflowID string) (*SagaOutcome, error) {
	saved, err := e.store.Load(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("cannot resume: %w", err)
	}
	if saved.Status.Terminal() {
		return nil, fmt.Errorf("cannot resume %s: already %s", workflowID, saved.Status)
	}
	if saved.PlanName != e.plan.Name() {
		return nil, fmt.Errorf("cannot resume %s: state belongs to plan %q, engine runs %q",
			workflowID, saved.PlanName, e.plan.Name())
	}

	r := &run{
		workflowID: workflowID,
		input:      saved.Input,
		status:     StatusPending,
		state:      NewProcessingState(),
		stack:      NewCompensationStack(e.exec, e.registry, e.log),
		startedAt:  saved.CreatedAt,
	}

	done := make(map[StageName]bool, len(saved.CompletedStages))
	for _, cs := range saved.CompletedStages {
		done[cs.Name] = true
		if err := r.state.Record(StageResult{
			Stage:      cs.Name,
			Output:     json.RawMessage(cs.Output),
			Attempts:   cs.Attempts,
			StartedAt:  cs.StartedAt,
			FinishedAt: cs.FinishedAt,
		}); err != nil {
			return nil, fmt.Errorf("corrupt saved state for %s: %w", workflowID, err)
		}
	}
	for _, action := range saved.Compensations {
		r.stack.Push(action)
	}

	remaining := make([]Stage, 0, e.plan.Len())
	for _, stage := range e.plan.Stages() {
		if !done[stage.Name] {
			remaining = append(remaining, stage)
		}
	}

	e.log.Info("saga resuming", "workflow_id", workflowID,
		"completed", len(saved.CompletedStages), "remaining", len(remaining))

	return e.advance(ctx, r, remaining)
}

// advance runs the forward pass over the given stages and settles the run.
func (e *Engine) advance(ctx context.Context, r *run, stages []Stage) (*SagaOutcome, error) {
	if err := r.transition(StatusRunning); err != nil {
		return nil, err
	}
	e.persist(ctx, r)

	for _, stage := range stages {
		failure := e.runStage(ctx, r, stage)
		if failure != nil {
			return e.abort(ctx, r, failure)
		}
		e.persist(ctx, r)
	}

	if err := r.transition(StatusCompleted); err != nil {
		return nil, err
	}
	e.persist(ctx, r)
	e.recordEvent(ctx, r, EventSagaCompleted, "")
	if e.metrics != nil {
		e.metrics.SagaTotal.WithLabelValues(r.status.String()).Inc()
	}

	e.log.Info("saga completed", "workflow_id", r.workflowID, "stages", r.state.Len())

	return &SagaOutcome{
		Status:               r.status,
		WorkflowID:           r.workflowID,
		Results:              r.state.Snapshot(),
		PendingCompensations: r.stack.Actions(),
	}, nil
}

// runStage executes one stage via the step executor and, on success, records
// its result and registers its compensation. The returned failure is nil on
// success.
func (e *Engine) runStage(ctx context.Context, r *run, stage Stage) *StepFailure {
	activity, err := e.registry.Get(stage.Activity)
	if err != nil {
		return &StepFailure{StageID: stage.Name, Err: err}
	}

	runCtx := &RunContext{
		WorkflowID: r.workflowID,
		Input:      r.input,
		state:      r.state,
		clock:      e.clock,
	}

	e.log.Info("stage starting", "workflow_id", r.workflowID, "stage", stage.Name)
	startedAt := e.clock()

	output, attempts, err := e.exec.Execute(ctx, stage.Name, stage.Retry, stage.Timeout,
		func(ctx context.Context) (any, error) {
			return activity(ctx, runCtx)
		})
	if err != nil {
		if e.metrics != nil {
			e.metrics.StageFailures.WithLabelValues(string(stage.Name)).Inc()
		}
		var failure *StepFailure
		if !errors.As(err, &failure) {
			failure = &StepFailure{StageID: stage.Name, Attempts: 1, Err: err}
		}
		return failure
	}

	finishedAt := e.clock()
	if e.metrics != nil {
		e.metrics.StageDuration.WithLabelValues(string(stage.Name)).
			Observe(finishedAt.Sub(startedAt).Seconds())
	}

	result := StageResult{
		Stage:      stage.Name,
		Output:     output,
		Attempts:   attempts,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}
	if err := r.state.Record(result); err != nil {
		return &StepFailure{StageID: stage.Name, Err: err}
	}

	if stage.Compensation != nil {
		if action, ok := stage.Compensation(output); ok {
			r.stack.Push(action)
			e.log.Info("compensation registered", "workflow_id", r.workflowID,
				"stage", stage.Name, "kind", action.Kind, "target", action.Target)
		}
	}

	e.log.Info("stage completed", "workflow_id", r.workflowID, "stage", stage.Name,
		"duration", finishedAt.Sub(startedAt))
	return nil
}

// abort unwinds everything the forward pass registered, settles the terminal
// status, records the failure event, and surfaces the original stage failure.
func (e *Engine) abort(ctx context.Context, r *run, failure *StepFailure) (*SagaOutcome, error) {
	cancelled := errors.Is(failure.Err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)

	e.log.Error("saga failed, unwinding", "workflow_id", r.workflowID,
		"stage", failure.StageID, "cancelled", cancelled, "error", failure.Err)

	if err := r.transition(StatusCompensating); err != nil {
		return nil, err
	}
	e.persist(ctx, r)

	outcomes := r.stack.UnwindAll(ctx)

	terminal := StatusCompensated
	if CollectUnwindErrors(outcomes) != nil {
		terminal = StatusCompensationPartiallyFailed
	}
	if err := r.transition(terminal); err != nil {
		return nil, err
	}
	e.persist(ctx, r)

	if e.metrics != nil {
		e.metrics.SagaTotal.WithLabelValues(r.status.String()).Inc()
		for _, o := range outcomes {
			result := "ok"
			if o.Err != nil {
				result = "failed"
			}
			e.metrics.CompensationTotal.WithLabelValues(string(o.Action.Kind), result).Inc()
		}
	}

	reason := failure.Error()
	if cancelled {
		reason = "cancelled: " + reason
	}
	// The failure event is recorded only after the unwind has finished.
	e.recordEvent(ctx, r, EventSagaFailed, reason)

	return nil, &AbortedError{
		WorkflowID: r.workflowID,
		Failure:    failure,
		Unwind:     outcomes,
		Cancelled:  cancelled,
	}
}

// persist saves run progress through the store. Persistence problems are
// logged and swallowed: losing a checkpoint must not fail the run.
func (e *Engine) persist(ctx context.Context, r *run) {
	completed := make([]CompletedStage, 0, r.state.Len())
	for _, result := range r.state.Results() {
		var raw json.RawMessage
		if result.Output != nil {
			data, err := json.Marshal(result.Output)
			if err != nil {
				e.log.Warn("failed to marshal stage output", "workflow_id", r.workflowID,
					"stage", result.Stage, "error", err)
			} else {
				raw = data
			}
		}
		completed = append(completed, CompletedStage{
			Name:       result.Stage,
			Output:     raw,
			Attempts:   result.Attempts,
			StartedAt:  result.StartedAt,
			FinishedAt: result.FinishedAt,
		})
	}

	state := State{
		WorkflowID:      r.workflowID,
		PlanName:        e.plan.Name(),
		Status:          r.status,
		Input:           r.input,
		CompletedStages: completed,
		Compensations:   r.stack.Actions(),
		CreatedAt:       r.startedAt,
		UpdatedAt:       time.Now(),
	}

	// Persist on a detached context so a cancelled run still checkpoints.
	if err := e.store.Save(context.WithoutCancel(ctx), r.workflowID, state); err != nil {
		e.log.Warn("failed to persist run state", "workflow_id", r.workflowID, "error", err)
	}
}

// recordEvent writes the terminal audit event. A write failure is reported
// to the operator through the log but never changes the saga decision.
func (e *Engine) recordEvent(ctx context.Context, r *run, typ EventType, reason string) {
	event := Event{
		Type:       typ,
		WorkflowID: r.workflowID,
		Status:     r.status,
		Reason:     reason,
		Snapshot:   r.state.Snapshot(),
		Timestamp:  e.clock(),
	}
	if err := e.events.Record(context.WithoutCancel(ctx), event); err != nil {
		e.log.Error("failed to record saga event", "workflow_id", r.workflowID,
			"event", typ, "error", err)
	}
}
