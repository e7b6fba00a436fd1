package filesaga

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/fortressi/filesaga/dag"
	"github.com/fortressi/filesaga/set"
)

// CompensationBuilder derives the undo action for a stage from the stage's
// own output. Returning false means the stage registers no compensation.
type CompensationBuilder func(output any) (CompensationAction, bool)

// Stage is one entry of the static stage table: which activity to run, under
// what timeout and retry policy, and how to undo it if a later stage fails.
type Stage struct {
	Name         StageName
	Activity     ActivityName
	Timeout      time.Duration
	Retry        RetryPolicy
	Compensation CompensationBuilder
}

// Plan is a validated, ordered stage table. The pipeline is a linear
// dependency chain: every stage consumes its predecessors' outputs, so the
// builder rejects anything that is not a single path.
type Plan struct {
	name   string
	stages []Stage
	graph  *dag.Graph
}

// Name returns the plan's name.
func (p *Plan) Name() string { return p.name }

// Stages returns the stage table in execution order.
func (p *Plan) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Len returns the number of stages.
func (p *Plan) Len() int { return len(p.stages) }

// ExportToDot renders the plan as a Graphviz document for operators.
func (p *Plan) ExportToDot() (string, error) {
	return p.graph.ExportToDot()
}

// PlanBuilder appends stages to a linear chain. Each appended stage depends
// on the previously appended one; the finished plan's execution order is
// derived from the graph rather than assumed, so a wiring mistake surfaces
// at build time instead of mid-run.
type PlanBuilder struct {
	name       string
	graph      *dag.Graph
	stages     map[int64]Stage
	stageNames *set.Set[StageName]
	last       *dag.Node
	errs       []error
}

// NewPlanBuilder creates a builder for a named plan.
func NewPlanBuilder(name string) *PlanBuilder {
	return &PlanBuilder{
		name:       name,
		graph:      dag.New(),
		stages:     make(map[int64]Stage),
		stageNames: &set.Set[StageName]{},
	}
}

// Append adds a stage after the most recently appended one.
func (b *PlanBuilder) Append(stage Stage) *PlanBuilder {
	if stage.Name == "" {
		b.errs = append(b.errs, fmt.Errorf("stage with empty name"))
		return b
	}
	if b.stageNames.Contains(stage.Name) {
		b.errs = append(b.errs, fmt.Errorf("stage with name %q already exists", stage.Name))
		return b
	}
	if err := stage.Retry.Validate(); err != nil {
		b.errs = append(b.errs, fmt.Errorf("stage %q: %w", stage.Name, err))
		return b
	}
	b.stageNames.Insert(stage.Name)

	node := b.graph.NewNode()
	node.SetDOTID(string(stage.Name))
	if err := node.SetAttribute(encoding.Attribute{Key: "label", Value: string(stage.Name)}); err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.graph.AddNode(node)
	b.stages[node.ID()] = stage

	if b.last != nil {
		b.graph.SetEdge(b.graph.NewEdge(b.last, node))
	}
	b.last = node

	return b
}

// Build validates the chain and returns the ordered plan. The execution
// order is recovered with a stabilized topological sort and then checked for
// linearity: any branch or join means the plan was wired by hand in a way
// Append could not have produced.
func (b *PlanBuilder) Build() (*Plan, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("invalid plan %q: %w", b.name, b.errs[0])
	}
	if len(b.stages) == 0 {
		return nil, fmt.Errorf("plan %q has no stages", b.name)
	}

	sorted, err := topo.SortStabilized(b.graph, func(nodes []graph.Node) {
		sort.Slice(nodes, func(i, j int) bool {
			return nodes[i].ID() < nodes[j].ID()
		})
	})
	if err != nil {
		return nil, fmt.Errorf("plan %q is not acyclic: %w", b.name, err)
	}

	for _, node := range sorted {
		if b.graph.From(node.ID()).Len() > 1 || b.graph.To(node.ID()).Len() > 1 {
			return nil, fmt.Errorf("plan %q is not a linear chain at stage %q",
				b.name, b.stages[node.ID()].Name)
		}
	}

	ordered := make([]Stage, 0, len(sorted))
	for _, node := range sorted {
		ordered = append(ordered, b.stages[node.ID()])
	}

	return &Plan{name: b.name, stages: ordered, graph: b.graph}, nil
}
