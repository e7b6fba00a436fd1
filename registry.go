package filesaga

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

// ActivityName identifies a registered unit of forward work.
type ActivityName string

// Activity is a single externally-effectful unit of work invoked by a stage.
// It reads earlier stage outputs through the RunContext and returns its own
// typed output. Errors should be classified with Transient or Terminal;
// unclassified errors are treated as transient.
type Activity func(ctx context.Context, run *RunContext) (any, error)

// UndoFunc reverses one forward effect identified by its target (a file path,
// an upload id). Undo functions must be idempotent: if the target is already
// gone they return ErrNotFound, which the unwind treats as success.
type UndoFunc func(ctx context.Context, target string) error

// ActivityRegistry maps names to activities and compensation kinds to undo
// functions.
//
// Stages reference activities by name rather than holding the function
// directly. Plans are data (and saga state is restored from persistent
// storage by name alone), so the registry is the one place the concrete
// functions live. Registries are shared across concurrent runs, hence the
// concurrent maps.
type ActivityRegistry struct {
	activities *xsync.MapOf[ActivityName, Activity]
	undos      *xsync.MapOf[CompensationKind, UndoFunc]
}

// NewActivityRegistry creates an empty registry.
func NewActivityRegistry() *ActivityRegistry {
	return &ActivityRegistry{
		activities: xsync.NewMapOf[ActivityName, Activity](),
		undos:      xsync.NewMapOf[CompensationKind, UndoFunc](),
	}
}

// Register adds a forward activity to the registry.
func (r *ActivityRegistry) Register(name ActivityName, activity Activity) error {
	if _, ok := r.activities.Load(name); ok {
		return fmt.Errorf("activity %q already registered", name)
	}
	r.activities.Store(name, activity)
	return nil
}

// RegisterUndo adds an undo function for a compensation kind.
func (r *ActivityRegistry) RegisterUndo(kind CompensationKind, undo UndoFunc) error {
	if _, ok := r.undos.Load(kind); ok {
		return fmt.Errorf("undo for %q already registered", kind)
	}
	r.undos.Store(kind, undo)
	return nil
}

// Get retrieves a forward activity by name.
func (r *ActivityRegistry) Get(name ActivityName) (Activity, error) {
	activity, ok := r.activities.Load(name)
	if !ok {
		return nil, fmt.Errorf("activity %q not registered", name)
	}
	return activity, nil
}

// GetUndo retrieves the undo function for a compensation kind.
func (r *ActivityRegistry) GetUndo(kind CompensationKind) (UndoFunc, error) {
	undo, ok := r.undos.Load(kind)
	if !ok {
		return nil, fmt.Errorf("undo for %q not registered", kind)
	}
	return undo, nil
}
