// Package saga sequences reversible commands and compensates on failure.
package saga

import "context"

// Command is one reversible step. Execute applies the effect; Undo is the
// compensating action. Implementations must make Undo a safe no-op when the
// effect was never applied or was already reverted.
type Command interface {
	// Name identifies the command in logs and rollback reports.
	Name() string
	// Execute applies the step's effect.
	Execute(ctx context.Context) error
	// Undo reverts the step's effect.
	Undo(ctx context.Context) error
}

// Effect tracks whether a command's effect is currently in place. Concrete
// commands embed it and gate Undo on Applied so double-undo and
// undo-without-execute stay no-ops. The flag records the applied effect, not
// whether Execute was merely called: commands must mark it only after the
// side effect actually landed.
type Effect struct {
	applied bool
}

// MarkApplied records that the side effect is in place.
func (e *Effect) MarkApplied() {
	e.applied = true
}

// MarkReverted records that the side effect was compensated.
func (e *Effect) MarkReverted() {
	e.applied = false
}

// Applied reports whether the side effect is currently in place.
func (e *Effect) Applied() bool {
	return e.applied
}
