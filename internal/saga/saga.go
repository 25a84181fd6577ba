package saga

import (
	"context"
	"fmt"
	"log/slog"
)

var (
	executionRecorder = func(status string) {}
	rollbackRecorder  = func(outcome string) {}
)

// RegisterRecorders allows external packages to observe saga outcomes.
func RegisterRecorders(execution func(status string), rollback func(outcome string)) {
	if execution == nil {
		execution = func(string) {}
	}
	if rollback == nil {
		rollback = func(string) {}
	}

	executionRecorder = execution
	rollbackRecorder = rollback
}

// UndoOutcome reports one compensating attempt during rollback.
type UndoOutcome struct {
	Name string
	OK   bool
	Err  error
}

// ExecutionError reports a failed saga: which step broke, which steps had
// completed, and how each compensating undo went.
type ExecutionError struct {
	FailedStep int // 1-indexed position of the failing command
	FailedName string
	Completed  []string
	Rollback   []UndoOutcome
	Err        error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("saga step %d (%s) failed after %d completed steps: %v",
		e.FailedStep, e.FailedName, len(e.Completed), e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Saga executes commands in insertion order and rolls back in strict reverse
// order when a step fails. Steps never run in parallel: LIFO compensation
// depends on a well-defined completion order.
type Saga struct {
	commands []Command
	log      *slog.Logger
}

// New creates an empty saga.
func New(log *slog.Logger) *Saga {
	if log == nil {
		log = slog.Default()
	}

	return &Saga{log: log}
}

// Add appends a command to the execution sequence.
func (s *Saga) Add(cmd Command) *Saga {
	if cmd != nil {
		s.commands = append(s.commands, cmd)
	}
	return s
}

// Execute runs every command sequentially. When step k fails, steps 1..k-1
// are undone in reverse order before the ExecutionError is returned. Rollback
// is best-effort: a failing undo is reported in the outcome list and never
// stops the remaining compensations.
func (s *Saga) Execute(ctx context.Context) error {
	executed := make([]Command, 0, len(s.commands))

	for i, cmd := range s.commands {
		if err := cmd.Execute(ctx); err != nil {
			s.log.Error("saga step failed, rolling back",
				slog.Int("step", i+1),
				slog.String("command", cmd.Name()),
				slog.Int("completed", len(executed)),
				slog.Any("error", err))

			outcomes := s.rollback(ctx, executed)
			executionRecorder("rolled_back")

			completed := make([]string, len(executed))
			for j, done := range executed {
				completed[j] = done.Name()
			}

			return &ExecutionError{
				FailedStep: i + 1,
				FailedName: cmd.Name(),
				Completed:  completed,
				Rollback:   outcomes,
				Err:        err,
			}
		}

		executed = append(executed, cmd)
	}

	executionRecorder("ok")
	return nil
}

// rollback undoes the executed commands newest-first and reports each attempt.
func (s *Saga) rollback(ctx context.Context, executed []Command) []UndoOutcome {
	outcomes := make([]UndoOutcome, 0, len(executed))

	for i := len(executed) - 1; i >= 0; i-- {
		cmd := executed[i]

		if err := cmd.Undo(ctx); err != nil {
			s.log.Error("saga rollback step failed",
				slog.String("command", cmd.Name()),
				slog.Any("error", err))
			outcomes = append(outcomes, UndoOutcome{Name: cmd.Name(), OK: false, Err: err})
			rollbackRecorder("failed")
			continue
		}

		outcomes = append(outcomes, UndoOutcome{Name: cmd.Name(), OK: true})
		rollbackRecorder("ok")
	}

	return outcomes
}
