package saga

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCommand records execution order in a shared trace and can be told to
// fail on execute or on undo.
type fakeCommand struct {
	Effect
	name    string
	trace   *[]string
	execErr error
	undoErr error
}

func (c *fakeCommand) Name() string { return c.name }

func (c *fakeCommand) Execute(_ context.Context) error {
	*c.trace = append(*c.trace, "exec:"+c.name)
	if c.execErr != nil {
		return c.execErr
	}
	c.MarkApplied()
	return nil
}

func (c *fakeCommand) Undo(_ context.Context) error {
	if !c.Applied() {
		return nil
	}

	*c.trace = append(*c.trace, "undo:"+c.name)
	if c.undoErr != nil {
		return c.undoErr
	}
	c.MarkReverted()
	return nil
}

func TestSaga_ExecutesInOrder(t *testing.T) {
	var trace []string
	s := New(testLogger()).
		Add(&fakeCommand{name: "a", trace: &trace}).
		Add(&fakeCommand{name: "b", trace: &trace}).
		Add(&fakeCommand{name: "c", trace: &trace})

	require.NoError(t, s.Execute(context.Background()))
	assert.Equal(t, []string{"exec:a", "exec:b", "exec:c"}, trace)
}

func TestSaga_RollsBackInReverseOrder(t *testing.T) {
	var trace []string
	boom := errors.New("boom")

	s := New(testLogger()).
		Add(&fakeCommand{name: "a", trace: &trace}).
		Add(&fakeCommand{name: "b", trace: &trace}).
		Add(&fakeCommand{name: "c", trace: &trace, execErr: boom})

	err := s.Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, []string{"exec:a", "exec:b", "exec:c", "undo:b", "undo:a"}, trace)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 3, execErr.FailedStep)
	assert.Equal(t, "c", execErr.FailedName)
	assert.Equal(t, []string{"a", "b"}, execErr.Completed)
	assert.ErrorIs(t, err, boom)

	require.Len(t, execErr.Rollback, 2)
	assert.Equal(t, "b", execErr.Rollback[0].Name)
	assert.True(t, execErr.Rollback[0].OK)
	assert.Equal(t, "a", execErr.Rollback[1].Name)
	assert.True(t, execErr.Rollback[1].OK)
}

func TestSaga_FailedStepIsNotUndone(t *testing.T) {
	var trace []string
	failing := &fakeCommand{name: "b", trace: &trace, execErr: errors.New("boom")}

	s := New(testLogger()).
		Add(&fakeCommand{name: "a", trace: &trace}).
		Add(failing)

	err := s.Execute(context.Background())
	require.Error(t, err)

	// The failing step never applied its effect, so only "a" compensates.
	assert.Equal(t, []string{"exec:a", "exec:b", "undo:a"}, trace)
}

func TestSaga_RollbackContinuesPastUndoFailures(t *testing.T) {
	var trace []string
	undoBoom := errors.New("undo failed")

	s := New(testLogger()).
		Add(&fakeCommand{name: "a", trace: &trace}).
		Add(&fakeCommand{name: "b", trace: &trace, undoErr: undoBoom}).
		Add(&fakeCommand{name: "c", trace: &trace, execErr: errors.New("boom")})

	err := s.Execute(context.Background())
	require.Error(t, err)

	// b's undo fails but a is still compensated.
	assert.Equal(t, []string{"exec:a", "exec:b", "exec:c", "undo:b", "undo:a"}, trace)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Len(t, execErr.Rollback, 2)
	assert.False(t, execErr.Rollback[0].OK)
	assert.ErrorIs(t, execErr.Rollback[0].Err, undoBoom)
	assert.True(t, execErr.Rollback[1].OK)
}

func TestSaga_UndoIsIdempotent(t *testing.T) {
	var trace []string
	cmd := &fakeCommand{name: "a", trace: &trace}

	require.NoError(t, cmd.Execute(context.Background()))
	require.NoError(t, cmd.Undo(context.Background()))
	require.NoError(t, cmd.Undo(context.Background()))

	assert.Equal(t, []string{"exec:a", "undo:a"}, trace)
}

func TestSaga_UndoWithoutExecuteIsNoOp(t *testing.T) {
	var trace []string
	cmd := &fakeCommand{name: "a", trace: &trace}

	require.NoError(t, cmd.Undo(context.Background()))
	assert.Empty(t, trace)
}

func TestSaga_FirstStepFailureRollsBackNothing(t *testing.T) {
	var trace []string

	s := New(testLogger()).
		Add(&fakeCommand{name: "a", trace: &trace, execErr: errors.New("boom")}).
		Add(&fakeCommand{name: "b", trace: &trace})

	err := s.Execute(context.Background())
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 1, execErr.FailedStep)
	assert.Empty(t, execErr.Completed)
	assert.Empty(t, execErr.Rollback)
	assert.Equal(t, []string{"exec:a"}, trace)
}

func TestSaga_EmptySagaSucceeds(t *testing.T) {
	assert.NoError(t, New(testLogger()).Execute(context.Background()))
}

func TestSaga_RecordersObserveOutcomes(t *testing.T) {
	var executions, rollbacks []string
	RegisterRecorders(
		func(status string) { executions = append(executions, status) },
		func(outcome string) { rollbacks = append(rollbacks, outcome) },
	)
	t.Cleanup(func() { RegisterRecorders(nil, nil) })

	var trace []string
	require.NoError(t, New(testLogger()).Add(&fakeCommand{name: "a", trace: &trace}).Execute(context.Background()))

	err := New(testLogger()).
		Add(&fakeCommand{name: "a", trace: &trace}).
		Add(&fakeCommand{name: "b", trace: &trace, execErr: errors.New("boom")}).
		Execute(context.Background())
	require.Error(t, err)

	assert.Equal(t, []string{"ok", "rolled_back"}, executions)
	assert.Equal(t, []string{"ok"}, rollbacks)
}
