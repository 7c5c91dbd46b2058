package scenesync

import (
	"errors"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func newTestContext() (*Executor, *HistoryManager, *DocState) {
	history := NewHistoryManagerWithDefaults()
	executor := NewExecutorWithDefaults(history)
	return executor, history, NewDocState()
}

func TestExecuteIdempotency(t *testing.T) {
	executor, _, state := newTestContext()
	defer executor.Close()

	executeCount := 0
	unsub := executor.AddExecuteCallback(func(event *ExecuteEvent) {
		executeCount += 1
	})
	defer unsub()

	command := NewCreateShapeCommand(testShape("rect"))
	assert.Equal(t, executor.Execute(command, state, SourceLocal), nil)
	// duplicate delivery is absorbed, not an error
	assert.Equal(t, executor.Execute(command, state, SourceRemote), nil)

	assert.Equal(t, len(state.Scene.Shapes), 1)
	assert.Equal(t, executeCount, 1)
	pastCount, _ := executor.History().HistorySize()
	assert.Equal(t, pastCount, 1)
}

func TestExecuteEventCarriesMetadata(t *testing.T) {
	executor, _, state := newTestContext()
	defer executor.Close()

	var got *ExecuteEvent
	unsub := executor.AddExecuteCallback(func(event *ExecuteEvent) {
		got = event
	})
	defer unsub()

	command := NewCreateShapeCommand(testShape("rect"))
	assert.Equal(t, executor.Execute(command, state, SourceLocal), nil)

	assert.NotEqual(t, got, nil)
	assert.Equal(t, got.Command.Id(), command.Id())
	assert.Equal(t, got.Source, SourceLocal)
	assert.Equal(t, got.AffectedShapeIds, []Id{command.Shape.Id})
	assert.Equal(t, got.EventTime.IsZero(), false)
}

func TestExecuteFailureEmitsFailEventAndPropagates(t *testing.T) {
	executor, _, state := newTestContext()
	defer executor.Close()

	executeCount := 0
	unsubExecute := executor.AddExecuteCallback(func(event *ExecuteEvent) {
		executeCount += 1
	})
	defer unsubExecute()
	var failEvent *FailEvent
	unsubFail := executor.AddFailCallback(func(event *FailEvent) {
		failEvent = event
	})
	defer unsubFail()

	command := NewMoveShapesCommand([]Id{NewId()}, 1, 1)
	err := executor.Execute(command, state, SourceLocal)
	assert.NotEqual(t, err, nil)
	assert.Equal(t, executeCount, 0)
	assert.NotEqual(t, failEvent, nil)
	assert.Equal(t, errors.Is(failEvent.Err, err) || failEvent.Err.Error() == err.Error(), true)

	// a failed command is not recorded and not marked seen
	pastCount, _ := executor.History().HistorySize()
	assert.Equal(t, pastCount, 0)
}

func TestUndoRedoThroughExecutor(t *testing.T) {
	executor, _, state := newTestContext()
	defer executor.Close()

	signalEvents := []Command{}
	unsub := executor.AddExecuteCallback(func(event *ExecuteEvent) {
		switch event.Command.(type) {
		case *UndoSignalCommand, *RedoSignalCommand:
			signalEvents = append(signalEvents, event.Command)
		}
	})
	defer unsub()

	command := NewCreateShapeCommand(testShape("rect"))
	assert.Equal(t, executor.Execute(command, state, SourceLocal), nil)

	ok, err := executor.Undo(state)
	assert.Equal(t, ok, true)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(state.Scene.Shapes), 0)

	ok, err = executor.Redo(state)
	assert.Equal(t, ok, true)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(state.Scene.Shapes), 1)

	// both signals were observable by listeners, targeting the command
	assert.Equal(t, len(signalEvents), 2)
	assert.Equal(t, signalEvents[0].(*UndoSignalCommand).TargetId, command.Id())
	assert.Equal(t, signalEvents[1].(*RedoSignalCommand).TargetId, command.Id())

	// nothing left to redo
	ok, err = executor.Redo(state)
	assert.Equal(t, ok, false)
	assert.Equal(t, err, nil)
}

func TestDuplicateSignalIsAbsorbed(t *testing.T) {
	executor, history, state := newTestContext()
	defer executor.Close()

	command := NewCreateShapeCommand(testShape("rect"))
	assert.Equal(t, executor.Execute(command, state, SourceLocal), nil)

	signal := NewUndoSignalCommand(command.Id())
	assert.Equal(t, executor.Execute(signal, state, SourceRemote), nil)
	assert.Equal(t, len(state.Scene.Shapes), 0)

	// re-delivery of the same signal does not redo the undo
	assert.Equal(t, executor.Execute(signal, state, SourceRemote), nil)
	assert.Equal(t, len(state.Scene.Shapes), 0)
	_, futureCount := history.HistorySize()
	assert.Equal(t, futureCount, 1)
}

func TestUnknownSignalTargetEmitsNoEvent(t *testing.T) {
	executor, _, state := newTestContext()
	defer executor.Close()

	executeCount := 0
	unsub := executor.AddExecuteCallback(func(event *ExecuteEvent) {
		executeCount += 1
	})
	defer unsub()

	// a signal for an entry this context never recorded is a no-op and
	// must not look like an execution to listeners
	assert.Equal(t, executor.Execute(NewUndoSignalCommand(NewId()), state, SourceRemote), nil)
	assert.Equal(t, executor.Execute(NewRedoSignalCommand(NewId()), state, SourceRemote), nil)
	assert.Equal(t, executeCount, 0)
}

func TestDedupTtlBoundsMemory(t *testing.T) {
	history := NewHistoryManagerWithDefaults()
	executor := NewExecutor(history, &ExecutorSettings{
		DedupTtl: 20 * time.Millisecond,
	})
	defer executor.Close()
	state := NewDocState()

	command := NewPanViewportCommand(1, 1)
	assert.Equal(t, executor.Execute(command, state, SourceLocal), nil)
	assert.Equal(t, state.Viewport.X, float64(1))

	time.Sleep(60 * time.Millisecond)
	// after the ttl the id is forgotten and the command applies again;
	// bounding the dedup set trades strict at-most-once for memory
	assert.Equal(t, executor.Execute(command, state, SourceLocal), nil)
	assert.Equal(t, state.Viewport.X, float64(2))
}

func TestPanicInApplyIsReportedAsError(t *testing.T) {
	executor, _, state := newTestContext()
	defer executor.Close()

	// a nil shape makes Apply panic; the fault boundary converts it
	command := NewCreateShapeCommand(nil)
	var failEvent *FailEvent
	unsub := executor.AddFailCallback(func(event *FailEvent) {
		failEvent = event
	})
	defer unsub()

	err := executor.Execute(command, state, SourceLocal)
	assert.NotEqual(t, err, nil)
	assert.NotEqual(t, failEvent, nil)
	assert.Equal(t, len(state.Scene.Shapes), 0)
}
