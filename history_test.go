package scenesync

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestHistoryLifo(t *testing.T) {
	history := NewHistoryManagerWithDefaults()
	state := NewDocState()
	before := stateJson(state)

	c1 := NewCreateShapeCommand(testShape("rect"))
	c2 := NewCreateShapeCommand(testShape("line"))
	c3 := NewCreateShapeCommand(testShape("circle"))
	assert.Equal(t, history.Push(c1, state), nil)
	assert.Equal(t, history.Push(c2, state), nil)
	assert.Equal(t, history.Push(c3, state), nil)
	assert.Equal(t, len(state.Scene.Shapes), 3)
	assert.Equal(t, history.CanUndo(), true)
	assert.Equal(t, history.CanRedo(), false)

	for i := 0; i < 3; i += 1 {
		ok, err := history.Undo(state)
		assert.Equal(t, ok, true)
		assert.Equal(t, err, nil)
	}
	assert.Equal(t, stateJson(state), before)
	assert.Equal(t, history.CanUndo(), false)
	assert.Equal(t, history.CanRedo(), true)

	// underflow is a boolean failure, not an error
	ok, err := history.Undo(state)
	assert.Equal(t, ok, false)
	assert.Equal(t, err, nil)

	ok, err = history.Redo(state)
	assert.Equal(t, ok, true)
	assert.Equal(t, err, nil)
	assert.Equal(t, state.Scene.Shapes[0].Id, c1.Shape.Id)
}

func TestPushClearsFuture(t *testing.T) {
	history := NewHistoryManagerWithDefaults()
	state := NewDocState()

	assert.Equal(t, history.Push(NewCreateShapeCommand(testShape("rect")), state), nil)
	ok, _ := history.Undo(state)
	assert.Equal(t, ok, true)
	assert.Equal(t, history.CanRedo(), true)

	// branching history is not supported
	assert.Equal(t, history.Push(NewCreateShapeCommand(testShape("line")), state), nil)
	assert.Equal(t, history.CanRedo(), false)
	ok, err := history.Redo(state)
	assert.Equal(t, ok, false)
	assert.Equal(t, err, nil)
}

func TestPanMergeCollapsesToOneEntry(t *testing.T) {
	history := NewHistoryManagerWithDefaults()
	state := NewDocState()

	assert.Equal(t, history.Push(NewPanViewportCommand(10, 20), state), nil)
	assert.Equal(t, history.Push(NewPanViewportCommand(5, -8), state), nil)

	pastCount, _ := history.HistorySize()
	assert.Equal(t, pastCount, 1)
	assert.Equal(t, state.Viewport, Viewport{X: 15, Y: 12})

	// one undo restores the pre-both-pans position
	ok, err := history.Undo(state)
	assert.Equal(t, ok, true)
	assert.Equal(t, err, nil)
	assert.Equal(t, state.Viewport, Viewport{X: 0, Y: 0})
}

func TestMergeWindowIsTopEntryOnly(t *testing.T) {
	history := NewHistoryManagerWithDefaults()
	state := NewDocState()

	assert.Equal(t, history.Push(NewPanViewportCommand(1, 1), state), nil)
	assert.Equal(t, history.Push(NewCreateShapeCommand(testShape("rect")), state), nil)
	// a pan cannot merge through the intervening shape edit
	assert.Equal(t, history.Push(NewPanViewportCommand(2, 2), state), nil)

	pastCount, _ := history.HistorySize()
	assert.Equal(t, pastCount, 3)
}

func TestReverseContiguousVertexMovesDoNotMerge(t *testing.T) {
	history := NewHistoryManagerWithDefaults()
	state, shapeIds := testStateWithShapes(1)

	// b is contiguous with a only in the reverse temporal direction
	// (b.New == a.Old); merging them would compose one edit that undoes
	// to a position the document never held
	a := NewMoveVertexCommand(shapeIds[0], 0, Point{X: 10, Y: 10}, Point{X: 1, Y: 1})
	b := NewMoveVertexCommand(shapeIds[0], 0, Point{X: 9, Y: 9}, Point{X: 10, Y: 10})
	assert.Equal(t, history.Push(a, state), nil)
	assert.Equal(t, history.Push(b, state), nil)

	pastCount, _ := history.HistorySize()
	assert.Equal(t, pastCount, 2)
	assert.Equal(t, state.Scene.Shapes[0].Vertices[0], Point{X: 10, Y: 10})

	// each entry undoes to its own recorded pre-state
	ok, err := history.Undo(state)
	assert.Equal(t, ok, true)
	assert.Equal(t, err, nil)
	assert.Equal(t, state.Scene.Shapes[0].Vertices[0], Point{X: 9, Y: 9})

	ok, err = history.Undo(state)
	assert.Equal(t, ok, true)
	assert.Equal(t, err, nil)
	assert.Equal(t, state.Scene.Shapes[0].Vertices[0], Point{X: 10, Y: 10})
}

func TestCapacityEviction(t *testing.T) {
	history := NewHistoryManager(&HistorySettings{MaxEntries: 3})
	state := NewDocState()

	for i := 0; i < 5; i += 1 {
		assert.Equal(t, history.Push(NewCreateShapeCommand(testShape("rect")), state), nil)
	}
	// eviction removes undo capability, not applied data
	assert.Equal(t, len(state.Scene.Shapes), 5)
	pastCount, _ := history.HistorySize()
	assert.Equal(t, pastCount, 3)

	undoCount := 0
	for {
		ok, err := history.Undo(state)
		assert.Equal(t, err, nil)
		if !ok {
			break
		}
		undoCount += 1
	}
	assert.Equal(t, undoCount, 3)
	assert.Equal(t, len(state.Scene.Shapes), 2)
}

func TestUndoSignalTargetsSpecificEntry(t *testing.T) {
	history := NewHistoryManagerWithDefaults()
	state := NewDocState()

	c1 := NewCreateShapeCommand(testShape("rect"))
	c2 := NewCreateShapeCommand(testShape("line"))
	assert.Equal(t, history.Push(c1, state), nil)
	assert.Equal(t, history.Push(c2, state), nil)

	// the signal references c1 even though c2 is the local top
	ok, err := history.HandleUndoSignal(NewUndoSignalCommand(c1.Id()), state)
	assert.Equal(t, ok, true)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(state.Scene.Shapes), 1)
	assert.Equal(t, state.Scene.Shapes[0].Id, c2.Shape.Id)

	pastCount, futureCount := history.HistorySize()
	assert.Equal(t, pastCount, 1)
	assert.Equal(t, futureCount, 1)

	// redo the same targeted entry
	ok, err = history.HandleRedoSignal(NewRedoSignalCommand(c1.Id()), state)
	assert.Equal(t, ok, true)
	assert.Equal(t, err, nil)
	assert.Equal(t, len(state.Scene.Shapes), 2)

	// unknown target is absorbed
	ok, err = history.HandleUndoSignal(NewUndoSignalCommand(NewId()), state)
	assert.Equal(t, ok, false)
	assert.Equal(t, err, nil)
}

func TestClearLeavesStateUntouched(t *testing.T) {
	history := NewHistoryManagerWithDefaults()
	state := NewDocState()

	assert.Equal(t, history.Push(NewCreateShapeCommand(testShape("rect")), state), nil)
	assert.Equal(t, history.Push(NewCreateShapeCommand(testShape("line")), state), nil)
	history.Clear()

	assert.Equal(t, history.CanUndo(), false)
	assert.Equal(t, history.CanRedo(), false)
	assert.Equal(t, len(state.Scene.Shapes), 2)
}
