package scenesync

const (
	CommandTypeUndo = "undo"
	CommandTypeRedo = "redo"
)

// Undo and redo signals carry no document mutation. They reference the id
// of the command they target and exist purely to be broadcast and
// replayed: the receiving context performs the actual inversion with its
// own recorded history entry, never with the signal's payload.

type UndoSignalCommand struct {
	commandBase
	TargetId Id `json:"targetId"`
}

func NewUndoSignalCommand(targetId Id) *UndoSignalCommand {
	return &UndoSignalCommand{
		commandBase: newCommandBase(),
		TargetId:    targetId,
	}
}

func (self *UndoSignalCommand) Type() string {
	return CommandTypeUndo
}

func (self *UndoSignalCommand) Apply(state *DocState) error {
	// inert at the state level, handled out-of-band by the executor
	return nil
}

func (self *UndoSignalCommand) Invert(state *DocState) error {
	return nil
}

func (self *UndoSignalCommand) Metadata() *CommandMetadata {
	return &CommandMetadata{
		AffectedShapeIds: []Id{},
		SideEffects: []SideEffect{
			{Kind: SideEffectSync},
		},
	}
}

type RedoSignalCommand struct {
	commandBase
	TargetId Id `json:"targetId"`
}

func NewRedoSignalCommand(targetId Id) *RedoSignalCommand {
	return &RedoSignalCommand{
		commandBase: newCommandBase(),
		TargetId:    targetId,
	}
}

func (self *RedoSignalCommand) Type() string {
	return CommandTypeRedo
}

func (self *RedoSignalCommand) Apply(state *DocState) error {
	return nil
}

func (self *RedoSignalCommand) Invert(state *DocState) error {
	return nil
}

func (self *RedoSignalCommand) Metadata() *CommandMetadata {
	return &CommandMetadata{
		AffectedShapeIds: []Id{},
		SideEffects: []SideEffect{
			{Kind: SideEffectSync},
		},
	}
}
