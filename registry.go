package scenesync

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/exp/maps"
)

// Silently dropping an unrecognized command would desynchronize contexts,
// so deserialization of an unregistered type tag fails loudly.
var ErrUnknownCommandType = errors.New("unknown command type")

// WireCommand is the serialized form of one command, used both for
// cross-context broadcast and for persistence of pending operations.
// Data repeats the id and timestamp so identity survives the wire.
type WireCommand struct {
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data"`
	Id          Id              `json:"id"`
	TimestampMs int64           `json:"timestampMs"`
}

type CommandFactory func(data json.RawMessage) (Command, error)

// static, process-wide registration table
var commandFactoriesMutex sync.Mutex
var commandFactories = map[string]CommandFactory{}

func RegisterCommandType(typeTag string, factory CommandFactory) {
	commandFactoriesMutex.Lock()
	defer commandFactoriesMutex.Unlock()

	if _, ok := commandFactories[typeTag]; ok {
		panic(fmt.Sprintf("command type %q registered twice", typeTag))
	}
	commandFactories[typeTag] = factory
}

func RegisteredCommandTypes() []string {
	commandFactoriesMutex.Lock()
	defer commandFactoriesMutex.Unlock()

	typeTags := maps.Keys(commandFactories)
	sort.Strings(typeTags)
	return typeTags
}

func SerializeCommand(command Command) (*WireCommand, error) {
	data, err := json.Marshal(command)
	if err != nil {
		return nil, err
	}
	return &WireCommand{
		Type:        command.Type(),
		Data:        data,
		Id:          command.Id(),
		TimestampMs: command.Timestamp(),
	}, nil
}

func DeserializeCommand(typeTag string, data json.RawMessage) (Command, error) {
	commandFactoriesMutex.Lock()
	factory, ok := commandFactories[typeTag]
	commandFactoriesMutex.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommandType, typeTag)
	}
	command, err := factory(data)
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", typeTag, err)
	}
	return command, nil
}

func commandFactory[T any, PT interface {
	*T
	Command
}]() CommandFactory {
	return func(data json.RawMessage) (Command, error) {
		command := PT(new(T))
		if err := json.Unmarshal(data, command); err != nil {
			return nil, err
		}
		return command, nil
	}
}

func init() {
	RegisterCommandType(CommandTypeCreateShape, commandFactory[CreateShapeCommand]())
	RegisterCommandType(CommandTypeDeleteShapes, commandFactory[DeleteShapesCommand]())
	RegisterCommandType(CommandTypeMoveShapes, commandFactory[MoveShapesCommand]())
	RegisterCommandType(CommandTypeMoveVertex, commandFactory[MoveVertexCommand]())
	RegisterCommandType(CommandTypePatchProperties, commandFactory[PatchPropertiesCommand]())
	RegisterCommandType(CommandTypeReorderShape, commandFactory[ReorderShapeCommand]())
	RegisterCommandType(CommandTypePanViewport, commandFactory[PanViewportCommand]())
	RegisterCommandType(CommandTypeUndo, commandFactory[UndoSignalCommand]())
	RegisterCommandType(CommandTypeRedo, commandFactory[RedoSignalCommand]())
}
