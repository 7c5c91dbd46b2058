// Package scenesync is the command execution, history, and cross-context
// synchronization engine for a scene of drawable shapes.
//
// Each execution context (e.g. one open tab) owns one Executor, one
// HistoryManager, and optionally one SyncManager bridged to other contexts
// over a BroadcastChannel. Commands are the only way to mutate a DocState:
//   - local commands flow input -> Executor.Execute -> HistoryManager
//   - replicable commands are rebroadcast by the SyncManager
//   - remote commands re-enter through Executor.Execute with SourceRemote
//     and become normal, locally undoable history entries
//
// There is no cross-context clock or total order. Consistency relies on
// at-most-once application per command id plus per-origin FIFO delivery.
package scenesync

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// comparable
type Id [16]byte

func NewId() Id {
	return Id(ulid.Make())
}

func IdFromBytes(idBytes []byte) (Id, error) {
	if len(idBytes) != 16 {
		return Id{}, errors.New("Id must be 16 bytes")
	}
	return Id(idBytes), nil
}

func IdFromString(idStr string) (Id, error) {
	u, err := ulid.Parse(idStr)
	if err != nil {
		return Id{}, err
	}
	return Id(u), nil
}

func (self Id) Bytes() []byte {
	return self[:]
}

func (self Id) String() string {
	return ulid.ULID(self).String()
}

// identity must survive the wire exactly, so ids marshal as canonical ulid text
func (self Id) MarshalJSON() ([]byte, error) {
	return json.Marshal(self.String())
}

func (self *Id) UnmarshalJSON(b []byte) error {
	var idStr string
	if err := json.Unmarshal(b, &idStr); err != nil {
		return err
	}
	id, err := IdFromString(idStr)
	if err != nil {
		return fmt.Errorf("bad id %q: %w", idStr, err)
	}
	*self = id
	return nil
}

// where a command entered the executor
type CommandSource string

const (
	SourceLocal  CommandSource = "local"
	SourceRemote CommandSource = "remote"
)
