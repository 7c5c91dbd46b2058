package scenesync

import (
	"path/filepath"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestJournalRecordsPersistentCommands(t *testing.T) {
	journal, err := NewCommandJournal(filepath.Join(t.TempDir(), "journal.db"))
	assert.Equal(t, err, nil)
	defer journal.Close()

	executor, _, state := newTestContext()
	defer executor.Close()
	unsub := journal.Attach(executor)
	defer unsub()

	create := NewCreateShapeCommand(testShape("rect"))
	assert.Equal(t, executor.Execute(create, state, SourceLocal), nil)
	// pans carry no persistence tag and stay out of the journal
	assert.Equal(t, executor.Execute(NewPanViewportCommand(1, 1), state, SourceLocal), nil)

	size, err := journal.Size()
	assert.Equal(t, err, nil)
	assert.Equal(t, size, 1)

	replayed := []*WireCommand{}
	err = journal.Replay(func(wireCommand *WireCommand) error {
		replayed = append(replayed, wireCommand)
		return nil
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, len(replayed), 1)
	assert.Equal(t, replayed[0].Type, CommandTypeCreateShape)
	assert.Equal(t, replayed[0].Id, create.Id())

	// the stored wire form reconstructs the command
	decoded, err := DeserializeCommand(replayed[0].Type, replayed[0].Data)
	assert.Equal(t, err, nil)
	assert.Equal(t, decoded.Id(), create.Id())
}

func TestJournalRemove(t *testing.T) {
	journal, err := NewCommandJournal(filepath.Join(t.TempDir(), "journal.db"))
	assert.Equal(t, err, nil)
	defer journal.Close()

	command := NewCreateShapeCommand(testShape("rect"))
	assert.Equal(t, journal.Record(command), nil)
	size, _ := journal.Size()
	assert.Equal(t, size, 1)

	assert.Equal(t, journal.Remove(command.Id()), nil)
	size, _ = journal.Size()
	assert.Equal(t, size, 0)

	// removing an absent id is not an error
	assert.Equal(t, journal.Remove(NewId()), nil)
}
