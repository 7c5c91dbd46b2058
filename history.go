package scenesync

import (
	"sync"

	"github.com/golang/glog"
)

type HistorySettings struct {
	// maximum undoable entries; exceeding pushes evict the oldest entry,
	// losing the ability to undo that far back without touching state
	MaxEntries int
}

func DefaultHistorySettings() *HistorySettings {
	return &HistorySettings{
		MaxEntries: 100,
	}
}

// HistoryManager owns the bounded past/future stacks for one execution
// context. Branching history is not supported: any push clears future.
// The stacks are never mutated by callers directly.
type HistoryManager struct {
	settings *HistorySettings

	mutex  sync.Mutex
	past   []Command
	future []Command
}

func NewHistoryManagerWithDefaults() *HistoryManager {
	return NewHistoryManager(DefaultHistorySettings())
}

func NewHistoryManager(settings *HistorySettings) *HistoryManager {
	return &HistoryManager{
		settings: settings,
		past:     []Command{},
		future:   []Command{},
	}
}

// Push applies command to state and records it as an undoable entry.
// If command coalesces with the single most recent entry (the merge
// window), the merged command replaces that entry in place and the net
// visual effect is one step. The entry is not recorded when apply fails.
func (self *HistoryManager) Push(command Command, state *DocState) error {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if n := len(self.past); 0 < n {
		top := self.past[n-1]
		// merge direction is temporal: top is the earlier edit. Probing
		// the reverse direction would compose the edits out of order.
		if merged, ok := top.Merge(command); ok {
			// only the incoming delta is applied; top already was
			if err := command.Apply(state); err != nil {
				return err
			}
			glog.V(1).Infof("history merge %s into %s\n", command.Id(), top.Id())
			self.past[n-1] = merged
			self.future = []Command{}
			return nil
		}
	}

	if err := command.Apply(state); err != nil {
		return err
	}
	self.past = append(self.past, command)
	self.future = []Command{}

	if self.settings.MaxEntries < len(self.past) {
		evictCount := len(self.past) - self.settings.MaxEntries
		self.past = append([]Command{}, self.past[evictCount:]...)
	}
	return nil
}

// Undo pops the most recent past entry, inverts it, and moves it to
// future. An empty past is not an error; it returns false.
func (self *HistoryManager) Undo(state *DocState) (bool, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	n := len(self.past)
	if n == 0 {
		return false, nil
	}
	entry := self.past[n-1]
	if err := entry.Invert(state); err != nil {
		// the entry stays on past; the state was not cleanly reverted
		return false, err
	}
	self.past = self.past[:n-1]
	self.future = append(self.future, entry)
	return true, nil
}

func (self *HistoryManager) Redo(state *DocState) (bool, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	n := len(self.future)
	if n == 0 {
		return false, nil
	}
	entry := self.future[n-1]
	if err := entry.Apply(state); err != nil {
		return false, err
	}
	self.future = self.future[:n-1]
	self.past = append(self.past, entry)
	return true, nil
}

// HandleUndoSignal performs the pop/invert/push transition for the entry
// the signal targets. The signal only says "this command was undone";
// the corresponding entry must already have been recorded here through
// normal replication. Contexts may order recent entries differently, so
// the entry is located by id rather than assumed to be on top.
func (self *HistoryManager) HandleUndoSignal(signal *UndoSignalCommand, state *DocState) (bool, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	i := self.indexOf(self.past, signal.TargetId)
	if i < 0 {
		glog.V(1).Infof("undo signal %s targets unknown command %s\n", signal.Id(), signal.TargetId)
		return false, nil
	}
	entry := self.past[i]
	if err := entry.Invert(state); err != nil {
		return false, err
	}
	self.past = append(self.past[:i:i], self.past[i+1:]...)
	self.future = append(self.future, entry)
	return true, nil
}

func (self *HistoryManager) HandleRedoSignal(signal *RedoSignalCommand, state *DocState) (bool, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	i := self.indexOf(self.future, signal.TargetId)
	if i < 0 {
		glog.V(1).Infof("redo signal %s targets unknown command %s\n", signal.Id(), signal.TargetId)
		return false, nil
	}
	entry := self.future[i]
	if err := entry.Apply(state); err != nil {
		return false, err
	}
	self.future = append(self.future[:i:i], self.future[i+1:]...)
	self.past = append(self.past, entry)
	return true, nil
}

// must be called with `mutex`
func (self *HistoryManager) indexOf(entries []Command, commandId Id) int {
	// search from the most recent entry, the common case
	for i := len(entries) - 1; 0 <= i; i -= 1 {
		if entries[i].Id() == commandId {
			return i
		}
	}
	return -1
}

func (self *HistoryManager) CanUndo() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return 0 < len(self.past)
}

func (self *HistoryManager) CanRedo() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return 0 < len(self.future)
}

func (self *HistoryManager) HistorySize() (pastCount int, futureCount int) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return len(self.past), len(self.future)
}

func (self *HistoryManager) PeekUndoId() (Id, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if len(self.past) == 0 {
		return Id{}, false
	}
	return self.past[len(self.past)-1].Id(), true
}

func (self *HistoryManager) PeekRedoId() (Id, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if len(self.future) == 0 {
		return Id{}, false
	}
	return self.future[len(self.future)-1].Id(), true
}

// Clear empties both stacks without touching document state.
func (self *HistoryManager) Clear() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.past = []Command{}
	self.future = []Command{}
}
