package scenesync

import (
	"encoding/json"
	"sync"

	"github.com/golang/glog"
)

const envelopeTypeCommand = "command"

// SyncEnvelope is the broadcast message shape. The carried command keeps
// its original id so the receiving dedup set recognizes re-delivery and
// undo signals can find the right history entry.
type SyncEnvelope struct {
	Type    string       `json:"type"`
	Command *WireCommand `json:"command,omitempty"`
}

// ShouldSync is the replicability predicate. Viewport commands are
// excluded because camera position is local to a context, not shared
// document state. Undo/redo signals are included so other contexts
// replay the same history transition.
func ShouldSync(command Command) bool {
	switch command.(type) {
	case *PanViewportCommand:
		return false
	default:
		return true
	}
}

// SyncManager bridges one context's executor/history pair to an
// inter-context broadcast channel. Received commands re-enter through
// Executor.Execute with SourceRemote, which records them in the local
// history: a remote edit is undoable from the receiving context exactly
// like a local one.
//
// Failures on either side of the channel degrade consistency (the peer
// simply never sees that edit) but never crash the context.
type SyncManager struct {
	executor *Executor
	state    *DocState
	channel  BroadcastChannel

	mutex        sync.Mutex
	destroyed    bool
	unsubExecute func()
	unsubMessage func()
}

func NewSyncManager(executor *Executor, state *DocState, channel BroadcastChannel) *SyncManager {
	syncManager := &SyncManager{
		executor: executor,
		state:    state,
		channel:  channel,
	}
	syncManager.unsubExecute = executor.AddExecuteCallback(syncManager.localExecuted)
	syncManager.unsubMessage = channel.AddMessageCallback(syncManager.receive)
	return syncManager
}

// ExecuteFunction
func (self *SyncManager) localExecuted(event *ExecuteEvent) {
	if self.isDestroyed() {
		return
	}
	if event.Source != SourceLocal {
		// remote commands are never rebroadcast
		return
	}
	if !ShouldSync(event.Command) {
		glog.V(1).Infof("sync exempt command %s (%s)\n", event.Command.Id(), event.Command.Type())
		return
	}

	wireCommand, err := SerializeCommand(event.Command)
	if err != nil {
		glog.Warningf("serialize command %s: %s\n", event.Command.Id(), err)
		return
	}
	payload, err := json.Marshal(&SyncEnvelope{
		Type:    envelopeTypeCommand,
		Command: wireCommand,
	})
	if err != nil {
		glog.Warningf("encode envelope for command %s: %s\n", event.Command.Id(), err)
		return
	}
	if err := self.channel.Post(payload); err != nil {
		// fire-and-forget, no retry
		glog.Warningf("broadcast command %s: %s\n", event.Command.Id(), err)
		return
	}
	glog.V(1).Infof("broadcast command %s (%s)\n", event.Command.Id(), event.Command.Type())
}

// MessageFunction
func (self *SyncManager) receive(payload []byte) {
	if self.isDestroyed() {
		return
	}
	// one malformed or unsupported remote command must not crash the
	// receiving context; it is dropped here
	HandleError(func() {
		var envelope SyncEnvelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			glog.Warningf("drop malformed sync message: %s\n", err)
			return
		}
		if envelope.Type != envelopeTypeCommand || envelope.Command == nil {
			glog.V(1).Infof("ignore sync message type %q\n", envelope.Type)
			return
		}
		command, err := DeserializeCommand(envelope.Command.Type, envelope.Command.Data)
		if err != nil {
			glog.Warningf("drop sync command: %s\n", err)
			return
		}
		// the envelope id is authoritative
		command.forceId(envelope.Command.Id)

		if err := self.executor.Execute(command, self.state, SourceRemote); err != nil {
			// no local caller to report to
			glog.Warningf("apply remote command %s: %s\n", command.Id(), err)
		}
	})
}

func (self *SyncManager) isDestroyed() bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return self.destroyed
}

// Destroy unsubscribes from the executor and closes the channel.
// No further messages are sent or processed afterward.
func (self *SyncManager) Destroy() {
	self.mutex.Lock()
	if self.destroyed {
		self.mutex.Unlock()
		return
	}
	self.destroyed = true
	self.mutex.Unlock()

	self.unsubExecute()
	self.unsubMessage()
	if err := self.channel.Close(); err != nil {
		glog.Warningf("close channel %q: %s\n", self.channel.Name(), err)
	}
}
