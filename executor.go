package scenesync

import (
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/jellydator/ttlcache/v3"
)

type ExecutorSettings struct {
	// DedupTtl bounds how long applied command ids are remembered.
	// Zero keeps them for the lifetime of the context, matching the
	// at-most-once guarantee exactly at the cost of monotonic growth.
	DedupTtl time.Duration
	// DedupCapacity bounds the dedup set size (lru eviction).
	// Zero means unbounded.
	DedupCapacity uint64
}

func DefaultExecutorSettings() *ExecutorSettings {
	return &ExecutorSettings{
		DedupTtl:      0,
		DedupCapacity: 0,
	}
}

type ExecuteEvent struct {
	Command          Command
	AffectedShapeIds []Id
	SideEffects      []SideEffect
	Source           CommandSource
	EventTime        time.Time
}

type FailEvent struct {
	Command   Command
	Err       error
	Source    CommandSource
	EventTime time.Time
}

type ExecuteFunction = func(event *ExecuteEvent)
type FailFunction = func(event *FailEvent)

// Executor is the single application-wide dispatch point of one execution
// context. It applies commands to the document state exactly once per
// command id, records them with the history manager, and emits lifecycle
// events for side-effect consumers. Undo/redo signal commands are inert at
// the state level and delegate to the history manager out-of-band.
type Executor struct {
	settings *ExecutorSettings

	history *HistoryManager

	// serializes command application; the broadcast receive path
	// re-enters Execute from the channel goroutine
	mutex sync.Mutex
	dedup *ttlcache.Cache[Id, bool]
	// whether the dedup cleanup goroutine was spawned; `Stop` blocks
	// unless the `Start` loop is draining the stop channel
	dedupStarted bool

	executeCallbacks *CallbackList[ExecuteFunction]
	failCallbacks    *CallbackList[FailFunction]
}

func NewExecutorWithDefaults(history *HistoryManager) *Executor {
	return NewExecutor(history, DefaultExecutorSettings())
}

func NewExecutor(history *HistoryManager, settings *ExecutorSettings) *Executor {
	opts := []ttlcache.Option[Id, bool]{}
	if 0 < settings.DedupTtl {
		opts = append(opts, ttlcache.WithTTL[Id, bool](settings.DedupTtl))
	} else {
		opts = append(opts, ttlcache.WithTTL[Id, bool](ttlcache.NoTTL))
	}
	if 0 < settings.DedupCapacity {
		opts = append(opts, ttlcache.WithCapacity[Id, bool](settings.DedupCapacity))
	}
	dedup := ttlcache.New(opts...)
	dedupStarted := false
	if 0 < settings.DedupTtl {
		go dedup.Start()
		dedupStarted = true
	}

	return &Executor{
		settings:         settings,
		history:          history,
		dedup:            dedup,
		dedupStarted:     dedupStarted,
		executeCallbacks: NewCallbackList[ExecuteFunction](),
		failCallbacks:    NewCallbackList[FailFunction](),
	}
}

func (self *Executor) History() *HistoryManager {
	return self.history
}

// AddExecuteCallback subscribes to successful executions.
// The returned function unsubscribes.
func (self *Executor) AddExecuteCallback(executeCallback ExecuteFunction) func() {
	callbackId := self.executeCallbacks.Add(executeCallback)
	return func() {
		self.executeCallbacks.Remove(callbackId)
	}
}

func (self *Executor) AddFailCallback(failCallback FailFunction) func() {
	callbackId := self.failCallbacks.Add(failCallback)
	return func() {
		self.failCallbacks.Remove(callbackId)
	}
}

// Execute applies command to state with at-most-once semantics per
// command id. Duplicate delivery is absorbed silently. Apply-time faults
// are reported via a fail event and returned to the caller; the executor
// never swallows them.
func (self *Executor) Execute(command Command, state *DocState, source CommandSource) error {
	switch signal := command.(type) {
	case *UndoSignalCommand:
		if self.markSeen(signal.Id()) {
			glog.V(1).Infof("skip duplicate undo signal %s\n", signal.Id())
			return nil
		}
		handled, err := self.history.HandleUndoSignal(signal, state)
		if err != nil {
			self.fail(command, err, source)
			return err
		}
		// an unknown target is a no-op; listeners only see transitions
		if handled {
			self.executed(command, source)
		}
		return nil
	case *RedoSignalCommand:
		if self.markSeen(signal.Id()) {
			glog.V(1).Infof("skip duplicate redo signal %s\n", signal.Id())
			return nil
		}
		handled, err := self.history.HandleRedoSignal(signal, state)
		if err != nil {
			self.fail(command, err, source)
			return err
		}
		if handled {
			self.executed(command, source)
		}
		return nil
	}

	applied, err := self.apply(command, state)
	if err != nil {
		self.fail(command, err, source)
		return err
	}
	if !applied {
		return nil
	}
	self.executed(command, source)
	return nil
}

func (self *Executor) apply(command Command, state *DocState) (bool, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if self.dedup.Has(command.Id()) {
		glog.V(1).Infof("skip duplicate command %s (%s)\n", command.Id(), command.Type())
		return false, nil
	}

	var applyErr error
	HandleError(func() {
		applyErr = self.history.Push(command, state)
	}, func(err error) {
		applyErr = err
	})
	if applyErr != nil {
		return false, applyErr
	}

	self.dedup.Set(command.Id(), true, ttlcache.DefaultTTL)
	return true, nil
}

// returns whether the id was already seen, marking it seen otherwise
func (self *Executor) markSeen(commandId Id) bool {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if self.dedup.Has(commandId) {
		return true
	}
	self.dedup.Set(commandId, true, ttlcache.DefaultTTL)
	return false
}

// Undo inverts the most recent history entry by executing an undo signal
// against it, so that sync consumers observe the same transition other
// contexts will replay. Returns false when there is nothing to undo.
func (self *Executor) Undo(state *DocState) (bool, error) {
	targetId, ok := self.history.PeekUndoId()
	if !ok {
		return false, nil
	}
	if err := self.Execute(NewUndoSignalCommand(targetId), state, SourceLocal); err != nil {
		return false, err
	}
	return true, nil
}

func (self *Executor) Redo(state *DocState) (bool, error) {
	targetId, ok := self.history.PeekRedoId()
	if !ok {
		return false, nil
	}
	if err := self.Execute(NewRedoSignalCommand(targetId), state, SourceLocal); err != nil {
		return false, err
	}
	return true, nil
}

func (self *Executor) executed(command Command, source CommandSource) {
	metadata := command.Metadata()
	event := &ExecuteEvent{
		Command:          command,
		AffectedShapeIds: metadata.AffectedShapeIds,
		SideEffects:      metadata.SideEffects,
		Source:           source,
		EventTime:        time.Now(),
	}
	for _, executeCallback := range self.executeCallbacks.Get() {
		HandleError(func() {
			executeCallback(event)
		})
	}
}

func (self *Executor) fail(command Command, err error, source CommandSource) {
	event := &FailEvent{
		Command:   command,
		Err:       err,
		Source:    source,
		EventTime: time.Now(),
	}
	for _, failCallback := range self.failCallbacks.Get() {
		HandleError(func() {
			failCallback(event)
		})
	}
}

func (self *Executor) Close() {
	if self.dedupStarted {
		self.dedup.Stop()
	}
}
