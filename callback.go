package scenesync

import (
	"sync"
)

// makes a copy of the list on update, so Get is safe to iterate while
// callbacks add or remove themselves
type CallbackList[T any] struct {
	mutex       sync.Mutex
	nextId      int
	callbackIds []int
	callbacks   map[int]T
}

func NewCallbackList[T any]() *CallbackList[T] {
	return &CallbackList[T]{
		callbackIds: []int{},
		callbacks:   map[int]T{},
	}
}

func (self *CallbackList[T]) Add(callback T) int {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbackId := self.nextId
	self.nextId += 1
	self.callbackIds = append(self.callbackIds, callbackId)
	self.callbacks[callbackId] = callback
	return callbackId
}

func (self *CallbackList[T]) Remove(callbackId int) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	for i, existingId := range self.callbackIds {
		if existingId == callbackId {
			self.callbackIds = append(self.callbackIds[:i:i], self.callbackIds[i+1:]...)
			break
		}
	}
	delete(self.callbacks, callbackId)
}

// in add order
func (self *CallbackList[T]) Get() []T {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	callbacks := make([]T, 0, len(self.callbackIds))
	for _, callbackId := range self.callbackIds {
		callbacks = append(callbacks, self.callbacks[callbackId])
	}
	return callbacks
}
