package scenesync

import (
	"errors"
	"sync"

	"github.com/golang/glog"
)

var ErrChannelClosed = errors.New("broadcast channel closed")

type MessageFunction = func(payload []byte)

// BroadcastChannel is the named, asynchronous publish/subscribe primitive
// the sync manager replicates commands through. Delivery is never
// synchronous with the sender and is fire-and-forget: a message that
// never arrives is a silent, permanent loss for that peer.
//
// Implementations must preserve per-origin FIFO order. Delivering a
// sender's messages back to itself is allowed; the executor dedup set
// absorbs self-delivery.
type BroadcastChannel interface {
	Name() string
	Post(payload []byte) error
	// AddMessageCallback subscribes to received payloads.
	// The returned function unsubscribes.
	AddMessageCallback(messageCallback MessageFunction) func()
	Close() error
}

// in-process named buses, one per channel name
var memoryBusesMutex sync.Mutex
var memoryBuses = map[string]*memoryBus{}

type memoryBus struct {
	mutex   sync.Mutex
	members []*MemoryChannel
}

func openMemoryBus(name string) *memoryBus {
	memoryBusesMutex.Lock()
	defer memoryBusesMutex.Unlock()

	bus, ok := memoryBuses[name]
	if !ok {
		bus = &memoryBus{
			members: []*MemoryChannel{},
		}
		memoryBuses[name] = bus
	}
	return bus
}

func (self *memoryBus) join(member *MemoryChannel) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.members = append(self.members, member)
}

func (self *memoryBus) leave(member *MemoryChannel) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	for i, existing := range self.members {
		if existing == member {
			self.members = append(self.members[:i:i], self.members[i+1:]...)
			return
		}
	}
}

func (self *memoryBus) post(sender *MemoryChannel, payload []byte) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	for _, member := range self.members {
		if member == sender {
			continue
		}
		select {
		case member.queue <- payload:
		default:
			// fire-and-forget; a full receiver loses the message
			glog.Warningf("memory channel %q receiver full, dropping message\n", member.name)
		}
	}
}

// MemoryChannel connects execution contexts within one process. It backs
// the tests and the sim tool; separate processes use the websocket or
// redis channels instead.
type MemoryChannel struct {
	name string
	bus  *memoryBus

	queue            chan []byte
	messageCallbacks *CallbackList[MessageFunction]

	closeMutex sync.Mutex
	closed     bool
}

func NewMemoryChannel(name string) *MemoryChannel {
	channel := &MemoryChannel{
		name:             name,
		bus:              openMemoryBus(name),
		queue:            make(chan []byte, 1024),
		messageCallbacks: NewCallbackList[MessageFunction](),
	}
	channel.bus.join(channel)
	go channel.pump()
	return channel
}

func (self *MemoryChannel) pump() {
	for payload := range self.queue {
		for _, messageCallback := range self.messageCallbacks.Get() {
			HandleError(func() {
				messageCallback(payload)
			})
		}
	}
}

func (self *MemoryChannel) Name() string {
	return self.name
}

func (self *MemoryChannel) Post(payload []byte) error {
	self.closeMutex.Lock()
	if self.closed {
		self.closeMutex.Unlock()
		return ErrChannelClosed
	}
	self.closeMutex.Unlock()

	self.bus.post(self, payload)
	return nil
}

func (self *MemoryChannel) AddMessageCallback(messageCallback MessageFunction) func() {
	callbackId := self.messageCallbacks.Add(messageCallback)
	return func() {
		self.messageCallbacks.Remove(callbackId)
	}
}

func (self *MemoryChannel) Close() error {
	self.closeMutex.Lock()
	defer self.closeMutex.Unlock()

	if self.closed {
		return nil
	}
	self.closed = true
	// after leave, nothing can enqueue to this member
	self.bus.leave(self)
	close(self.queue)
	return nil
}
