package scenesync

import (
	"context"
	"sync"

	"github.com/golang/glog"
	"github.com/redis/go-redis/v9"
)

// RedisChannel replicates commands through a Redis pub/sub topic, one
// topic per channel name. Redis delivers published messages back to the
// publishing subscriber as well; the executor dedup set absorbs that
// self-delivery, so no origin filtering is needed here.
type RedisChannel struct {
	ctx    context.Context
	cancel context.CancelFunc

	name string
	rdb  *redis.Client

	pubsub           *redis.PubSub
	messageCallbacks *CallbackList[MessageFunction]

	closeOnce sync.Once
}

func NewRedisChannel(ctx context.Context, rdb *redis.Client, name string) *RedisChannel {
	cancelCtx, cancel := context.WithCancel(ctx)
	channel := &RedisChannel{
		ctx:              cancelCtx,
		cancel:           cancel,
		name:             name,
		rdb:              rdb,
		pubsub:           rdb.Subscribe(cancelCtx, name),
		messageCallbacks: NewCallbackList[MessageFunction](),
	}
	go channel.pump()
	return channel
}

func (self *RedisChannel) pump() {
	// the pubsub channel reconnects internally and closes on Close
	for message := range self.pubsub.Channel() {
		payload := []byte(message.Payload)
		for _, messageCallback := range self.messageCallbacks.Get() {
			HandleError(func() {
				messageCallback(payload)
			})
		}
	}
}

func (self *RedisChannel) Name() string {
	return self.name
}

func (self *RedisChannel) Post(payload []byte) error {
	select {
	case <-self.ctx.Done():
		return ErrChannelClosed
	default:
	}
	if err := self.rdb.Publish(self.ctx, self.name, payload).Err(); err != nil {
		return err
	}
	return nil
}

func (self *RedisChannel) AddMessageCallback(messageCallback MessageFunction) func() {
	callbackId := self.messageCallbacks.Add(messageCallback)
	return func() {
		self.messageCallbacks.Remove(callbackId)
	}
}

func (self *RedisChannel) Close() error {
	var closeErr error
	self.closeOnce.Do(func() {
		self.cancel()
		if err := self.pubsub.Close(); err != nil {
			glog.Warningf("close pubsub %q: %s\n", self.name, err)
			closeErr = err
		}
	})
	return closeErr
}
