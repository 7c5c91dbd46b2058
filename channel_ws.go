package scenesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

type WebsocketChannelSettings struct {
	HandshakeTimeout     time.Duration
	WriteTimeout         time.Duration
	ReconnectMinInterval time.Duration
	ReconnectMaxInterval time.Duration
	SendBufferSize       int
}

func DefaultWebsocketChannelSettings() *WebsocketChannelSettings {
	return &WebsocketChannelSettings{
		HandshakeTimeout:     2 * time.Second,
		WriteTimeout:         5 * time.Second,
		ReconnectMinInterval: 250 * time.Millisecond,
		ReconnectMaxInterval: 15 * time.Second,
		SendBufferSize:       256,
	}
}

// WebsocketChannel joins a named channel on a scenesync relay. The relay
// fans each message out to every other subscriber of the same name, which
// gives per-origin FIFO as long as the connection lasts. Messages posted
// while disconnected are dropped, consistent with the fire-and-forget
// channel contract; the connection itself reconnects with exponential
// backoff.
type WebsocketChannel struct {
	ctx    context.Context
	cancel context.CancelFunc

	relayUrl string
	name     string
	settings *WebsocketChannelSettings

	sendQueue        chan []byte
	messageCallbacks *CallbackList[MessageFunction]

	closeOnce sync.Once
}

func NewWebsocketChannelWithDefaults(ctx context.Context, relayUrl string, name string) *WebsocketChannel {
	return NewWebsocketChannel(ctx, relayUrl, name, DefaultWebsocketChannelSettings())
}

func NewWebsocketChannel(ctx context.Context, relayUrl string, name string, settings *WebsocketChannelSettings) *WebsocketChannel {
	cancelCtx, cancel := context.WithCancel(ctx)
	channel := &WebsocketChannel{
		ctx:              cancelCtx,
		cancel:           cancel,
		relayUrl:         relayUrl,
		name:             name,
		settings:         settings,
		sendQueue:        make(chan []byte, settings.SendBufferSize),
		messageCallbacks: NewCallbackList[MessageFunction](),
	}
	go channel.run()
	return channel
}

func (self *WebsocketChannel) run() {
	reconnect := backoff.NewExponentialBackOff()
	reconnect.InitialInterval = self.settings.ReconnectMinInterval
	reconnect.MaxInterval = self.settings.ReconnectMaxInterval
	// never give up while the channel is open
	reconnect.MaxElapsedTime = 0

	channelUrl := fmt.Sprintf("%s/ch/%s", self.relayUrl, self.name)
	for {
		select {
		case <-self.ctx.Done():
			return
		default:
		}

		dialer := &websocket.Dialer{
			HandshakeTimeout: self.settings.HandshakeTimeout,
		}
		ws, _, err := dialer.DialContext(self.ctx, channelUrl, nil)
		if err != nil {
			select {
			case <-self.ctx.Done():
				return
			case <-time.After(reconnect.NextBackOff()):
			}
			continue
		}
		glog.Infof("channel %q connected to %s\n", self.name, self.relayUrl)
		reconnect.Reset()
		self.serve(ws)
	}
}

// blocks until the connection fails or the channel closes
func (self *WebsocketChannel) serve(ws *websocket.Conn) {
	connCtx, connCancel := context.WithCancel(self.ctx)
	defer connCancel()
	defer ws.Close()

	go func() {
		defer connCancel()
		for {
			select {
			case <-connCtx.Done():
				return
			case payload := <-self.sendQueue:
				ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
					glog.Warningf("channel %q write: %s\n", self.name, err)
					return
				}
			}
		}
	}()

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			if self.ctx.Err() == nil {
				glog.Warningf("channel %q read: %s\n", self.name, err)
			}
			return
		}
		for _, messageCallback := range self.messageCallbacks.Get() {
			HandleError(func() {
				messageCallback(payload)
			})
		}
	}
}

func (self *WebsocketChannel) Name() string {
	return self.name
}

func (self *WebsocketChannel) Post(payload []byte) error {
	select {
	case <-self.ctx.Done():
		return ErrChannelClosed
	default:
	}
	select {
	case self.sendQueue <- payload:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

func (self *WebsocketChannel) AddMessageCallback(messageCallback MessageFunction) func() {
	callbackId := self.messageCallbacks.Add(messageCallback)
	return func() {
		self.messageCallbacks.Remove(callbackId)
	}
}

func (self *WebsocketChannel) Close() error {
	self.closeOnce.Do(func() {
		self.cancel()
	})
	return nil
}
