package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// The relay is the inter-context broadcast transport for contexts running
// in separate processes. It fans each message on a named channel out to
// every other subscriber of that channel, preserving per-origin order.
// The relay never inspects payloads; all command semantics live in the
// contexts.

func main() {
	usage := `Scenesync relay.

Usage:
    scenesync-relay [--port=<port>]

Options:
    -h --help          Show this screen.
    -p --port=<port>   Listen port [default: 8090].`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], "0.1.0")
	if err != nil {
		panic(err)
	}
	// glog configures itself through the flag package
	flag.CommandLine.Parse([]string{})
	flag.Set("logtostderr", "true")

	port, _ := opts.Int("--port")

	relay := newRelay()
	router := mux.NewRouter()
	router.HandleFunc("/ch/{name}", relay.serveChannel)

	glog.Infof("scenesync relay listening on :%d\n", port)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), router); err != nil {
		glog.Errorf("listen: %s\n", err)
		os.Exit(1)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type relay struct {
	mutex sync.Mutex
	hubs  map[string]*hub
}

func newRelay() *relay {
	return &relay{
		hubs: map[string]*hub{},
	}
}

// join and leave go through the relay mutex so an emptied hub can be
// dropped without racing a new subscriber
func (self *relay) join(name string) (*hub, *member, int) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	h, ok := self.hubs[name]
	if !ok {
		h = newHub(name)
		self.hubs[name] = h
	}
	m := &member{
		send: make(chan []byte, 256),
	}
	count := h.join(m)
	return h, m, count
}

func (self *relay) leave(h *hub, m *member) int {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	count := h.leave(m)
	if count == 0 {
		delete(self.hubs, h.name)
	}
	return count
}

func (self *relay) serveChannel(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Warningf("upgrade %q: %s\n", name, err)
		return
	}
	defer ws.Close()

	h, m, count := self.join(name)
	glog.Infof("channel %q subscriber joined (%d)\n", name, count)
	defer func() {
		count := self.leave(h, m)
		glog.Infof("channel %q subscriber left (%d)\n", name, count)
	}()

	h.serve(ws, m)
}

// one hub per channel name
type hub struct {
	name string

	mutex   sync.Mutex
	members map[*member]bool
}

type member struct {
	send chan []byte
}

func newHub(name string) *hub {
	return &hub{
		name:    name,
		members: map[*member]bool{},
	}
}

func (self *hub) join(m *member) int {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	self.members[m] = true
	return len(self.members)
}

func (self *hub) leave(m *member) int {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if self.members[m] {
		delete(self.members, m)
		close(m.send)
	}
	return len(self.members)
}

func (self *hub) broadcast(sender *member, payload []byte) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	for m := range self.members {
		if m == sender {
			continue
		}
		select {
		case m.send <- payload:
		default:
			// a slow subscriber loses the message rather than
			// stalling the channel
			glog.Warningf("channel %q subscriber full, dropping message\n", self.name)
		}
	}
}

// blocks until the connection closes
func (self *hub) serve(ws *websocket.Conn, m *member) {
	go func() {
		for payload := range m.send {
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
		ws.WriteMessage(websocket.CloseMessage, []byte{})
	}()

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			return
		}
		self.broadcast(m, payload)
	}
}
