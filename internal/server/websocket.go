package server

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/prefd-io/prefd/internal/eventbus"
)

// Message is the envelope streamed to WebSocket watchers.
type Message struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// WatchServer upgrades /watch requests and streams state snapshots and
// profile lifecycle events from the bus to each connected client.
type WatchServer struct {
	bus      *eventbus.Bus
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*watchClient
}

type watchClient struct {
	id   string
	conn *websocket.Conn
	send chan Message
	done chan struct{}
}

// NewWatchServer creates a watch server. The originAllowed function is used
// to validate the Origin header on upgrade requests.
func NewWatchServer(bus *eventbus.Bus, originAllowed func(string) bool) *WatchServer {
	return &WatchServer{
		bus:     bus,
		clients: make(map[string]*watchClient),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if originAllowed != nil {
					return originAllowed(origin)
				}
				return false
			},
		},
	}
}

// ClientCount returns the number of connected watchers.
func (s *WatchServer) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// HandleWatch upgrades the connection and pumps bus events until the client
// disconnects.
func (s *WatchServer) HandleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WatchServer] upgrade failed: %v", err)
		return
	}

	client := &watchClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan Message, 64),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()

	stateSub := s.bus.Subscribe(eventbus.TopicStateChanged)
	lifecycleSub := s.bus.Subscribe(eventbus.TopicProfileLifecycle)

	go s.pumpBus(client, stateSub, lifecycleSub)
	go s.writeLoop(client)
	s.readLoop(client)

	stateSub.Close()
	lifecycleSub.Close()
	s.mu.Lock()
	delete(s.clients, client.id)
	s.mu.Unlock()
}

// pumpBus forwards bus envelopes into the client's send channel, dropping
// events when the client cannot keep up.
func (s *WatchServer) pumpBus(client *watchClient, subs ...*eventbus.Subscription) {
	forward := func(env eventbus.Envelope, msgType string) {
		msg := Message{Type: msgType, Data: env.Payload, Timestamp: env.Time}
		select {
		case client.send <- msg:
		case <-client.done:
		default:
			// Client's send channel is full, skip
		}
	}

	state, lifecycle := subs[0], subs[1]
	for {
		select {
		case env, ok := <-state.C():
			if !ok {
				return
			}
			forward(env, "state")
		case env, ok := <-lifecycle.C():
			if !ok {
				return
			}
			forward(env, "lifecycle")
		case <-client.done:
			return
		}
	}
}

func (s *WatchServer) writeLoop(client *watchClient) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.done:
			return
		}
	}
}

// readLoop consumes client frames until the connection drops. Watchers are
// read-only; inbound payloads are discarded.
func (s *WatchServer) readLoop(client *watchClient) {
	defer close(client.done)
	defer client.conn.Close()

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
