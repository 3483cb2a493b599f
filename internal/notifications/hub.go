package notifications

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/altynaay/fieldops/pkg/logger"
	"github.com/altynaay/fieldops/pkg/metrics"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
)

// Event is the payload delivered to live notification subscribers.
type Event struct {
	Type       string    `json:"type"`
	Text       string    `json:"text"`
	ActivityID *string   `json:"activity_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Sink is the outbound side of one live connection. The hub only needs to
// write to and close a connection; tests substitute an in-memory fake.
type Sink interface {
	Send(payload []byte) error
	Close() error
}

// Hub multiplexes zero or more live connections per user and fans push
// messages out to all of them. It holds no durable state; a lost message is
// not retried.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[Sink]struct{}

	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[Sink]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: logger.WithModule("notifications"),
	}
}

// Connect registers a connection under the user's connection set.
func (h *Hub) Connect(userID string, sink Sink) {
	if userID == "" || sink == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[userID] == nil {
		h.clients[userID] = make(map[Sink]struct{})
	}
	h.clients[userID][sink] = struct{}{}
	metrics.HubConnections.Inc()
}

// Disconnect removes one connection. Empty per-user sets are pruned so the
// registry never accumulates entries for departed users.
func (h *Hub) Disconnect(userID string, sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(userID, sink)
}

func (h *Hub) removeLocked(userID string, sink Sink) {
	sinks := h.clients[userID]
	if sinks == nil {
		return
	}
	if _, ok := sinks[sink]; !ok {
		return
	}
	delete(sinks, sink)
	if len(sinks) == 0 {
		delete(h.clients, userID)
	}
	metrics.HubConnections.Dec()
}

// Push serialises the event once and delivers it to every connection
// currently registered for the user. A connection that fails to receive is
// treated as dead and disconnected; failures never affect sibling
// connections and are not surfaced to the caller. Sends happen outside the
// registry lock so slow connections cannot block connect/disconnect.
func (h *Hub) Push(userID string, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Warn("marshal event failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]Sink, 0, len(h.clients[userID]))
	for sink := range h.clients[userID] {
		targets = append(targets, sink)
	}
	h.mu.RUnlock()

	var dead []Sink
	for _, sink := range targets {
		if err := sink.Send(payload); err != nil {
			dead = append(dead, sink)
		}
	}

	for _, sink := range dead {
		metrics.HubDroppedMessages.Inc()
		h.Disconnect(userID, sink)
		_ = sink.Close()
	}
}

// PushMany delivers an event to each of the supplied user IDs.
func (h *Hub) PushMany(userIDs []string, event Event) {
	for _, userID := range userIDs {
		h.Push(userID, event)
	}
}

// ConnectionCount reports the number of live connections for a user.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Serve upgrades the HTTP request to a WebSocket and keeps the connection
// registered until the peer goes away. Incoming frames are discarded; the
// stream is push-only.
func (h *Hub) Serve(userID string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	sink := newWSSink(conn)
	h.Connect(userID, sink)
	defer func() {
		h.Disconnect(userID, sink)
		_ = sink.Close()
	}()

	go sink.pingLoop()
	sink.readLoop()
}

// wsSink adapts a gorilla websocket connection to the Sink interface. Writes
// are serialised by a mutex because Push and the ping loop run on different
// goroutines.
type wsSink struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	once    sync.Once
	done    chan struct{}
}

func newWSSink(conn *websocket.Conn) *wsSink {
	return &wsSink{
		conn: conn,
		done: make(chan struct{}),
	}
}

func (s *wsSink) Send(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *wsSink) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *wsSink) readLoop() {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *wsSink) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.writeMu.Lock()
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}
