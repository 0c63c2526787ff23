package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/onnwee/graph-physics/internal/apierr"
	"github.com/onnwee/graph-physics/internal/logger"
	"github.com/onnwee/graph-physics/internal/metrics"
	"github.com/onnwee/graph-physics/internal/physics"
	"github.com/onnwee/graph-physics/internal/simulation"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Frames buffered per client before new ones are dropped
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// CORS middleware handles origin policy
		return true
	},
}

// Message types sent on a session stream.
const (
	MessageSnapshot = "snapshot"
	MessageTick     = "tick"
	MessageClosed   = "closed"
)

// StreamMessage is one frame sent to stream clients.
type StreamMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// FramePayload is the payload of snapshot and tick messages.
type FramePayload struct {
	SessionID     string         `json:"session_id"`
	Tick          uint64         `json:"tick"`
	Version       uint64         `json:"version"`
	Trigger       string         `json:"trigger,omitempty"`
	KineticEnergy float64        `json:"kinetic_energy"`
	Nodes         []physics.Node `json:"nodes"`
}

// SessionLookup finds live sessions.
type SessionLookup interface {
	Get(id string) (*simulation.Session, error)
}

// Client is one websocket connection following a session.
type Client struct {
	hub       *Hub
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
}

type frame struct {
	sessionID string
	data      []byte
}

// Hub fans tick frames out to the clients of each session. A session is
// observed only while it has at least one client.
type Hub struct {
	sessions SessionLookup

	// clients and subs are owned by the Run goroutine
	clients map[string]map[*Client]bool
	subs    map[string]func()

	register   chan *Client
	unregister chan *Client
	broadcast  chan frame
	closeSess  chan string
	done       chan struct{}
}

// NewHub creates a hub; call Run to start it.
func NewHub(sessions SessionLookup) *Hub {
	return &Hub{
		sessions:   sessions,
		clients:    make(map[string]map[*Client]bool),
		subs:       make(map[string]func()),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan frame, 256),
		closeSess:  make(chan string, 16),
		done:       make(chan struct{}),
	}
}

// Run processes registrations and frames until ctx is done, then closes every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	log := logger.WithComponent("stream")
	for {
		select {
		case <-ctx.Done():
			for id := range h.clients {
				h.dropSession(id)
			}
			return

		case c := <-h.register:
			set, ok := h.clients[c.sessionID]
			if !ok {
				s, err := h.sessions.Get(c.sessionID)
				if err != nil {
					close(c.send)
					continue
				}
				set = make(map[*Client]bool)
				h.clients[c.sessionID] = set
				h.subs[c.sessionID] = s.Subscribe(h.observe)
			}
			set[c] = true
			metrics.WebSocketConnections.Inc()
			log.Info("stream client connected", "session_id", c.sessionID, "session_clients", len(set))

		case c := <-h.unregister:
			set := h.clients[c.sessionID]
			if _, ok := set[c]; !ok {
				continue
			}
			delete(set, c)
			close(c.send)
			metrics.WebSocketConnections.Dec()
			if len(set) == 0 {
				h.unsubscribe(c.sessionID)
			}
			log.Info("stream client disconnected", "session_id", c.sessionID, "session_clients", len(set))

		case f := <-h.broadcast:
			for c := range h.clients[f.sessionID] {
				select {
				case c.send <- f.data:
					metrics.WebSocketMessagesSent.Inc()
				default:
					// slow client; the next frame carries full state
					metrics.WebSocketMessagesDropped.Inc()
				}
			}

		case id := <-h.closeSess:
			if _, ok := h.clients[id]; ok {
				data, _ := json.Marshal(StreamMessage{Type: MessageClosed, Payload: map[string]string{"session_id": id}})
				for c := range h.clients[id] {
					select {
					case c.send <- data:
					default:
					}
				}
				h.dropSession(id)
			}
		}
	}
}

func (h *Hub) unsubscribe(id string) {
	if cancel, ok := h.subs[id]; ok {
		cancel()
		delete(h.subs, id)
	}
	delete(h.clients, id)
}

func (h *Hub) dropSession(id string) {
	for c := range h.clients[id] {
		close(c.send)
		metrics.WebSocketConnections.Dec()
	}
	h.unsubscribe(id)
}

// observe runs on the ticking goroutine, so it never blocks.
func (h *Hub) observe(ev simulation.TickEvent) {
	data, err := json.Marshal(StreamMessage{Type: MessageTick, Payload: FramePayload{
		SessionID:     ev.SessionID,
		Tick:          ev.Tick,
		Version:       ev.Version,
		Trigger:       string(ev.Trigger),
		KineticEnergy: ev.Stats.KineticEnergy,
		Nodes:         ev.Nodes,
	}})
	if err != nil {
		logger.WithSession(ev.SessionID).Error("failed to encode tick frame", "error", err)
		return
	}
	select {
	case h.broadcast <- frame{sessionID: ev.SessionID, data: data}:
	case <-h.done:
	default:
		metrics.WebSocketMessagesDropped.Inc()
	}
}

// CloseSession disconnects the clients of a removed session. It is safe to
// register as a Registry OnRemove hook.
func (h *Hub) CloseSession(id string) {
	select {
	case h.closeSess <- id:
	case <-h.done:
	}
}

// readPump discards client messages and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("stream unexpected close", "session_id", c.sessionID, "error", err)
			}
			return
		}
	}
}

// writePump sends one websocket message per frame.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// StreamHandler upgrades GET /api/sessions/{id}/stream to a websocket.
type StreamHandler struct {
	hub      *Hub
	sessions SessionLookup
}

func NewStreamHandler(hub *Hub, sessions SessionLookup) *StreamHandler {
	return &StreamHandler{hub: hub, sessions: sessions}
}

// ServeHTTP sends a snapshot of the session, then a tick frame per tick.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s, err := h.sessions.Get(id)
	if err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.SessionNotFound(id))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		logger.WarnContext(r.Context(), "stream upgrade failed", "error", err)
		return
	}

	nodes, version, tick := s.State()
	snapshot, err := json.Marshal(StreamMessage{Type: MessageSnapshot, Payload: FramePayload{
		SessionID:     id,
		Tick:          tick,
		Version:       version,
		KineticEnergy: s.Stats().KineticEnergy,
		Nodes:         nodes,
	}})
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to encode snapshot", "error", err)
		conn.Close()
		return
	}

	c := &Client{hub: h.hub, sessionID: id, conn: conn, send: make(chan []byte, sendBuffer)}
	c.send <- snapshot

	select {
	case h.hub.register <- c:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
