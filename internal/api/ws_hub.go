// Package api provides the HTTP handlers and the WebSocket hub for the
// prediction engine.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/predikt/prediction-engine/internal/metrics"
	"github.com/predikt/prediction-engine/internal/model"
)

// WSMessage is a JSON message sent to WebSocket clients.
type WSMessage struct {
	Type     string               `json:"type"`
	EventID  string               `json:"event_id"`
	Outcome  string               `json:"outcome,omitempty"`
	Winners  int                  `json:"winners,omitempty"`
	Losers   int                  `json:"losers,omitempty"`
	Refunded int                  `json:"refunded,omitempty"`
	Odds     []model.OutcomePrice `json:"odds,omitempty"`
}

// Hub manages WebSocket connections and broadcasts event lifecycle and
// odds updates to all connected clients. It implements the notifier
// interfaces of the event service and the odds refresher.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run starts the hub's main event loop. Must be called in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
			metrics.WebSocketClients.Inc()
			slog.Info("ws client connected", "total", len(h.clients))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				metrics.WebSocketClients.Dec()
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
					metrics.WebSocketClients.Dec()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Drop if buffer full to avoid blocking settlement.
	}
}

// EventSettled implements event.Notifier.
func (h *Hub) EventSettled(eventID uuid.UUID, finalOutcome string, winners, losers int) {
	h.Broadcast(WSMessage{
		Type:    "event_settled",
		EventID: eventID.String(),
		Outcome: finalOutcome,
		Winners: winners,
		Losers:  losers,
	})
}

// EventCancelled implements event.Notifier.
func (h *Hub) EventCancelled(eventID uuid.UUID, refunded int) {
	h.Broadcast(WSMessage{
		Type:     "event_cancelled",
		EventID:  eventID.String(),
		Refunded: refunded,
	})
}

// OddsUpdated implements worker.OddsNotifier.
func (h *Hub) OddsUpdated(eventID uuid.UUID, snapshot []model.OutcomePrice) {
	h.Broadcast(WSMessage{
		Type:    "odds_updated",
		EventID: eventID.String(),
		Odds:    snapshot,
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	h.register <- conn

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}
