package websocket

import (
	"sync"

	"github.com/dreschagin/research-monitor/internal/application/port"
	"github.com/dreschagin/research-monitor/pkg/logger"
)

// Message is the envelope pushed to connected clients.
type Message struct {
	Type string      `json:"type"` // "alert" or "run"
	Data interface{} `json:"data"`
}

// Hub tracks connected dashboard clients and broadcasts alert and run
// events to them. Implements port.NotificationService.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *logger.Logger
}

func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run serves the hub loop; start it in its own goroutine.
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("Client registered", "total_clients", h.ClientCount())

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("Client unregistered", "total_clients", h.ClientCount())

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client; drop it rather than block the hub.
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client channel full, disconnected")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a new client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// NotifyAlert pushes one alert lifecycle event to all clients.
func (h *Hub) NotifyAlert(transition port.AlertTransitionEvent) {
	h.send(Message{Type: "alert", Data: transition})
}

// NotifyRun pushes one run summary to all clients.
func (h *Hub) NotifyRun(summary port.RunSummaryEvent) {
	h.send(Message{Type: "run", Data: summary})
}

func (h *Hub) send(message Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("Broadcast channel full, dropping message", "type", message.Type)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
