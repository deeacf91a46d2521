package websocket

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/modbusmon/modbusmon/internal/alarms"
	"github.com/modbusmon/modbusmon/internal/modbus"
	"github.com/modbusmon/modbusmon/internal/snapshot"
)

// Hub maintains active WebSocket clients and broadcasts messages. The
// live feed is read-only, so clients connect without authentication,
// same as the public dashboard endpoint.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *zap.Logger

	stop chan struct{}
	done chan struct{}
}

// NewHub creates a new Hub instance
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket Hub started")
	defer close(h.done)
	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("WebSocket client registered",
				zap.String("remote_addr", client.conn.RemoteAddr().String()),
				zap.Int("total_clients", len(h.clients)))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("WebSocket client unregistered",
					zap.String("remote_addr", client.conn.RemoteAddr().String()),
					zap.Int("total_clients", len(h.clients)))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("Failed to marshal broadcast message",
					zap.Error(err))
				h.mu.Unlock()
				continue
			}

			for client := range h.clients {
				select {
				case client.send <- data:
					// Message sent successfully
				default:
					// Client send channel full - unregister slow/dead client
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client send buffer full, unregistering",
						zap.String("remote_addr", client.conn.RemoteAddr().String()))
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop shuts the hub down and disconnects all clients.
func (h *Hub) Stop() {
	close(h.stop)
	<-h.done
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
		// Message queued for broadcast
	default:
		h.logger.Warn("Hub broadcast channel full, message dropped",
			zap.String("message_type", string(msg.Type)))
	}
}

// CycleCompleted pushes a finished polling cycle to all clients. It
// satisfies the scheduler's observer interface.
func (h *Hub) CycleCompleted(cycle uint64, entries []snapshot.Entry) {
	if h.GetClientCount() == 0 {
		return
	}
	h.Broadcast(NewTagUpdateMessage(cycle, entries))
}

// DeviceFailed pushes a device-level poll failure to all clients. It
// satisfies the scheduler's observer interface together with
// CycleCompleted.
func (h *Hub) DeviceFailed(deviceID int64, name string, status modbus.Status) {
	if h.GetClientCount() == 0 {
		return
	}
	h.Broadcast(NewDeviceErrorMessage(deviceID, name, string(status)))
}

// AlarmRaised pushes an alarm transition to all clients. It satisfies
// the alarm engine's notifier interface.
func (h *Hub) AlarmRaised(ev alarms.Event) {
	h.Broadcast(NewAlarmEventMessage(ev))
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
