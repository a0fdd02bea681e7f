package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/KevinKickass/OpenStimCore/internal/auth"
	"github.com/KevinKickass/OpenStimCore/internal/stimulation"
	"go.uber.org/zap"
)

type directMessage struct {
	client *Client
	msg    Message
}

// StatusProvider supplies the snapshot sent to newly registered clients.
type StatusProvider interface {
	Status() stimulation.Status
}

// Hub maintains active WebSocket clients and broadcasts messages
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	register   chan *Client
	unregister chan *Client
	direct     chan directMessage

	// closed when Run returns
	done chan struct{}

	mu sync.RWMutex

	logger      *zap.Logger
	authService *auth.AuthService

	statusMu       sync.RWMutex
	statusProvider StatusProvider
}

// NewHub creates a new Hub. authService may be nil, then clients are not
// asked to authenticate.
func NewHub(logger *zap.Logger, authService *auth.AuthService) *Hub {
	return &Hub{
		broadcast:   make(chan Message, 256),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		direct:      make(chan directMessage, 16),
		done:        make(chan struct{}),
		clients:     make(map[*Client]bool),
		logger:      logger,
		authService: authService,
	}
}

// SetStatusProvider sets the status provider
func (h *Hub) SetStatusProvider(provider StatusProvider) {
	h.statusMu.Lock()
	h.statusProvider = provider
	h.statusMu.Unlock()
}

func (h *Hub) status() (stimulation.Status, bool) {
	h.statusMu.RLock()
	defer h.statusMu.RUnlock()
	if h.statusProvider == nil {
		return stimulation.Status{}, false
	}
	return h.statusProvider.Status(), true
}

func (h *Hub) requiresAuth() bool {
	return h.authService != nil && h.authService.Enabled()
}

// Run starts the hub's main event loop and returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	h.logger.Info("WebSocket Hub started")
	for {
		select {
		case <-ctx.Done():
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
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client registered",
				zap.String("remote_addr", client.remoteAddr()),
				zap.Int("total_clients", total))
			if status, ok := h.status(); ok {
				client.sendMessage(NewStatusMessage(status))
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("WebSocket client unregistered",
					zap.String("remote_addr", client.remoteAddr()),
					zap.Int("total_clients", len(h.clients)))
			}
			h.mu.Unlock()

		case d := <-h.direct:
			h.mu.RLock()
			registered := h.clients[d.client]
			h.mu.RUnlock()
			if registered {
				d.client.sendMessage(d.msg)
			}

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("Failed to marshal broadcast message",
					zap.Error(err))
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Client send channel full - unregister slow/dead client
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client send buffer full, unregistering",
						zap.String("remote_addr", client.remoteAddr()))
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Hub broadcast channel full, message dropped",
			zap.String("message_type", string(msg.Type)))
	}
}

// Publish is a stimulation.Observer.
func (h *Hub) Publish(ev stimulation.Event) {
	h.Broadcast(NewControllerEventMessage(ev))
}

func (h *Hub) addClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// reply queues msg for one registered client.
func (h *Hub) reply(c *Client, msg Message) {
	select {
	case h.direct <- directMessage{c, msg}:
	case <-h.done:
	}
}

func (h *Hub) removeClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
