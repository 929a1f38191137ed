package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zombar/feedbackpulse/internal/models"
)

// DashboardChannel is the channel dashboard clients subscribe to
const DashboardChannel = "dashboard"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MsgMetricsUpdate MessageType = "metrics_update"
)

// ErrHubClosed is returned when emitting on a stopped hub
var ErrHubClosed = errors.New("realtime hub closed")

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// Emitter publishes recomputed dashboard metrics to subscribers
type Emitter interface {
	EmitMetricsUpdate(ctx context.Context, scope models.Scope, metrics *models.DashboardMetrics) error
}

// Client is one subscribed connection
type Client struct {
	Channel        string
	OrganizationID string
	// AllOrganizations clients receive updates for every organization
	AllOrganizations bool
	Send             chan []byte
}

// NewClient creates a client with a buffered send queue
func NewClient(channel, organizationID string, allOrganizations bool) *Client {
	return &Client{
		Channel:          channel,
		OrganizationID:   organizationID,
		AllOrganizations: allOrganizations,
		Send:             make(chan []byte, 64),
	}
}

func (c *Client) wants(organizationID string) bool {
	if c.AllOrganizations {
		return true
	}
	return organizationID != "" && c.OrganizationID == organizationID
}

type broadcastMessage struct {
	channel        string
	organizationID string
	data           []byte
}

// Hub fans messages out to WebSocket clients by channel
type Hub struct {
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage
	done       chan struct{}
	closeOnce  sync.Once

	logger *slog.Logger
}

// NewHub creates a hub and starts its event loop
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for _, clients := range h.clients {
				for c := range clients {
					close(c.Send)
				}
			}
			h.clients = make(map[string]map[*Client]struct{})
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.Channel] == nil {
				h.clients[c.Channel] = make(map[*Client]struct{})
			}
			h.clients[c.Channel][c] = struct{}{}
			h.mu.Unlock()
			h.logger.Debug("realtime client subscribed", "channel", c.Channel, "organization_id", c.OrganizationID)

		case c := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[c.Channel]; ok {
				if _, ok := clients[c]; ok {
					delete(clients, c)
					close(c.Send)
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients[msg.channel] {
				if !c.wants(msg.organizationID) {
					continue
				}
				select {
				case c.Send <- msg.data:
				default:
					// slow client, drop the update
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register subscribes a client
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister removes a client and closes its send queue
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Close stops the hub and closes every client queue
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ClientCount returns the number of clients on a channel
func (h *Hub) ClientCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[channel])
}

// Broadcast sends a typed payload to a channel's clients that follow organizationID
func (h *Hub) Broadcast(channel, organizationID string, msgType MessageType, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	data, err := json.Marshal(&Message{Type: msgType, Channel: channel, Payload: body})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	select {
	case h.broadcast <- &broadcastMessage{channel: channel, organizationID: organizationID, data: data}:
		return nil
	case <-h.done:
		return ErrHubClosed
	}
}

// EmitMetricsUpdate pushes metrics to dashboard subscribers of the scope's organization
func (h *Hub) EmitMetricsUpdate(ctx context.Context, scope models.Scope, metrics *models.DashboardMetrics) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.Broadcast(DashboardChannel, scope.OrganizationID, MsgMetricsUpdate, metrics)
}

var _ Emitter = (*Hub)(nil)
