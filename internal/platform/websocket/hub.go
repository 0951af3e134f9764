// Package websocket pushes queue and toast events to browsers. Clients
// subscribe to topics and receive every event published to those topics.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/medq/medq/internal/platform/events"
)

const sendBuffer = 256

// ClientMessage is an inbound subscribe or unsubscribe request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is one browser connection. Its topic set is guarded by the hub.
type Client struct {
	ID     string
	UserID string

	send   chan []byte
	topics map[string]struct{}
}

func newClient(id, userID string, buffer int) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		send:   make(chan []byte, buffer),
		topics: make(map[string]struct{}),
	}
}

// Hub fans events out to subscribed clients. A client that cannot keep up
// is disconnected rather than left with a stale queue view; browsers
// reconnect and refetch.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	topics  map[string]map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		topics:  make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds c to the hub with its initial topics.
func (h *Hub) Register(c *Client, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	h.subscribeLocked(c, topics)
}

// Unregister drops c and closes its send channel. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.unsubscribeLocked(c, h.topicsOf(c))
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) Subscribe(c *Client, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		h.subscribeLocked(c, topics)
	}
}

func (h *Hub) Unsubscribe(c *Client, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(c, topics)
}

func (h *Hub) subscribeLocked(c *Client, topics []string) {
	for _, t := range topics {
		if t == "" {
			continue
		}
		if h.topics[t] == nil {
			h.topics[t] = make(map[*Client]struct{})
		}
		h.topics[t][c] = struct{}{}
		c.topics[t] = struct{}{}
	}
}

func (h *Hub) unsubscribeLocked(c *Client, topics []string) {
	for _, t := range topics {
		delete(c.topics, t)
		if subs, ok := h.topics[t]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.topics, t)
			}
		}
	}
}

func (h *Hub) topicsOf(c *Client) []string {
	out := make([]string, 0, len(c.topics))
	for t := range c.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Topics returns the client's subscriptions in name order.
func (h *Hub) Topics(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.topicsOf(c)
}

// Handle applies a client message.
func (h *Hub) Handle(c *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(c, msg.Topics...)
	case "unsubscribe":
		h.Unsubscribe(c, msg.Topics...)
	default:
		h.logger.Debug().Str("client_id", c.ID).Str("action", msg.Action).Msg("ignoring websocket message")
	}
}

// Broadcast delivers payload to every subscriber of topic.
func (h *Hub) Broadcast(topic string, payload []byte) {
	var slow []*Client

	h.mu.RLock()
	for c := range h.topics[topic] {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn().Str("client_id", c.ID).Str("topic", topic).Msg("websocket client too slow, disconnecting")
		h.Unregister(c)
	}
}

// Publish implements events.Publisher.
func (h *Hub) Publish(_ context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal websocket event: %w", err)
	}
	h.Broadcast(event.Topic, payload)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
