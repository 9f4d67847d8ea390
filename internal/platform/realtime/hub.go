package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// ClientMessage is an inbound subscribe/unsubscribe request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is one WebSocket connection.
type Client struct {
	ID     string
	UserID string
	Topics []string
	Send   chan []byte
}

// TopicAuthorizer decides whether userID may subscribe to topic.
type TopicAuthorizer func(ctx context.Context, userID, topic string) bool

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[*Client]struct{} // topic -> set of clients
	all       map[*Client]struct{}
	authorize TopicAuthorizer
	logger    zerolog.Logger
}

// NewHub creates a hub. A nil authorizer only allows a user's own topic.
func NewHub(authorize TopicAuthorizer, logger zerolog.Logger) *Hub {
	return &Hub{
		clients:   make(map[string]map[*Client]struct{}),
		all:       make(map[*Client]struct{}),
		authorize: authorize,
		logger:    logger,
	}
}

// Register adds a client and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.addLocked(topic, client)
	}
}

// Unregister removes the client everywhere and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.removeLocked(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) addLocked(topic string, client *Client) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) removeLocked(topic string, client *Client) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

func (h *Hub) allowed(ctx context.Context, client *Client, topic string) bool {
	if topic == "user:"+client.UserID {
		return true
	}
	if h.authorize == nil {
		return false
	}
	return h.authorize(ctx, client.UserID, topic)
}

// Subscribe adds the topics the client is allowed to see and returns the
// ones that were refused.
func (h *Hub) Subscribe(ctx context.Context, client *Client, topics []string) []string {
	var granted, denied []string
	for _, t := range topics {
		if h.allowed(ctx, client, t) {
			granted = append(granted, t)
		} else {
			denied = append(denied, t)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range granted {
		if _, already := h.clients[topic][client]; already {
			continue
		}
		h.addLocked(topic, client)
		client.Topics = append(client.Topics, topic)
	}
	return denied
}

// Unsubscribe removes topics from a registered client.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		removeSet[t] = struct{}{}
		h.removeLocked(t, client)
	}

	remaining := make([]string, 0, len(client.Topics))
	for _, t := range client.Topics {
		if _, rm := removeSet[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// ProcessMessage dispatches an inbound message. It returns the topics that
// were refused on subscribe.
func (h *Hub) ProcessMessage(ctx context.Context, client *Client, msg ClientMessage) []string {
	switch msg.Action {
	case "subscribe":
		return h.Subscribe(ctx, client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
	return nil
}

// Broadcast sends event to every subscriber of topic. Slow clients whose
// buffer is full miss the event.
func (h *Hub) Broadcast(topic string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("marshal realtime event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn().Str("client_id", client.ID).Str("topic", topic).Msg("client buffer full, event dropped")
		}
	}
}

// Publish implements Publisher.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Broadcast(event.Topic, event)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}
