package stream

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Hub fans live ride telemetry and user-facing notices out to websocket
// subscribers, keyed by rider. Redis pub/sub bridges instances so a client
// re-attaching through another process still sees the in-progress ride.
type Hub struct {
	redis   *redis.Client
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	RiderID string
	Send    chan []byte
}

// Notice is a fire-and-forget user-facing signal: permission denied,
// auto-pause, save failure. It never affects engine correctness.
type Notice struct {
	Type    string `json:"type"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func NewHub(redisClient *redis.Client) *Hub {
	h := &Hub{
		redis:   redisClient,
		clients: map[string]map[*Client]struct{}{},
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	return h
}

func (h *Hub) Register(riderID string) *Client {
	client := &Client{
		RiderID: riderID,
		Send:    make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[riderID] == nil {
		h.clients[riderID] = map[*Client]struct{}{}
	}
	h.clients[riderID][client] = struct{}{}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if riderClients, ok := h.clients[client.RiderID]; ok {
		delete(riderClients, client)
		if len(riderClients) == 0 {
			delete(h.clients, client.RiderID)
		}
	}
	close(client.Send)
}

// Broadcast delivers a payload to every local subscriber of the rider and
// publishes it to Redis for other instances. Slow subscribers are skipped.
func (h *Hub) Broadcast(riderID string, payload []byte) {
	h.mu.RLock()
	clients := h.clients[riderID]
	h.mu.RUnlock()

	for client := range clients {
		select {
		case client.Send <- payload:
		default:
		}
	}

	if h.redis != nil {
		err := h.redis.Publish(context.Background(), redisChannel(riderID), payload).Err()
		if err != nil {
			log.Printf("redis publish error: %v", err)
		}
	}
}

// Notify broadcasts a Notice to the rider's subscribers.
func (h *Hub) Notify(riderID, kind, message string) {
	payload, _ := json.Marshal(Notice{Type: "notice", Kind: kind, Message: message})
	h.Broadcast(riderID, payload)
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "ride:*:live")
	defer pubsub.Close()

	for msg := range pubsub.Channel() {
		riderID := riderIDFromChannel(msg.Channel)
		h.mu.RLock()
		clients := h.clients[riderID]
		h.mu.RUnlock()
		for client := range clients {
			select {
			case client.Send <- []byte(msg.Payload):
			default:
			}
		}
	}
}

func redisChannel(riderID string) string {
	return "ride:" + riderID + ":live"
}

func riderIDFromChannel(ch string) string {
	// ride:{rider}:live
	const prefix = "ride:"
	const suffix = ":live"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
