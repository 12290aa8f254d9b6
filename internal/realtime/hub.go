package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains collection_id -> set of connections and broadcasts messages.
// Uses Redis pub/sub for horizontal scaling: local broadcast + publish to Redis.
type Hub struct {
	// collectionID -> map[clientID]*Client
	rooms    map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per room
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishCollectionEvent(collectionID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to collection channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeCollection(collectionID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		rooms:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to a collection room. Starts the Redis
// subscription for the room if this is its first client, and announces
// the new viewer count.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.CollectionID] == nil {
		h.rooms[c.CollectionID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeCollection(c.CollectionID, func(event string, payload []byte) {
				h.BroadcastToCollection(c.CollectionID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.CollectionID] = cancel
			}
		}
	}
	h.rooms[c.CollectionID][c.ID] = c
	count := len(h.rooms[c.CollectionID])
	h.mu.Unlock()

	h.BroadcastToCollectionAndPublish(c.CollectionID, "viewer_count", map[string]int{"count": count})
	h.logger.Debug("client joined collection", zap.String("client_id", c.ID), zap.String("collection_id", c.CollectionID.String()))
}

// Unregister removes a client from a collection room. Cancels the Redis
// subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	var count int
	var present bool
	if m, ok := h.rooms[c.CollectionID]; ok {
		_, present = m[c.ID]
		delete(m, c.ID)
		count = len(m)
		if count == 0 {
			delete(h.rooms, c.CollectionID)
			if cancel, ok := h.subs[c.CollectionID]; ok {
				cancel()
				delete(h.subs, c.CollectionID)
			}
		}
	}
	h.mu.Unlock()

	if present && count > 0 {
		h.BroadcastToCollectionAndPublish(c.CollectionID, "viewer_count", map[string]int{"count": count})
	}
	h.logger.Debug("client left collection", zap.String("client_id", c.ID), zap.String("collection_id", c.CollectionID.String()))
}

// BroadcastToCollection sends a message to all clients in a room (local only).
func (h *Hub) BroadcastToCollection(collectionID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.rooms[collectionID]
	h.mu.RUnlock()

	if clients == nil {
		return
	}
	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// BroadcastToCollectionAndPublish sends to local clients and publishes to
// Redis for other instances.
func (h *Hub) BroadcastToCollectionAndPublish(collectionID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.BroadcastToCollection(collectionID, event, payload)
	if h.redis != nil {
		_ = h.redis.PublishCollectionEvent(collectionID, event, data)
	}
}

// PublishToCollectionOnly publishes to Redis without a local broadcast;
// the subscriber callback then delivers once on every instance, this one
// included. Mutation events go through here so local clients never see
// them twice. Without Redis it degrades to a plain local broadcast.
func (h *Hub) PublishToCollectionOnly(collectionID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.redis != nil {
		_ = h.redis.PublishCollectionEvent(collectionID, event, data)
		return
	}
	h.BroadcastToCollection(collectionID, event, payload)
}

// ViewerCount returns the number of connected clients in a room on this
// instance.
func (h *Hub) ViewerCount(collectionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[collectionID])
}
