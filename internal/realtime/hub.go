package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat (seconds).
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains event_id -> set of watching connections and broadcasts seat
// updates. With a Redis bridge every instance receives every update.
type Hub struct {
	rooms    map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per event
	pending  map[uuid.UUID]bool   // subscription in flight
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    Publisher
	redisSub Subscriber
}

// Publisher publishes an update to other instances.
type Publisher interface {
	PublishEventUpdate(eventID uuid.UUID, kind string, payload []byte) error
}

// Subscriber subscribes to an event's updates from other instances.
type Subscriber interface {
	SubscribeEvent(eventID uuid.UUID, handler func(kind string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a hub. pub and sub may be nil for a single instance.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		pending:  make(map[uuid.UUID]bool),
		logger:   logger,
		redis:    pub,
		redisSub: sub,
	}
}

// Register adds a client to an event room. The first local watcher of an
// event subscribes to its Redis channel; the subscription is made outside
// the lock so broadcasts for other events never wait on Redis.
func (h *Hub) Register(c *Client) {
	eventID := c.EventID
	h.mu.Lock()
	room := h.rooms[eventID]
	if room == nil {
		room = make(map[string]*Client)
		h.rooms[eventID] = room
	}
	room[c.ID] = c
	subscribe := h.redisSub != nil && h.subs[eventID] == nil && !h.pending[eventID]
	if subscribe {
		h.pending[eventID] = true
	}
	h.mu.Unlock()
	h.logger.Debug("seat watcher joined", zap.String("client_id", c.ID), zap.String("event_id", eventID.String()))

	if subscribe {
		h.subscribe(eventID)
	}
}

func (h *Hub) subscribe(eventID uuid.UUID) {
	cancel, err := h.redisSub.SubscribeEvent(eventID, func(kind string, payload []byte) {
		h.Broadcast(eventID, kind, json.RawMessage(payload))
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, eventID)
	if err != nil {
		h.logger.Warn("seat feed subscribe failed", zap.String("event_id", eventID.String()), zap.Error(err))
		return
	}
	if len(h.rooms[eventID]) == 0 {
		// Every watcher left while subscribing.
		cancel()
		return
	}
	h.subs[eventID] = cancel
}

// Unregister removes a client and drops the Redis subscription with the last one.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.rooms[c.EventID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, c.EventID)
			if cancel, ok := h.subs[c.EventID]; ok {
				cancel()
				delete(h.subs, c.EventID)
			}
		}
	}
	h.logger.Debug("seat watcher left", zap.String("client_id", c.ID), zap.String("event_id", c.EventID.String()))
}

// Broadcast sends a message to the local watchers of an event. Slow clients
// with a full buffer miss the update.
func (h *Hub) Broadcast(eventID uuid.UUID, kind string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			h.logger.Warn("seat feed marshal", zap.Error(err))
			return
		}
	}
	msg := WSMessage{Event: kind, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[eventID] {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// Publish delivers an update to watchers on every instance. With Redis the
// subscriber callback does the local broadcast, so it happens exactly once.
func (h *Hub) Publish(eventID uuid.UUID, kind string, payload interface{}) error {
	if h.redis == nil {
		h.Broadcast(eventID, kind, payload)
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return h.redis.PublishEventUpdate(eventID, kind, data)
}

// Watchers returns the number of local connections watching an event.
func (h *Hub) Watchers(eventID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[eventID])
}

// Close cancels every Redis subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, cancel := range h.subs {
		cancel()
		delete(h.subs, id)
	}
}
