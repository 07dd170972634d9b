package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Publisher forwards room events to other server instances.
type Publisher interface {
	PublishRoomEvent(roomID uuid.UUID, event string, payload []byte) error
}

// Subscriber delivers room events published by any instance, this one included.
type Subscriber interface {
	SubscribeRoom(roomID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub keeps one room of live connections per event and fans messages out to them.
// With a Publisher configured every broadcast goes through Redis, so each instance
// delivers it exactly once to its own clients. Rooms without a working subscription
// are served locally.
type Hub struct {
	rooms   map[uuid.UUID]map[string]*Client
	subs    map[uuid.UUID]func()
	pending map[uuid.UUID]bool
	mu      sync.RWMutex
	logger  *zap.Logger
	pub     Publisher
	sub     Subscriber
}

// NewHub creates a hub. pub and sub may be nil for a single-instance deployment.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	return &Hub{
		rooms:   make(map[uuid.UUID]map[string]*Client),
		subs:    make(map[uuid.UUID]func()),
		pending: make(map[uuid.UUID]bool),
		logger:  logger,
		pub:     pub,
		sub:     sub,
	}
}

// Register adds c to its room. A room without a subscription is (re)subscribed, so a
// failed attempt is retried by the next client that joins.
func (h *Hub) Register(c *Client) {
	roomID := c.RoomID
	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*Client)
	}
	h.rooms[roomID][c.ID] = c
	subscribe := h.sub != nil && h.subs[roomID] == nil && !h.pending[roomID]
	if subscribe {
		h.pending[roomID] = true
	}
	h.mu.Unlock()
	h.logger.Debug("client joined room", zap.String("client_id", c.ID), zap.String("room_id", roomID.String()))

	if subscribe {
		h.subscribe(roomID)
	}
}

// subscribe runs outside h.mu since SubscribeRoom blocks on Redis.
func (h *Hub) subscribe(roomID uuid.UUID) {
	cancel, err := h.sub.SubscribeRoom(roomID, func(event string, payload []byte) {
		h.deliver(roomID, event, payload)
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pending, roomID)
	if err != nil {
		h.logger.Warn("room subscribe failed, delivering locally", zap.String("room_id", roomID.String()), zap.Error(err))
		return
	}
	if len(h.rooms[roomID]) == 0 {
		// everyone left while subscribing
		cancel()
		return
	}
	h.subs[roomID] = cancel
}

// Unregister removes c and closes its send channel. The room subscription ends with its last client.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.RoomID]
	if !ok {
		return
	}
	if _, ok := room[c.ID]; !ok {
		return
	}
	delete(room, c.ID)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.RoomID)
		if cancel, ok := h.subs[c.RoomID]; ok {
			cancel()
			delete(h.subs, c.RoomID)
		}
	}
	h.logger.Debug("client left room", zap.String("client_id", c.ID), zap.String("room_id", c.RoomID.String()))
}

// Broadcast sends event with payload to every client in the room, across instances when Redis is configured.
func (h *Hub) Broadcast(roomID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshal room event", zap.String("event", event), zap.Error(err))
		return
	}
	if h.pub == nil {
		h.deliver(roomID, event, data)
		return
	}

	h.mu.RLock()
	subscribed := h.subs[roomID] != nil
	h.mu.RUnlock()

	if err := h.pub.PublishRoomEvent(roomID, event, data); err != nil {
		h.logger.Warn("room publish failed, delivering locally", zap.String("room_id", roomID.String()), zap.Error(err))
		h.deliver(roomID, event, data)
		return
	}
	if !subscribed {
		h.deliver(roomID, event, data)
	}
}

// deliver writes to local clients only. Slow clients with a full buffer miss the message.
func (h *Hub) deliver(roomID uuid.UUID, event string, data []byte) {
	msg := Message{Event: event, Data: data}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[roomID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("client buffer full", zap.String("client_id", c.ID))
		}
	}
}

// RoomSize returns the number of local clients in a room.
func (h *Hub) RoomSize(roomID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
