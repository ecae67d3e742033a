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

// Events pushed to gate dashboards.
const (
	EventCheckedIn = "checked_in"
	EventViewers   = "viewers"
)

// Hub maintains session_id -> set of dashboard connections and broadcasts gate events.
// Uses Redis pub/sub for horizontal scaling: a scan handled by one instance reaches
// dashboards connected to any instance.
type Hub struct {
	// sessionID -> map[clientID]*Client
	sessions map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per session
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishSessionEvent(sessionID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to session channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeSession(sessionID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. redisPub and redisSub may be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		sessions: make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to a session room. Starts Redis subscription for this session if first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.sessions[c.SessionID] == nil {
		h.sessions[c.SessionID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeSession(c.SessionID, func(event string, payload []byte) {
				h.BroadcastToSession(c.SessionID, event, json.RawMessage(payload))
			})
			if err != nil {
				h.logger.Warn("session subscription failed", zap.Error(err), zap.String("session_id", c.SessionID.String()))
			} else {
				h.subs[c.SessionID] = cancel
			}
		}
	}
	h.sessions[c.SessionID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("dashboard joined session", zap.String("client_id", c.ID), zap.String("session_id", c.SessionID.String()), zap.String("staff_id", c.StaffID))
}

// Unregister removes a client from a session room. Cancels Redis subscription when last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.sessions[c.SessionID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.sessions, c.SessionID)
			if cancel, ok := h.subs[c.SessionID]; ok {
				cancel()
				delete(h.subs, c.SessionID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("dashboard left session", zap.String("client_id", c.ID), zap.String("session_id", c.SessionID.String()))
}

// BroadcastToSession sends a message to all clients watching a session (local only).
func (h *Hub) BroadcastToSession(sessionID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			h.logger.Warn("marshal broadcast payload failed", zap.Error(err), zap.String("event", event))
			return
		}
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.sessions[sessionID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// PublishToSessionOnly publishes to Redis only (no local broadcast), so the Redis
// subscriber callback delivers once to every instance including this one. Without Redis
// it falls back to a local broadcast.
func (h *Hub) PublishToSessionOnly(sessionID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.redis != nil {
		if err := h.redis.PublishSessionEvent(sessionID, event, data); err != nil {
			h.logger.Warn("publish session event failed, broadcasting locally", zap.Error(err))
			h.BroadcastToSession(sessionID, event, json.RawMessage(data))
		}
		return
	}
	h.BroadcastToSession(sessionID, event, json.RawMessage(data))
}

// ViewerCount returns the number of dashboards watching a session on this instance.
func (h *Hub) ViewerCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}
