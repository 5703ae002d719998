package handler

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Event types sent over WebSocket.
const (
	EventTurnStarted    = "turn_started"
	EventTurnResolving  = "turn_resolving"
	EventPhaseChanged   = "phase_changed"
	EventBattleResult   = "battle_result"
	EventNews           = "news"
	EventResourceDelta  = "resource_delta"
	EventPlayerReady    = "player_ready"
	EventRoomStarted    = "room_started"
	EventRoomEnded      = "room_ended"
	EventRoomTerminated = "room_terminated"
)

// WSEvent is the envelope for all WebSocket messages.
type WSEvent struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	Data   any    `json:"data"`
}

// ClientMessage is the envelope for messages sent from the client.
type ClientMessage struct {
	Action string `json:"action"` // "subscribe" or "unsubscribe"
	RoomID string `json:"room_id"`
}

// WSConn is one player connection and its outbound queue.
type WSConn struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// Hub tracks connections and which rooms each one follows. A player may hold
// several connections, one per open tab.
type Hub struct {
	mu    sync.RWMutex
	conns map[*WSConn]map[string]bool // connection -> followed rooms
	rooms map[string]map[*WSConn]bool // roomID -> subscribers
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		conns: make(map[*WSConn]map[string]bool),
		rooms: make(map[string]map[*WSConn]bool),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = make(map[string]bool)
}

// Unregister drops a connection with all its subscriptions and closes its
// queue. Repeated calls are no-ops.
func (h *Hub) Unregister(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	followed, ok := h.conns[c]
	if !ok {
		return
	}
	delete(h.conns, c)
	for roomID := range followed {
		h.dropLocked(c, roomID)
	}
	close(c.send)
}

// Subscribe adds a registered connection to a room channel.
func (h *Hub) Subscribe(c *WSConn, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	followed, ok := h.conns[c]
	if !ok {
		return
	}
	followed[roomID] = true
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*WSConn]bool)
	}
	h.rooms[roomID][c] = true
}

// Unsubscribe removes a connection from a room channel.
func (h *Hub) Unsubscribe(c *WSConn, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if followed, ok := h.conns[c]; ok {
		delete(followed, roomID)
	}
	h.dropLocked(c, roomID)
}

func (h *Hub) dropLocked(c *WSConn, roomID string) {
	subs, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.rooms, roomID)
	}
}

// BroadcastToRoom sends an event to every subscriber of a room.
func (h *Hub) BroadcastToRoom(roomID string, event WSEvent) {
	h.deliver(roomID, event, func(*WSConn) bool { return true })
}

// SendToUser sends an event only to the given player's subscriptions to a
// room.
func (h *Hub) SendToUser(roomID, userID string, event WSEvent) {
	h.deliver(roomID, event, func(c *WSConn) bool { return c.userID == userID })
}

// deliver queues event for the matching subscribers. Slow subscribers drop
// events instead of blocking the room.
func (h *Hub) deliver(roomID string, event WSEvent, match func(*WSConn) bool) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("roomId", roomID).Str("event", event.Type).Msg("Failed to marshal WebSocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomID] {
		if !match(c) {
			continue
		}
		select {
		case c.send <- data:
		default:
			log.Warn().Str("userId", c.userID).Str("roomId", roomID).Str("event", event.Type).
				Msg("Dropping WebSocket message, buffer full")
		}
	}
}

// ConnectionCount returns the total number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// RoomSubscriberCount returns the number of connections subscribed to a room.
func (h *Hub) RoomSubscriberCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
