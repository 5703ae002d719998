package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/hex-conquest/api/internal/auth"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = 54 * time.Second // Must be less than pongWait
	maxMsgSize  = 4096
	sendBufSize = 256
	checkWait   = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS handled by middleware
	},
}

// RoomWatcher decides who may subscribe to a room's events.
type RoomWatcher interface {
	CanWatch(ctx context.Context, roomID, userID string) (bool, error)
}

// WSHandler serves the event stream.
type WSHandler struct {
	hub     *Hub
	jwtMgr  *auth.JWTManager
	watcher RoomWatcher
}

// NewWSHandler creates a WSHandler. A nil watcher lets any player subscribe
// to any room.
func NewWSHandler(hub *Hub, jwtMgr *auth.JWTManager, watcher RoomWatcher) *WSHandler {
	return &WSHandler{hub: hub, jwtMgr: jwtMgr, watcher: watcher}
}

// ServeWS handles GET /api/v1/ws. Browsers cannot set headers on a websocket
// upgrade, so the access token may also come as ?token=.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.Authenticate(h.jwtMgr, r, true)
	if err != nil {
		auth.Unauthorized(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &WSConn{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufSize),
	}
	h.hub.Register(client)
	h.reply(client, "connected", "", nil)

	go h.writePump(client)
	go h.readPump(client)

	log.Info().Str("userId", userID).Int("total", h.hub.ConnectionCount()).Msg("WebSocket client connected")
}

// reply queues a message for one connection without blocking its reader.
func (h *WSHandler) reply(c *WSConn, typ, roomID string, data any) {
	if data == nil {
		data = map[string]any{}
	}
	msg, err := json.Marshal(WSEvent{Type: typ, RoomID: roomID, Data: data})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// handleMessage applies one client message. Unknown actions are ignored.
func (h *WSHandler) handleMessage(c *WSConn, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.RoomID == "" {
		return
	}

	switch msg.Action {
	case "subscribe":
		if h.watcher != nil {
			ctx, cancel := context.WithTimeout(context.Background(), checkWait)
			ok, err := h.watcher.CanWatch(ctx, msg.RoomID, c.userID)
			cancel()
			if err != nil || !ok {
				h.reply(c, "error", msg.RoomID, map[string]string{"error": "cannot watch room"})
				return
			}
		}
		h.hub.Subscribe(c, msg.RoomID)
		h.reply(c, "subscribed", msg.RoomID, nil)
	case "unsubscribe":
		h.hub.Unsubscribe(c, msg.RoomID)
		h.reply(c, "unsubscribed", msg.RoomID, nil)
	}
}

func (h *WSHandler) readPump(c *WSConn) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
		log.Info().Str("userId", c.userID).Msg("WebSocket client disconnected")
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("userId", c.userID).Msg("WebSocket unexpected close")
			}
			return
		}
		h.handleMessage(c, message)
	}
}

// writePump batches queued events into one frame per wakeup, one event per
// line.
func (h *WSHandler) writePump(c *WSConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			for n := len(c.send); n > 0; n-- {
				w.Write([]byte("\n"))
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
