package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/hex-conquest/api/internal/auth"
	"github.com/freeeve/hex-conquest/api/internal/model"
	"github.com/freeeve/hex-conquest/api/internal/service"
)

// RoomHandler handles the room lifecycle endpoints.
type RoomHandler struct {
	roomSvc *service.RoomService
	turnSvc *service.TurnService
}

// NewRoomHandler creates a RoomHandler.
func NewRoomHandler(roomSvc *service.RoomService, turnSvc *service.TurnService) *RoomHandler {
	return &RoomHandler{roomSvc: roomSvc, turnSvc: turnSvc}
}

// CreateRoom handles POST /api/v1/rooms
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	var opts service.RoomOptions
	if err := decodeJSON(r, &opts); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	room, err := h.roomSvc.CreateRoom(r.Context(), userID, opts)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// ListRooms handles GET /api/v1/rooms?filter=open|my|finished
func (h *RoomHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	rooms, err := h.roomSvc.ListRooms(r.Context(), userID, r.URL.Query().Get("filter"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, rooms)
}

// GetRoom handles GET /api/v1/rooms/{id}
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	room, err := h.roomSvc.GetRoom(r.Context(), roomID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if room.Status == model.RoomActive && h.turnSvc != nil {
		if count, err := h.turnSvc.ReadyCount(r.Context(), roomID); err == nil {
			room.ReadyCount = count
		}
	}
	writeJSON(w, http.StatusOK, room)
}

// JoinRoom handles POST /api/v1/rooms/{id}/join. The body may name a nation.
func (h *RoomHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())
	var req struct {
		Nation string `json:"nation,omitempty"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	room, err := h.roomSvc.JoinRoom(r.Context(), roomID, userID, req.Nation)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// StartRoom handles POST /api/v1/rooms/{id}/start
func (h *RoomHandler) StartRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())
	var req struct {
		BotStrategy string `json:"bot_strategy,omitempty"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	room, err := h.roomSvc.StartRoom(r.Context(), roomID, userID, req.BotStrategy)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// Bots queue their first turn in the background.
	if h.turnSvc != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := h.turnSvc.SubmitBotIntents(ctx, roomID); err != nil {
				log.Error().Err(err).Str("roomId", roomID).Msg("Failed to submit bot intents after room start")
			}
		}()
	}

	writeJSON(w, http.StatusOK, room)
}

// StopRoom handles POST /api/v1/rooms/{id}/stop
func (h *RoomHandler) StopRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	room, err := h.roomSvc.StopRoom(r.Context(), roomID, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if h.turnSvc != nil {
		if err := h.turnSvc.CleanupStoppedRoom(r.Context(), roomID); err != nil {
			log.Error().Err(err).Str("roomId", roomID).Msg("Failed to cleanup stopped room")
		}
	}
	writeJSON(w, http.StatusOK, room)
}

// DeleteRoom handles DELETE /api/v1/rooms/{id}
func (h *RoomHandler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	if err := h.roomSvc.DeleteRoom(r.Context(), roomID, userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
