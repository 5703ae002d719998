package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/hex-conquest/api/internal/auth"
	"github.com/freeeve/hex-conquest/api/internal/service"
	"github.com/freeeve/hex-conquest/api/pkg/conquest"
)

// IntentHandler handles intent submission and ready endpoints.
type IntentHandler struct {
	intentSvc *service.IntentService
	turnSvc   *service.TurnService
	hub       *Hub
}

// NewIntentHandler creates an IntentHandler.
func NewIntentHandler(intentSvc *service.IntentService, turnSvc *service.TurnService, hub *Hub) *IntentHandler {
	return &IntentHandler{intentSvc: intentSvc, turnSvc: turnSvc, hub: hub}
}

// submit queues an intent for the caller and writes the receipt.
func (h *IntentHandler) submit(w http.ResponseWriter, r *http.Request, in conquest.Intent) {
	roomID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	receipt, err := h.intentSvc.Submit(r.Context(), roomID, userID, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, receipt)
}

// SubmitIntent handles POST /api/v1/rooms/{id}/intents
func (h *IntentHandler) SubmitIntent(w http.ResponseWriter, r *http.Request) {
	var in conquest.Intent
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.submit(w, r, in)
}

// ListIntents handles GET /api/v1/rooms/{id}/intents
func (h *IntentHandler) ListIntents(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	intents, err := h.intentSvc.ListOwn(r.Context(), roomID, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, intents)
}

// WithdrawIntent handles DELETE /api/v1/rooms/{id}/intents/{slot}
func (h *IntentHandler) WithdrawIntent(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	if err := h.intentSvc.Withdraw(r.Context(), roomID, userID, r.PathValue("slot")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}

func (h *IntentHandler) broadcastReady(roomID string, readyCount int64, totalNations int) {
	if h.hub == nil {
		return
	}
	h.hub.BroadcastToRoom(roomID, WSEvent{
		Type:   EventPlayerReady,
		RoomID: roomID,
		Data: map[string]any{
			"ready_count":   readyCount,
			"total_nations": totalNations,
		},
	})
}

// MarkReady handles POST /api/v1/rooms/{id}/ready
func (h *IntentHandler) MarkReady(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	readyCount, totalNations, err := h.intentSvc.MarkReady(r.Context(), roomID, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.broadcastReady(roomID, readyCount, totalNations)

	// The request context ends with the handler, so resolution gets its own.
	allReady := int(readyCount) >= totalNations
	if allReady && h.turnSvc != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := h.turnSvc.ResolveTurnEarly(ctx, roomID); err != nil {
				log.Error().Err(err).Str("roomId", roomID).Msg("Early resolution failed")
			}
		}()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ready_count":   readyCount,
		"total_nations": totalNations,
		"all_ready":     allReady,
	})
}

// UnmarkReady handles DELETE /api/v1/rooms/{id}/ready
func (h *IntentHandler) UnmarkReady(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	userID := auth.UserIDFromContext(r.Context())

	readyCount, totalNations, err := h.intentSvc.UnmarkReady(r.Context(), roomID, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	h.broadcastReady(roomID, readyCount, totalNations)

	writeJSON(w, http.StatusOK, map[string]any{
		"ready_count":   readyCount,
		"total_nations": totalNations,
	})
}
