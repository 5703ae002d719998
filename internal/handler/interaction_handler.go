package handler

import (
	"net/http"

	"github.com/freeeve/hex-conquest/api/internal/auth"
	"github.com/freeeve/hex-conquest/api/pkg/conquest"
)

// Typed endpoints for the negotiated and multi-turn interactions. Each one
// builds an intent and goes through the same queue as POST /intents.

// view loads the caller's view of a room, writing the error response itself.
func (h *IntentHandler) view(w http.ResponseWriter, r *http.Request) (*conquest.GameState, string, bool) {
	userID := auth.UserIDFromContext(r.Context())
	v, _, nation, err := h.intentSvc.View(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return nil, "", false
	}
	return v, nation, true
}

// ListRelations handles GET /api/v1/rooms/{id}/relations
func (h *IntentHandler) ListRelations(w http.ResponseWriter, r *http.Request) {
	v, nation, ok := h.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, v.RelationsOf(nation))
}

// Diplomacy handles POST /api/v1/rooms/{id}/diplomacy
func (h *IntentHandler) Diplomacy(w http.ResponseWriter, r *http.Request) {
	var req conquest.DiplomacyPayload
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.submit(w, r, conquest.Intent{Kind: conquest.IntentDiplomacy, Diplomacy: &req})
}

// ListTrades handles GET /api/v1/rooms/{id}/trades
func (h *IntentHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	v, nation, ok := h.view(w, r)
	if !ok {
		return
	}
	trades := v.TradesOf(nation)
	writeList(w, trades)
}

// ProposeTrade handles POST /api/v1/rooms/{id}/trades
func (h *IntentHandler) ProposeTrade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Responder string          `json:"responder"`
		Offer     conquest.Bundle `json:"offer"`
		Request   conquest.Bundle `json:"request"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.submit(w, r, conquest.Intent{
		Kind: conquest.IntentTradePropose,
		Trade: &conquest.TradePayload{
			Responder: req.Responder,
			Offer:     req.Offer,
			Request:   req.Request,
		},
	})
}

// RespondTrade handles POST /api/v1/rooms/{id}/trades/{tradeId}
func (h *IntentHandler) RespondTrade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action       conquest.TradeAction `json:"action"`
		CounterOffer *conquest.Bundle     `json:"counter_offer,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.submit(w, r, conquest.Intent{
		Kind: conquest.IntentTradeRespond,
		Trade: &conquest.TradePayload{
			TradeID:      r.PathValue("tradeId"),
			Action:       req.Action,
			CounterOffer: req.CounterOffer,
		},
	})
}

// ListAutoMoves handles GET /api/v1/rooms/{id}/automoves
func (h *IntentHandler) ListAutoMoves(w http.ResponseWriter, r *http.Request) {
	v, nation, ok := h.view(w, r)
	if !ok {
		return
	}
	orders := v.AutoMovesOf(nation)
	writeList(w, orders)
}

// CreateAutoMove handles POST /api/v1/rooms/{id}/automoves
func (h *IntentHandler) CreateAutoMove(w http.ResponseWriter, r *http.Request) {
	var req conquest.AutoMovePayload
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.OrderID = ""
	req.Choice = ""
	h.submit(w, r, conquest.Intent{Kind: conquest.IntentAutoMove, AutoMove: &req})
}

// CancelAutoMove handles DELETE /api/v1/rooms/{id}/automoves/{orderId}
func (h *IntentHandler) CancelAutoMove(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, conquest.Intent{
		Kind:     conquest.IntentAutoMoveCancel,
		AutoMove: &conquest.AutoMovePayload{OrderID: r.PathValue("orderId")},
	})
}

// ResolveAutoMove handles POST /api/v1/rooms/{id}/automoves/{orderId}/resolve
func (h *IntentHandler) ResolveAutoMove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Choice   conquest.AutoMoveChoice `json:"choice"`
		Strategy string                  `json:"strategy,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.submit(w, r, conquest.Intent{
		Kind: conquest.IntentAutoMoveResolve,
		AutoMove: &conquest.AutoMovePayload{
			OrderID:  r.PathValue("orderId"),
			Choice:   req.Choice,
			Strategy: req.Strategy,
		},
	})
}

// ListBattlefields handles GET /api/v1/rooms/{id}/battlefields
func (h *IntentHandler) ListBattlefields(w http.ResponseWriter, r *http.Request) {
	v, nation, ok := h.view(w, r)
	if !ok {
		return
	}
	fields := v.BattlefieldsOf(nation)
	writeList(w, fields)
}

// BattlefieldAction handles POST /api/v1/rooms/{id}/battlefields/{battlefieldId}
func (h *IntentHandler) BattlefieldAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action   conquest.BattleAction `json:"action"`
		Strategy string                `json:"strategy,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.submit(w, r, conquest.Intent{
		Kind: conquest.IntentBattlefield,
		Battlefield: &conquest.BattlefieldPayload{
			BattlefieldID: r.PathValue("battlefieldId"),
			Action:        req.Action,
			Strategy:      req.Strategy,
		},
	})
}
