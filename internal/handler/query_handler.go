package handler

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/freeeve/hex-conquest/api/internal/auth"
	"github.com/freeeve/hex-conquest/api/internal/model"
	"github.com/freeeve/hex-conquest/api/internal/service"
	"github.com/freeeve/hex-conquest/api/pkg/conquest"
)

// QueryHandler serves read-only views of a room.
type QueryHandler struct {
	intentSvc *service.IntentService
	turnSvc   *service.TurnService
}

// NewQueryHandler creates a QueryHandler.
func NewQueryHandler(intentSvc *service.IntentService, turnSvc *service.TurnService) *QueryHandler {
	return &QueryHandler{intentSvc: intentSvc, turnSvc: turnSvc}
}

// State handles GET /api/v1/rooms/{id}/state
func (h *QueryHandler) State(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	v, win, nation, err := h.intentSvc.View(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nation":   nation,
		"phase":    win.Phase,
		"turn":     win.Turn,
		"deadline": win.Deadline,
		"income":   v.Income(nation),
		"state":    v,
	})
}

// Troops handles GET /api/v1/rooms/{id}/troops?tile=q,r&owner=nation
// The owner defaults to the caller's nation.
func (h *QueryHandler) Troops(w http.ResponseWriter, r *http.Request) {
	tile := r.URL.Query().Get("tile")
	if _, err := conquest.ParseTileID(tile); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID := auth.UserIDFromContext(r.Context())
	v, _, nation, err := h.intentSvc.View(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		owner = nation
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tile":   tile,
		"owner":  owner,
		"troops": v.TroopsAt(tile, owner),
	})
}

// Reachable handles GET /api/v1/rooms/{id}/reachable?from=q,r&classes=infantry,cavalry
// Without classes the caller's troops on the origin tile decide the group.
func (h *QueryHandler) Reachable(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	if _, err := conquest.ParseTileID(from); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var classes []conquest.UnitClass
	if raw := r.URL.Query().Get("classes"); raw != "" {
		known := conquest.AllUnitClasses()
		for _, name := range strings.Split(raw, ",") {
			c := conquest.UnitClass(strings.TrimSpace(name))
			if !slices.Contains(known, c) {
				writeError(w, http.StatusBadRequest, "unknown unit class "+string(c))
				return
			}
			classes = append(classes, c)
		}
	}

	userID := auth.UserIDFromContext(r.Context())
	v, _, nation, err := h.intentSvc.View(r.Context(), r.PathValue("id"), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if classes == nil {
		classes = v.TroopsAt(from, nation).Classes()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from":    from,
		"classes": classes,
		"tiles":   v.ReachableFor(nation, from, classes),
	})
}

// News handles GET /api/v1/rooms/{id}/news?limit=n
func (h *QueryHandler) News(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.turnSvc.News(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeList(w, items)
}

// Turns handles GET /api/v1/rooms/{id}/turns. Full states are only
// included once the room is finished.
func (h *QueryHandler) Turns(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("id")
	room, err := h.intentSvc.RoomRepo().FindByID(r.Context(), roomID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if room == nil {
		writeError(w, http.StatusNotFound, "room not found")
		return
	}
	turns, err := h.turnSvc.History(r.Context(), roomID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if room.Status != model.RoomFinished {
		for i := range turns {
			turns[i].StateBefore = nil
			turns[i].StateAfter = nil
		}
	}
	writeList(w, turns)
}
