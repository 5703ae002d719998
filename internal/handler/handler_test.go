package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/freeeve/hex-conquest/api/internal/auth"
	"github.com/freeeve/hex-conquest/api/internal/model"
	"github.com/freeeve/hex-conquest/api/internal/repository"
	"github.com/freeeve/hex-conquest/api/internal/service"
	"github.com/freeeve/hex-conquest/api/pkg/conquest"
)

// --- Helpers ---

func reqWithUserID(method, path string, body string, userID string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	ctx := auth.WithUserID(req.Context(), userID)
	return req.WithContext(ctx)
}

type testEnv struct {
	roomRepo  *mockRoomRepo
	turnRepo  *mockTurnRepo
	newsRepo  *mockNewsRepo
	cache     *mockCache
	hub       *Hub
	roomSvc   *service.RoomService
	intentSvc *service.IntentService
	turnSvc   *service.TurnService
}

func newTestEnv() *testEnv {
	e := &testEnv{
		roomRepo: newMockRoomRepo(),
		turnRepo: newMockTurnRepo(),
		newsRepo: newMockNewsRepo(),
		cache:    newMockCache(),
		hub:      NewHub(),
	}
	e.roomSvc = service.NewRoomService(e.roomRepo, e.turnRepo, newMockUserRepo(), e.cache, e.hub)
	e.intentSvc = service.NewIntentService(e.roomRepo, e.turnRepo, e.cache)
	e.turnSvc = service.NewTurnService(e.roomRepo, e.turnRepo, e.newsRepo, e.cache, e.hub)
	return e
}

// lobby creates a two-nation room with user-1 seated as aurel.
func (e *testEnv) lobby(t *testing.T) string {
	t.Helper()
	room, err := e.roomSvc.CreateRoom(context.Background(), "user-1",
		service.RoomOptions{Name: "Test", Nations: 2, Seed: 42, ActionDuration: "1h"})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return room.ID
}

// active starts a lobby with user-2 seated as brask.
func (e *testEnv) active(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	id := e.lobby(t)
	if _, err := e.roomSvc.JoinRoom(ctx, id, "user-2", "brask"); err != nil {
		t.Fatalf("join room: %v", err)
	}
	if _, err := e.roomSvc.StartRoom(ctx, id, "user-1", "passive"); err != nil {
		t.Fatalf("start room: %v", err)
	}
	return id
}

func (e *testEnv) state(t *testing.T, roomID string) *conquest.GameState {
	t.Helper()
	raw, _ := e.cache.GetRoomState(context.Background(), roomID)
	var gs conquest.GameState
	if err := json.Unmarshal(raw, &gs); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	return &gs
}

func roomReq(method, path, body, userID, roomID string) *http.Request {
	req := reqWithUserID(method, path, body, userID)
	req.SetPathValue("id", roomID)
	return req
}

// --- Error Mapping ---

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"room not found", service.ErrRoomNotFound, http.StatusNotFound},
		{"not in room", service.ErrNotInRoom, http.StatusForbidden},
		{"not creator", service.ErrNotCreator, http.StatusForbidden},
		{"not lobby", service.ErrRoomNotLobby, http.StatusConflict},
		{"nation taken", service.ErrNationTaken, http.StatusConflict},
		{"intake closed", repository.ErrIntakeClosed, http.StatusConflict},
		{"stale turn", fmt.Errorf("submit: %w", repository.ErrStaleTurn), http.StatusConflict},
		{"invalid intent", fmt.Errorf("%w: bad", service.ErrInvalidIntent), http.StatusBadRequest},
		{"validation", &conquest.ValidationError{Kind: conquest.IntentTax, Message: "rate"}, http.StatusBadRequest},
		{"room options", service.ErrInvalidRoomOptions, http.StatusBadRequest},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// --- User Handler Tests ---

func TestGetMe(t *testing.T) {
	repo := newMockUserRepo()
	repo.users["user-1"] = &model.User{
		ID:          "user-1",
		DisplayName: "Alice",
		Provider:    "google",
	}
	h := NewUserHandler(repo)

	req := reqWithUserID(http.MethodGet, "/users/me", "", "user-1")
	rec := httptest.NewRecorder()
	h.GetMe(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var user model.User
	json.Unmarshal(rec.Body.Bytes(), &user)
	if user.DisplayName != "Alice" {
		t.Errorf("expected Alice, got %s", user.DisplayName)
	}
}

func TestGetMeNotFound(t *testing.T) {
	h := NewUserHandler(newMockUserRepo())

	req := reqWithUserID(http.MethodGet, "/users/me", "", "nonexistent")
	rec := httptest.NewRecorder()
	h.GetMe(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestUpdateMe(t *testing.T) {
	repo := newMockUserRepo()
	repo.users["user-1"] = &model.User{ID: "user-1", DisplayName: "Alice"}
	h := NewUserHandler(repo)

	req := reqWithUserID(http.MethodPatch, "/users/me", `{"display_name":"Bob"}`, "user-1")
	rec := httptest.NewRecorder()
	h.UpdateMe(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var user model.User
	json.Unmarshal(rec.Body.Bytes(), &user)
	if user.DisplayName != "Bob" {
		t.Errorf("expected Bob, got %s", user.DisplayName)
	}
}

func TestUpdateMeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty name", `{"display_name":""}`},
		{"whitespace name", `{"display_name":"   "}`},
		{"too long", `{"display_name":"` + strings.Repeat("x", 33) + `"}`},
		{"invalid json", "not json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockUserRepo()
			repo.users["user-1"] = &model.User{ID: "user-1"}
			h := NewUserHandler(repo)

			req := reqWithUserID(http.MethodPatch, "/users/me", tt.body, "user-1")
			rec := httptest.NewRecorder()
			h.UpdateMe(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestGetUserIncludesRecord(t *testing.T) {
	repo := newMockUserRepo()
	repo.users["user-2"] = &model.User{ID: "user-2", DisplayName: "Cato"}
	repo.records["user-2"] = model.PlayerRecord{Played: 4, Won: 1, Active: 2}
	h := NewUserHandler(repo)

	req := reqWithUserID(http.MethodGet, "/users/user-2", "", "user-1")
	req.SetPathValue("id", "user-2")
	rec := httptest.NewRecorder()
	h.GetUser(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		DisplayName string             `json:"display_name"`
		Record      model.PlayerRecord `json:"record"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.DisplayName != "Cato" {
		t.Errorf("expected Cato, got %s", resp.DisplayName)
	}
	if resp.Record != (model.PlayerRecord{Played: 4, Won: 1, Active: 2}) {
		t.Errorf("unexpected record %+v", resp.Record)
	}
}

// --- Room Handler Tests ---

func TestCreateRoom(t *testing.T) {
	e := newTestEnv()
	h := NewRoomHandler(e.roomSvc, e.turnSvc)

	req := reqWithUserID(http.MethodPost, "/rooms", `{"name":"Test Room","nations":3,"nation":"brask"}`, "user-1")
	rec := httptest.NewRecorder()
	h.CreateRoom(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var room model.Room
	json.Unmarshal(rec.Body.Bytes(), &room)
	if room.Name != "Test Room" || room.NationCount != 3 {
		t.Errorf("unexpected room %+v", room)
	}
	if len(room.Players) != 1 || room.Players[0].Nation != "brask" {
		t.Errorf("expected the creator seated as brask, got %+v", room.Players)
	}
}

func TestCreateRoomRejectsBadOptions(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"name":""}`},
		{"too many nations", `{"name":"x","nations":40}`},
		{"unknown nation", `{"name":"x","nation":"atlantis"}`},
		{"invalid json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv()
			h := NewRoomHandler(e.roomSvc, e.turnSvc)

			rec := httptest.NewRecorder()
			h.CreateRoom(rec, reqWithUserID(http.MethodPost, "/rooms", tt.body, "user-1"))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestListRoomsEmpty(t *testing.T) {
	e := newTestEnv()
	h := NewRoomHandler(e.roomSvc, e.turnSvc)

	rec := httptest.NewRecorder()
	h.ListRooms(rec, reqWithUserID(http.MethodGet, "/rooms?filter=finished", "", "user-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected [], got %s", body)
	}
}

func TestGetRoomNotFound(t *testing.T) {
	e := newTestEnv()
	h := NewRoomHandler(e.roomSvc, e.turnSvc)

	rec := httptest.NewRecorder()
	h.GetRoom(rec, roomReq(http.MethodGet, "/rooms/nonexistent", "", "user-1", "nonexistent"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestJoinRoom(t *testing.T) {
	e := newTestEnv()
	h := NewRoomHandler(e.roomSvc, e.turnSvc)
	id := e.lobby(t)

	tests := []struct {
		name   string
		user   string
		body   string
		status int
	}{
		{"taken nation", "user-2", `{"nation":"aurel"}`, http.StatusConflict},
		{"free nation", "user-2", `{"nation":"brask"}`, http.StatusOK},
		{"already joined", "user-2", "", http.StatusConflict},
		{"room full", "user-3", "", http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.JoinRoom(rec, roomReq(http.MethodPost, "/rooms/"+id+"/join", tt.body, tt.user, id))
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestJoinRoomNotFound(t *testing.T) {
	e := newTestEnv()
	h := NewRoomHandler(e.roomSvc, e.turnSvc)

	rec := httptest.NewRecorder()
	h.JoinRoom(rec, roomReq(http.MethodPost, "/rooms/nonexistent/join", "", "user-1", "nonexistent"))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestStartRoom(t *testing.T) {
	e := newTestEnv()
	h := NewRoomHandler(e.roomSvc, nil)
	id := e.lobby(t)
	e.roomSvc.JoinRoom(context.Background(), id, "user-2", "")

	rec := httptest.NewRecorder()
	h.StartRoom(rec, roomReq(http.MethodPost, "/rooms/"+id+"/start", "", "user-2", id))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a non-creator, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.StartRoom(rec, roomReq(http.MethodPost, "/rooms/"+id+"/start", `{"bot_strategy":"passive"}`, "user-1", id))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var room model.Room
	json.Unmarshal(rec.Body.Bytes(), &room)
	if room.Status != model.RoomActive {
		t.Errorf("expected active room, got %s", room.Status)
	}

	rec = httptest.NewRecorder()
	h.StartRoom(rec, roomReq(http.MethodPost, "/rooms/"+id+"/start", "", "user-1", id))
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on a second start, got %d", rec.Code)
	}
}

func TestStopRoom(t *testing.T) {
	e := newTestEnv()
	h := NewRoomHandler(e.roomSvc, e.turnSvc)
	id := e.active(t)

	rec := httptest.NewRecorder()
	h.StopRoom(rec, roomReq(http.MethodPost, "/rooms/"+id+"/stop", "", "user-1", id))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if raw, _ := e.cache.GetRoomState(context.Background(), id); raw != nil {
		t.Error("expected live state to be cleared")
	}
}

func TestDeleteRoom(t *testing.T) {
	e := newTestEnv()
	h := NewRoomHandler(e.roomSvc, e.turnSvc)
	id := e.lobby(t)

	rec := httptest.NewRecorder()
	h.DeleteRoom(rec, roomReq(http.MethodDelete, "/rooms/"+id, "", "user-2", id))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.DeleteRoom(rec, roomReq(http.MethodDelete, "/rooms/"+id, "", "user-1", id))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rm, _ := e.roomRepo.FindByID(context.Background(), id); rm != nil {
		t.Error("expected room to be deleted")
	}
}

// --- Intent Handler Tests ---

func TestSubmitAndWithdrawIntent(t *testing.T) {
	e := newTestEnv()
	h := NewIntentHandler(e.intentSvc, nil, e.hub)
	id := e.active(t)
	capital := e.state(t, id).Nations["aurel"].Capital

	body := fmt.Sprintf(`{"kind":"tax","city":{"city":%q,"rate":25}}`, capital)
	rec := httptest.NewRecorder()
	h.SubmitIntent(rec, roomReq(http.MethodPost, "/rooms/"+id+"/intents", body, "user-1", id))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var receipt service.Receipt
	json.Unmarshal(rec.Body.Bytes(), &receipt)
	if receipt.Slot != "tax:"+capital || receipt.Turn != 1 {
		t.Errorf("unexpected receipt %+v", receipt)
	}

	rec = httptest.NewRecorder()
	h.ListIntents(rec, roomReq(http.MethodGet, "/rooms/"+id+"/intents", "", "user-1", id))
	var own []conquest.Intent
	json.Unmarshal(rec.Body.Bytes(), &own)
	if len(own) != 1 || own[0].Player != "aurel" {
		t.Fatalf("expected one aurel intent, got %+v", own)
	}

	req := roomReq(http.MethodDelete, "/rooms/"+id+"/intents/"+receipt.Slot, "", "user-1", id)
	req.SetPathValue("slot", receipt.Slot)
	rec = httptest.NewRecorder()
	h.WithdrawIntent(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ListIntents(rec, roomReq(http.MethodGet, "/rooms/"+id+"/intents", "", "user-1", id))
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected no queued intents, got %s", body)
	}
}

func TestSubmitIntentErrors(t *testing.T) {
	e := newTestEnv()
	h := NewIntentHandler(e.intentSvc, nil, e.hub)
	id := e.active(t)
	gs := e.state(t, id)
	ownCity := gs.Nations["aurel"].Capital
	foreignCity := gs.Nations["brask"].Capital

	tests := []struct {
		name   string
		user   string
		body   string
		status int
	}{
		{"bad json", "user-1", `{`, http.StatusBadRequest},
		{"unknown kind", "user-1", `{"kind":"teleport"}`, http.StatusBadRequest},
		{"missing payload", "user-1", `{"kind":"tax"}`, http.StatusBadRequest},
		{"foreign city", "user-1", fmt.Sprintf(`{"kind":"tax","city":{"city":%q,"rate":10}}`, foreignCity), http.StatusBadRequest},
		{"rate above cap", "user-1", fmt.Sprintf(`{"kind":"tax","city":{"city":%q,"rate":99}}`, ownCity), http.StatusBadRequest},
		{"not seated", "user-3", fmt.Sprintf(`{"kind":"tax","city":{"city":%q,"rate":10}}`, ownCity), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.SubmitIntent(rec, roomReq(http.MethodPost, "/rooms/"+id+"/intents", tt.body, tt.user, id))
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSubmitIntentWindowClosed(t *testing.T) {
	e := newTestEnv()
	h := NewIntentHandler(e.intentSvc, nil, e.hub)
	id := e.active(t)
	capital := e.state(t, id).Nations["aurel"].Capital
	if _, err := e.cache.DrainIntents(context.Background(), id, 1); err != nil {
		t.Fatalf("drain: %v", err)
	}

	body := fmt.Sprintf(`{"kind":"tax","city":{"city":%q,"rate":25}}`, capital)
	rec := httptest.NewRecorder()
	h.SubmitIntent(rec, roomReq(http.MethodPost, "/rooms/"+id+"/intents", body, "user-1", id))

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMarkAndUnmarkReady(t *testing.T) {
	e := newTestEnv()
	h := NewIntentHandler(e.intentSvc, nil, e.hub)
	id := e.active(t)

	rec := httptest.NewRecorder()
	h.MarkReady(rec, roomReq(http.MethodPost, "/rooms/"+id+"/ready", "", "user-1", id))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		ReadyCount   int  `json:"ready_count"`
		TotalNations int  `json:"total_nations"`
		AllReady     bool `json:"all_ready"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.ReadyCount != 1 || resp.TotalNations != 2 || resp.AllReady {
		t.Errorf("unexpected ready status %+v", resp)
	}

	rec = httptest.NewRecorder()
	h.UnmarkReady(rec, roomReq(http.MethodDelete, "/rooms/"+id+"/ready", "", "user-1", id))
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if rec.Code != http.StatusOK || resp.ReadyCount != 0 {
		t.Errorf("expected 0 ready after unmark, got %d (%d)", resp.ReadyCount, rec.Code)
	}
}

func TestDiplomacyAndRelations(t *testing.T) {
	e := newTestEnv()
	h := NewIntentHandler(e.intentSvc, nil, e.hub)
	id := e.active(t)

	rec := httptest.NewRecorder()
	h.Diplomacy(rec, roomReq(http.MethodPost, "/rooms/"+id+"/diplomacy", `{"target":"brask","action":"propose_friendship"}`, "user-1", id))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.Diplomacy(rec, roomReq(http.MethodPost, "/rooms/"+id+"/diplomacy", `{"target":"aurel","action":"declare_war"}`, "user-1", id))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a self-targeted action, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ListRelations(rec, roomReq(http.MethodGet, "/rooms/"+id+"/relations", "", "user-1", id))
	var rels []conquest.Relation
	json.Unmarshal(rec.Body.Bytes(), &rels)
	if rec.Code != http.StatusOK || len(rels) != 1 {
		t.Errorf("expected one relation, got %d (%d)", len(rels), rec.Code)
	}
}

func TestInteractionListsStartEmpty(t *testing.T) {
	e := newTestEnv()
	h := NewIntentHandler(e.intentSvc, nil, e.hub)
	id := e.active(t)

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"trades", h.ListTrades},
		{"automoves", h.ListAutoMoves},
		{"battlefields", h.ListBattlefields},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, roomReq(http.MethodGet, "/rooms/"+id+"/"+tt.name, "", "user-1", id))
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
				t.Errorf("expected [], got %s", body)
			}
		})
	}
}

func TestInteractionsOnUnknownTargets(t *testing.T) {
	e := newTestEnv()
	h := NewIntentHandler(e.intentSvc, nil, e.hub)
	id := e.active(t)

	tests := []struct {
		name    string
		handler http.HandlerFunc
		param   string
		body    string
	}{
		{"respond trade", h.RespondTrade, "tradeId", `{"action":"accept"}`},
		{"cancel automove", h.CancelAutoMove, "orderId", ""},
		{"resolve automove", h.ResolveAutoMove, "orderId", `{"choice":"cancel"}`},
		{"battlefield", h.BattlefieldAction, "battlefieldId", `{"action":"fight"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := roomReq(http.MethodPost, "/rooms/"+id, tt.body, "user-1", id)
			req.SetPathValue(tt.param, "missing")
			rec := httptest.NewRecorder()
			tt.handler(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

// --- Query Handler Tests ---

func TestStateView(t *testing.T) {
	e := newTestEnv()
	h := NewQueryHandler(e.intentSvc, e.turnSvc)
	id := e.active(t)

	rec := httptest.NewRecorder()
	h.State(rec, roomReq(http.MethodGet, "/rooms/"+id+"/state", "", "user-1", id))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Nation string             `json:"nation"`
		Phase  string             `json:"phase"`
		Turn   int                `json:"turn"`
		State  conquest.GameState `json:"state"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Nation != "aurel" || resp.Phase != "action" || resp.Turn != 1 {
		t.Errorf("unexpected view header %+v", resp)
	}
	if resp.State.Nations["brask"].Treasury.Gold != 0 {
		t.Error("expected brask's treasury to be hidden")
	}

	rec = httptest.NewRecorder()
	h.State(rec, roomReq(http.MethodGet, "/rooms/"+id+"/state", "", "user-3", id))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for an outsider, got %d", rec.Code)
	}
}

func TestTroopsAndReachable(t *testing.T) {
	e := newTestEnv()
	h := NewQueryHandler(e.intentSvc, e.turnSvc)
	id := e.active(t)
	gs := e.state(t, id)
	tile := gs.Cities[gs.Nations["aurel"].Capital].Tile

	tests := []struct {
		name    string
		handler http.HandlerFunc
		query   string
		status  int
	}{
		{"troops", h.Troops, "?tile=" + tile, http.StatusOK},
		{"troops bad tile", h.Troops, "?tile=nowhere", http.StatusBadRequest},
		{"reachable", h.Reachable, "?from=" + tile + "&classes=infantry", http.StatusOK},
		{"reachable own group", h.Reachable, "?from=" + tile, http.StatusOK},
		{"reachable unknown class", h.Reachable, "?from=" + tile + "&classes=dragon", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, roomReq(http.MethodGet, "/rooms/"+id+tt.query, "", "user-1", id))
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestTurnsHideStatesWhileActive(t *testing.T) {
	e := newTestEnv()
	h := NewQueryHandler(e.intentSvc, e.turnSvc)
	id := e.active(t)

	rec := httptest.NewRecorder()
	h.Turns(rec, roomReq(http.MethodGet, "/rooms/"+id+"/turns", "", "user-1", id))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `"state_before":{`) {
		t.Error("expected state_before to be withheld for an active room")
	}

	e.roomRepo.SetFinished(context.Background(), id, "")
	rec = httptest.NewRecorder()
	h.Turns(rec, roomReq(http.MethodGet, "/rooms/"+id+"/turns", "", "user-1", id))
	if !strings.Contains(rec.Body.String(), `"state_before":{`) {
		t.Error("expected state_before once the room is finished")
	}
}

func TestNewsEmpty(t *testing.T) {
	e := newTestEnv()
	h := NewQueryHandler(e.intentSvc, e.turnSvc)

	rec := httptest.NewRecorder()
	h.News(rec, roomReq(http.MethodGet, "/rooms/room-1/news", "", "user-1", "room-1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected [], got %s", body)
	}
}

// --- Auth Handler Tests ---

func TestRefreshTokenValid(t *testing.T) {
	jwtMgr := auth.NewJWTManager("test-secret")
	h := NewAuthHandler(nil, jwtMgr, newMockUserRepo())

	refresh, _ := jwtMgr.GenerateRefreshToken("user-1")
	body := fmt.Sprintf(`{"refresh_token":"%s"}`, refresh)
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.RefreshToken(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var tokens auth.TokenPair
	json.Unmarshal(rec.Body.Bytes(), &tokens)
	if tokens.AccessToken == "" {
		t.Error("expected non-empty access token")
	}
}

func TestRefreshTokenInvalid(t *testing.T) {
	jwtMgr := auth.NewJWTManager("test-secret")
	h := NewAuthHandler(nil, jwtMgr, newMockUserRepo())

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"invalid token", `{"refresh_token":"invalid"}`, http.StatusUnauthorized},
		{"bad body", "not json", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.RefreshToken(rec, req)
			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
		})
	}
}
