package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/freeeve/hex-conquest/api/internal/model"
	"github.com/freeeve/hex-conquest/api/internal/repository"
)

// Mocks are guarded by a mutex because the start and ready handlers hand
// work to background goroutines.

type mockRoomRepo struct {
	mu      sync.Mutex
	rooms   map[string]*model.Room
	players map[string][]model.RoomPlayer
}

func newMockRoomRepo() *mockRoomRepo {
	return &mockRoomRepo{
		rooms:   make(map[string]*model.Room),
		players: make(map[string][]model.RoomPlayer),
	}
}

func (m *mockRoomRepo) Create(_ context.Context, name, creatorID, actionDur string, seed int64, radius, nations int) (*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rm := &model.Room{
		ID:             fmt.Sprintf("room-%d", len(m.rooms)+1),
		Name:           name,
		CreatorID:      creatorID,
		Status:         model.RoomLobby,
		ActionDuration: actionDur,
		MapSeed:        seed,
		MapRadius:      radius,
		NationCount:    nations,
		CreatedAt:      time.Now(),
	}
	m.rooms[rm.ID] = rm
	cp := *rm
	return &cp, nil
}

func (m *mockRoomRepo) FindByID(_ context.Context, id string) (*model.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rm, ok := m.rooms[id]
	if !ok {
		return nil, nil
	}
	cp := *rm
	cp.Players = append([]model.RoomPlayer(nil), m.players[id]...)
	return &cp, nil
}

func (m *mockRoomRepo) list(match func(*model.Room) bool) []model.Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Room
	for _, rm := range m.rooms {
		if match(rm) {
			cp := *rm
			cp.Players = append([]model.RoomPlayer(nil), m.players[rm.ID]...)
			result = append(result, cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (m *mockRoomRepo) ListOpen(_ context.Context) ([]model.Room, error) {
	return m.list(func(rm *model.Room) bool { return rm.Status == model.RoomLobby }), nil
}

func (m *mockRoomRepo) ListByUser(_ context.Context, userID string) ([]model.Room, error) {
	return m.list(func(rm *model.Room) bool {
		if rm.CreatorID == userID {
			return true
		}
		for _, p := range m.players[rm.ID] {
			if p.UserID == userID {
				return true
			}
		}
		return false
	}), nil
}

func (m *mockRoomRepo) ListFinished(_ context.Context) ([]model.Room, error) {
	return m.list(func(rm *model.Room) bool { return rm.Status == model.RoomFinished }), nil
}

func (m *mockRoomRepo) ListActive(_ context.Context) ([]model.Room, error) {
	return m.list(func(rm *model.Room) bool { return rm.Status == model.RoomActive }), nil
}

func (m *mockRoomRepo) join(roomID string, p model.RoomPlayer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.players[roomID] {
		if existing.UserID == p.UserID {
			return
		}
	}
	p.RoomID = roomID
	p.JoinedAt = time.Now()
	m.players[roomID] = append(m.players[roomID], p)
}

func (m *mockRoomRepo) JoinRoom(_ context.Context, roomID, userID, nation string) error {
	m.join(roomID, model.RoomPlayer{UserID: userID, Nation: nation})
	return nil
}

func (m *mockRoomRepo) JoinRoomAsBot(_ context.Context, roomID, userID, nation, strategy string) error {
	m.join(roomID, model.RoomPlayer{UserID: userID, Nation: nation, IsBot: true, BotStrategy: strategy})
	return nil
}

func (m *mockRoomRepo) SetActive(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rm, ok := m.rooms[roomID]; ok {
		rm.Status = model.RoomActive
		now := time.Now()
		rm.StartedAt = &now
	}
	return nil
}

func (m *mockRoomRepo) SetFinished(_ context.Context, roomID, winner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rm, ok := m.rooms[roomID]; ok {
		rm.Status = model.RoomFinished
		rm.Winner = winner
		now := time.Now()
		rm.FinishedAt = &now
	}
	return nil
}

func (m *mockRoomRepo) Delete(_ context.Context, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
	delete(m.players, roomID)
	return nil
}

// mockUserRepo implements repository.UserRepository for testing.
type mockUserRepo struct {
	mu      sync.Mutex
	users   map[string]*model.User
	records map[string]model.PlayerRecord
	seq     int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User), records: make(map[string]model.PlayerRecord)}
}

func (m *mockUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return u, nil
}

func (m *mockUserRepo) FindByProviderID(_ context.Context, provider, providerID string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Provider == provider && u.ProviderID == providerID {
			return u, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) Upsert(_ context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Provider == provider && u.ProviderID == providerID {
			u.AvatarURL = avatarURL
			return u, nil
		}
	}
	m.seq++
	u := &model.User{
		ID:          fmt.Sprintf("bot-user-%d", m.seq),
		Provider:    provider,
		ProviderID:  providerID,
		DisplayName: displayName,
		AvatarURL:   avatarURL,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *mockUserRepo) UpdateDisplayName(_ context.Context, id, displayName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.DisplayName = displayName
	}
	return nil
}

func (m *mockUserRepo) Record(_ context.Context, id string) (*model.PlayerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok {
		return &r, nil
	}
	return &model.PlayerRecord{}, nil
}

type mockTurnRepo struct {
	mu      sync.Mutex
	turns   []*model.Turn
	intents map[string][]model.IntentRecord
}

func newMockTurnRepo() *mockTurnRepo {
	return &mockTurnRepo{intents: make(map[string][]model.IntentRecord)}
}

func (m *mockTurnRepo) CreateTurn(_ context.Context, roomID string, number int, stateBefore json.RawMessage, deadline time.Time) (*model.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &model.Turn{
		ID:          fmt.Sprintf("turn-%d", len(m.turns)+1),
		RoomID:      roomID,
		Number:      number,
		StateBefore: stateBefore,
		Deadline:    deadline,
		CreatedAt:   time.Now(),
	}
	m.turns = append(m.turns, t)
	cp := *t
	return &cp, nil
}

func (m *mockTurnRepo) CurrentTurn(_ context.Context, roomID string) (*model.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.turns) - 1; i >= 0; i-- {
		t := m.turns[i]
		if t.RoomID == roomID && t.ResolvedAt == nil {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockTurnRepo) ListTurns(_ context.Context, roomID string) ([]model.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Turn
	for _, t := range m.turns {
		if t.RoomID == roomID {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (m *mockTurnRepo) ResolveTurn(_ context.Context, turnID string, stateAfter, result json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.turns {
		if t.ID == turnID {
			t.StateAfter = stateAfter
			t.Result = result
			now := time.Now()
			t.ResolvedAt = &now
		}
	}
	return nil
}

func (m *mockTurnRepo) SaveIntents(_ context.Context, intents []model.IntentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, in := range intents {
		m.intents[in.TurnID] = append(m.intents[in.TurnID], in)
	}
	return nil
}

func (m *mockTurnRepo) IntentsByTurn(_ context.Context, turnID string) ([]model.IntentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.intents[turnID], nil
}

func (m *mockTurnRepo) ListExpired(_ context.Context) ([]model.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Turn
	for _, t := range m.turns {
		if t.ResolvedAt == nil && t.Deadline.Before(time.Now()) {
			result = append(result, *t)
		}
	}
	return result, nil
}

type mockNewsRepo struct {
	mu    sync.Mutex
	items map[string][]model.NewsRecord
}

func newMockNewsRepo() *mockNewsRepo {
	return &mockNewsRepo{items: make(map[string][]model.NewsRecord)}
}

func (m *mockNewsRepo) Append(_ context.Context, roomID string, items []model.NewsRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[roomID] = append(m.items[roomID], items...)
	return nil
}

func (m *mockNewsRepo) ListByRoom(_ context.Context, roomID string, limit int) ([]model.NewsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.items[roomID]
	var result []model.NewsRecord
	for i := len(all) - 1; i >= 0 && (limit <= 0 || len(result) < limit); i-- {
		result = append(result, all[i])
	}
	return result, nil
}

// mockCache implements repository.RoomCache with the same window rules as
// the Redis scripts.
type mockCache struct {
	mu      sync.Mutex
	states  map[string]json.RawMessage
	windows map[string]model.TurnWindow
	intents map[string]map[string]json.RawMessage // roomID -> "nation|slot" -> payload
	ready   map[string]map[string]bool
	timers  map[string]time.Time
}

func newMockCache() *mockCache {
	return &mockCache{
		states:  make(map[string]json.RawMessage),
		windows: make(map[string]model.TurnWindow),
		intents: make(map[string]map[string]json.RawMessage),
		ready:   make(map[string]map[string]bool),
		timers:  make(map[string]time.Time),
	}
}

func (c *mockCache) SetRoomState(_ context.Context, roomID string, state json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[roomID] = state
	return nil
}

func (c *mockCache) GetRoomState(_ context.Context, roomID string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[roomID], nil
}

func (c *mockCache) OpenTurn(_ context.Context, roomID string, turn int, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.windows[roomID] = model.TurnWindow{Phase: "action", Turn: turn, Deadline: deadline}
	c.timers[roomID] = deadline
	return nil
}

func (c *mockCache) Window(_ context.Context, roomID string) (*model.TurnWindow, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.windows[roomID]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (c *mockCache) write(roomID string, turn int, field string, payload json.RawMessage, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.windows[roomID]
	if !ok || w.Phase != "action" {
		return repository.ErrIntakeClosed
	}
	if w.Turn != turn {
		return repository.ErrStaleTurn
	}
	if !now.Before(w.Deadline) {
		return repository.ErrIntakeClosed
	}
	if c.intents[roomID] == nil {
		c.intents[roomID] = make(map[string]json.RawMessage)
	}
	if payload == nil {
		delete(c.intents[roomID], field)
	} else {
		c.intents[roomID][field] = payload
	}
	return nil
}

func (c *mockCache) SubmitIntent(_ context.Context, roomID string, turn int, nation, slot string, payload json.RawMessage, now time.Time) error {
	if len(payload) == 0 {
		return fmt.Errorf("submit intent: empty payload")
	}
	return c.write(roomID, turn, repository.IntentField(nation, slot), payload, now)
}

func (c *mockCache) WithdrawIntent(_ context.Context, roomID string, turn int, nation, slot string) error {
	return c.write(roomID, turn, repository.IntentField(nation, slot), nil, time.Now())
}

func (c *mockCache) NationIntents(_ context.Context, roomID string, _ int, nation string) (map[string]json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]json.RawMessage)
	for field, payload := range c.intents[roomID] {
		if n, slot, ok := repository.SplitIntentField(field); ok && n == nation {
			out[slot] = payload
		}
	}
	return out, nil
}

func (c *mockCache) DrainIntents(_ context.Context, roomID string, turn int) (map[string]json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.windows[roomID]
	if !ok || w.Turn != turn {
		return nil, repository.ErrStaleTurn
	}
	w.Phase = "resolution"
	c.windows[roomID] = w
	out := c.intents[roomID]
	delete(c.intents, roomID)
	if out == nil {
		out = make(map[string]json.RawMessage)
	}
	return out, nil
}

func (c *mockCache) MarkReady(_ context.Context, roomID, nation string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ready[roomID] == nil {
		c.ready[roomID] = make(map[string]bool)
	}
	c.ready[roomID][nation] = true
	return nil
}

func (c *mockCache) UnmarkReady(_ context.Context, roomID, nation string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ready[roomID], nation)
	return nil
}

func (c *mockCache) ReadyCount(_ context.Context, roomID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.ready[roomID])), nil
}

func (c *mockCache) ReadyNations(_ context.Context, roomID string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var result []string
	for nation := range c.ready[roomID] {
		result = append(result, nation)
	}
	sort.Strings(result)
	return result, nil
}

func (c *mockCache) SetTimer(_ context.Context, roomID string, deadline time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers[roomID] = deadline
	return nil
}

func (c *mockCache) ClearTimer(_ context.Context, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.timers, roomID)
	return nil
}

func (c *mockCache) ClearTurnData(_ context.Context, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ready, roomID)
	delete(c.timers, roomID)
	return nil
}

func (c *mockCache) DeleteRoomData(_ context.Context, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, roomID)
	delete(c.windows, roomID)
	delete(c.intents, roomID)
	delete(c.ready, roomID)
	delete(c.timers, roomID)
	return nil
}
