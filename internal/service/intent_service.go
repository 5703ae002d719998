package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/freeeve/hex-conquest/api/internal/model"
	"github.com/freeeve/hex-conquest/api/internal/repository"
	"github.com/freeeve/hex-conquest/api/pkg/conquest"
)

var (
	ErrNoActiveTurn  = errors.New("no active turn")
	ErrInvalidIntent = errors.New("invalid intent")
)

// Receipt acknowledges a queued intent. Projection is the current view of
// the resource the intent acts on.
type Receipt struct {
	ID         string              `json:"id"`
	Kind       conquest.IntentKind `json:"kind"`
	Slot       string              `json:"slot"`
	Turn       int                 `json:"turn"`
	Deadline   time.Time           `json:"deadline"`
	Projection any                 `json:"projection,omitempty"`
}

// IntentService validates player intents against the current snapshot and
// queues them for the next resolution.
type IntentService struct {
	roomRepo repository.RoomRepository
	turnRepo repository.TurnRepository
	cache    repository.RoomCache
}

// NewIntentService creates an IntentService.
func NewIntentService(roomRepo repository.RoomRepository, turnRepo repository.TurnRepository, cache repository.RoomCache) *IntentService {
	return &IntentService{roomRepo: roomRepo, turnRepo: turnRepo, cache: cache}
}

// RoomRepo returns the room repository for use by handlers.
func (s *IntentService) RoomRepo() repository.RoomRepository {
	return s.roomRepo
}

// seat loads an active room and the caller's nation in it.
func (s *IntentService) seat(ctx context.Context, roomID, userID string) (*model.Room, string, error) {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return nil, "", err
	}
	if room == nil {
		return nil, "", ErrRoomNotFound
	}
	nation := seatOf(room, userID)
	if nation == "" {
		return nil, "", ErrNotInRoom
	}
	if room.Status != model.RoomActive {
		return nil, "", ErrRoomNotActive
	}
	return room, nation, nil
}

// loadState returns the live state of a room, falling back to the current
// turn's opening state when the cache is empty.
func loadState(ctx context.Context, cache repository.RoomCache, turns repository.TurnRepository, roomID string) (*conquest.GameState, error) {
	raw, err := cache.GetRoomState(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		turn, err := turns.CurrentTurn(ctx, roomID)
		if err != nil {
			return nil, err
		}
		if turn == nil {
			return nil, ErrNoActiveTurn
		}
		raw = turn.StateBefore
	}
	var gs conquest.GameState
	if err := json.Unmarshal(raw, &gs); err != nil {
		return nil, fmt.Errorf("unmarshal room state: %w", err)
	}
	return &gs, nil
}

// snapshot returns the room state and its open window.
func (s *IntentService) snapshot(ctx context.Context, roomID string) (*conquest.GameState, *model.TurnWindow, error) {
	win, err := s.cache.Window(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	if win == nil {
		return nil, nil, ErrNoActiveTurn
	}
	gs, err := loadState(ctx, s.cache, s.turnRepo, roomID)
	if err != nil {
		return nil, nil, err
	}
	return gs, win, nil
}

// Submit validates an intent for the caller's nation and queues it in its
// slot, replacing an earlier intent in the same slot.
func (s *IntentService) Submit(ctx context.Context, roomID, userID string, in conquest.Intent) (*Receipt, error) {
	_, nation, err := s.seat(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	gs, win, err := s.snapshot(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if win.Phase != "action" {
		return nil, repository.ErrIntakeClosed
	}

	in.ID = uuid.NewString()
	in.Player = nation
	in.Turn = win.Turn
	if err := in.Validate(gs); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidIntent, err)
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("marshal intent: %w", err)
	}
	slot := in.SlotKey()
	if err := s.cache.SubmitIntent(ctx, roomID, win.Turn, nation, slot, payload, time.Now()); err != nil {
		return nil, err
	}

	return &Receipt{
		ID:         in.ID,
		Kind:       in.Kind,
		Slot:       slot,
		Turn:       win.Turn,
		Deadline:   win.Deadline,
		Projection: projection(gs.ViewFor(nation), in),
	}, nil
}

// projection picks the part of a nation's view an intent acts on.
func projection(v *conquest.GameState, in conquest.Intent) any {
	switch in.Kind {
	case conquest.IntentMove, conquest.IntentAttack:
		return map[string]any{
			"from": v.TroopsAt(in.Move.From, in.Player),
			"to":   v.TroopsAt(in.Move.To, in.Player),
		}
	case conquest.IntentBuild, conquest.IntentRecruit, conquest.IntentTax, conquest.IntentDefense:
		return v.Cities[in.City.City]
	case conquest.IntentSpyMove, conquest.IntentCivilWar:
		return v.SpyByID(in.Spy.SpyID)
	case conquest.IntentAutoMove:
		return v.TroopsAt(in.AutoMove.From, in.Player)
	case conquest.IntentAutoMoveCancel, conquest.IntentAutoMoveResolve:
		return v.AutoMoveByID(in.AutoMove.OrderID)
	case conquest.IntentBattlefield:
		return v.BattlefieldByID(in.Battlefield.BattlefieldID)
	case conquest.IntentTradePropose:
		return v.Nations[in.Player].Treasury
	case conquest.IntentTradeRespond:
		return v.TradeByID(in.Trade.TradeID)
	case conquest.IntentDiplomacy:
		return v.Relation(in.Player, in.Diplomacy.Target)
	}
	return nil
}

// ListOwn returns the caller's queued intents for the open turn, ordered by
// slot.
func (s *IntentService) ListOwn(ctx context.Context, roomID, userID string) ([]conquest.Intent, error) {
	_, nation, err := s.seat(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	win, err := s.cache.Window(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if win == nil {
		return nil, ErrNoActiveTurn
	}
	raw, err := s.cache.NationIntents(ctx, roomID, win.Turn, nation)
	if err != nil {
		return nil, err
	}
	slots := make([]string, 0, len(raw))
	for slot := range raw {
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	intents := make([]conquest.Intent, 0, len(slots))
	for _, slot := range slots {
		var in conquest.Intent
		if err := json.Unmarshal(raw[slot], &in); err != nil {
			return nil, fmt.Errorf("unmarshal intent %s: %w", slot, err)
		}
		intents = append(intents, in)
	}
	return intents, nil
}

// Withdraw clears one of the caller's queued slots.
func (s *IntentService) Withdraw(ctx context.Context, roomID, userID, slot string) error {
	_, nation, err := s.seat(ctx, roomID, userID)
	if err != nil {
		return err
	}
	win, err := s.cache.Window(ctx, roomID)
	if err != nil {
		return err
	}
	if win == nil {
		return ErrNoActiveTurn
	}
	return s.cache.WithdrawIntent(ctx, roomID, win.Turn, nation, slot)
}

// MarkReady marks the caller's nation ready and returns the ready count and
// the number of seated nations.
func (s *IntentService) MarkReady(ctx context.Context, roomID, userID string) (int64, int, error) {
	room, nation, err := s.seat(ctx, roomID, userID)
	if err != nil {
		return 0, 0, err
	}
	if err := s.cache.MarkReady(ctx, roomID, nation); err != nil {
		return 0, 0, fmt.Errorf("mark ready: %w", err)
	}
	readyCount, err := s.cache.ReadyCount(ctx, roomID)
	if err != nil {
		return 0, 0, fmt.Errorf("ready count: %w", err)
	}
	return readyCount, len(seatedNations(room)), nil
}

// UnmarkReady removes the caller's ready status and returns the new counts.
func (s *IntentService) UnmarkReady(ctx context.Context, roomID, userID string) (int64, int, error) {
	room, nation, err := s.seat(ctx, roomID, userID)
	if err != nil {
		return 0, 0, err
	}
	if err := s.cache.UnmarkReady(ctx, roomID, nation); err != nil {
		return 0, 0, fmt.Errorf("unmark ready: %w", err)
	}
	readyCount, err := s.cache.ReadyCount(ctx, roomID)
	if err != nil {
		return 0, 0, fmt.Errorf("ready count: %w", err)
	}
	return readyCount, len(seatedNations(room)), nil
}

// View returns the caller's fog-of-war view of the live state together with
// the open window and the caller's nation.
func (s *IntentService) View(ctx context.Context, roomID, userID string) (*conquest.GameState, *model.TurnWindow, string, error) {
	_, nation, err := s.seat(ctx, roomID, userID)
	if err != nil {
		return nil, nil, "", err
	}
	gs, win, err := s.snapshot(ctx, roomID)
	if err != nil {
		return nil, nil, "", err
	}
	return gs.ViewFor(nation), win, nation, nil
}
