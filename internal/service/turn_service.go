package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"

	"github.com/freeeve/hex-conquest/api/internal/bot"
	"github.com/freeeve/hex-conquest/api/internal/logger"
	"github.com/freeeve/hex-conquest/api/internal/model"
	"github.com/freeeve/hex-conquest/api/internal/repository"
	"github.com/freeeve/hex-conquest/api/internal/telemetry"
	"github.com/freeeve/hex-conquest/api/pkg/conquest"
)

// TurnService runs the turn scheduler: it closes action windows, resolves
// the drained queue, persists the outcome and opens the next turn.
type TurnService struct {
	roomRepo    repository.RoomRepository
	turnRepo    repository.TurnRepository
	newsRepo    repository.NewsRepository
	cache       repository.RoomCache
	broadcaster Broadcaster

	augmenter      conquest.NarrativeAugmenter
	augmentTimeout time.Duration

	// roomLocks serialises resolution per room. The keyspace listener, the
	// poller and early resolution can all fire for the same turn.
	roomLocks sync.Map
}

// NewTurnService creates a TurnService.
func NewTurnService(
	roomRepo repository.RoomRepository,
	turnRepo repository.TurnRepository,
	newsRepo repository.NewsRepository,
	cache repository.RoomCache,
	broadcaster Broadcaster,
) *TurnService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &TurnService{
		roomRepo:    roomRepo,
		turnRepo:    turnRepo,
		newsRepo:    newsRepo,
		cache:       cache,
		broadcaster: broadcaster,
	}
}

// SetAugmenter configures the optional narrative step of combat.
func (s *TurnService) SetAugmenter(a conquest.NarrativeAugmenter, timeout time.Duration) {
	s.augmenter = a
	s.augmentTimeout = timeout
}

func (s *TurnService) roomLock(roomID string) *sync.Mutex {
	v, _ := s.roomLocks.LoadOrStore(roomID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// RecoverActiveRooms rehydrates Redis state for all active rooms from
// Postgres. Called on startup to restore windows and timers lost in a
// restart.
func (s *TurnService) RecoverActiveRooms(ctx context.Context) error {
	rooms, err := s.roomRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active rooms: %w", err)
	}
	if len(rooms) == 0 {
		log.Info().Msg("No active rooms to recover")
		return nil
	}
	log.Info().Int("count", len(rooms)).Msg("Recovering active rooms after restart")

	for _, room := range rooms {
		rlog := logger.ForRoom(ctx, room.ID)
		turn, err := s.turnRepo.CurrentTurn(ctx, room.ID)
		if err != nil {
			rlog.Error().Err(err).Msg("Failed to get current turn during recovery")
			continue
		}
		if turn == nil {
			rlog.Warn().Msg("Active room has no open turn, skipping")
			continue
		}

		cached, err := s.cache.GetRoomState(ctx, room.ID)
		if err != nil {
			rlog.Error().Err(err).Msg("Failed to read cached state")
			continue
		}
		if cached == nil {
			if err := s.cache.SetRoomState(ctx, room.ID, turn.StateBefore); err != nil {
				rlog.Error().Err(err).Msg("Failed to restore room state")
				continue
			}
		}

		win, err := s.cache.Window(ctx, room.ID)
		if err != nil {
			rlog.Error().Err(err).Msg("Failed to read window")
			continue
		}
		if win == nil || win.Turn != turn.Number {
			err = s.cache.OpenTurn(ctx, room.ID, turn.Number, turn.Deadline)
		} else {
			err = s.cache.SetTimer(ctx, room.ID, turn.Deadline)
		}
		if err != nil {
			rlog.Error().Err(err).Msg("Failed to restore turn window")
			continue
		}

		var gs conquest.GameState
		if err := json.Unmarshal(turn.StateBefore, &gs); err != nil {
			rlog.Error().Err(err).Msg("Failed to unmarshal state for recovery")
			continue
		}
		if err := s.autoReadyEliminated(ctx, room.ID, &gs, seatedNations(&room)); err != nil {
			rlog.Warn().Err(err).Msg("Failed to auto-ready eliminated nations during recovery")
		}

		roomID := room.ID
		go func() {
			botCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.SubmitBotIntents(botCtx, roomID); err != nil {
				log.Error().Err(err).Str("roomId", roomID).Msg("Failed to submit bot intents during recovery")
			}
		}()

		rlog.Info().Int("turn", turn.Number).Time("deadline", turn.Deadline).Msg("Recovered room state")
	}
	return nil
}

// ReadyCount returns how many nations have marked ready for the open turn.
func (s *TurnService) ReadyCount(ctx context.Context, roomID string) (int, error) {
	n, err := s.cache.ReadyCount(ctx, roomID)
	return int(n), err
}

// History returns every turn of a room in order.
func (s *TurnService) History(ctx context.Context, roomID string) ([]model.Turn, error) {
	return s.turnRepo.ListTurns(ctx, roomID)
}

// News returns archived news of a room, newest first.
func (s *TurnService) News(ctx context.Context, roomID string, limit int) ([]model.NewsRecord, error) {
	return s.newsRepo.ListByRoom(ctx, roomID, limit)
}

// CleanupStoppedRoom drops the live data of a room its creator stopped.
func (s *TurnService) CleanupStoppedRoom(ctx context.Context, roomID string) error {
	s.broadcaster.BroadcastRoomEvent(roomID, "room_ended", map[string]any{
		"winner": "",
		"reason": "stopped",
	})
	s.roomLocks.Delete(roomID)
	return s.cache.DeleteRoomData(ctx, roomID)
}

// ResolveTurn resolves the open turn of a room once its deadline passed.
func (s *TurnService) ResolveTurn(ctx context.Context, roomID string) error {
	return s.resolve(ctx, roomID, false)
}

// ResolveTurnEarly resolves the open turn before its deadline. Called when
// every nation marked ready.
func (s *TurnService) ResolveTurnEarly(ctx context.Context, roomID string) error {
	return s.resolve(ctx, roomID, true)
}

// resolveIOTimeout bounds the store work before and after combat.
const resolveIOTimeout = 30 * time.Second

func (s *TurnService) resolve(ctx context.Context, roomID string, early bool) error {
	mu := s.roomLock(roomID)
	mu.Lock()
	defer mu.Unlock()

	// A resolution that has started runs to completion even if its caller
	// goes away. Store round trips are bounded on either side of combat.
	ctx = context.WithoutCancel(ctx)
	ioCtx, cancel := context.WithTimeout(ctx, resolveIOTimeout)
	defer cancel()

	rlog := logger.ForRoom(ctx, roomID)

	room, err := s.roomRepo.FindByID(ioCtx, roomID)
	if err != nil {
		return fmt.Errorf("find room: %w", err)
	}
	if room == nil {
		return ErrRoomNotFound
	}
	if room.Status != model.RoomActive {
		rlog.Info().Str("status", room.Status).Msg("Skipping resolution for inactive room")
		return nil
	}

	turn, err := s.turnRepo.CurrentTurn(ioCtx, roomID)
	if err != nil {
		return fmt.Errorf("get current turn: %w", err)
	}
	if turn == nil {
		return ErrNoActiveTurn
	}
	if !early && time.Now().Before(turn.Deadline) {
		rlog.Debug().Time("deadline", turn.Deadline).Msg("Turn deadline not yet reached, skipping")
		return nil
	}

	rlog = logger.ForTurn(ctx, roomID, turn.Number)
	rlog.Info().Str("turnId", turn.ID).Bool("early", early).Msg("Resolving turn")

	drained, err := s.cache.DrainIntents(ioCtx, roomID, turn.Number)
	if errors.Is(err, repository.ErrStaleTurn) {
		rlog.Warn().Msg("Window does not match open turn, resolving with an empty queue")
		drained = nil
	} else if err != nil {
		return fmt.Errorf("drain intents: %w", err)
	}

	s.broadcaster.BroadcastRoomEvent(roomID, "turn_resolving", map[string]any{
		"turn": turn.Number,
	})

	gs, err := loadState(ioCtx, s.cache, s.turnRepo, roomID)
	if err != nil {
		rlog.Error().Err(err).Msg("Room state is unreadable, terminating room")
		return s.terminate(ioCtx, roomID, err)
	}

	intents, rejected := decodeIntents(drained)

	tctx, span := telemetry.Tracer().Start(ctx, "conquest.resolve_turn")
	span.SetAttributes(
		attribute.String("room.id", roomID),
		attribute.Int("turn", turn.Number),
		attribute.Int("intents", len(intents)),
	)
	res := conquest.ResolveTurn(tctx, gs, intents, conquest.ResolveOptions{
		Augmenter:      s.augmenter,
		AugmentTimeout: s.augmentTimeout,
	})
	span.SetAttributes(
		attribute.Int("battles", len(res.Battles)),
		attribute.Bool("ended", res.Ended),
	)
	span.End()
	res.Outcomes = append(res.Outcomes, rejected...)
	logAugmentFallbacks(rlog, res.Battles)

	ioCtx, cancel = context.WithTimeout(ctx, resolveIOTimeout)
	defer cancel()

	stateAfter, err := json.Marshal(gs)
	if err != nil {
		return fmt.Errorf("marshal state after: %w", err)
	}
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal turn result: %w", err)
	}
	if err := s.turnRepo.ResolveTurn(ioCtx, turn.ID, stateAfter, resultJSON); err != nil {
		return fmt.Errorf("resolve turn: %w", err)
	}
	if err := s.turnRepo.SaveIntents(ioCtx, intentRecords(turn.ID, res.Outcomes, drained)); err != nil {
		return fmt.Errorf("save intents: %w", err)
	}
	if err := s.newsRepo.Append(ioCtx, roomID, newsRecords(res.News)); err != nil {
		rlog.Warn().Err(err).Msg("Failed to archive news")
	}

	for _, b := range res.Battles {
		s.broadcaster.BroadcastRoomEvent(roomID, "battle_result", b)
	}
	s.sendResourceDeltas(room, turn.Number, res.Resources)
	if len(res.News) > 0 {
		s.broadcaster.BroadcastRoomEvent(roomID, "news", map[string]any{
			"turn":  turn.Number,
			"items": res.News,
		})
	}

	if res.Ended {
		rlog.Info().Str("winner", res.Winner).Msg("Room ended")
		if err := s.roomRepo.SetFinished(ioCtx, roomID, res.Winner); err != nil {
			return fmt.Errorf("set finished: %w", err)
		}
		s.broadcaster.BroadcastRoomEvent(roomID, "room_ended", map[string]any{
			"winner": res.Winner,
			"turn":   turn.Number,
		})
		s.roomLocks.Delete(roomID)
		return s.cache.DeleteRoomData(ioCtx, roomID)
	}

	return s.openNextTurn(ioCtx, room, gs, stateAfter)
}

// logAugmentFallbacks reports battles whose narrative step was skipped or
// discarded. Clients only ever see the deterministic result.
func logAugmentFallbacks(l zerolog.Logger, battles []conquest.BattleReport) {
	for _, b := range battles {
		if b.Result.FallbackReason == "" {
			continue
		}
		l.Warn().Str("tile", b.Tile).Str("reason", b.Result.FallbackReason).
			Msg("Narrative augmentation unavailable, used deterministic result")
	}
}

// sendResourceDeltas delivers each nation's economy report to its own player
// only. Bot nations have no one to tell.
func (s *TurnService) sendResourceDeltas(room *model.Room, turn int, deltas []conquest.ResourceDelta) {
	byNation := make(map[string]conquest.ResourceDelta, len(deltas))
	for _, d := range deltas {
		byNation[d.Nation] = d
	}
	for _, p := range room.Players {
		d, ok := byNation[p.Nation]
		if !ok || p.IsBot {
			continue
		}
		s.broadcaster.SendRoomEvent(room.ID, p.UserID, "resource_delta", map[string]any{
			"turn":     turn,
			"resource": d,
		})
	}
}

// openNextTurn records the next turn and opens its action window.
func (s *TurnService) openNextTurn(ctx context.Context, room *model.Room, gs *conquest.GameState, stateJSON json.RawMessage) error {
	rlog := logger.ForTurn(ctx, room.ID, gs.Turn)

	dur := parseDuration(room.ActionDuration)
	deadline := time.Now().Add(dur)
	if _, err := s.turnRepo.CreateTurn(ctx, room.ID, gs.Turn, stateJSON, deadline); err != nil {
		return fmt.Errorf("create next turn: %w", err)
	}
	if err := s.cache.ClearTurnData(ctx, room.ID); err != nil {
		return fmt.Errorf("clear turn data: %w", err)
	}
	if err := s.cache.SetRoomState(ctx, room.ID, stateJSON); err != nil {
		return fmt.Errorf("set room state: %w", err)
	}
	if err := s.cache.OpenTurn(ctx, room.ID, gs.Turn, deadline); err != nil {
		return fmt.Errorf("open turn: %w", err)
	}
	if err := s.autoReadyEliminated(ctx, room.ID, gs, seatedNations(room)); err != nil {
		rlog.Warn().Err(err).Msg("Failed to auto-ready eliminated nations")
	}

	rlog.Info().Time("deadline", deadline).Msg("Opened next turn")

	s.broadcaster.BroadcastRoomEvent(room.ID, "turn_started", map[string]any{
		"turn":     gs.Turn,
		"deadline": deadline.Format(time.RFC3339),
	})
	s.broadcaster.BroadcastRoomEvent(room.ID, "phase_changed", map[string]any{
		"phase":    "action",
		"turn":     gs.Turn,
		"deadline": deadline.Format(time.RFC3339),
	})

	// Bots get at most the action duration minus 5s so they finish before
	// the timer.
	botTimeout := dur - 5*time.Second
	if botTimeout > 30*time.Second {
		botTimeout = 30 * time.Second
	}
	if botTimeout < 5*time.Second {
		botTimeout = 5 * time.Second
	}
	roomID := room.ID
	go func() {
		botCtx, cancel := context.WithTimeout(context.Background(), botTimeout)
		defer cancel()
		if err := s.SubmitBotIntents(botCtx, roomID); err != nil {
			log.Error().Err(err).Str("roomId", roomID).Msg("Failed to submit bot intents after turn advance")
		}
	}()
	return nil
}

// terminate ends a room whose state can no longer be read.
func (s *TurnService) terminate(ctx context.Context, roomID string, cause error) error {
	if err := s.roomRepo.SetFinished(ctx, roomID, ""); err != nil {
		return fmt.Errorf("set finished after %v: %w", cause, err)
	}
	s.broadcaster.BroadcastRoomEvent(roomID, "room_terminated", map[string]any{
		"reason": "state_unreadable",
	})
	s.roomLocks.Delete(roomID)
	if err := s.cache.DeleteRoomData(ctx, roomID); err != nil {
		return err
	}
	return fmt.Errorf("room terminated: %w", cause)
}

// decodeIntents turns the drained hash into intents. The hash field is
// authoritative for the owning nation. Entries that do not decode or have no
// valid shape are reported as rejected outcomes.
func decodeIntents(drained map[string]json.RawMessage) ([]conquest.Intent, []conquest.IntentOutcome) {
	var intents []conquest.Intent
	var rejected []conquest.IntentOutcome
	for field, raw := range drained {
		nation, slot, ok := repository.SplitIntentField(field)
		if !ok {
			continue
		}
		var in conquest.Intent
		if err := json.Unmarshal(raw, &in); err != nil {
			rejected = append(rejected, conquest.IntentOutcome{
				Player: nation, Slot: slot, Status: conquest.OutcomeRejected, Reason: "malformed intent",
			})
			continue
		}
		in.Player = nation
		if err := in.Validate(nil); err != nil {
			rejected = append(rejected, conquest.IntentOutcome{
				IntentID: in.ID, Player: nation, Slot: slot, Kind: in.Kind,
				Status: conquest.OutcomeRejected, Reason: err.Error(),
			})
			continue
		}
		intents = append(intents, in)
	}
	return intents, rejected
}

// intentRecords pairs each outcome with the payload it was queued with.
func intentRecords(turnID string, outcomes []conquest.IntentOutcome, drained map[string]json.RawMessage) []model.IntentRecord {
	records := make([]model.IntentRecord, 0, len(outcomes))
	for _, o := range outcomes {
		payload := drained[repository.IntentField(o.Player, o.Slot)]
		if payload == nil {
			payload = json.RawMessage("{}")
		}
		id := o.IntentID
		if _, err := uuid.Parse(id); err != nil {
			id = ""
		}
		records = append(records, model.IntentRecord{
			ID:      id,
			TurnID:  turnID,
			Nation:  o.Player,
			Slot:    o.Slot,
			Kind:    string(o.Kind),
			Payload: payload,
			Status:  string(o.Status),
			Reason:  o.Reason,
		})
	}
	return records
}

func newsRecords(items []conquest.NewsItem) []model.NewsRecord {
	records := make([]model.NewsRecord, 0, len(items))
	for _, n := range items {
		records = append(records, model.NewsRecord{
			Turn:    n.Turn,
			Kind:    string(n.Kind),
			Text:    n.Text,
			Nations: n.Nations,
		})
	}
	return records
}

// autoReadyEliminated marks eliminated nations ready so the room doesn't
// stall waiting for players who can't act.
func (s *TurnService) autoReadyEliminated(ctx context.Context, roomID string, gs *conquest.GameState, nations []string) error {
	for _, id := range nations {
		n, ok := gs.Nations[id]
		if ok && !n.Eliminated {
			continue
		}
		if err := s.cache.MarkReady(ctx, roomID, id); err != nil {
			return fmt.Errorf("auto-ready %s: %w", id, err)
		}
		log.Info().Str("roomId", roomID).Str("nation", id).Msg("Auto-readied eliminated nation")
	}
	return nil
}

// SubmitBotIntents generates and queues intents for every bot nation of a
// room, marks them ready and resolves early once every nation is ready.
func (s *TurnService) SubmitBotIntents(ctx context.Context, roomID string) error {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return fmt.Errorf("find room for bot intents: %w", err)
	}
	if room == nil {
		return ErrRoomNotFound
	}
	if room.Status != model.RoomActive {
		return nil
	}

	strategies := make(map[string]bot.Strategy)
	for _, p := range room.Players {
		if p.IsBot && p.Nation != "" {
			strategies[p.Nation] = bot.StrategyFor(p.BotStrategy)
		}
	}
	if len(strategies) == 0 {
		return nil
	}

	win, err := s.cache.Window(ctx, roomID)
	if err != nil {
		return fmt.Errorf("window for bot intents: %w", err)
	}
	if win == nil || win.Phase != "action" {
		return nil
	}
	gs, err := loadState(ctx, s.cache, s.turnRepo, roomID)
	if err != nil {
		return fmt.Errorf("state for bot intents: %w", err)
	}
	if gs.Turn != win.Turn {
		return nil
	}

	// Generation is pure computation on a private copy of the snapshot.
	type botResult struct {
		nation   string
		strategy bot.Strategy
		intents  []conquest.Intent
	}
	resultsCh := make(chan botResult, len(strategies))
	for nation, strategy := range strategies {
		go func(nation string, strategy bot.Strategy, view *conquest.GameState) {
			rng := bot.NewRng(room.MapSeed, view.Turn, nation)
			resultsCh <- botResult{
				nation:   nation,
				strategy: strategy,
				intents:  strategy.GenerateIntents(view, nation, rng),
			}
		}(nation, strategy, gs.Clone())
	}

	now := time.Now()
	for range strategies {
		res := <-resultsCh
		for _, in := range res.intents {
			in.ID = uuid.NewString()
			in.Player = res.nation
			in.Turn = win.Turn
			payload, err := json.Marshal(in)
			if err != nil {
				return fmt.Errorf("marshal bot intent for %s: %w", res.nation, err)
			}
			if err := s.cache.SubmitIntent(ctx, roomID, win.Turn, res.nation, in.SlotKey(), payload, now); err != nil {
				return fmt.Errorf("queue bot intent for %s: %w", res.nation, err)
			}
		}
		if err := s.cache.MarkReady(ctx, roomID, res.nation); err != nil {
			return fmt.Errorf("mark bot ready for %s: %w", res.nation, err)
		}
		log.Debug().Str("roomId", roomID).Str("nation", res.nation).Str("strategy", res.strategy.Name()).
			Int("turn", win.Turn).Int("intents", len(res.intents)).Msg("Bot intents submitted")
	}

	readyCount, err := s.cache.ReadyCount(ctx, roomID)
	if err != nil {
		return fmt.Errorf("ready count after bot intents: %w", err)
	}
	total := len(seatedNations(room))
	s.broadcaster.BroadcastRoomEvent(roomID, "player_ready", map[string]any{
		"ready_count":   readyCount,
		"total_nations": total,
	})

	if int(readyCount) >= total {
		log.Info().Str("roomId", roomID).Msg("All nations ready after bot intents, resolving turn")
		if err := s.ResolveTurnEarly(ctx, roomID); err != nil {
			return fmt.Errorf("auto-resolve after bot intents: %w", err)
		}
	}
	return nil
}
