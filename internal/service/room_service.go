package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/hex-conquest/api/internal/bot"
	"github.com/freeeve/hex-conquest/api/internal/model"
	"github.com/freeeve/hex-conquest/api/internal/repository"
	"github.com/freeeve/hex-conquest/api/pkg/conquest"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomNotLobby       = errors.New("room is not in the lobby")
	ErrRoomNotActive      = errors.New("room is not active")
	ErrRoomFull           = errors.New("every nation in this room is taken")
	ErrNotCreator         = errors.New("only the creator can do that")
	ErrAlreadyJoined      = errors.New("already joined this room")
	ErrNotInRoom          = errors.New("you are not in this room")
	ErrNationTaken        = errors.New("nation already claimed by another player")
	ErrUnknownNation      = errors.New("unknown nation")
	ErrInvalidRoomOptions = errors.New("invalid room options")
)

// nationRoster lists the playable nations in seating order. A room with n
// nations uses the first n.
var nationRoster = []conquest.NationSpec{
	{ID: "aurel", Name: "Aurel"},
	{ID: "brask", Name: "Brask"},
	{ID: "corvan", Name: "Corvan"},
	{ID: "dravia", Name: "Dravia"},
	{ID: "elund", Name: "Elund"},
	{ID: "ferox", Name: "Ferox"},
}

const (
	defaultNations   = 4
	defaultMapRadius = 8
	minMapRadius     = 4
	maxMapRadius     = 16
)

// RoomOptions are the creator's choices for a new room.
type RoomOptions struct {
	Name           string `json:"name"`
	ActionDuration string `json:"action_duration,omitempty"`
	Nations        int    `json:"nations,omitempty"`
	MapRadius      int    `json:"map_radius,omitempty"`
	Seed           int64  `json:"seed,omitempty"`
	Nation         string `json:"nation,omitempty"`
	BotOnly        bool   `json:"bot_only,omitempty"`
}

// RoomService handles the room lifecycle from lobby to start and stop.
type RoomService struct {
	roomRepo    repository.RoomRepository
	turnRepo    repository.TurnRepository
	userRepo    repository.UserRepository
	cache       repository.RoomCache
	broadcaster Broadcaster

	rules          conquest.Rules
	actionDuration string // Postgres interval
}

// NewRoomService creates a RoomService.
func NewRoomService(
	roomRepo repository.RoomRepository,
	turnRepo repository.TurnRepository,
	userRepo repository.UserRepository,
	cache repository.RoomCache,
	broadcaster Broadcaster,
) *RoomService {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &RoomService{
		roomRepo:       roomRepo,
		turnRepo:       turnRepo,
		userRepo:       userRepo,
		cache:          cache,
		broadcaster:    broadcaster,
		rules:          conquest.DefaultRules(),
		actionDuration: "5 minutes",
	}
}

// SetRules replaces the rule tables used for new maps.
func (s *RoomService) SetRules(r conquest.Rules) {
	s.rules = r
}

// SetDefaultActionDuration sets the action window used when a room does not
// choose one.
func (s *RoomService) SetDefaultActionDuration(d time.Duration) {
	s.actionDuration = toPgInterval(d.String(), s.actionDuration)
}

// roster returns the nations a room of the given size seats.
func roster(n int) []conquest.NationSpec {
	return nationRoster[:min(n, len(nationRoster))]
}

func inRoster(nations []conquest.NationSpec, id string) bool {
	for _, n := range nations {
		if n.ID == id {
			return true
		}
	}
	return false
}

// freeNation returns the first roster nation no player holds.
func freeNation(room *model.Room) string {
	taken := make(map[string]bool)
	for _, p := range room.Players {
		taken[p.Nation] = true
	}
	for _, n := range roster(room.NationCount) {
		if !taken[n.ID] {
			return n.ID
		}
	}
	return ""
}

// CreateRoom creates a room in the lobby. The creator takes a seat unless the
// room is bot-only.
func (s *RoomService) CreateRoom(ctx context.Context, creatorID string, opts RoomOptions) (*model.Room, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRoomOptions)
	}
	if opts.Nations == 0 {
		opts.Nations = defaultNations
	}
	if opts.Nations < 2 || opts.Nations > len(nationRoster) {
		return nil, fmt.Errorf("%w: nations must be between 2 and %d", ErrInvalidRoomOptions, len(nationRoster))
	}
	if opts.MapRadius == 0 {
		opts.MapRadius = defaultMapRadius
	}
	if opts.MapRadius < minMapRadius || opts.MapRadius > maxMapRadius {
		return nil, fmt.Errorf("%w: map radius must be between %d and %d", ErrInvalidRoomOptions, minMapRadius, maxMapRadius)
	}
	if opts.Nation != "" && !inRoster(roster(opts.Nations), opts.Nation) {
		return nil, ErrUnknownNation
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	actionDur := toPgInterval(opts.ActionDuration, s.actionDuration)

	room, err := s.roomRepo.Create(ctx, opts.Name, creatorID, actionDur, opts.Seed, opts.MapRadius, opts.Nations)
	if err != nil {
		return nil, err
	}
	if !opts.BotOnly {
		nation := opts.Nation
		if nation == "" {
			nation = roster(opts.Nations)[0].ID
		}
		if err := s.roomRepo.JoinRoom(ctx, room.ID, creatorID, nation); err != nil {
			return nil, err
		}
	}

	log.Info().Str("roomId", room.ID).Str("creatorId", creatorID).Int("nations", opts.Nations).
		Int64("seed", opts.Seed).Msg("Room created")
	return s.roomRepo.FindByID(ctx, room.ID)
}

// JoinRoom seats a user in a lobby. An empty nation takes the first free one.
func (s *RoomService) JoinRoom(ctx context.Context, roomID, userID, nation string) (*model.Room, error) {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if room.Status != model.RoomLobby {
		return nil, ErrRoomNotLobby
	}
	for _, p := range room.Players {
		if p.UserID == userID {
			return nil, ErrAlreadyJoined
		}
	}

	if nation == "" {
		nation = freeNation(room)
		if nation == "" {
			return nil, ErrRoomFull
		}
	} else {
		if !inRoster(roster(room.NationCount), nation) {
			return nil, ErrUnknownNation
		}
		for _, p := range room.Players {
			if p.Nation == nation {
				return nil, ErrNationTaken
			}
		}
	}

	if err := s.roomRepo.JoinRoom(ctx, roomID, userID, nation); err != nil {
		return nil, err
	}
	return s.roomRepo.FindByID(ctx, roomID)
}

// StartRoom fills free nations with bots playing botStrategy, generates the
// map and opens the first action window.
func (s *RoomService) StartRoom(ctx context.Context, roomID, userID, botStrategy string) (*model.Room, error) {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if room.Status != model.RoomLobby {
		return nil, ErrRoomNotLobby
	}
	if room.CreatorID != userID {
		return nil, ErrNotCreator
	}

	strategy := bot.StrategyFor(botStrategy).Name()
	for nation := freeNation(room); nation != ""; nation = freeNation(room) {
		botUser, err := s.userRepo.Upsert(ctx, "bot", "bot-"+nation, "Bot "+nationName(nation), "")
		if err != nil {
			return nil, fmt.Errorf("create bot user for %s: %w", nation, err)
		}
		if err := s.roomRepo.JoinRoomAsBot(ctx, roomID, botUser.ID, nation, strategy); err != nil {
			return nil, fmt.Errorf("join bot for %s: %w", nation, err)
		}
		room.Players = append(room.Players, model.RoomPlayer{RoomID: roomID, UserID: botUser.ID, Nation: nation, IsBot: true, BotStrategy: strategy})
	}

	opts := conquest.DefaultMapOptions(room.MapSeed, roster(room.NationCount))
	opts.Radius = room.MapRadius
	opts.Rules = &s.rules
	gs := conquest.GenerateMap(opts)
	for _, p := range room.Players {
		if n := gs.Nations[p.Nation]; n != nil {
			n.Player = p.UserID
		}
	}

	stateJSON, err := json.Marshal(gs)
	if err != nil {
		return nil, fmt.Errorf("marshal initial state: %w", err)
	}
	if err := s.roomRepo.SetActive(ctx, roomID); err != nil {
		return nil, err
	}
	deadline := time.Now().Add(parseDuration(room.ActionDuration))
	if _, err := s.turnRepo.CreateTurn(ctx, roomID, gs.Turn, stateJSON, deadline); err != nil {
		return nil, err
	}
	if err := s.cache.SetRoomState(ctx, roomID, stateJSON); err != nil {
		return nil, fmt.Errorf("set room state: %w", err)
	}
	if err := s.cache.OpenTurn(ctx, roomID, gs.Turn, deadline); err != nil {
		return nil, err
	}

	log.Info().Str("roomId", roomID).Int("players", len(room.Players)).Time("deadline", deadline).Msg("Room started")
	s.broadcaster.BroadcastRoomEvent(roomID, "room_started", map[string]any{
		"turn":     gs.Turn,
		"deadline": deadline.Format(time.RFC3339),
	})
	s.broadcaster.BroadcastRoomEvent(roomID, "turn_started", map[string]any{
		"turn":     gs.Turn,
		"deadline": deadline.Format(time.RFC3339),
	})

	return s.roomRepo.FindByID(ctx, roomID)
}

func nationName(id string) string {
	for _, n := range nationRoster {
		if n.ID == id {
			return n.Name
		}
	}
	return id
}

// GetRoom returns a room by ID.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*model.Room, error) {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// CanWatch reports whether a user may follow a room's live events. Lobbies
// and finished rooms are public; running rooms are limited to their creator
// and seated players.
func (s *RoomService) CanWatch(ctx context.Context, roomID, userID string) (bool, error) {
	room, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return false, err
	}
	if room.Status != model.RoomActive || room.CreatorID == userID {
		return true, nil
	}
	for _, p := range room.Players {
		if p.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

// ListRooms returns open rooms, the user's rooms or finished rooms.
func (s *RoomService) ListRooms(ctx context.Context, userID, filter string) ([]model.Room, error) {
	switch filter {
	case "my":
		return s.roomRepo.ListByUser(ctx, userID)
	case "finished":
		return s.roomRepo.ListFinished(ctx)
	default:
		return s.roomRepo.ListOpen(ctx)
	}
}

// DeleteRoom removes a lobby. Only the creator can delete a room.
func (s *RoomService) DeleteRoom(ctx context.Context, roomID, userID string) error {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return ErrRoomNotFound
	}
	if room.Status != model.RoomLobby {
		return ErrRoomNotLobby
	}
	if room.CreatorID != userID {
		return ErrNotCreator
	}
	return s.roomRepo.Delete(ctx, roomID)
}

// StopRoom ends an active room without a winner. Only the creator can stop a
// room.
func (s *RoomService) StopRoom(ctx context.Context, roomID, userID string) (*model.Room, error) {
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if room.Status != model.RoomActive {
		return nil, ErrRoomNotActive
	}
	if room.CreatorID != userID {
		return nil, ErrNotCreator
	}
	if err := s.roomRepo.SetFinished(ctx, roomID, ""); err != nil {
		return nil, err
	}
	return s.roomRepo.FindByID(ctx, roomID)
}

// seatOf returns the nation a user plays in a room, or "".
func seatOf(room *model.Room, userID string) string {
	for _, p := range room.Players {
		if p.UserID == userID {
			return p.Nation
		}
	}
	return ""
}

// seatedNations returns every claimed nation of a room.
func seatedNations(room *model.Room) []string {
	var nations []string
	for _, p := range room.Players {
		if p.Nation != "" {
			nations = append(nations, p.Nation)
		}
	}
	return nations
}

// toPgInterval converts Go-style duration strings (e.g. "5m", "1h") to
// PostgreSQL interval format (e.g. "5 minutes", "60 minutes"). Returns
// defaultVal if input is empty or invalid.
func toPgInterval(s, defaultVal string) string {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	totalSeconds := int(d.Seconds())
	if totalSeconds < 60 || totalSeconds%60 != 0 {
		return fmt.Sprintf("%d seconds", totalSeconds)
	}
	return fmt.Sprintf("%d minutes", totalSeconds/60)
}

// parseDuration converts Postgres interval strings like "00:05:00" or Go
// duration strings like "5m" to time.Duration.
func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d
	}
	// Try HH:MM:SS format from PostgreSQL
	parts := strings.Split(s, ":")
	if len(parts) == 3 {
		h, e1 := strconv.Atoi(parts[0])
		m, e2 := strconv.Atoi(parts[1])
		sec, e3 := strconv.Atoi(parts[2])
		if e1 == nil && e2 == nil && e3 == nil {
			return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second
		}
	}
	return 5 * time.Minute
}
