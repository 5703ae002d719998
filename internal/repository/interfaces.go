package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/freeeve/hex-conquest/api/internal/model"
)

var (
	// ErrIntakeClosed is returned when an intent arrives outside a room's
	// action window or at or after its deadline.
	ErrIntakeClosed = errors.New("action window is closed")
	// ErrStaleTurn is returned when an intent targets a turn that is not the
	// room's current one.
	ErrStaleTurn = errors.New("intent is for a different turn")
)

// UserRepository defines user data operations.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	Upsert(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) error
	Record(ctx context.Context, id string) (*model.PlayerRecord, error)
}

// RoomRepository defines room and seat data operations.
type RoomRepository interface {
	Create(ctx context.Context, name, creatorID, actionDur string, seed int64, radius, nations int) (*model.Room, error)
	FindByID(ctx context.Context, id string) (*model.Room, error)
	ListOpen(ctx context.Context) ([]model.Room, error)
	ListByUser(ctx context.Context, userID string) ([]model.Room, error)
	ListFinished(ctx context.Context) ([]model.Room, error)
	ListActive(ctx context.Context) ([]model.Room, error)
	JoinRoom(ctx context.Context, roomID, userID, nation string) error
	JoinRoomAsBot(ctx context.Context, roomID, userID, nation, strategy string) error
	SetActive(ctx context.Context, roomID string) error
	SetFinished(ctx context.Context, roomID, winner string) error
	Delete(ctx context.Context, roomID string) error
}

// TurnRepository defines turn history and intent archive operations.
type TurnRepository interface {
	CreateTurn(ctx context.Context, roomID string, number int, stateBefore json.RawMessage, deadline time.Time) (*model.Turn, error)
	CurrentTurn(ctx context.Context, roomID string) (*model.Turn, error)
	ListTurns(ctx context.Context, roomID string) ([]model.Turn, error)
	ResolveTurn(ctx context.Context, turnID string, stateAfter, result json.RawMessage) error
	SaveIntents(ctx context.Context, intents []model.IntentRecord) error
	IntentsByTurn(ctx context.Context, turnID string) ([]model.IntentRecord, error)
	ListExpired(ctx context.Context) ([]model.Turn, error)
}

// NewsRepository archives room news.
type NewsRepository interface {
	Append(ctx context.Context, roomID string, items []model.NewsRecord) error
	ListByRoom(ctx context.Context, roomID string, limit int) ([]model.NewsRecord, error)
}

// RoomCache defines live room state operations (Redis). Intents live in a
// per-turn hash keyed by "nation|slot", so resubmitting a slot overwrites it.
type RoomCache interface {
	SetRoomState(ctx context.Context, roomID string, state json.RawMessage) error
	GetRoomState(ctx context.Context, roomID string) (json.RawMessage, error)
	OpenTurn(ctx context.Context, roomID string, turn int, deadline time.Time) error
	Window(ctx context.Context, roomID string) (*model.TurnWindow, error)
	SubmitIntent(ctx context.Context, roomID string, turn int, nation, slot string, payload json.RawMessage, now time.Time) error
	WithdrawIntent(ctx context.Context, roomID string, turn int, nation, slot string) error
	NationIntents(ctx context.Context, roomID string, turn int, nation string) (map[string]json.RawMessage, error)
	DrainIntents(ctx context.Context, roomID string, turn int) (map[string]json.RawMessage, error)
	MarkReady(ctx context.Context, roomID, nation string) error
	UnmarkReady(ctx context.Context, roomID, nation string) error
	ReadyCount(ctx context.Context, roomID string) (int64, error)
	ReadyNations(ctx context.Context, roomID string) ([]string, error)
	SetTimer(ctx context.Context, roomID string, deadline time.Time) error
	ClearTimer(ctx context.Context, roomID string) error
	ClearTurnData(ctx context.Context, roomID string) error
	DeleteRoomData(ctx context.Context, roomID string) error
}

// IntentField builds the hash field for a nation's intent slot.
func IntentField(nation, slot string) string {
	return nation + "|" + slot
}

// SplitIntentField is the inverse of IntentField.
func SplitIntentField(field string) (nation, slot string, ok bool) {
	for i := 0; i < len(field); i++ {
		if field[i] == '|' {
			return field[:i], field[i+1:], true
		}
	}
	return "", "", false
}
