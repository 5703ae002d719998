package model

import (
	"encoding/json"
	"time"
)

// Room status values.
const (
	RoomLobby    = "lobby"
	RoomActive   = "active"
	RoomFinished = "finished"
)

// User represents a registered user.
type User struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	ProviderID  string    `json:"provider_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PlayerRecord summarises the rooms a user has held a nation in.
type PlayerRecord struct {
	Played int `json:"played"`
	Won    int `json:"won"`
	Active int `json:"active"`
}

// Room is one conquest match and its lobby.
type Room struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	CreatorID      string       `json:"creator_id"`
	Status         string       `json:"status"` // lobby, active, finished
	Winner         string       `json:"winner,omitempty"`
	ActionDuration string       `json:"action_duration"`
	MapSeed        int64        `json:"map_seed"`
	MapRadius      int          `json:"map_radius"`
	NationCount    int          `json:"nation_count"`
	CreatedAt      time.Time    `json:"created_at"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	FinishedAt     *time.Time   `json:"finished_at,omitempty"`
	Players        []RoomPlayer `json:"players,omitempty"`
	ReadyCount     int          `json:"ready_count,omitempty"`
}

// RoomPlayer is a user's seat in a room. Nation is empty until claimed.
type RoomPlayer struct {
	RoomID      string    `json:"room_id"`
	UserID      string    `json:"user_id"`
	Nation      string    `json:"nation,omitempty"`
	IsBot       bool      `json:"is_bot"`
	BotStrategy string    `json:"bot_strategy,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Turn is one action window of a room and the state it resolved to.
type Turn struct {
	ID          string          `json:"id"`
	RoomID      string          `json:"room_id"`
	Number      int             `json:"number"`
	StateBefore json.RawMessage `json:"state_before"`
	StateAfter  json.RawMessage `json:"state_after,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Deadline    time.Time       `json:"deadline"`
	ResolvedAt  *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// IntentRecord is an archived intent with the outcome it had at resolution.
type IntentRecord struct {
	ID        string          `json:"id"`
	TurnID    string          `json:"turn_id"`
	Nation    string          `json:"nation"`
	Slot      string          `json:"slot"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Status    string          `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewsRecord is an archived news item. The live state only keeps the most
// recent entries.
type NewsRecord struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"room_id"`
	Turn      int       `json:"turn"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	Nations   []string  `json:"nations,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TurnWindow is the live scheduler state of an active room.
type TurnWindow struct {
	Phase    string    `json:"phase"` // action, resolution
	Turn     int       `json:"turn"`
	Deadline time.Time `json:"deadline"`
}
