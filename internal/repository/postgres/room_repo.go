package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freeeve/hex-conquest/api/internal/model"
)

const roomColumns = `r.id, r.name, r.creator_id, r.status, r.winner, r.action_duration, r.map_seed, r.map_radius,
		        r.nation_count, r.created_at, r.started_at, r.finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*model.Room, error) {
	var rm model.Room
	var winner sql.NullString
	err := row.Scan(&rm.ID, &rm.Name, &rm.CreatorID, &rm.Status, &winner, &rm.ActionDuration, &rm.MapSeed, &rm.MapRadius,
		&rm.NationCount, &rm.CreatedAt, &rm.StartedAt, &rm.FinishedAt)
	if err != nil {
		return nil, err
	}
	rm.Winner = winner.String
	return &rm, nil
}

// RoomRepo handles room and room_player database operations.
type RoomRepo struct {
	db *sql.DB
}

// NewRoomRepo creates a RoomRepo.
func NewRoomRepo(db *sql.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// Create inserts a new room in lobby status. actionDur is a Postgres interval
// literal such as "5 minutes".
func (r *RoomRepo) Create(ctx context.Context, name, creatorID, actionDur string, seed int64, radius, nations int) (*model.Room, error) {
	rm, err := scanRoom(r.db.QueryRowContext(ctx,
		`INSERT INTO rooms AS r (name, creator_id, action_duration, map_seed, map_radius, nation_count)
		 VALUES ($1, $2, $3::interval, $4, $5, $6)
		 RETURNING `+roomColumns,
		name, creatorID, actionDur, seed, radius, nations,
	))
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	return rm, nil
}

// FindByID returns a room with its players, or nil if it does not exist.
func (r *RoomRepo) FindByID(ctx context.Context, id string) (*model.Room, error) {
	rm, err := scanRoom(r.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms r WHERE r.id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find room: %w", err)
	}
	players, err := r.ListPlayers(ctx, id)
	if err != nil {
		return nil, err
	}
	rm.Players = players
	return rm, nil
}

func (r *RoomRepo) listRooms(ctx context.Context, what, query string, args ...any) ([]model.Room, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s rooms: %w", what, err)
	}
	defer rows.Close()

	var rooms []model.Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, *rm)
	}
	return rooms, rows.Err()
}

// ListOpen returns rooms still in the lobby.
func (r *RoomRepo) ListOpen(ctx context.Context) ([]model.Room, error) {
	return r.listRooms(ctx, "open",
		`SELECT `+roomColumns+` FROM rooms r WHERE r.status = 'lobby' ORDER BY r.created_at DESC LIMIT 50`)
}

// ListByUser returns all rooms a user plays in or created.
func (r *RoomRepo) ListByUser(ctx context.Context, userID string) ([]model.Room, error) {
	return r.listRooms(ctx, "user",
		`SELECT DISTINCT `+roomColumns+`
		 FROM rooms r LEFT JOIN room_players rp ON r.id = rp.room_id AND rp.user_id = $1
		 WHERE rp.user_id = $1 OR r.creator_id = $1
		 ORDER BY r.created_at DESC LIMIT 50`, userID)
}

// ListFinished returns finished rooms, most recent first.
func (r *RoomRepo) ListFinished(ctx context.Context) ([]model.Room, error) {
	return r.listRooms(ctx, "finished",
		`SELECT `+roomColumns+` FROM rooms r WHERE r.status = 'finished' ORDER BY r.finished_at DESC LIMIT 100`)
}

// ListActive returns all active rooms including their players.
func (r *RoomRepo) ListActive(ctx context.Context) ([]model.Room, error) {
	rooms, err := r.listRooms(ctx, "active",
		`SELECT `+roomColumns+` FROM rooms r WHERE r.status = 'active' ORDER BY r.created_at`)
	if err != nil {
		return nil, err
	}
	for i := range rooms {
		players, err := r.ListPlayers(ctx, rooms[i].ID)
		if err != nil {
			return nil, err
		}
		rooms[i].Players = players
	}
	return rooms, nil
}

// ListPlayers returns the seats of a room in join order.
func (r *RoomRepo) ListPlayers(ctx context.Context, roomID string) ([]model.RoomPlayer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT room_id, user_id, nation, is_bot, bot_strategy, joined_at
		 FROM room_players WHERE room_id = $1 ORDER BY joined_at`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var players []model.RoomPlayer
	for rows.Next() {
		var p model.RoomPlayer
		var nation sql.NullString
		if err := rows.Scan(&p.RoomID, &p.UserID, &nation, &p.IsBot, &p.BotStrategy, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		p.Nation = nation.String
		players = append(players, p)
	}
	return players, rows.Err()
}

// JoinRoom seats a user as the given nation.
func (r *RoomRepo) JoinRoom(ctx context.Context, roomID, userID, nation string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO room_players (room_id, user_id, nation) VALUES ($1, $2, $3)
		 ON CONFLICT (room_id, user_id) DO NOTHING`,
		roomID, userID, nullStr(nation),
	)
	if err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	return nil
}

// JoinRoomAsBot seats a bot user as the given nation.
func (r *RoomRepo) JoinRoomAsBot(ctx context.Context, roomID, userID, nation, strategy string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO room_players (room_id, user_id, nation, is_bot, bot_strategy) VALUES ($1, $2, $3, true, $4)
		 ON CONFLICT (room_id, user_id) DO NOTHING`,
		roomID, userID, nullStr(nation), strategy,
	)
	if err != nil {
		return fmt.Errorf("join room as bot: %w", err)
	}
	return nil
}

// SetActive moves a room out of the lobby.
func (r *RoomRepo) SetActive(ctx context.Context, roomID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET status = 'active', started_at = now() WHERE id = $1`, roomID)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return nil
}

// SetFinished marks a room as finished. An empty winner records a stopped
// room.
func (r *RoomRepo) SetFinished(ctx context.Context, roomID, winner string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE rooms SET status = 'finished', winner = $1, finished_at = now() WHERE id = $2`,
		nullStr(winner), roomID,
	)
	if err != nil {
		return fmt.Errorf("set finished: %w", err)
	}
	return nil
}

// Delete removes a room and everything that cascades from it.
func (r *RoomRepo) Delete(ctx context.Context, roomID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, roomID)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}
