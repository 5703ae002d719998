package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/freeeve/hex-conquest/api/internal/model"
)

// TurnRepo handles turn and intent archive database operations.
type TurnRepo struct {
	db *sql.DB
}

// NewTurnRepo creates a TurnRepo.
func NewTurnRepo(db *sql.DB) *TurnRepo {
	return &TurnRepo{db: db}
}

// CreateTurn inserts a new unresolved turn.
func (r *TurnRepo) CreateTurn(ctx context.Context, roomID string, number int, stateBefore json.RawMessage, deadline time.Time) (*model.Turn, error) {
	var t model.Turn
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO turns (room_id, number, state_before, deadline)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, room_id, number, state_before, deadline, created_at`,
		roomID, number, []byte(stateBefore), deadline,
	).Scan(&t.ID, &t.RoomID, &t.Number, &t.StateBefore, &t.Deadline, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create turn: %w", err)
	}
	return &t, nil
}

func scanTurn(row rowScanner) (*model.Turn, error) {
	var t model.Turn
	var stateAfter, result []byte
	if err := row.Scan(&t.ID, &t.RoomID, &t.Number, &t.StateBefore, &stateAfter, &result, &t.Deadline, &t.ResolvedAt, &t.CreatedAt); err != nil {
		return nil, err
	}
	if stateAfter != nil {
		t.StateAfter = json.RawMessage(stateAfter)
	}
	if result != nil {
		t.Result = json.RawMessage(result)
	}
	return &t, nil
}

// CurrentTurn returns the latest unresolved turn of a room, or nil.
func (r *TurnRepo) CurrentTurn(ctx context.Context, roomID string) (*model.Turn, error) {
	t, err := scanTurn(r.db.QueryRowContext(ctx,
		`SELECT id, room_id, number, state_before, state_after, result, deadline, resolved_at, created_at
		 FROM turns WHERE room_id = $1 AND resolved_at IS NULL
		 ORDER BY number DESC LIMIT 1`, roomID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("current turn: %w", err)
	}
	return t, nil
}

// ListTurns returns all turns of a room in order.
func (r *TurnRepo) ListTurns(ctx context.Context, roomID string) ([]model.Turn, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, room_id, number, state_before, state_after, result, deadline, resolved_at, created_at
		 FROM turns WHERE room_id = $1 ORDER BY number`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		t, err := scanTurn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, *t)
	}
	return turns, rows.Err()
}

// ResolveTurn marks a turn resolved and stores the resulting state and report.
func (r *TurnRepo) ResolveTurn(ctx context.Context, turnID string, stateAfter, result json.RawMessage) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE turns SET state_after = $1, result = $2, resolved_at = now() WHERE id = $3`,
		[]byte(stateAfter), []byte(result), turnID,
	)
	if err != nil {
		return fmt.Errorf("resolve turn: %w", err)
	}
	return nil
}

// SaveIntents archives a batch of resolved intents.
func (r *TurnRepo) SaveIntents(ctx context.Context, intents []model.IntentRecord) error {
	if len(intents) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO intents (id, turn_id, nation, slot, kind, payload, status, reason)
		 VALUES (COALESCE(NULLIF($1::text, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		return fmt.Errorf("prepare insert intent: %w", err)
	}
	defer stmt.Close()

	for _, in := range intents {
		_, err := stmt.ExecContext(ctx, in.ID, in.TurnID, in.Nation, in.Slot, in.Kind,
			[]byte(in.Payload), in.Status, nullStr(in.Reason))
		if err != nil {
			return fmt.Errorf("insert intent: %w", err)
		}
	}
	return tx.Commit()
}

// IntentsByTurn returns the archived intents of a turn.
func (r *TurnRepo) IntentsByTurn(ctx context.Context, turnID string) ([]model.IntentRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, turn_id, nation, slot, kind, payload, status, reason, created_at
		 FROM intents WHERE turn_id = $1 ORDER BY nation, slot`, turnID)
	if err != nil {
		return nil, fmt.Errorf("intents by turn: %w", err)
	}
	defer rows.Close()

	var intents []model.IntentRecord
	for rows.Next() {
		var in model.IntentRecord
		var reason sql.NullString
		if err := rows.Scan(&in.ID, &in.TurnID, &in.Nation, &in.Slot, &in.Kind, &in.Payload, &in.Status, &reason, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan intent: %w", err)
		}
		in.Reason = reason.String
		intents = append(intents, in)
	}
	return intents, rows.Err()
}

// ListExpired returns the latest unresolved turn per active room whose
// deadline has passed.
func (r *TurnRepo) ListExpired(ctx context.Context) ([]model.Turn, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT ON (t.room_id) t.id, t.room_id, t.number, t.state_before, t.deadline, t.created_at
		 FROM turns t
		 JOIN rooms rm ON rm.id = t.room_id
		 WHERE t.resolved_at IS NULL AND t.deadline < now() AND rm.status = 'active'
		 ORDER BY t.room_id, t.number DESC`)
	if err != nil {
		return nil, fmt.Errorf("list expired turns: %w", err)
	}
	defer rows.Close()

	var turns []model.Turn
	for rows.Next() {
		var t model.Turn
		if err := rows.Scan(&t.ID, &t.RoomID, &t.Number, &t.StateBefore, &t.Deadline, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan expired turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
