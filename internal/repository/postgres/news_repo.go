package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/freeeve/hex-conquest/api/internal/model"
)

// NewsRepo archives room news. The live state keeps only the latest items.
type NewsRepo struct {
	db *sql.DB
}

// NewNewsRepo creates a NewsRepo.
func NewNewsRepo(db *sql.DB) *NewsRepo {
	return &NewsRepo{db: db}
}

// Append stores news items in order.
func (r *NewsRepo) Append(ctx context.Context, roomID string, items []model.NewsRecord) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO news (room_id, turn, kind, text, nations) VALUES ($1, $2, $3, $4, $5)`)
	if err != nil {
		return fmt.Errorf("prepare insert news: %w", err)
	}
	defer stmt.Close()

	for _, n := range items {
		nations := n.Nations
		if nations == nil {
			nations = []string{}
		}
		if _, err := stmt.ExecContext(ctx, roomID, n.Turn, n.Kind, n.Text, pq.Array(nations)); err != nil {
			return fmt.Errorf("insert news: %w", err)
		}
	}
	return tx.Commit()
}

// ListByRoom returns up to limit news items, newest first.
func (r *NewsRepo) ListByRoom(ctx context.Context, roomID string, limit int) ([]model.NewsRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, room_id, turn, kind, text, nations, created_at
		 FROM news WHERE room_id = $1 ORDER BY id DESC LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("list news: %w", err)
	}
	defer rows.Close()

	var items []model.NewsRecord
	for rows.Next() {
		var n model.NewsRecord
		if err := rows.Scan(&n.ID, &n.RoomID, &n.Turn, &n.Kind, &n.Text, pq.Array(&n.Nations), &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan news: %w", err)
		}
		items = append(items, n)
	}
	return items, rows.Err()
}
