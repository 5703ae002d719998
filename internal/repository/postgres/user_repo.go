package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freeeve/hex-conquest/api/internal/model"
)

const userColumns = `id, provider, provider_id, display_name, avatar_url, created_at, updated_at`

func scanUser(row rowScanner) (*model.User, error) {
	var u model.User
	var avatar sql.NullString
	if err := row.Scan(&u.ID, &u.Provider, &u.ProviderID, &u.DisplayName, &avatar, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.AvatarURL = avatar.String
	return &u, nil
}

// UserRepo handles player account storage.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo creates a UserRepo.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) findOne(ctx context.Context, what, query string, args ...any) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by %s: %w", what, err)
	}
	return u, nil
}

// FindByProviderID looks up a user by sign-in provider and provider account id.
func (r *UserRepo) FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error) {
	return r.findOne(ctx, "provider",
		`SELECT `+userColumns+` FROM users WHERE provider = $1 AND provider_id = $2`, provider, providerID)
}

// FindByID looks up a user by id, returning nil when absent.
func (r *UserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, "id", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// Upsert creates a user on first sign-in. Later sign-ins refresh the avatar
// but keep a display name the player chose.
func (r *UserRepo) Upsert(ctx context.Context, provider, providerID, displayName, avatarURL string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`INSERT INTO users (provider, provider_id, display_name, avatar_url)
		 VALUES ($1, $2, $3, NULLIF($4, ''))
		 ON CONFLICT (provider, provider_id)
		 DO UPDATE SET avatar_url = EXCLUDED.avatar_url, updated_at = now()
		 RETURNING `+userColumns,
		provider, providerID, displayName, avatarURL,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

// UpdateDisplayName renames a player.
func (r *UserRepo) UpdateDisplayName(ctx context.Context, id, displayName string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET display_name = $1, updated_at = now() WHERE id = $2`, displayName, id)
	if err != nil {
		return fmt.Errorf("update display name: %w", err)
	}
	return nil
}

// Record counts the rooms a user held a nation in, split by outcome.
func (r *UserRepo) Record(ctx context.Context, id string) (*model.PlayerRecord, error) {
	var rec model.PlayerRecord
	err := r.db.QueryRowContext(ctx,
		`SELECT
		   count(*) FILTER (WHERE rm.status = 'finished'),
		   count(*) FILTER (WHERE rm.status = 'finished' AND rm.winner = rp.nation),
		   count(*) FILTER (WHERE rm.status = 'active')
		 FROM room_players rp JOIN rooms rm ON rm.id = rp.room_id
		 WHERE rp.user_id = $1 AND rp.nation IS NOT NULL`, id,
	).Scan(&rec.Played, &rec.Won, &rec.Active)
	if err != nil {
		return nil, fmt.Errorf("player record: %w", err)
	}
	return &rec, nil
}
