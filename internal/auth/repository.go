package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// APIKey is a stored operator or analyzer key. Only the bcrypt hash is kept.
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Role       string     `json:"role"`
	KeyHash    string     `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// Repository handles api_keys.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListActive returns keys that have not been revoked.
func (r *Repository) ListActive(ctx context.Context) ([]APIKey, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, role, key_hash, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []APIKey
	for rows.Next() {
		var k APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.Role, &k.KeyHash, &k.CreatedAt, &k.LastUsedAt); err != nil {
			return nil, err
		}
		list = append(list, k)
	}
	return list, rows.Err()
}

// Upsert stores a key hash under name, replacing any previous hash.
func (r *Repository) Upsert(ctx context.Context, name, role, keyHash string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO api_keys (name, role, key_hash) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET role = EXCLUDED.role, key_hash = EXCLUDED.key_hash, revoked_at = NULL`,
		name, role, keyHash)
	return err
}

// MarkUsed stamps last_used_at.
func (r *Repository) MarkUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`, id)
	return err
}
