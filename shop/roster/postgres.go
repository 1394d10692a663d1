package roster

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PostgresStore keeps the roster in the roster_users table.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open connection pool.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Load returns every stored id in first-seen order.
func (s *PostgresStore) Load(ctx context.Context) ([]int64, error) {
	var ids []int64
	const q = `SELECT user_id FROM roster_users ORDER BY first_seen_at, user_id`
	if err := s.db.SelectContext(ctx, &ids, q); err != nil {
		return nil, fmt.Errorf("roster: load: %w", err)
	}
	return ids, nil
}

// Append inserts id unless it is already present.
func (s *PostgresStore) Append(ctx context.Context, id int64) error {
	const q = `INSERT INTO roster_users (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("roster: append %d: %w", id, err)
	}
	return nil
}
