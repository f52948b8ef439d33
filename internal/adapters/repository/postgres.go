package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/ladder/internal/domain/model"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS players (
	player_id  TEXT PRIMARY KEY,
	score      BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_players_score ON players(score DESC, updated_at ASC);
`

const upsertSQL = `
INSERT INTO players (player_id, score, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (player_id) DO UPDATE SET score = EXCLUDED.score, updated_at = EXCLUDED.updated_at
WHERE players.updated_at <= EXCLUDED.updated_at`

// PostgresRepository stores rows in the players table.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository connects to databaseURL and ensures the schema exists.
func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if databaseURL == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create players table: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// Save implements Repository.Save.
func (r *PostgresRepository) Save(ctx context.Context, p model.Player) error {
	_, err := r.pool.Exec(ctx, upsertSQL, p.PlayerID, p.Score, p.UpdatedAt.UTC())
	return err
}

// FindByID implements Repository.FindByID.
func (r *PostgresRepository) FindByID(ctx context.Context, playerID string) (model.Player, error) {
	p := model.Player{PlayerID: playerID}
	err := r.pool.QueryRow(ctx,
		`SELECT score, updated_at FROM players WHERE player_id = $1`, playerID,
	).Scan(&p.Score, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Player{}, ErrNotFound
		}
		return model.Player{}, err
	}
	return p, nil
}

// FindAllOrderedByScore implements Repository.FindAllOrderedByScore.
func (r *PostgresRepository) FindAllOrderedByScore(ctx context.Context, limit int) ([]model.Player, error) {
	q := `SELECT player_id, score, updated_at FROM players ORDER BY score DESC, updated_at ASC, player_id ASC`
	var args []any
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Player
	for rows.Next() {
		var p model.Player
		if err := rows.Scan(&p.PlayerID, &p.Score, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Count implements Repository.Count.
func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM players`).Scan(&n)
	return n, err
}

// Close closes the connection pool.
func (r *PostgresRepository) Close(context.Context) error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}
