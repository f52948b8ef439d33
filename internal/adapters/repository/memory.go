package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/okian/ladder/internal/domain/model"
)

// MemoryRepository keeps rows in a map. It backs standalone runs and tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows map[string]model.Player
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]model.Player)}
}

// Save implements Repository.Save.
func (r *MemoryRepository) Save(ctx context.Context, p model.Player) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.Rank = 0
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.rows[p.PlayerID]; ok && old.UpdatedAt.After(p.UpdatedAt) {
		return nil
	}
	r.rows[p.PlayerID] = p
	return nil
}

// FindByID implements Repository.FindByID.
func (r *MemoryRepository) FindByID(ctx context.Context, playerID string) (model.Player, error) {
	if err := ctx.Err(); err != nil {
		return model.Player{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.rows[playerID]
	if !ok {
		return model.Player{}, ErrNotFound
	}
	return p, nil
}

// FindAllOrderedByScore implements Repository.FindAllOrderedByScore.
func (r *MemoryRepository) FindAllOrderedByScore(ctx context.Context, limit int) ([]model.Player, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]model.Player, 0, len(r.rows))
	for _, p := range r.rows {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count implements Repository.Count.
func (r *MemoryRepository) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.rows)), nil
}

// Close is a no-op.
func (r *MemoryRepository) Close(context.Context) error { return nil }

// Clear drops every row.
func (r *MemoryRepository) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.rows = make(map[string]model.Player)
	r.mu.Unlock()
	return nil
}
