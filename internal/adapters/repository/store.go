// Package repository defines the durable record store consulted by recovery
// and sync, and its backends.
package repository

import (
	"context"

	"github.com/okian/ladder/internal/domain/model"
)

// Repository is the durable mirror of (player, raw score, updated at) rows.
// It is never read on the hot path.
type Repository interface {
	// Save inserts or updates the row for p.PlayerID. A row whose UpdatedAt
	// is older than the stored one is ignored without error.
	Save(ctx context.Context, p model.Player) error

	// FindByID returns ErrNotFound when the player has no row.
	FindByID(ctx context.Context, playerID string) (model.Player, error)

	// FindAllOrderedByScore returns rows by score descending, earlier
	// updates first on equal scores. limit <= 0 returns every row.
	FindAllOrderedByScore(ctx context.Context, limit int) ([]model.Player, error)

	// Count returns the number of rows.
	Count(ctx context.Context) (int64, error)

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}
