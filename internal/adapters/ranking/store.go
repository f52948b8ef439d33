// Package ranking holds the ordered participant -> composite key mapping
// that serves every leaderboard read.
package ranking

import (
	"context"
	"time"

	"github.com/okian/ladder/internal/domain/scoring"
)

// Member is one ranking entry.
type Member struct {
	PlayerID  string
	Composite scoring.Composite
}

// Store provides read/write access to the ranking state. Ordering is
// composite key descending; equal keys fall back to player id descending,
// which is how Redis orders equal scores in a reverse range.
type Store interface {
	// Upsert sets the composite key for playerID in one atomic step. When the
	// stored key already encodes the same raw score it is kept, so an
	// unchanged score never loses its tie-break position. It returns the key
	// in effect after the call.
	Upsert(ctx context.Context, playerID string, c scoring.Composite) (scoring.Composite, error)

	// TopN returns up to n members in rank order.
	TopN(ctx context.Context, n int) ([]Member, error)

	// RankOf returns the member and its zero-based rank. found is false when
	// playerID is not in the store.
	RankOf(ctx context.Context, playerID string) (m Member, rank int64, found bool, err error)

	// Count returns the number of distinct participants.
	Count(ctx context.Context) (int64, error)

	// Clear removes every member.
	Clear(ctx context.Context) error

	// BulkLoad inserts members in batches. Members already present keep
	// their current key, so a write racing a rebuild is never rolled back.
	BulkLoad(ctx context.Context, members []Member) error

	// All returns every member in rank order.
	All(ctx context.Context) ([]Member, error)
}

// Locker is a named lease built on an atomic set-if-absent primitive.
type Locker interface {
	// AcquireLock takes name for ttl if nobody holds it. It reports false,
	// without error, when another holder owns a live lease.
	AcquireLock(ctx context.Context, name, token string, ttl time.Duration) (bool, error)

	// ReleaseLock frees name if token still owns it, otherwise it returns
	// ErrLockNotHeld.
	ReleaseLock(ctx context.Context, name, token string) error

	// ForceUnlock frees name regardless of the owner.
	ForceUnlock(ctx context.Context, name string) error
}

// LockingStore is a Store that also provides the recovery lock.
type LockingStore interface {
	Store
	Locker
}
