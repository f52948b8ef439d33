package ranking

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/okian/ladder/internal/domain/scoring"
)

func mustEncode(t *testing.T, raw, at int64) scoring.Composite {
	t.Helper()
	c, err := scoring.Encode(raw, at)
	require.NoError(t, err)
	return c
}

func upsert(t *testing.T, s Store, id string, c scoring.Composite) {
	t.Helper()
	_, err := s.Upsert(context.Background(), id, c)
	require.NoError(t, err)
}

// runStoreContract exercises behaviour every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) LockingStore) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		s := newStore(t)
		n, err := s.Count(ctx)
		require.NoError(t, err)
		require.Zero(t, n)

		top, err := s.TopN(ctx, 10)
		require.NoError(t, err)
		require.Empty(t, top)

		_, _, found, err := s.RankOf(ctx, "ghost")
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("ordering", func(t *testing.T) {
		s := newStore(t)
		upsert(t, s, "alice", mustEncode(t, 100, 1_700_000_000))
		upsert(t, s, "bob", mustEncode(t, 200, 1_700_000_000))
		upsert(t, s, "carol", mustEncode(t, 150, 1_700_000_000))

		top, err := s.TopN(ctx, 10)
		require.NoError(t, err)
		require.Len(t, top, 3)
		require.Equal(t, "bob", top[0].PlayerID)
		require.Equal(t, "carol", top[1].PlayerID)
		require.Equal(t, "alice", top[2].PlayerID)
		require.Equal(t, int64(200), scoring.Decode(top[0].Composite))

		top, err = s.TopN(ctx, 2)
		require.NoError(t, err)
		require.Len(t, top, 2)

		m, rank, found, err := s.RankOf(ctx, "alice")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, int64(2), rank)
		require.Equal(t, int64(100), scoring.Decode(m.Composite))
	})

	t.Run("earlier update wins tie", func(t *testing.T) {
		s := newStore(t)
		upsert(t, s, "late", mustEncode(t, 500, 1_700_000_100))
		upsert(t, s, "early", mustEncode(t, 500, 1_700_000_000))

		top, err := s.TopN(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, "early", top[0].PlayerID)
		require.Equal(t, "late", top[1].PlayerID)
	})

	t.Run("same second falls back to id descending", func(t *testing.T) {
		s := newStore(t)
		c := mustEncode(t, 42, 1_700_000_000)
		upsert(t, s, "a", c)
		upsert(t, s, "b", c)

		top, err := s.TopN(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, "b", top[0].PlayerID)
		require.Equal(t, "a", top[1].PlayerID)
	})

	t.Run("upsert replaces", func(t *testing.T) {
		s := newStore(t)
		upsert(t, s, "p", mustEncode(t, 500, 1_700_000_000))
		upsert(t, s, "q", mustEncode(t, 300, 1_700_000_000))
		upsert(t, s, "p", mustEncode(t, 100, 1_700_000_050))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(2), n)

		m, rank, found, err := s.RankOf(ctx, "p")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, int64(1), rank)
		require.Equal(t, int64(100), scoring.Decode(m.Composite))
		require.Equal(t, int64(1_700_000_050), scoring.DecodeTime(m.Composite))
	})

	t.Run("same raw score keeps first key", func(t *testing.T) {
		s := newStore(t)
		first := mustEncode(t, 700, 1_700_000_000)
		upsert(t, s, "first", first)
		upsert(t, s, "second", mustEncode(t, 700, 1_700_000_010))

		got, err := s.Upsert(ctx, "first", mustEncode(t, 700, 1_700_000_020))
		require.NoError(t, err)
		require.Equal(t, first, got)

		_, rank, found, err := s.RankOf(ctx, "first")
		require.NoError(t, err)
		require.True(t, found)
		require.Zero(t, rank)

		changed := mustEncode(t, 701, 1_700_000_030)
		got, err = s.Upsert(ctx, "first", changed)
		require.NoError(t, err)
		require.Equal(t, changed, got)
	})

	t.Run("zero score ranks last", func(t *testing.T) {
		s := newStore(t)
		upsert(t, s, "zero", mustEncode(t, 0, 1_700_000_000))
		upsert(t, s, "one", mustEncode(t, 1, 1_700_000_000))

		m, rank, found, err := s.RankOf(ctx, "zero")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, int64(1), rank)
		require.Equal(t, int64(0), scoring.Decode(m.Composite))
	})

	t.Run("invalid limit", func(t *testing.T) {
		s := newStore(t)
		_, err := s.TopN(ctx, 0)
		require.ErrorIs(t, err, ErrInvalidLimit)
	})

	t.Run("bulk load and all", func(t *testing.T) {
		s := newStore(t)
		members := make([]Member, 0, 25)
		for i := range 25 {
			members = append(members, Member{
				PlayerID:  fmt.Sprintf("p%02d", i),
				Composite: mustEncode(t, int64(i), 1_700_000_000),
			})
		}
		require.NoError(t, s.BulkLoad(ctx, members))
		require.NoError(t, s.BulkLoad(ctx, nil))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(25), n)

		all, err := s.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, 25)
		require.Equal(t, "p24", all[0].PlayerID)
		require.Equal(t, "p00", all[24].PlayerID)

		require.NoError(t, s.Clear(ctx))
		n, err = s.Count(ctx)
		require.NoError(t, err)
		require.Zero(t, n)
	})

	t.Run("bulk load keeps existing members", func(t *testing.T) {
		s := newStore(t)
		fresh := mustEncode(t, 900, 1_700_000_100)
		upsert(t, s, "racer", fresh)

		require.NoError(t, s.BulkLoad(ctx, []Member{
			{PlayerID: "racer", Composite: mustEncode(t, 10, 1_700_000_000)},
			{PlayerID: "other", Composite: mustEncode(t, 20, 1_700_000_000)},
		}))

		m, rank, found, err := s.RankOf(ctx, "racer")
		require.NoError(t, err)
		require.True(t, found)
		require.Zero(t, rank)
		require.Equal(t, fresh, m.Composite)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(2), n)
	})

	t.Run("lock", func(t *testing.T) {
		s := newStore(t)
		name := fmt.Sprintf("test:lock:%d", time.Now().UnixNano())
		t.Cleanup(func() { _ = s.ForceUnlock(context.Background(), name) })

		ok, err := s.AcquireLock(ctx, name, "t1", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.AcquireLock(ctx, name, "t2", time.Minute)
		require.NoError(t, err)
		require.False(t, ok)

		require.ErrorIs(t, s.ReleaseLock(ctx, name, "t2"), ErrLockNotHeld)
		require.NoError(t, s.ReleaseLock(ctx, name, "t1"))

		ok, err = s.AcquireLock(ctx, name, "t2", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, s.ForceUnlock(ctx, name))
		ok, err = s.AcquireLock(ctx, name, "t3", time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
	})
}
