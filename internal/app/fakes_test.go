package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okian/ladder/internal/adapters/ranking"
	"github.com/okian/ladder/internal/adapters/repository"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/scoring"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// errBlock makes a flakyStore operation wait for its context to end.
var errBlock = errors.New("block until deadline")

// flakyStore fails the operations named in fail. beforeBulk, when set, runs
// once ahead of the next BulkLoad.
type flakyStore struct {
	*ranking.TreapStore
	mu         sync.Mutex
	fail       map[string]error
	beforeBulk func()
}

func newFlakyStore(opts ...ranking.Option) *flakyStore {
	return &flakyStore{TreapStore: ranking.NewTreapStore(opts...), fail: map[string]error{}}
}

func (f *flakyStore) failOn(op string, err error) {
	f.mu.Lock()
	f.fail[op] = err
	f.mu.Unlock()
}

func (f *flakyStore) err(ctx context.Context, op string) error {
	f.mu.Lock()
	err := f.fail[op]
	f.mu.Unlock()
	if errors.Is(err, errBlock) {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *flakyStore) Upsert(ctx context.Context, id string, c scoring.Composite) (scoring.Composite, error) {
	if err := f.err(ctx, "upsert"); err != nil {
		return 0, err
	}
	return f.TreapStore.Upsert(ctx, id, c)
}

func (f *flakyStore) TopN(ctx context.Context, n int) ([]ranking.Member, error) {
	if err := f.err(ctx, "top"); err != nil {
		return nil, err
	}
	return f.TreapStore.TopN(ctx, n)
}

func (f *flakyStore) RankOf(ctx context.Context, id string) (ranking.Member, int64, bool, error) {
	if err := f.err(ctx, "rank"); err != nil {
		return ranking.Member{}, 0, false, err
	}
	return f.TreapStore.RankOf(ctx, id)
}

func (f *flakyStore) Count(ctx context.Context) (int64, error) {
	if err := f.err(ctx, "count"); err != nil {
		return 0, err
	}
	return f.TreapStore.Count(ctx)
}

func (f *flakyStore) onBulkLoad(fn func()) {
	f.mu.Lock()
	f.beforeBulk = fn
	f.mu.Unlock()
}

func (f *flakyStore) BulkLoad(ctx context.Context, members []ranking.Member) error {
	if err := f.err(ctx, "bulk_load"); err != nil {
		return err
	}
	f.mu.Lock()
	hook := f.beforeBulk
	f.beforeBulk = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return f.TreapStore.BulkLoad(ctx, members)
}

func (f *flakyStore) All(ctx context.Context) ([]ranking.Member, error) {
	if err := f.err(ctx, "all"); err != nil {
		return nil, err
	}
	return f.TreapStore.All(ctx)
}

func (f *flakyStore) AcquireLock(ctx context.Context, name, token string, ttl time.Duration) (bool, error) {
	if err := f.err(ctx, "lock"); err != nil {
		return false, err
	}
	return f.TreapStore.AcquireLock(ctx, name, token, ttl)
}

func (f *flakyStore) ReleaseLock(ctx context.Context, name, token string) error {
	if err := f.err(ctx, "release"); err != nil {
		return err
	}
	return f.TreapStore.ReleaseLock(ctx, name, token)
}

// flakyRepo fails Save for the players in failSave, or every call when
// failAll is set.
type flakyRepo struct {
	*repository.MemoryRepository
	mu       sync.Mutex
	failSave map[string]error
	failAll  error
}

func newFlakyRepo() *flakyRepo {
	return &flakyRepo{MemoryRepository: repository.NewMemoryRepository(), failSave: map[string]error{}}
}

func (r *flakyRepo) setFailAll(err error) {
	r.mu.Lock()
	r.failAll = err
	r.mu.Unlock()
}

func (r *flakyRepo) failSaveFor(id string, err error) {
	r.mu.Lock()
	r.failSave[id] = err
	r.mu.Unlock()
}

func (r *flakyRepo) saveErr(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll != nil {
		return r.failAll
	}
	return r.failSave[id]
}

func (r *flakyRepo) Save(ctx context.Context, p model.Player) error {
	if err := r.saveErr(p.PlayerID); err != nil {
		return err
	}
	return r.MemoryRepository.Save(ctx, p)
}

func (r *flakyRepo) FindAllOrderedByScore(ctx context.Context, limit int) ([]model.Player, error) {
	r.mu.Lock()
	err := r.failAll
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.MemoryRepository.FindAllOrderedByScore(ctx, limit)
}
