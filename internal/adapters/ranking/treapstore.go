package ranking

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/ladder/internal/domain/scoring"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: composite DESC, then playerID DESC (matches ZREVRANGE).
// We implement a BST comparator where "less" means ranks earlier, so an
// in-order traversal produces the leaderboard from best to worst. Subtree
// sizes make rank lookups O(log n).

// treap node
type node struct {
	id    string
	key   scoring.Composite
	prio  uint64
	left  *node
	right *node
	size  int64
}

func nsize(n *node) int64 {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aKey, aID) should appear before (bKey, bID).
func less(aKey scoring.Composite, aID string, bKey scoring.Composite, bID string) bool {
	if aKey != bKey {
		return aKey > bKey
	}
	return aID > bID
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, key scoring.Composite) *node {
	if n == nil {
		return &node{id: id, key: key, prio: rand.Uint64(), size: 1}
	}
	if less(key, id, n.key, n.id) {
		n.left = insert(n.left, id, key)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, key)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, key scoring.Composite) *node {
	if n == nil {
		return nil
	}
	if key == n.key && id == n.id {
		// Merge children by rotating highest priority up until leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, key)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, key)
		}
	} else if less(key, id, n.key, n.id) {
		n.left = deleteNode(n.left, id, key)
	} else {
		n.right = deleteNode(n.right, id, key)
	}
	fix(n)
	return n
}

// position counts the members ranked ahead of (key, id).
func position(n *node, id string, key scoring.Composite) int64 {
	var before int64
	for n != nil {
		switch {
		case key == n.key && id == n.id:
			return before + nsize(n.left)
		case less(key, id, n.key, n.id):
			n = n.left
		default:
			before += nsize(n.left) + 1
			n = n.right
		}
	}
	return before
}

// collect appends up to limit members in rank order; limit < 0 means all.
func collect(n *node, limit int, out *[]Member) {
	if n == nil || (limit >= 0 && len(*out) >= limit) {
		return
	}
	collect(n.left, limit, out)
	if limit < 0 || len(*out) < limit {
		*out = append(*out, Member{PlayerID: n.id, Composite: n.key})
	}
	collect(n.right, limit, out)
}

type lease struct {
	token   string
	expires time.Time
}

// TreapStore keeps the ranking in process memory. It implements both Store
// and Locker, which makes it a drop-in for a single-process deployment and
// for tests.
type TreapStore struct {
	mu    sync.RWMutex
	root  *node
	byID  map[string]scoring.Composite
	locks map[string]lease
	now   func() time.Time
}

var _ LockingStore = (*TreapStore)(nil)

// NewTreapStore constructs a treap store with configuration options.
func NewTreapStore(opts ...Option) *TreapStore {
	s := &TreapStore{
		byID:  make(map[string]scoring.Composite),
		locks: make(map[string]lease),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert implements Store.Upsert with O(log n) expected time.
func (s *TreapStore) Upsert(ctx context.Context, playerID string, c scoring.Composite) (scoring.Composite, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byID[playerID]; ok && scoring.Decode(old) == scoring.Decode(c) {
		return old, nil
	}
	s.upsertLocked(playerID, c)
	return c, nil
}

func (s *TreapStore) upsertLocked(playerID string, c scoring.Composite) {
	if old, ok := s.byID[playerID]; ok {
		if old == c {
			return
		}
		s.root = deleteNode(s.root, playerID, old)
	}
	s.byID[playerID] = c
	s.root = insert(s.root, playerID, c)
}

// TopN returns the top n members.
func (s *TreapStore) TopN(ctx context.Context, n int) ([]Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Member, 0, min(n, len(s.byID)))
	collect(s.root, n, &out)
	return out, nil
}

// RankOf returns the member and its zero-based rank in O(log n).
func (s *TreapStore) RankOf(ctx context.Context, playerID string) (Member, int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return Member{}, 0, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[playerID]
	if !ok {
		return Member{}, 0, false, nil
	}
	return Member{PlayerID: playerID, Composite: c}, position(s.root, playerID, c), true, nil
}

// Count returns the number of participants.
func (s *TreapStore) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byID)), nil
}

// Clear drops every member.
func (s *TreapStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.root = nil
	s.byID = make(map[string]scoring.Composite)
	s.mu.Unlock()
	return nil
}

// BulkLoad inserts all absent members under a single write lock.
func (s *TreapStore) BulkLoad(ctx context.Context, members []Member) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	for _, m := range members {
		if _, ok := s.byID[m.PlayerID]; ok {
			continue
		}
		s.upsertLocked(m.PlayerID, m.Composite)
	}
	s.mu.Unlock()
	return nil
}

// All returns every member in rank order.
func (s *TreapStore) All(ctx context.Context) ([]Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Member, 0, len(s.byID))
	collect(s.root, -1, &out)
	return out, nil
}

// AcquireLock takes name unless a live lease exists.
func (s *TreapStore) AcquireLock(ctx context.Context, name, token string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if l, ok := s.locks[name]; ok && now.Before(l.expires) {
		return false, nil
	}
	s.locks[name] = lease{token: token, expires: now.Add(ttl)}
	return true, nil
}

// ReleaseLock frees name when token owns a live lease.
func (s *TreapStore) ReleaseLock(ctx context.Context, name, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[name]
	if !ok || l.token != token || !s.now().Before(l.expires) {
		return ErrLockNotHeld
	}
	delete(s.locks, name)
	return nil
}

// ForceUnlock frees name.
func (s *TreapStore) ForceUnlock(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.locks, name)
	s.mu.Unlock()
	return nil
}
