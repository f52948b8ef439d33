package ranking

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/okian/ladder/internal/domain/scoring"
)

// Default Redis store configuration constants.
const (
	DefaultKey       = "leaderboard:scores"
	defaultBatchSize = 1000
	defaultPageSize  = 5000
)

// upsertScript writes ARGV[2] unless the stored key lies in [ARGV[3], ARGV[4]],
// the composite range of the same raw score. Bounds arrive as exact integers
// so no division happens in Lua. It returns the key in effect.
var upsertScript = rueidis.NewLuaScript(`
local cur = redis.call('ZSCORE', KEYS[1], ARGV[1])
if cur then
	local c = tonumber(cur)
	if c >= tonumber(ARGV[3]) and c <= tonumber(ARGV[4]) then
		return cur
	end
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
return ARGV[2]
`)

// rankScript reads score and reverse rank in one atomic step so a concurrent
// ZADD cannot slip between the two lookups.
var rankScript = rueidis.NewLuaScriptReadOnly(`
local s = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not s then
	return false
end
local r = redis.call('ZREVRANK', KEYS[1], ARGV[1])
return {r, s}
`)

// releaseScript deletes the lock only while it still carries the caller's token.
var releaseScript = rueidis.NewLuaScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisStore keeps the ranking in a Redis sorted set.
type RedisStore struct {
	client    rueidis.Client
	key       string
	batchSize int
	pageSize  int64
}

var _ LockingStore = (*RedisStore)(nil)

// NewRedisClient opens a rueidis client. Client side caching is disabled;
// every read must observe the latest write.
func NewRedisClient(addr, password string, db int) (rueidis.Client, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{addr},
		Password:     password,
		SelectDB:     db,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return client, nil
}

// NewRedisStore wraps an open client. The caller owns the client lifecycle.
func NewRedisStore(client rueidis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		key:       DefaultKey,
		batchSize: defaultBatchSize,
		pageSize:  defaultPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upsert runs upsertScript.
func (s *RedisStore) Upsert(ctx context.Context, playerID string, c scoring.Composite) (scoring.Composite, error) {
	lo, hi := scoring.Bounds(scoring.Decode(c))
	args := []string{
		playerID,
		strconv.FormatInt(int64(c), 10),
		strconv.FormatInt(int64(lo), 10),
		strconv.FormatInt(int64(hi), 10),
	}
	raw, err := upsertScript.Exec(ctx, s.client, []string{s.key}, args).ToString()
	if err != nil {
		return 0, err
	}
	return parseComposite(raw)
}

func parseComposite(raw string) (scoring.Composite, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse score %q: %w", raw, err)
	}
	return scoring.FromFloat(f), nil
}

// TopN returns the first n members of the reverse range.
func (s *RedisStore) TopN(ctx context.Context, n int) ([]Member, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	return s.rangeDesc(ctx, 0, int64(n)-1)
}

func (s *RedisStore) rangeDesc(ctx context.Context, start, stop int64) ([]Member, error) {
	cmd := s.client.B().Zrange().Key(s.key).
		Min(strconv.FormatInt(start, 10)).
		Max(strconv.FormatInt(stop, 10)).
		Rev().Withscores().Build()

	scores, err := s.client.Do(ctx, cmd).AsZScores()
	if err != nil {
		return nil, err
	}
	out := make([]Member, len(scores))
	for i, z := range scores {
		out[i] = Member{PlayerID: z.Member, Composite: scoring.FromFloat(z.Score)}
	}
	return out, nil
}

// RankOf runs rankScript for playerID.
func (s *RedisStore) RankOf(ctx context.Context, playerID string) (Member, int64, bool, error) {
	res := rankScript.Exec(ctx, s.client, []string{s.key}, []string{playerID})
	arr, err := res.ToArray()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return Member{}, 0, false, nil
		}
		return Member{}, 0, false, err
	}
	if len(arr) != 2 {
		return Member{}, 0, false, fmt.Errorf("rank script: unexpected reply length %d", len(arr))
	}
	rank, err := arr[0].AsInt64()
	if err != nil {
		return Member{}, 0, false, fmt.Errorf("rank script: rank: %w", err)
	}
	raw, err := arr[1].ToString()
	if err != nil {
		return Member{}, 0, false, fmt.Errorf("rank script: score: %w", err)
	}
	c, err := parseComposite(raw)
	if err != nil {
		return Member{}, 0, false, fmt.Errorf("rank script: %w", err)
	}
	return Member{PlayerID: playerID, Composite: c}, rank, true, nil
}

// Count returns ZCARD.
func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	return s.client.Do(ctx, s.client.B().Zcard().Key(s.key).Build()).AsInt64()
}

// Clear deletes the sorted set.
func (s *RedisStore) Clear(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Del().Key(s.key).Build()).Error()
}

// BulkLoad pipelines multi-member ZADD NX commands of at most batchSize
// members each.
func (s *RedisStore) BulkLoad(ctx context.Context, members []Member) error {
	if len(members) == 0 {
		return nil
	}
	cmds := make(rueidis.Commands, 0, len(members)/s.batchSize+1)
	for start := 0; start < len(members); start += s.batchSize {
		end := min(start+s.batchSize, len(members))
		b := s.client.B().Zadd().Key(s.key).Nx().ScoreMember()
		for _, m := range members[start:end] {
			b = b.ScoreMember(m.Composite.Float(), m.PlayerID)
		}
		cmds = append(cmds, b.Build())
	}
	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return err
		}
	}
	return nil
}

// All pages through the reverse range. Pages are not a consistent snapshot;
// members moving between pages during concurrent writes may be seen twice or
// missed until the next pass.
func (s *RedisStore) All(ctx context.Context) ([]Member, error) {
	var out []Member
	for start := int64(0); ; start += s.pageSize {
		page, err := s.rangeDesc(ctx, start, start+s.pageSize-1)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if int64(len(page)) < s.pageSize {
			return out, nil
		}
	}
}

// AcquireLock issues SET name token NX EX ttl.
func (s *RedisStore) AcquireLock(ctx context.Context, name, token string, ttl time.Duration) (bool, error) {
	secs := int64(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	cmd := s.client.B().Set().Key(name).Value(token).Nx().ExSeconds(secs).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ReleaseLock runs releaseScript.
func (s *RedisStore) ReleaseLock(ctx context.Context, name, token string) error {
	n, err := releaseScript.Exec(ctx, s.client, []string{name}, []string{token}).AsInt64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// ForceUnlock deletes the lock key.
func (s *RedisStore) ForceUnlock(ctx context.Context, name string) error {
	return s.client.Do(ctx, s.client.B().Del().Key(name).Build()).Error()
}
