// Package service provides the leaderboard service and the recovery/sync
// manager behind the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/okian/ladder/internal/adapters/mq/notifier"
	"github.com/okian/ladder/internal/adapters/ranking"
	"github.com/okian/ladder/internal/adapters/repository"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/scoring"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"
)

// Service implements the leaderboard operations. It holds no in-process
// lock around store calls; concurrency control belongs to the stores and
// to the named recovery lock.
type Service struct {
	ranking  ranking.LockingStore
	repo     repository.Repository
	notifier notifier.Notifier

	now          func() time.Time
	newToken     func() string
	storeTimeout time.Duration
	maxLimit     int
	lockKey      string
	lockTTL      time.Duration
	batchSize    int

	logger logger.Logger
}

// UpdateResult describes an applied score update. PersistErr is set when
// the write-through to the repository failed; the ranking was still updated.
type UpdateResult struct {
	PlayerID   string
	Score      int64
	UpdatedAt  time.Time
	PersistErr error
}

// Persisted reports whether the write-through succeeded.
func (r UpdateResult) Persisted() bool { return r.PersistErr == nil }

// BatchResult collects per-entry outcomes of UpdateScoresBatch.
type BatchResult struct {
	Applied []UpdateResult
	Failed  map[string]error
}

// New constructs a Service over the given stores.
func New(store ranking.LockingStore, repo repository.Repository, opts ...Option) *Service {
	s := &Service{
		ranking:      store,
		repo:         repo,
		notifier:     notifier.NopNotifier{},
		now:          time.Now,
		newToken:     uuid.NewString,
		storeTimeout: defaultStoreTimeout,
		maxLimit:     defaultMaxLimit,
		lockKey:      defaultLockKey,
		lockTTL:      defaultLockTTL,
		batchSize:    defaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("leaderboard")
	}
	return s
}

// call runs fn under the per-call store timeout and records its latency.
func (s *Service) call(ctx context.Context, store, op string, fn func(context.Context) error) error {
	return s.callWithin(ctx, s.storeTimeout, store, op, fn)
}

func (s *Service) callWithin(ctx context.Context, d time.Duration, store, op string, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	start := time.Now()
	err := fn(cctx)
	metrics.RecordStoreLatency(store, op, time.Since(start))
	return err
}

func (s *Service) rankingErr(op string, err error) error {
	metrics.RecordRankingStoreError(op)
	metrics.RecordErrorByComponent("ranking", op)
	return fmt.Errorf("%w: %s: %w", ErrRankingStore, op, err)
}

func validate(playerID string, score int64) error {
	if err := model.ValidatePlayerID(playerID); err != nil {
		return err
	}
	return model.ValidateScore(score)
}

// UpdateScore sets playerID's score. The ranking write is authoritative and
// its failure fails the call; the repository write-through is best effort
// and reported through UpdateResult.PersistErr.
func (s *Service) UpdateScore(ctx context.Context, playerID string, score int64) (UpdateResult, error) {
	if err := validate(playerID, score); err != nil {
		metrics.RecordValidationFailure()
		return UpdateResult{}, err
	}

	c, err := scoring.EncodeTime(score, s.now())
	if err != nil {
		return UpdateResult{}, err
	}

	var effective scoring.Composite
	err = s.call(ctx, "ranking", "upsert", func(ctx context.Context) error {
		var err error
		effective, err = s.ranking.Upsert(ctx, playerID, c)
		return err
	})
	if err != nil {
		return UpdateResult{}, s.rankingErr("upsert", err)
	}
	metrics.RecordScoreUpdate()

	res := UpdateResult{
		PlayerID:  playerID,
		Score:     score,
		UpdatedAt: scoring.DecodeAt(effective),
	}

	p := model.Player{PlayerID: playerID, Score: score, UpdatedAt: res.UpdatedAt}
	if err := s.call(ctx, "repository", "save", func(ctx context.Context) error {
		return s.repo.Save(ctx, p)
	}); err != nil {
		metrics.RecordPersistFailure()
		s.logger.Warn(ctx, "write-through failed",
			logger.String("player_id", playerID),
			logger.Int64("score", score),
			logger.Error(err),
		)
		res.PersistErr = fmt.Errorf("%w: %w", ErrPersist, err)
	}

	s.notifier.ScoreUpdated(ctx, model.ScoreChange{PlayerID: playerID, Score: score, UpdatedAt: res.UpdatedAt})
	return res, nil
}

// UpdateScoresBatch applies UpdateScore to every entry in player id order.
// There is no cross-entry atomicity; the returned error joins every
// per-entry failure and is nil only when all entries were applied.
func (s *Service) UpdateScoresBatch(ctx context.Context, scores map[string]int64) (BatchResult, error) {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	res := BatchResult{Applied: make([]UpdateResult, 0, len(ids))}
	var errs []error
	for _, id := range ids {
		r, err := s.UpdateScore(ctx, id, scores[id])
		if err != nil {
			if res.Failed == nil {
				res.Failed = make(map[string]error)
			}
			res.Failed[id] = err
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
			continue
		}
		res.Applied = append(res.Applied, r)
	}
	return res, errors.Join(errs...)
}

// ClampLimit bounds limit to [1, max top limit].
func (s *Service) ClampLimit(limit int) int {
	return max(1, min(limit, s.maxLimit))
}

// TopPlayers returns up to limit players best first with 1-based ranks.
// limit is clamped, never rejected.
func (s *Service) TopPlayers(ctx context.Context, limit int) ([]model.Player, error) {
	limit = s.ClampLimit(limit)

	var members []ranking.Member
	err := s.call(ctx, "ranking", "top", func(ctx context.Context) error {
		var err error
		members, err = s.ranking.TopN(ctx, limit)
		return err
	})
	if err != nil {
		return nil, s.rankingErr("top", err)
	}

	out := make([]model.Player, len(members))
	for i, m := range members {
		out[i] = playerFromMember(m, int64(i)+1)
	}
	return out, nil
}

// GetRank returns playerID's score and 1-based rank. found is false when
// the ranking does not know the player; the repository is not consulted.
func (s *Service) GetRank(ctx context.Context, playerID string) (p model.Player, found bool, err error) {
	if err := model.ValidatePlayerID(playerID); err != nil {
		metrics.RecordValidationFailure()
		return model.Player{}, false, err
	}

	var (
		m    ranking.Member
		rank int64
	)
	err = s.call(ctx, "ranking", "rank", func(ctx context.Context) error {
		var err error
		m, rank, found, err = s.ranking.RankOf(ctx, playerID)
		return err
	})
	if err != nil {
		return model.Player{}, false, s.rankingErr("rank", err)
	}
	if !found {
		return model.Player{}, false, nil
	}
	return playerFromMember(m, rank+1), true, nil
}

// TotalPlayers returns the number of ranked players.
func (s *Service) TotalPlayers(ctx context.Context) (int64, error) {
	var n int64
	err := s.call(ctx, "ranking", "count", func(ctx context.Context) error {
		var err error
		n, err = s.ranking.Count(ctx)
		return err
	})
	if err != nil {
		return 0, s.rankingErr("count", err)
	}
	metrics.UpdateTotalPlayers(n)
	return n, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	stats := map[string]interface{}{
		"maxTopLimit":    s.maxLimit,
		"storeTimeoutMs": s.storeTimeout.Milliseconds(),
		"lockKey":        s.lockKey,
		"lockTtlSeconds": int64(s.lockTTL / time.Second),
	}
	if n, err := s.TotalPlayers(ctx); err == nil {
		stats["totalPlayers"] = n
	} else {
		stats["rankingError"] = err.Error()
	}
	return stats
}

func playerFromMember(m ranking.Member, rank int64) model.Player {
	return model.Player{
		PlayerID:  m.PlayerID,
		Score:     scoring.Decode(m.Composite),
		Rank:      rank,
		UpdatedAt: scoring.DecodeAt(m.Composite),
	}
}
