package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/ladder/internal/adapters/ranking"
	"github.com/okian/ladder/internal/domain/model"
	"github.com/okian/ladder/internal/domain/scoring"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"
)

// RecoveryResult reports the work done by a rebuild or sync. Contended is
// true when another holder owned the recovery lock and nothing ran.
type RecoveryResult struct {
	Processed int
	Failed    int
	Contended bool
}

// NeedsRecovery reports whether the ranking is empty while the repository
// holds at least one row. It takes no lock.
func (s *Service) NeedsRecovery(ctx context.Context) (bool, error) {
	n, err := s.TotalPlayers(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}

	var rows []model.Player
	err = s.call(ctx, "repository", "probe", func(ctx context.Context) error {
		var err error
		rows, err = s.repo.FindAllOrderedByScore(ctx, 1)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("%w: probe: %w", ErrRepository, err)
	}
	return len(rows) > 0, nil
}

// withLock runs fn while holding the recovery lock. acquired is false when
// another holder owns the lock; fn does not run and no error is returned.
// The lock is released on every exit path, including panics in fn.
func (s *Service) withLock(ctx context.Context, op string, fn func(context.Context) error) (acquired bool, err error) {
	token := s.newToken()

	err = s.call(ctx, "ranking", "lock", func(ctx context.Context) error {
		var err error
		acquired, err = s.ranking.AcquireLock(ctx, s.lockKey, token, s.lockTTL)
		return err
	})
	if err != nil {
		return false, s.rankingErr("lock", err)
	}
	if !acquired {
		metrics.RecordLockContention(op)
		s.logger.Warn(ctx, "recovery lock held elsewhere, skipping", logger.String("operation", op))
		return false, nil
	}

	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
		defer cancel()
		switch rerr := s.ranking.ReleaseLock(rctx, s.lockKey, token); {
		case errors.Is(rerr, ranking.ErrLockNotHeld):
			s.logger.Warn(ctx, "recovery lock lease expired before release", logger.String("operation", op))
		case rerr != nil:
			s.logger.Error(ctx, "release recovery lock", logger.String("operation", op), logger.Error(rerr))
		}
	}()

	return true, fn(ctx)
}

// Rebuild replaces the ranking with the repository contents under the
// recovery lock. Rows are read before the ranking is cleared, so a
// repository failure leaves the current ranking untouched. Each row keeps
// its stored update time, preserving tie-break order. The load only adds
// players the ranking does not hold yet, so a score written between the
// read and the load wins over its older row.
func (s *Service) Rebuild(ctx context.Context) (RecoveryResult, error) {
	var res RecoveryResult
	start := time.Now()

	acquired, err := s.withLock(ctx, "rebuild", func(ctx context.Context) error {
		var rows []model.Player
		err := s.callWithin(ctx, s.lockTTL, "repository", "find_all", func(ctx context.Context) error {
			var err error
			rows, err = s.repo.FindAllOrderedByScore(ctx, 0)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: find all: %w", ErrRepository, err)
		}

		members := make([]ranking.Member, 0, len(rows))
		for _, row := range rows {
			at := row.UpdatedAt
			if at.IsZero() {
				at = s.now()
			}
			c, err := scoring.EncodeTime(row.Score, at)
			if err != nil {
				res.Failed++
				s.logger.Warn(ctx, "skipping unencodable row",
					logger.String("player_id", row.PlayerID),
					logger.Int64("score", row.Score),
					logger.Error(err),
				)
				continue
			}
			members = append(members, ranking.Member{PlayerID: row.PlayerID, Composite: c})
		}

		if err := s.call(ctx, "ranking", "clear", s.ranking.Clear); err != nil {
			return s.rankingErr("clear", err)
		}
		for lo := 0; lo < len(members); lo += s.batchSize {
			batch := members[lo:min(lo+s.batchSize, len(members))]
			if err := s.callWithin(ctx, s.lockTTL, "ranking", "bulk_load", func(ctx context.Context) error {
				return s.ranking.BulkLoad(ctx, batch)
			}); err != nil {
				return s.rankingErr("bulk_load", err)
			}
			res.Processed += len(batch)
		}
		return nil
	})
	if !acquired {
		res.Contended = err == nil
		return res, err
	}
	if err != nil {
		s.logger.Error(ctx, "rebuild failed", logger.Int("loaded", res.Processed), logger.Error(err))
		return res, err
	}

	metrics.RecordRebuild(res.Processed, time.Since(start))
	s.logger.Info(ctx, "rebuild complete",
		logger.Int("loaded", res.Processed),
		logger.Int("skipped", res.Failed),
		logger.Duration("took", time.Since(start)),
	)
	return res, nil
}

// Sync writes every ranked player back to the repository under the
// recovery lock. Per-player failures are logged and counted; they never
// abort the remaining players.
func (s *Service) Sync(ctx context.Context) (RecoveryResult, error) {
	var res RecoveryResult
	start := time.Now()

	acquired, err := s.withLock(ctx, "sync", func(ctx context.Context) error {
		var members []ranking.Member
		err := s.callWithin(ctx, s.lockTTL, "ranking", "all", func(ctx context.Context) error {
			var err error
			members, err = s.ranking.All(ctx)
			return err
		})
		if err != nil {
			return s.rankingErr("all", err)
		}

		for _, m := range members {
			p := playerFromMember(m, 0)
			if err := s.call(ctx, "repository", "save", func(ctx context.Context) error {
				return s.repo.Save(ctx, p)
			}); err != nil {
				res.Failed++
				s.logger.Warn(ctx, "sync entry failed", logger.String("player_id", m.PlayerID), logger.Error(err))
				continue
			}
			res.Processed++
		}
		return nil
	})
	if !acquired {
		res.Contended = err == nil
		return res, err
	}
	if err != nil {
		s.logger.Error(ctx, "sync failed", logger.Error(err))
		return res, err
	}

	metrics.RecordSync(res.Processed, res.Failed, time.Since(start))
	s.logger.Info(ctx, "sync complete",
		logger.Int("synced", res.Processed),
		logger.Int("failed", res.Failed),
		logger.Duration("took", time.Since(start)),
	)
	return res, nil
}

// Recover rebuilds the ranking when NeedsRecovery reports true.
func (s *Service) Recover(ctx context.Context) (RecoveryResult, error) {
	needed, err := s.NeedsRecovery(ctx)
	if err != nil || !needed {
		return RecoveryResult{}, err
	}
	s.logger.Info(ctx, "ranking empty with populated repository, rebuilding")
	return s.Rebuild(ctx)
}

// ForceUnlock releases the recovery lock regardless of its owner.
func (s *Service) ForceUnlock(ctx context.Context) error {
	if err := s.call(ctx, "ranking", "unlock", func(ctx context.Context) error {
		return s.ranking.ForceUnlock(ctx, s.lockKey)
	}); err != nil {
		return s.rankingErr("unlock", err)
	}
	s.logger.Warn(ctx, "recovery lock force released", logger.String("lock", s.lockKey))
	return nil
}

// RunPeriodicSync calls Sync every interval until ctx is done.
func (s *Service) RunPeriodicSync(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sync(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error(ctx, "periodic sync failed", logger.Error(err))
			}
		}
	}
}
