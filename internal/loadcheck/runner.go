package loadcheck

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/ladder/pkg/logger"
)

// Run submits generated scores, then reads the ranking back and verifies it.
// The service must not receive other writes for the players it generates.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	return run(ctx, cfg, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)))
}

func run(ctx context.Context, cfg *Config, r *rand.Rand) (*Stats, error) {
	l := logger.Get().Named("loadcheck")
	start := time.Now()
	stats := &Stats{}
	c := newClient(cfg.BaseURL, cfg.Timeout)

	l.Info(ctx, "starting load check",
		logger.String("base_url", cfg.BaseURL),
		logger.Int("players", cfg.NumPlayers),
		logger.Int("updates", cfg.Updates),
		logger.Int("workers", cfg.Workers),
	)

	if err := c.health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	subs, final := generate(cfg, r)
	submit(ctx, c, cfg.Workers, subs, stats, l)
	if stats.Failed > 0 {
		return stats, fmt.Errorf("%d of %d submissions failed", stats.Failed, stats.Submitted)
	}

	top, err := c.top(ctx, cfg.TopN)
	if err != nil {
		return stats, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	if err := verifyTop(top, final); err != nil {
		return stats, err
	}

	for id, want := range final {
		e, err := c.rank(ctx, id)
		if err != nil {
			return stats, fmt.Errorf("rank retrieval failed: %w", err)
		}
		if err := verifyRank(e, want, top); err != nil {
			return stats, err
		}
		stats.Verified++
	}

	stats.Duration = time.Since(start)
	l.Info(ctx, "load check passed",
		logger.Int("submitted", stats.Submitted),
		logger.Int("verified", stats.Verified),
		logger.Duration("took", stats.Duration),
	)
	return stats, nil
}

// submit sends subs through a worker pool. Each round is drained before the
// next starts so a player's last submission is the one applied last.
func submit(ctx context.Context, c *client, workers int, subs []Submission, stats *Stats, l logger.Logger) {
	var ok, failed atomic.Int64
	round := len(subs)
	if n := countPlayers(subs); n > 0 {
		round = n
	}

	for lo := 0; lo < len(subs); lo += round {
		batch := subs[lo:min(lo+round, len(subs))]
		ch := make(chan Submission, workers*2)
		var wg sync.WaitGroup
		for range max(1, workers) {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for s := range ch {
					if err := c.submit(ctx, s); err != nil {
						failed.Add(1)
						l.Debug(ctx, "submission failed", logger.String("player_id", s.PlayerID), logger.Error(err))
						continue
					}
					ok.Add(1)
				}
			}()
		}
		for _, s := range batch {
			if ctx.Err() != nil {
				break
			}
			ch <- s
		}
		close(ch)
		wg.Wait()
	}

	stats.Successful = int(ok.Load())
	stats.Failed = int(failed.Load())
	stats.Submitted = stats.Successful + stats.Failed
}

func countPlayers(subs []Submission) int {
	seen := make(map[string]struct{})
	for _, s := range subs {
		if _, dup := seen[s.PlayerID]; dup {
			break
		}
		seen[s.PlayerID] = struct{}{}
	}
	return len(seen)
}
