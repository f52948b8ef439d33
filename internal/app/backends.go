package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/ladder/internal/adapters/mq/notifier"
	"github.com/okian/ladder/internal/adapters/ranking"
	"github.com/okian/ladder/internal/adapters/repository"
	"github.com/okian/ladder/internal/config"
	"github.com/okian/ladder/pkg/logger"
)

// Backends owns the store handles a Service runs on. Open them once at
// process start and Close them at shutdown.
type Backends struct {
	Ranking    ranking.LockingStore
	Repository repository.Repository
	Notifier   notifier.Notifier

	closers []func(context.Context) error
}

// OpenBackends connects the stores selected by cfg. On error, anything
// already opened is closed.
func OpenBackends(ctx context.Context, cfg *config.Config, l logger.Logger) (_ *Backends, err error) {
	b := &Backends{}
	defer func() {
		if err != nil {
			_ = b.Close(ctx)
		}
	}()

	switch cfg.RankingBackend {
	case config.RankingRedis:
		client, err := ranking.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func(context.Context) error { client.Close(); return nil })
		b.Ranking = ranking.NewRedisStore(client,
			ranking.WithKey(cfg.LeaderboardKey),
			ranking.WithBatchSize(cfg.RebuildBatchSize),
		)
	case config.RankingMemory:
		b.Ranking = ranking.NewTreapStore()
	default:
		return nil, fmt.Errorf("%w: ranking_backend %q", config.ErrInvalidConfig, cfg.RankingBackend)
	}

	switch cfg.RepositoryDriver {
	case config.DriverPostgres:
		repo, err := repository.NewPostgresRepository(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		b.Repository = repo
	case config.DriverMongo:
		repo, err := repository.NewMongoRepository(ctx, cfg.MongoURI, repository.WithDatabase(cfg.MongoDatabase))
		if err != nil {
			return nil, err
		}
		b.Repository = repo
	case config.DriverMemory:
		b.Repository = repository.NewMemoryRepository()
	default:
		return nil, fmt.Errorf("%w: %q", repository.ErrUnknownDriver, cfg.RepositoryDriver)
	}
	b.closers = append(b.closers, b.Repository.Close)

	if brokers := cfg.Brokers(); len(brokers) > 0 {
		b.Notifier = notifier.NewKafkaNotifier(brokers, cfg.KafkaTopic, notifier.WithLogger(l.Named("notifier")))
		l.Info(ctx, "publishing score changes", logger.String("topic", cfg.KafkaTopic))
	} else {
		b.Notifier = notifier.NopNotifier{}
	}
	// The notifier is closed first so queued changes still publish.
	b.closers = append(b.closers, b.Notifier.Close)

	return b, nil
}

// Close releases every handle in reverse opening order.
func (b *Backends) Close(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i](ctx))
	}
	b.closers = nil
	return errors.Join(errs...)
}

// Options maps cfg onto Service options.
func Options(cfg *config.Config, b *Backends, l logger.Logger) []Option {
	return []Option{
		WithLogger(l),
		WithStoreTimeout(cfg.StoreTimeout()),
		WithMaxLimit(cfg.MaxTopLimit),
		WithLock(cfg.LockKey, cfg.LockTTL()),
		WithRebuildBatchSize(cfg.RebuildBatchSize),
		WithNotifier(b.Notifier),
	}
}
