package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "LADDER_"

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if LADDER_CONFIG is set
//  3. env (prefix LADDER_), after loading a .env file when one exists
//
// The .env path defaults to ".env" and can be moved with LADDER_DOTENV.
// Variables already present in the environment win over the file.
func Load(ctx context.Context) (*Config, error) {
	dotenv := os.Getenv(envPrefix + "DOTENV")
	if dotenv == "" {
		dotenv = ".env"
	}
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: dotenv %s: %w", ErrLoadConfig, dotenv, err)
	}

	base := New(ctx)
	k := koanf.New(".")

	if path := os.Getenv(envPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: file %s: %w", ErrLoadConfig, path, err)
		}
	}

	// LADDER_REDIS_ADDR -> redis_addr. Underscores are kept to match the
	// flat koanf tags; "." never appears in env names.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.RankingBackend != RankingRedis && c.RankingBackend != RankingMemory:
		return fmt.Errorf("%w: unknown ranking_backend %q", ErrInvalidConfig, c.RankingBackend)
	case c.RankingBackend == RankingRedis && c.RedisAddr == "":
		return fmt.Errorf("%w: redis_addr must not be empty", ErrInvalidConfig)
	case c.RepositoryDriver != DriverPostgres && c.RepositoryDriver != DriverMongo && c.RepositoryDriver != DriverMemory:
		return fmt.Errorf("%w: unknown repository_driver %q", ErrInvalidConfig, c.RepositoryDriver)
	case c.LeaderboardKey == "" || c.LockKey == "":
		return fmt.Errorf("%w: leaderboard_key and lock_key must not be empty", ErrInvalidConfig)
	case c.LockTTLSeconds <= 0:
		return fmt.Errorf("%w: lock_ttl_seconds must be positive", ErrInvalidConfig)
	case c.StoreTimeoutMS <= 0:
		return fmt.Errorf("%w: store_timeout_ms must be positive", ErrInvalidConfig)
	case c.MaxTopLimit < 1:
		return fmt.Errorf("%w: max_top_limit must be positive", ErrInvalidConfig)
	case c.DefaultTopLimit < 1 || c.DefaultTopLimit > c.MaxTopLimit:
		return fmt.Errorf("%w: default_top_limit must be in [1, max_top_limit]", ErrInvalidConfig)
	case c.SyncIntervalSeconds < 0:
		return fmt.Errorf("%w: sync_interval_seconds must not be negative", ErrInvalidConfig)
	case c.RebuildBatchSize < 1:
		return fmt.Errorf("%w: rebuild_batch_size must be positive", ErrInvalidConfig)
	}
	return nil
}
