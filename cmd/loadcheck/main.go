package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/ladder/internal/loadcheck"
	"github.com/okian/ladder/pkg/logger"
)

// Default configuration constants.
const (
	defaultPlayers     = 1000
	defaultMaxScore    = 100
	defaultUpdates     = 3
	defaultTopN        = 50
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 10 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		players  = flag.Int("players", defaultPlayers, "Distinct players to submit")
		maxScore = flag.Int64("max-score", defaultMaxScore, "Upper bound for generated scores; small values force ties")
		updates  = flag.Int("updates", defaultUpdates, "Score submissions per player")
		topN     = flag.Int("top", defaultTopN, "Entries to fetch from the top list")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Concurrent submitters")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		verbose  = flag.Bool("verbose", false, "Log every failed submission")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	_, err := loadcheck.Run(ctx, &loadcheck.Config{
		BaseURL:    *baseURL,
		NumPlayers: *players,
		MaxScore:   *maxScore,
		Updates:    *updates,
		TopN:       *topN,
		Workers:    *workers,
		Timeout:    *timeout,
	})
	if err != nil {
		logger.Get().Error(ctx, "load check failed", logger.Error(err))
		os.Exit(1)
	}
}
