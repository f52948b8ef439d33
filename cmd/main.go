package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/ladder/internal/adapters/http/api"
	"github.com/okian/ladder/internal/adapters/http/swagger"
	service "github.com/okian/ladder/internal/app"
	"github.com/okian/ladder/internal/config"
	"github.com/okian/ladder/pkg/logger"
	"github.com/okian/ladder/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	if err := logger.Init(); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if cfg.LogJSON {
		if err := logger.Init(logger.WithJSON(true)); err != nil {
			_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
			os.Exit(1)
		}
	}
	l := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		l.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	metrics.SetEnabled(cfg.MetricsEnabled)

	if err := run(ctx, cfg, l); err != nil {
		l.Error(ctx, "leaderboard server stopped with error", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

// run serves until ctx is canceled, then drains the HTTP server, performs
// a final sync and closes the backends.
func run(ctx context.Context, cfg *config.Config, l logger.Logger) error {
	backends, err := service.OpenBackends(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := backends.Close(cctx); err != nil {
			l.Error(ctx, "closing backends", logger.Error(err))
		}
	}()

	svc := service.New(backends.Ranking, backends.Repository, service.Options(cfg, backends, l.Named("leaderboard"))...)

	if cfg.RecoverOnStart {
		res, err := svc.Recover(ctx)
		if err != nil {
			// The ranking may still be serviceable; operators can retry via /api/admin/rebuild.
			l.Error(ctx, "startup recovery failed", logger.Error(err))
		} else if res.Processed > 0 {
			l.Info(ctx, "startup recovery loaded players", logger.Int("loaded", res.Processed))
		}
	}

	go svc.RunPeriodicSync(ctx, cfg.SyncInterval())
	go metrics.RunSystemUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(svc, cfg),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		l.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	l.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if res, err := svc.Sync(shutdownCtx); err != nil {
		l.Error(ctx, "final sync failed", logger.Error(err))
	} else {
		l.Info(ctx, "final sync complete", logger.Int("synced", res.Processed), logger.Int("failed", res.Failed))
	}

	l.Info(ctx, "server stopped")
	return nil
}

func newMux(svc *service.Service, cfg *config.Config) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(mux)
	api.NewServer(svc, cfg.DefaultTopLimit).Register(mux)
	return mux
}
