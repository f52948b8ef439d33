// Command recovery runs one recovery operation against the configured
// backends and exits.
//
//	recovery -op check    report whether the ranking needs a rebuild
//	recovery -op rebuild  reload the ranking from the repository
//	recovery -op sync     write the ranking back to the repository
//	recovery -op unlock   force release the recovery lock
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	service "github.com/okian/ladder/internal/app"
	"github.com/okian/ladder/internal/config"
	"github.com/okian/ladder/pkg/logger"
)

// Operations accepted by -op.
const (
	opCheck   = "check"
	opRebuild = "rebuild"
	opSync    = "sync"
	opUnlock  = "unlock"
)

// ErrUnknownOp is returned for an unsupported -op value.
var ErrUnknownOp = errors.New("unknown operation")

// ErrContended is returned when another process holds the recovery lock.
var ErrContended = errors.New("recovery lock held elsewhere")

func main() {
	op := flag.String("op", opCheck, "operation: check, rebuild, sync or unlock")
	flag.Parse()

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
	_ = logger.SetLevelString(cfg.LogLevel)
	l := logger.Get().Named("recovery")

	b, err := service.OpenBackends(ctx, cfg, l)
	if err != nil {
		l.Error(ctx, "open backends", logger.Error(err))
		os.Exit(1)
	}
	svc := service.New(b.Ranking, b.Repository, service.Options(cfg, b, l)...)

	err = execute(ctx, svc, *op, os.Stdout)
	if cerr := b.Close(context.WithoutCancel(ctx)); cerr != nil {
		l.Warn(ctx, "close backends", logger.Error(cerr))
	}
	if err != nil {
		l.Error(ctx, "recovery operation failed", logger.String("operation", *op), logger.Error(err))
		os.Exit(1)
	}
}

func execute(ctx context.Context, svc *service.Service, op string, out io.Writer) error {
	switch op {
	case opCheck:
		needed, err := svc.NeedsRecovery(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "needs_recovery=%t\n", needed)
	case opRebuild:
		return report(ctx, out, svc.Rebuild)
	case opSync:
		return report(ctx, out, svc.Sync)
	case opUnlock:
		if err := svc.ForceUnlock(ctx); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, "unlocked")
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, op)
	}
	return nil
}

func report(ctx context.Context, out io.Writer, fn func(context.Context) (service.RecoveryResult, error)) error {
	res, err := fn(ctx)
	if err != nil {
		return err
	}
	if res.Contended {
		return ErrContended
	}
	_, _ = fmt.Fprintf(out, "processed=%d failed=%d\n", res.Processed, res.Failed)
	return nil
}
