package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joshsymonds/mailsort/internal/classify"
	"github.com/joshsymonds/mailsort/internal/config"
	"github.com/joshsymonds/mailsort/internal/ingest"
	"github.com/joshsymonds/mailsort/internal/metrics"
	"github.com/joshsymonds/mailsort/internal/runtime"
	"github.com/joshsymonds/mailsort/internal/textnorm"
	"github.com/joshsymonds/mailsort/internal/triage"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load("mailsort", os.Args[1:], nil)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		runtime.DefaultLogger().Error("mailsort failed", "error", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		runtime.DefaultLogger().Error("mailsort failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger, err := runtime.LoggerFor(cfg)
	if err != nil {
		return err
	}

	backend, closeBackend, err := runtime.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	gen, err := runtime.NewGenerator(ctx, cfg)
	if err != nil {
		return err
	}
	set := classify.NewObservedSet(gen, textnorm.HTML{}, metrics.Classifications)
	chain, err := triage.DefaultChain(set, cfg.LabelNames())
	if err != nil {
		return fmt.Errorf("build rule chain: %w", err)
	}
	logger.Info("mailsort starting",
		"backend", cfg.Backend,
		"model", gen.Name(),
		"dry_run", cfg.DryRun,
		"poll_interval", cfg.PollInterval.Duration,
	)

	svc := &ingest.Service{
		Backend: backend,
		Chain:   chain,
		Names:   cfg.LabelNames(),
		Options: ingest.Options{
			PollInterval: cfg.PollInterval.Duration,
			PageSize:     cfg.PageSize,
			DryRun:       cfg.DryRun,
		},
		Log:           logger,
		RefreshLabels: refreshOnHangup(ctx),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr, logger) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("mailsort stopped")
	return nil
}

// refreshOnHangup turns SIGHUP into label directory refreshes.
func refreshOnHangup(ctx context.Context) <-chan struct{} {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	out := make(chan struct{}, 1)
	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	}
}
