package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/cli"
	"ledger/internal/services"
	"ledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel)
	logger.Info("Starting ledger-worker")

	backend := cli.InitBackend(context.Background(), logger, cfg)
	defer func() {
		if err := backend.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	}()

	// The worker never publishes: corrections it makes are not ledger
	// writes and must not echo back onto the queue.
	svc, err := services.NewLedgerService(context.Background(), backend.Store, nil, services.LedgerConfig{
		DefaultCurrency: cfg.DefaultCurrency,
		StatusCacheTTL:  cfg.CacheTTL,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize ledger service", "error", err)
		os.Exit(1)
	}

	procCfg := services.DefaultReconcileProcessorConfig()
	procCfg.BatchSize = cfg.ReconcileBatchSize
	procCfg.SweepInterval = cfg.ReconcileInterval
	processor := services.NewReconcileProcessor(svc, procCfg)
	recompute := worker.NewRecomputeWorker(processor, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := processor.Stop(shutdownCtx); err != nil {
			logger.Warn("Reconcile processor stop error", "error", err)
		}
		handled, skipped := recompute.Stats()
		logger.Info("Worker shutdown complete",
			"events_handled", handled,
			"events_skipped", skipped,
			"pending_accounts", processor.Pending())
	})

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start reconcile processor", "error", err)
		os.Exit(1)
	}
	logger.Info("Reconcile processor started",
		"batch_size", procCfg.BatchSize,
		"sweep_interval", procCfg.SweepInterval)

	g, gctx := errgroup.WithContext(ctx)
	if backend.AMQP != nil {
		g.Go(func() error {
			return backend.AMQP.ConsumeEvents(gctx, recompute.HandleEvent)
		})
	} else {
		logger.Info("AMQP disabled - relying on periodic sweeps only")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Event consumption failed", "error", err)
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = processor.Stop(stopCtx)
		cancel()
		_ = backend.Cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
}
