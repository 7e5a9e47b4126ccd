package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ledger/internal/cli"
	apphttp "ledger/internal/http"
	"ledger/internal/services"
)

func main() {
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg.LogLevel)

	backend := cli.InitBackend(context.Background(), logger, cfg)

	var publisher services.Publisher
	if backend.AMQP != nil {
		publisher = backend.AMQP
	}

	svc, err := services.NewLedgerService(context.Background(), backend.Store, publisher, services.LedgerConfig{
		DefaultCurrency: cfg.DefaultCurrency,
		StatusCacheTTL:  cfg.CacheTTL,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize ledger service", "error", err)
		_ = backend.Cleanup()
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		// closes the store and the AMQP client
		if err := svc.Close(); err != nil {
			logger.Error("Ledger service close error", "error", err)
		}
	})

	logger.Info("Starting ledger server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
