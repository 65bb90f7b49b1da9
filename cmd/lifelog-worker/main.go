package main

import (
	"context"
	"os"
	"sync"
	"time"

	"lifelog/internal/backend"
	"lifelog/internal/cli"
	"lifelog/internal/log"
	"lifelog/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(logger)

	logger.Info("Starting lifelog-worker")

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).Create(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		wg.Wait()
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	sweeper := worker.NewSweeper(res.Store, cfg.SweepInterval, logger)
	wg.Add(2)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := res.Follow(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Change feed stopped", log.FieldError, err)
		}
	}()

	logger.Info("Worker running", "sweep_interval", cfg.SweepInterval.String())
	cli.WaitForShutdown(ctx, done)
}
