package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	logpkg "hanna-engine/common/logger"
	"hanna-engine/internal/config"
	"hanna-engine/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logpkg.NewLogger(cfg.Log.Level, cfg.Log.Format, "hanna-engine")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting hanna-engine",
		zap.Bool("db_enabled", cfg.DBEnabled),
		zap.String("outbound_mode", cfg.OutboundMode),
		zap.String("timezone", cfg.Location.String()),
		zap.Int("critical_task_cap", cfg.Engine.CriticalTaskCap),
		zap.Duration("dedup_window", cfg.Engine.DedupWindow),
		zap.String("inbound_stream", cfg.Streams.Inbound),
	)

	engine, err := service.NewEngineService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create engine service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- engine.Start(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("Engine exited", zap.Error(err))
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := engine.Stop(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	logger.Info("Service stopped")
}
