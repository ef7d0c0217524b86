package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"ck3watch/internal/config"
	"ck3watch/internal/logging"
	"ck3watch/internal/service"

	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Development())
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync()

	svc, err := service.New(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize service", zap.Error(err))
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", zap.String("service", service.Name), zap.String("root", cfg.RootDir))
	if err := svc.Run(ctx); err != nil {
		svc.Close()
		logger.Fatal("service failed", zap.Error(err))
	}
}
