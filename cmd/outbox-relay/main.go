package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/perkflow/perkflow/pkg/config"
	"github.com/perkflow/perkflow/pkg/eventbus"
	"github.com/perkflow/perkflow/pkg/outbox"
	"github.com/perkflow/perkflow/pkg/store/postgres"
	redisclient "github.com/perkflow/perkflow/pkg/store/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	db, err := postgres.NewStore(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redis, err := redisclient.NewClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redis.Close()

	bus := eventbus.NewBus(redis.Client())
	repo := postgres.NewOutboxRepository(db.DB())
	relay := outbox.NewRelay(repo, bus, logger, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down relay...")
		cancel()
	}()

	logger.Info("Starting outbox relay", zap.Duration("poll_interval", cfg.Outbox.PollInterval))
	if err := relay.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatal("Relay error", zap.Error(err))
	}
}
